/*
Copyright 2025, 2026 Dima Krasner

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package handlers

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/LemmyNet/lemmy-federate/internal/activitylog"
	"github.com/LemmyNet/lemmy-federate/internal/ap"
	"github.com/LemmyNet/lemmy-federate/internal/fanout"
	"github.com/LemmyNet/lemmy-federate/internal/fetcher"
	"github.com/LemmyNet/lemmy-federate/internal/store"
)

// Deps are the collaborators every activity handler needs: somewhere to
// resolve actors and community membership, somewhere to append the
// activities a Receive produces in response (e.g. Accept for Follow),
// and the narrow content/vote/moderation/report sinks above.
type Deps struct {
	Domain      string
	Actors      store.ActorStore
	Followers   store.FollowerStore
	Log         *activitylog.Log
	Fetcher     *fetcher.Fetcher
	Content     ContentSink
	Votes       VoteSink
	Moderation  ModerationSink
	Reports     ReportSink
	Collections CollectionSink
	Communities CommunityResolver
	Fanout      *fanout.Fanout

	// Dispatch re-enters the inbound router with an activity unwrapped
	// from an Announce, resolving its actor and running it through the
	// same verify/receive pipeline as a directly-delivered activity. Wired
	// to the router's DispatchInner by whoever builds Deps, to avoid an
	// import cycle between the two packages.
	Dispatch func(ctx context.Context, inner *ap.Activity) error
}

// newActivityID mints an id for a locally-produced activity (e.g. the
// Accept this instance sends in response to an inbound Follow), hashing
// the seed and a timestamp rather than using a monotonic counter, so two
// concurrent requests can't collide.
func (d *Deps) newActivityID(kind, seed string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", seed, time.Now().UnixNano())))
	return fmt.Sprintf("https://%s/%s/%x", d.Domain, kind, sum)
}

// appendTo appends activity addressed only to recipient (e.g. the Accept
// this instance sends back to a single remote follower), restricting
// delivery to recipient's own instance.
func (d *Deps) appendTo(ctx context.Context, actorID string, activity *ap.Activity, recipient string) error {
	domain, err := ap.Origin(recipient)
	if err != nil {
		return fmt.Errorf("determine recipient domain: %w", err)
	}

	_, err = d.Log.Append(ctx, actorID, activity, []string{domain})
	return err
}

// communityTarget returns the first non-Public audience member of
// activity, the convention a post, comment, vote or moderation activity
// uses to name the community it belongs to.
func communityTarget(activity *ap.Activity) (string, bool) {
	for _, id := range activity.To.Keys() {
		if id != ap.Public {
			return id, true
		}
	}

	for _, id := range activity.CC.Keys() {
		if id != ap.Public {
			return id, true
		}
	}

	return "", false
}

// maybeAnnounce re-announces activity through its target community, if
// that community is local: a local community's receive path producing
// an announceable activity, whether from a local user's action or a
// forwarded remote user's action. A remote target community, or no
// resolvable target at all, is not an error: the activity still applies
// locally, it simply isn't this instance's place to fan it out.
func (d *Deps) maybeAnnounce(ctx context.Context, activity *ap.Activity) error {
	if d.Fanout == nil || d.Communities == nil {
		return nil
	}

	community, ok := communityTarget(activity)
	if !ok || !ap.DomainsMatch(community, d.Domain) {
		return nil
	}

	visibility, ok, err := d.Communities.VisibilityOf(ctx, community)
	if err != nil {
		return fmt.Errorf("resolve community visibility: %w", err)
	}
	if !ok {
		return nil
	}

	return d.Fanout.Announce(ctx, community, fanout.Visibility(visibility), activity)
}

// announceFromCommunity re-announces activity through community, whose
// identity is already known (e.g. a mod action, where the community is
// activity.Actor itself rather than a to/cc member). Used instead of
// maybeAnnounce when the caller already verified community is local.
func (d *Deps) announceFromCommunity(ctx context.Context, activity *ap.Activity, community string) error {
	if d.Fanout == nil || d.Communities == nil || !ap.DomainsMatch(community, d.Domain) {
		return nil
	}

	visibility, ok, err := d.Communities.VisibilityOf(ctx, community)
	if err != nil {
		return fmt.Errorf("resolve community visibility: %w", err)
	}
	if !ok {
		return nil
	}

	return d.Fanout.Announce(ctx, community, fanout.Visibility(visibility), activity)
}
