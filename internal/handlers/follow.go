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
	"fmt"

	"github.com/LemmyNet/lemmy-federate/internal/ap"
	"github.com/LemmyNet/lemmy-federate/internal/fanout"
	"github.com/LemmyNet/lemmy-federate/internal/store"
)

// FollowHandler handles inbound Follow activities: a remote person (or,
// for community-to-community follows, a remote group) asking to follow
// a local actor.
type FollowHandler struct{ *Deps }

func NewFollowHandler(d *Deps) *FollowHandler { return &FollowHandler{d} }

func (h *FollowHandler) Verify(ctx context.Context, activity *ap.Activity, sender *ap.Actor) error {
	objectID, ok := activity.ObjectID()
	if !ok || objectID == "" {
		return fmt.Errorf("%w: follow target is missing", ap.ErrInvalidActivity)
	}

	if !ap.DomainsMatch(objectID, h.Domain) {
		return fmt.Errorf("%w: follow target %s is not local", ErrNotFound, objectID)
	}

	return nil
}

// followState decides the state a new Follow of target starts in. A
// Private community withholds Accept until a moderator promotes the
// follower; every other target (Public/Unlisted communities, and plain
// person follows, where target isn't a community at all) accepts
// immediately.
func (h *FollowHandler) followState(ctx context.Context, target string) (store.FollowState, error) {
	if h.Communities == nil {
		return store.FollowAccepted, nil
	}

	visibility, ok, err := h.Communities.VisibilityOf(ctx, target)
	if err != nil {
		return "", fmt.Errorf("resolve community visibility: %w", err)
	}
	if !ok {
		return store.FollowAccepted, nil
	}

	if fanout.Visibility(visibility) == fanout.Private {
		return store.FollowApprovalRequired, nil
	}

	return store.FollowAccepted, nil
}

func (h *FollowHandler) Receive(ctx context.Context, activity *ap.Activity, sender *ap.Actor) error {
	objectID, _ := activity.ObjectID()

	if _, err := h.Actors.GetActor(ctx, objectID); err != nil {
		return fmt.Errorf("resolve follow target: %w", err)
	}

	state, err := h.followState(ctx, objectID)
	if err != nil {
		return err
	}

	if err := h.Followers.AddFollower(ctx, objectID, sender.ID, state); err != nil {
		return fmt.Errorf("record follower: %w", err)
	}

	if state != store.FollowAccepted {
		return nil
	}

	accept := &ap.Activity{
		Context: "https://www.w3.org/ns/activitystreams",
		Type:    ap.Accept,
		ID:      h.newActivityID("accept", objectID+"|"+sender.ID),
		Actor:   objectID,
		Object:  activity,
	}
	accept.To.Add(sender.ID)

	return h.appendTo(ctx, objectID, accept, sender.ID)
}

// AcceptHandler handles inbound Accept activities, confirming a Follow
// this instance previously sent.
type AcceptHandler struct{ *Deps }

func NewAcceptHandler(d *Deps) *AcceptHandler { return &AcceptHandler{d} }

func (h *AcceptHandler) Verify(ctx context.Context, activity *ap.Activity, sender *ap.Actor) error {
	nested, ok := activity.Object.(*ap.Activity)
	if !ok || nested.Type != ap.Follow {
		return fmt.Errorf("%w: accept must wrap a Follow", ap.ErrInvalidActivity)
	}

	if !ap.DomainsMatch(nested.Actor, h.Domain) {
		return fmt.Errorf("%w: accept for a follow we didn't send", ErrNotFound)
	}

	return nil
}

func (h *AcceptHandler) Receive(ctx context.Context, activity *ap.Activity, sender *ap.Actor) error {
	nested := activity.Object.(*ap.Activity)

	followTarget, _ := nested.ObjectID()
	if followTarget == "" {
		followTarget = sender.ID
	}

	return h.Followers.AddFollower(ctx, followTarget, nested.Actor, store.FollowAccepted)
}
