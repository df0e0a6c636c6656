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

// Package fanout implements Community Fan-out: wrapping an activity a
// local community's receive path produced (or forwarded) in Announce,
// and scheduling its delivery to the community's follower instances.
package fanout

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net/url"
	"time"

	"github.com/LemmyNet/lemmy-federate/internal/activitylog"
	"github.com/LemmyNet/lemmy-federate/internal/ap"
	"github.com/LemmyNet/lemmy-federate/internal/store"
)

// Visibility mirrors a community's visibility setting, which governs
// whether and how it announces.
type Visibility string

const (
	Public           Visibility = "Public"
	Unlisted         Visibility = "Unlisted"
	Private          Visibility = "Private"
	LocalOnlyPublic  Visibility = "LocalOnlyPublic"
	LocalOnlyPrivate Visibility = "LocalOnlyPrivate"
)

// Fanout wraps announceable activities and appends them to the outbound
// log, restricted to the community's follower instances.
type Fanout struct {
	domain    string
	followers store.FollowerStore
	log       *activitylog.Log
}

func New(domain string, followers store.FollowerStore, log *activitylog.Log) *Fanout {
	return &Fanout{domain: domain, followers: followers, log: log}
}

// Announce wraps inner in an Announce from community and schedules it
// for delivery to every follower instance. It is a no-op for a
// local-only community, and for a community with no followers yet.
func (f *Fanout) Announce(ctx context.Context, community string, visibility Visibility, inner *ap.Activity) error {
	if visibility == LocalOnlyPublic || visibility == LocalOnlyPrivate {
		return nil
	}

	domains, err := f.followerDomains(ctx, community)
	if err != nil {
		return fmt.Errorf("resolve follower instances of %s: %w", community, err)
	}

	if len(domains) == 0 {
		return nil
	}

	announce := &ap.Activity{
		Context: "https://www.w3.org/ns/activitystreams",
		Type:    ap.Announce,
		ID:      f.newID(community),
		Actor:   community,
		Object:  inner,
	}
	announce.To.Add(community + "/followers")
	if visibility == Public {
		announce.To.Add(ap.Public)
	}

	_, err = f.log.Append(ctx, community, announce, domains)
	return err
}

// followerDomains returns the distinct remote instance domains community
// has followers on, derived from each follower's inbox host.
func (f *Fanout) followerDomains(ctx context.Context, community string) ([]string, error) {
	seen := make(map[string]struct{})

	var afterID int64
	for {
		ids, inboxes, err := f.followers.Followers(ctx, community, afterID, 256)
		if err != nil {
			return nil, err
		}

		if len(ids) == 0 {
			break
		}

		for _, inbox := range inboxes {
			u, err := url.Parse(inbox)
			if err != nil || u.Host == "" {
				continue
			}
			seen[u.Host] = struct{}{}
		}

		afterID = ids[len(ids)-1]
		if len(ids) < 256 {
			break
		}
	}

	domains := make([]string, 0, len(seen))
	for d := range seen {
		domains = append(domains, d)
	}

	return domains, nil
}

func (f *Fanout) newID(community string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", community, time.Now().UnixNano())))
	return fmt.Sprintf("https://%s/announce/%x", f.domain, sum)
}
