/*
Copyright 2023 - 2026 Dima Krasner

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

package activitylog

import (
	"context"

	"github.com/LemmyNet/lemmy-federate/internal/ap"
	"github.com/LemmyNet/lemmy-federate/internal/store"
)

// Targets is the resolved recipient set for one outbound activity: a flat
// list of inbox URLs, already collapsed onto shared inboxes where
// possible to cut down on redundant deliveries for wide-audience
// activities (e.g. a community Announce to thousands of followers on the
// same remote instance).
type Targets struct {
	Inboxes []string
}

// Resolve expands an activity's to/cc audience — actor ids, and the
// special community-followers collection — into concrete inbox URLs.
// Recipients that share an instance's shared inbox are collapsed to a
// single entry.
func Resolve(ctx context.Context, actors store.ActorStore, followers store.FollowerStore, activity *ap.Activity, communityFollowersOf string) (*Targets, error) {
	shared := make(map[string]struct{})
	direct := make(map[string]struct{})

	addActor := func(id string) error {
		if id == "" || id == ap.Public {
			return nil
		}

		a, err := actors.GetActor(ctx, id)
		if err != nil {
			// best-effort: an unresolvable recipient doesn't block delivery
			// to the rest of the audience.
			return nil //nolint:nilerr
		}

		if inbox := a.SharedInbox; inbox != "" {
			shared[inbox] = struct{}{}
		} else {
			direct[a.Inbox] = struct{}{}
		}

		return nil
	}

	for _, id := range activity.To.Keys() {
		if err := addActor(id); err != nil {
			return nil, err
		}
	}

	for _, id := range activity.CC.Keys() {
		if err := addActor(id); err != nil {
			return nil, err
		}
	}

	if communityFollowersOf != "" {
		var afterID int64
		for {
			ids, inboxes, err := followers.Followers(ctx, communityFollowersOf, afterID, 256)
			if err != nil {
				return nil, err
			}

			if len(ids) == 0 {
				break
			}

			for _, inbox := range inboxes {
				shared[inbox] = struct{}{}
			}

			afterID = ids[len(ids)-1]
			if len(ids) < 256 {
				break
			}
		}
	}

	targets := &Targets{Inboxes: make([]string, 0, len(shared)+len(direct))}
	for inbox := range shared {
		targets.Inboxes = append(targets.Inboxes, inbox)
	}
	for inbox := range direct {
		if _, ok := shared[inbox]; !ok {
			targets.Inboxes = append(targets.Inboxes, inbox)
		}
	}

	return targets, nil
}
