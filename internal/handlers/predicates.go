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

// Package handlers implements one verify/receive pair per ActivityPub
// activity type this module federates, plus the shared predicates its
// handlers lean on.
package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/LemmyNet/lemmy-federate/internal/ap"
	"github.com/LemmyNet/lemmy-federate/internal/store"
)

var (
	ErrNotAuthorized   = errors.New("actor not authorized for this action")
	ErrNotFound        = errors.New("referenced object not found")
	ErrAlreadyApplied  = errors.New("activity already applied")
	ErrPrivateAudience = errors.New("activity addressed beyond its allowed audience")
)

// verifyDomainsMatch requires a and b to share a host. The Create/Update,
// Delete and Undo handlers' Verify call it directly, and verifyModAction
// builds on it, to check that the activity's actor and the object it
// targets originate from the same place the envelope claims to be from.
// The Follow, Accept, Like, Dislike, Report and Announce handlers do not
// call it.
func verifyDomainsMatch(a, b string) error {
	if !ap.DomainsMatch(a, b) {
		return fmt.Errorf("%w: %s vs %s", ap.ErrDomainMismatch, a, b)
	}

	return nil
}

// verifyIsPublic requires activity to be addressed to the special Public
// collection, directly or via cc. ReportHandler's Verify is its only
// caller; CollectionAdd/Remove and Block are not checked against it.
func verifyIsPublic(activity *ap.Activity) error {
	if !activity.IsPublic() {
		return fmt.Errorf("%w: activity is not addressed to Public", ErrPrivateAudience)
	}

	return nil
}

// verifyPersonInCommunity requires person to already be a follower of
// community. No handler's Verify calls it.
func verifyPersonInCommunity(ctx context.Context, followers store.FollowerStore, community, person string) error {
	ok, err := followers.IsFollower(ctx, community, person)
	if err != nil {
		return err
	}

	if !ok {
		return fmt.Errorf("%w: %s is not a member of %s", ErrNotAuthorized, person, community)
	}

	return nil
}

// verifyModAction requires the activity's actor to share a host with
// community. It does not check that the actor is the community actor, the
// instance actor, or a moderator or admin of community: any actor on the
// community's host passes.
func verifyModAction(activity *ap.Activity, community string) error {
	if err := verifyDomainsMatch(activity.Actor, community); err != nil {
		return fmt.Errorf("%w: mod action must originate from the community's own instance", ErrNotAuthorized)
	}

	return nil
}
