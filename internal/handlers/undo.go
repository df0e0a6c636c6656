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
)

// UndoHandler reverses a previously-received Follow, Like, Dislike or
// Block from the same actor. An Undo of an activity never observed is an
// idempotent no-op, not an error.
type UndoHandler struct{ *Deps }

func NewUndoHandler(d *Deps) *UndoHandler { return &UndoHandler{d} }

func (h *UndoHandler) Verify(ctx context.Context, activity *ap.Activity, sender *ap.Actor) error {
	nested, ok := activity.Object.(*ap.Activity)
	if !ok {
		return fmt.Errorf("%w: undo must wrap an activity", ap.ErrInvalidActivity)
	}

	if err := verifyDomainsMatch(activity.Actor, nested.Actor); err != nil {
		return fmt.Errorf("%w: undo actor differs from the undone activity's actor", err)
	}

	switch nested.Type {
	case ap.Follow, ap.Like, ap.Dislike, ap.Block:
		return nil
	default:
		return fmt.Errorf("%w: cannot undo %s", ap.ErrUnsupportedActivity, nested.Type)
	}
}

func (h *UndoHandler) Receive(ctx context.Context, activity *ap.Activity, sender *ap.Actor) error {
	nested := activity.Object.(*ap.Activity)
	objectID, _ := nested.ObjectID()

	switch nested.Type {
	case ap.Follow:
		return h.Followers.RemoveFollower(ctx, objectID, sender.ID)

	case ap.Like, ap.Dislike:
		if err := h.Votes.RemoveVote(ctx, sender.ID, objectID); err != nil {
			return err
		}
		return h.maybeAnnounce(ctx, activity)

	case ap.Block:
		if err := h.Moderation.UnbanPerson(ctx, sender.ID, objectID); err != nil {
			return err
		}
		return h.announceFromCommunity(ctx, activity, activity.Actor)

	default:
		// unreachable: Verify already rejected every other type.
		return nil
	}
}
