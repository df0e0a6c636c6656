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

// LikeHandler handles inbound Like (upvote) activities against a Post or
// Comment, identified by a bare object id.
type LikeHandler struct{ *Deps }

func NewLikeHandler(d *Deps) *LikeHandler { return &LikeHandler{d} }

func (h *LikeHandler) Verify(ctx context.Context, activity *ap.Activity, sender *ap.Actor) error {
	return verifyVoteTarget(activity)
}

func (h *LikeHandler) Receive(ctx context.Context, activity *ap.Activity, sender *ap.Actor) error {
	objectID, _ := activity.ObjectID()
	if err := h.Votes.RecordVote(ctx, sender.ID, objectID, 1); err != nil {
		return err
	}

	return h.maybeAnnounce(ctx, activity)
}

// DislikeHandler handles inbound Dislike (downvote) activities.
type DislikeHandler struct{ *Deps }

func NewDislikeHandler(d *Deps) *DislikeHandler { return &DislikeHandler{d} }

func (h *DislikeHandler) Verify(ctx context.Context, activity *ap.Activity, sender *ap.Actor) error {
	return verifyVoteTarget(activity)
}

func (h *DislikeHandler) Receive(ctx context.Context, activity *ap.Activity, sender *ap.Actor) error {
	objectID, _ := activity.ObjectID()
	if err := h.Votes.RecordVote(ctx, sender.ID, objectID, -1); err != nil {
		return err
	}

	return h.maybeAnnounce(ctx, activity)
}

func verifyVoteTarget(activity *ap.Activity) error {
	objectID, ok := activity.ObjectID()
	if !ok || objectID == "" {
		return fmt.Errorf("%w: vote target is missing", ap.ErrInvalidActivity)
	}

	return nil
}
