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

// BlockHandler handles inbound Block activities: a community (acting
// through its own actor, per verifyModAction) banning one of its
// members.
type BlockHandler struct{ *Deps }

func NewBlockHandler(d *Deps) *BlockHandler { return &BlockHandler{d} }

func (h *BlockHandler) Verify(ctx context.Context, activity *ap.Activity, sender *ap.Actor) error {
	objectID, ok := activity.ObjectID()
	if !ok || objectID == "" {
		return fmt.Errorf("%w: block target is missing", ap.ErrInvalidActivity)
	}

	return verifyModAction(activity, activity.Actor)
}

func (h *BlockHandler) Receive(ctx context.Context, activity *ap.Activity, sender *ap.Actor) error {
	objectID, _ := activity.ObjectID()
	if err := h.Moderation.BanPerson(ctx, activity.Actor, objectID); err != nil {
		return err
	}

	return h.announceFromCommunity(ctx, activity, activity.Actor)
}

// LockHandler handles inbound Lock activities, closing a Post or Comment
// to further replies.
type LockHandler struct{ *Deps }

func NewLockHandler(d *Deps) *LockHandler { return &LockHandler{d} }

func (h *LockHandler) Verify(ctx context.Context, activity *ap.Activity, sender *ap.Actor) error {
	objectID, ok := activity.ObjectID()
	if !ok || objectID == "" {
		return fmt.Errorf("%w: lock target is missing", ap.ErrInvalidActivity)
	}

	return verifyModAction(activity, activity.Actor)
}

func (h *LockHandler) Receive(ctx context.Context, activity *ap.Activity, sender *ap.Actor) error {
	objectID, _ := activity.ObjectID()
	if err := h.Moderation.SetLocked(ctx, objectID, true); err != nil {
		return err
	}

	return h.announceFromCommunity(ctx, activity, activity.Actor)
}
