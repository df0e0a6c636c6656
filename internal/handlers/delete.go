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

// DeleteHandler handles inbound Delete activities, tombstoning a Post,
// Comment or PrivateMessage this instance previously received. Deleting
// an object already tombstoned (or never seen) is an idempotent no-op.
type DeleteHandler struct{ *Deps }

func NewDeleteHandler(d *Deps) *DeleteHandler { return &DeleteHandler{d} }

func (h *DeleteHandler) Verify(ctx context.Context, activity *ap.Activity, sender *ap.Actor) error {
	objectID, ok := activity.ObjectID()
	if !ok || objectID == "" {
		return fmt.Errorf("%w: delete target is missing", ap.ErrInvalidActivity)
	}

	return verifyDomainsMatch(activity.Actor, objectID)
}

func (h *DeleteHandler) Receive(ctx context.Context, activity *ap.Activity, sender *ap.Actor) error {
	objectID, _ := activity.ObjectID()

	deleted, err := h.Content.IsDeletedOrRemoved(ctx, objectID)
	if err != nil {
		return fmt.Errorf("check deletion state: %w", err)
	}
	if deleted {
		return nil
	}

	if err := h.Content.MarkDeleted(ctx, objectID); err != nil {
		return err
	}

	return h.maybeAnnounce(ctx, activity)
}
