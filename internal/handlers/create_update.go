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

// CreateHandler handles inbound Create activities wrapping a Post,
// Comment or PrivateMessage.
type CreateHandler struct{ *Deps }

func NewCreateHandler(d *Deps) *CreateHandler { return &CreateHandler{d} }

func (h *CreateHandler) Verify(ctx context.Context, activity *ap.Activity, sender *ap.Actor) error {
	obj, ok := activity.Object.(*ap.Object)
	if !ok {
		return fmt.Errorf("%w: create must wrap an object", ap.ErrInvalidActivity)
	}

	if obj.ID == "" || obj.AttributedTo == "" {
		return fmt.Errorf("%w: object is missing id or attributedTo", ap.ErrInvalidActivity)
	}

	return verifyDomainsMatch(activity.Actor, obj.AttributedTo)
}

func (h *CreateHandler) Receive(ctx context.Context, activity *ap.Activity, sender *ap.Actor) error {
	obj := activity.Object.(*ap.Object)
	if err := h.Content.UpsertObject(ctx, obj); err != nil {
		return err
	}

	return h.maybeAnnounce(ctx, activity)
}

// UpdateHandler handles inbound Update activities, re-editing a Post or
// Comment this instance already has a copy of. It shares Create's
// contract: UpsertObject either inserts or overwrites.
type UpdateHandler struct{ *Deps }

func NewUpdateHandler(d *Deps) *UpdateHandler { return &UpdateHandler{d} }

func (h *UpdateHandler) Verify(ctx context.Context, activity *ap.Activity, sender *ap.Actor) error {
	return (&CreateHandler{h.Deps}).Verify(ctx, activity, sender)
}

func (h *UpdateHandler) Receive(ctx context.Context, activity *ap.Activity, sender *ap.Actor) error {
	obj := activity.Object.(*ap.Object)

	deleted, err := h.Content.IsDeletedOrRemoved(ctx, obj.ID)
	if err != nil {
		return fmt.Errorf("check deletion state: %w", err)
	}
	if deleted {
		// a tombstoned object doesn't come back from an edit race.
		return nil
	}

	if err := h.Content.UpsertObject(ctx, obj); err != nil {
		return err
	}

	return h.maybeAnnounce(ctx, activity)
}
