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

// AnnounceHandler handles inbound Announce activities: a community
// relaying an activity on behalf of one of its members to the
// community's followers. Only a community actor announces; the nested
// activity is re-dispatched through Dispatch rather than applied
// directly, since it carries its own actor and its own verify/receive
// contract.
type AnnounceHandler struct{ *Deps }

func NewAnnounceHandler(d *Deps) *AnnounceHandler { return &AnnounceHandler{d} }

func (h *AnnounceHandler) Verify(ctx context.Context, activity *ap.Activity, sender *ap.Actor) error {
	if sender.Type != ap.Community {
		return fmt.Errorf("%w: only a community actor may announce", ErrNotAuthorized)
	}

	switch activity.Object.(type) {
	case *ap.Activity:
		return nil
	default:
		return fmt.Errorf("%w: announce must wrap an activity", ap.ErrInvalidActivity)
	}
}

func (h *AnnounceHandler) Receive(ctx context.Context, activity *ap.Activity, sender *ap.Actor) error {
	inner := activity.Object.(*ap.Activity)

	if h.Dispatch == nil {
		return fmt.Errorf("announce dispatch is not wired")
	}

	if err := h.Dispatch(ctx, inner); err != nil {
		return fmt.Errorf("dispatch announced activity: %w", err)
	}

	return nil
}
