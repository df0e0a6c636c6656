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

// ReportHandler handles inbound Flag activities, reporting a Post or
// Comment to the community's moderators. Reports are only federated for
// public content, never for a private message.
type ReportHandler struct{ *Deps }

func NewReportHandler(d *Deps) *ReportHandler { return &ReportHandler{d} }

func (h *ReportHandler) Verify(ctx context.Context, activity *ap.Activity, sender *ap.Actor) error {
	objectID, ok := activity.ObjectID()
	if !ok || objectID == "" {
		return fmt.Errorf("%w: report target is missing", ap.ErrInvalidActivity)
	}

	return verifyIsPublic(activity)
}

func (h *ReportHandler) Receive(ctx context.Context, activity *ap.Activity, sender *ap.Actor) error {
	objectID, _ := activity.ObjectID()
	return h.Reports.RecordReport(ctx, sender.ID, objectID, activity.Summary)
}

// CollectionHandler handles inbound Add and Remove activities against a
// community's featured-post collection. A single handler serves both
// verbs, since target marks the collection and the activity's own Type
// carries the add-vs-remove distinction.
type CollectionHandler struct {
	*Deps
	Featured bool
}

func NewCollectionAddHandler(d *Deps) *CollectionHandler {
	return &CollectionHandler{Deps: d, Featured: true}
}

func NewCollectionRemoveHandler(d *Deps) *CollectionHandler {
	return &CollectionHandler{Deps: d, Featured: false}
}

func (h *CollectionHandler) Verify(ctx context.Context, activity *ap.Activity, sender *ap.Actor) error {
	objectID, ok := activity.ObjectID()
	if !ok || objectID == "" {
		return fmt.Errorf("%w: collection target is missing", ap.ErrInvalidActivity)
	}

	if activity.Target == "" {
		return fmt.Errorf("%w: collection add/remove is missing target", ap.ErrInvalidActivity)
	}

	return verifyModAction(activity, activity.Actor)
}

func (h *CollectionHandler) Receive(ctx context.Context, activity *ap.Activity, sender *ap.Actor) error {
	objectID, _ := activity.ObjectID()
	if err := h.Collections.SetFeatured(ctx, activity.Actor, objectID, h.Featured); err != nil {
		return err
	}

	return h.announceFromCommunity(ctx, activity, activity.Actor)
}
