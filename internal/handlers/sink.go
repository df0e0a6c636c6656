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

	"github.com/LemmyNet/lemmy-federate/internal/ap"
)

// ContentSink persists the Posts, Comments and PrivateMessages a Create
// or Update activity carries. The SQL schema for these belongs to the
// caller, not this module; ContentSink is the narrow seam the
// federation subsystem needs to hand off a verified, deduplicated
// object to whatever stores it.
type ContentSink interface {
	UpsertObject(ctx context.Context, obj *ap.Object) error
	MarkDeleted(ctx context.Context, id string) error
	// IsDeletedOrRemoved reports whether id has already been tombstoned
	// locally, used by check_*_deleted_or_removed predicates so a
	// redundant Delete/remove is a no-op rather than an error.
	IsDeletedOrRemoved(ctx context.Context, id string) (bool, error)
}

// VoteSink persists Like/Dislike activities.
type VoteSink interface {
	RecordVote(ctx context.Context, actor, object string, score int) error
	RemoveVote(ctx context.Context, actor, object string) error
}

// ModerationSink persists Block/Lock moderation state.
type ModerationSink interface {
	BanPerson(ctx context.Context, community, person string) error
	UnbanPerson(ctx context.Context, community, person string) error
	SetLocked(ctx context.Context, object string, locked bool) error
}

// ReportSink persists Flag (Report) activities for moderator review.
type ReportSink interface {
	RecordReport(ctx context.Context, reporter, object, reason string) error
}

// CollectionSink persists Add/Remove against a community's featured
// (pinned) post collection.
type CollectionSink interface {
	SetFeatured(ctx context.Context, community, object string, featured bool) error
}

// CommunityResolver answers the question every re-announcing handler
// needs before it can fan an activity back out: is id a local community,
// and if so, what's its visibility.
type CommunityResolver interface {
	// VisibilityOf returns ok=false if id isn't a local community.
	VisibilityOf(ctx context.Context, id string) (visibility string, ok bool, err error)
}
