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

// Package store defines the persistence interfaces the federation
// subsystem depends on. The SQL schema and storage engine are a pluggable
// concern (see the sqlite subpackage for the one concrete implementation
// this module ships); callers may substitute any implementation that
// satisfies these interfaces.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/LemmyNet/lemmy-federate/internal/ap"
)

// ErrNotFound is returned by a lookup that found nothing.
var ErrNotFound = errors.New("not found")

// Actor is the persisted record of a local or remote ActivityPub actor.
type Actor struct {
	ID              string
	Kind            ap.ActorKind
	Inbox           string
	SharedInbox     string
	PublicKeyPem    string
	PrivateKeyPem   string // empty for remote actors
	InstanceID      int64
	Local           bool
	LastRefreshedAt time.Time
}

// Instance is a remote (or the local) federation peer.
type Instance struct {
	ID      int64
	Domain  string
	Blocked bool
	// Inbox is the instance's shared inbox URL, discovered by resolving its
	// instance actor; falls back to https://Domain/inbox until known.
	Inbox string
	// Software is the detected NodeInfo software name, informational only.
	Software string
}

// OutboxEntry is one row of the append-only activity log, destined for
// one or more remote inboxes.
type OutboxEntry struct {
	ID       int64
	Activity []byte // serialized ActivityStreams JSON
	ActorID  string
	// TargetDomains restricts delivery to these remote instances, by
	// domain. Empty means every known, allowed instance — the case for a
	// publicly-visible activity, where the audience is "everyone
	// federating with us" rather than a specific follower set.
	TargetDomains []string
	CreatedAt     time.Time
}

// ActorStore persists actor documents: local actors with key pairs, and
// cached copies of remote actors.
type ActorStore interface {
	GetActor(ctx context.Context, id string) (*Actor, error)
	PutActor(ctx context.Context, a *Actor) error
	DeleteActor(ctx context.Context, id string) error
}

// InstanceStore persists known remote instances.
type InstanceStore interface {
	GetInstance(ctx context.Context, domain string) (*Instance, error)
	PutInstance(ctx context.Context, domain string) (*Instance, error)
	ListInstances(ctx context.Context) ([]Instance, error)
	SetBlocked(ctx context.Context, domain string, blocked bool) error
	SetInbox(ctx context.Context, domain, inbox string) error
}

// ActivityLog is the append-only outbound activity log.
type ActivityLog interface {
	// Append inserts activity, restricted to targetDomains (nil/empty for
	// every known instance), and returns its monotonic id.
	Append(ctx context.Context, actorID string, activity []byte, targetDomains []string) (int64, error)
	// ReadFrom returns up to limit entries with id > afterID, in id order.
	ReadFrom(ctx context.Context, afterID int64, limit int) ([]OutboxEntry, error)
	// LatestID returns the id of the most recently appended entry, or 0.
	LatestID(ctx context.Context) (int64, error)
}

// ReceivedStore is the inbound dedup bag: activity ids already processed.
type ReceivedStore interface {
	// MarkReceived records id as seen, returning false if it was already
	// present (i.e. this is a duplicate delivery).
	MarkReceived(ctx context.Context, id string, ttl time.Duration) (bool, error)
	// Prune deletes entries older than their TTL.
	Prune(ctx context.Context) error
}

// CursorStore persists, per remote instance, the id of the last
// activity-log entry successfully delivered, and the consecutive-failure
// state of its delivery worker.
type CursorStore interface {
	GetCursor(ctx context.Context, instanceID int64) (int64, error)
	SetCursor(ctx context.Context, instanceID int64, id int64) error

	// RecordDeliveryFailure increments instanceID's consecutive failure
	// count and stamps the current time as its last retry attempt.
	RecordDeliveryFailure(ctx context.Context, instanceID int64) error
	// RecordDeliverySuccess resets instanceID's consecutive failure count
	// to 0: the invariant is that it's 0 iff the last send succeeded or
	// none was attempted.
	RecordDeliverySuccess(ctx context.Context, instanceID int64) error
	// DeliveryState returns instanceID's consecutive failure count and
	// the time of its last retry attempt (zero if none yet), for the
	// supervisor's periodic stats report.
	DeliveryState(ctx context.Context, instanceID int64) (failCount int, lastRetry time.Time, err error)
}

// FollowState is where a CommunityFollower sits in the follow/accept
// handshake.
type FollowState string

const (
	// FollowPending is unused by this module's own Follow handling (every
	// Follow is resolved to Accepted or ApprovalRequired on receipt) but
	// is part of the state's domain for stores that model a follow
	// request before it's been looked at.
	FollowPending FollowState = "Pending"
	// FollowAccepted followers receive community announces.
	FollowAccepted FollowState = "Accepted"
	// FollowApprovalRequired followers are recorded but excluded from
	// announce fan-out until a moderator (or this module, automatically)
	// promotes them to Accepted.
	FollowApprovalRequired FollowState = "ApprovalRequired"
	// FollowDenied followers are recorded but never receive announces.
	FollowDenied FollowState = "Denied"
)

// FollowerStore persists community follower relationships, for fan-out.
type FollowerStore interface {
	// Followers returns the inbox URLs of Accepted followers of
	// community, in batches of at most limit, starting after afterID.
	// ApprovalRequired, Pending and Denied followers are excluded: only
	// Accepted followers receive community announces.
	Followers(ctx context.Context, community string, afterID int64, limit int) (ids []int64, inboxes []string, err error)
	// AddFollower records follower as a follower of community in state,
	// or updates its state if already recorded.
	AddFollower(ctx context.Context, community, follower string, state FollowState) error
	RemoveFollower(ctx context.Context, community, follower string) error
	IsFollower(ctx context.Context, community, follower string) (bool, error)
}
