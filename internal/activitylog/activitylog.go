/*
Copyright 2023 - 2026 Dima Krasner

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

// Package activitylog implements the append-only outbound activity log
// and the inbound dedup bag, plus the recipient-expansion logic that
// turns one outbound activity into the set of inboxes it must reach.
package activitylog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/LemmyNet/lemmy-federate/internal/ap"
	"github.com/LemmyNet/lemmy-federate/internal/store"
)

// Log appends outbound activities and records which inbound ones have
// already been processed.
type Log struct {
	entries  store.ActivityLog
	received store.ReceivedStore
	ttl      time.Duration
}

func New(entries store.ActivityLog, received store.ReceivedStore, receivedTTL time.Duration) *Log {
	return &Log{entries: entries, received: received, ttl: receivedTTL}
}

// Append serializes activity and appends it to the outbound log, owned
// by actorID. targetDomains restricts delivery to those remote instances;
// nil means every known, allowed instance (a publicly visible activity).
func (l *Log) Append(ctx context.Context, actorID string, activity *ap.Activity, targetDomains []string) (int64, error) {
	buf, err := json.Marshal(activity)
	if err != nil {
		return 0, fmt.Errorf("marshal activity: %w", err)
	}

	return l.entries.Append(ctx, actorID, buf, targetDomains)
}

// ReadFrom returns up to limit log entries after afterID, in id order,
// for a delivery worker to replay.
func (l *Log) ReadFrom(ctx context.Context, afterID int64, limit int) ([]store.OutboxEntry, error) {
	return l.entries.ReadFrom(ctx, afterID, limit)
}

// LatestID returns the id of the most recent outbound activity.
func (l *Log) LatestID(ctx context.Context) (int64, error) {
	return l.entries.LatestID(ctx)
}

// Dedup marks id (an inbound activity id) as received, returning true if
// this is the first time it's been seen. A duplicate delivery — common
// when a shared inbox reaches an instance through more than one path —
// reports false without error.
func (l *Log) Dedup(ctx context.Context, id string) (firstSeen bool, err error) {
	return l.received.MarkReceived(ctx, id, l.ttl)
}
