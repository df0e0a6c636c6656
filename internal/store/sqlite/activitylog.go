/*
Copyright 2026 Dima Krasner

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

package sqlite

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/LemmyNet/lemmy-federate/internal/store"
)

type outboxRow struct {
	ID            int64
	ActorID       string
	Activity      []byte
	TargetDomains string
	CreatedAt     int64
}

func (r outboxRow) toEntry() (store.OutboxEntry, error) {
	entry := store.OutboxEntry{
		ID:        r.ID,
		ActorID:   r.ActorID,
		Activity:  r.Activity,
		CreatedAt: time.Unix(r.CreatedAt, 0).UTC(),
	}

	if strings.TrimSpace(r.TargetDomains) != "" {
		if err := json.Unmarshal([]byte(r.TargetDomains), &entry.TargetDomains); err != nil {
			return store.OutboxEntry{}, err
		}
	}

	return entry, nil
}

func (d *DB) Append(ctx context.Context, actorID string, activity []byte, targetDomains []string) (int64, error) {
	var encoded string
	if len(targetDomains) > 0 {
		buf, err := json.Marshal(targetDomains)
		if err != nil {
			return 0, err
		}
		encoded = string(buf)
	}

	res, err := d.conn.ExecContext(ctx, `
		insert into outbox(actor_id, activity, target_domains) values (?, ?, ?)`, actorID, activity, encoded)
	if err != nil {
		return 0, err
	}

	return res.LastInsertId()
}

func (d *DB) ReadFrom(ctx context.Context, afterID int64, limit int) ([]store.OutboxEntry, error) {
	rows, err := queryCollect[outboxRow](ctx, d.conn, `
		select id, actor_id, activity, target_domains, created_at from outbox
		where id > ? order by id limit ?`, afterID, limit)
	if err != nil {
		return nil, err
	}

	out := make([]store.OutboxEntry, len(rows))
	for i, r := range rows {
		entry, err := r.toEntry()
		if err != nil {
			return nil, err
		}
		out[i] = entry
	}

	return out, nil
}

func (d *DB) LatestID(ctx context.Context) (int64, error) {
	var id *int64
	if err := d.conn.QueryRowContext(ctx, `select max(id) from outbox`).Scan(&id); err != nil {
		return 0, err
	}

	if id == nil {
		return 0, nil
	}

	return *id, nil
}

var _ store.ActivityLog = (*DB)(nil)
