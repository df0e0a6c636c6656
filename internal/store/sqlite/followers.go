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
	"database/sql"
	"errors"

	"github.com/LemmyNet/lemmy-federate/internal/store"
)

type followerRow struct {
	ID    int64
	Inbox string
}

func (d *DB) Followers(ctx context.Context, community string, afterID int64, limit int) ([]int64, []string, error) {
	rows, err := queryCollect[followerRow](ctx, d.conn, `
		select id, inbox from followers
		where community = ? and id > ? and state = ?
		order by id limit ?`, community, afterID, string(store.FollowAccepted), limit)
	if err != nil {
		return nil, nil, err
	}

	ids := make([]int64, len(rows))
	inboxes := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
		inboxes[i] = r.Inbox
	}

	return ids, inboxes, nil
}

func (d *DB) AddFollower(ctx context.Context, community, follower string, state store.FollowState) error {
	_, err := d.conn.ExecContext(ctx, `
		insert into followers(community, follower, inbox, state)
		select ?, ?, coalesce(nullif(a.shared_inbox, ''), a.inbox), ? from actors a where a.id = ?
		on conflict(community, follower) do update set state = excluded.state`, community, follower, string(state), follower)
	return err
}

func (d *DB) RemoveFollower(ctx context.Context, community, follower string) error {
	_, err := d.conn.ExecContext(ctx, `delete from followers where community = ? and follower = ?`, community, follower)
	return err
}

func (d *DB) IsFollower(ctx context.Context, community, follower string) (bool, error) {
	var one int
	err := d.conn.QueryRowContext(ctx, `
		select 1 from followers where community = ? and follower = ?`, community, follower).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return true, nil
}

var _ store.FollowerStore = (*DB)(nil)
