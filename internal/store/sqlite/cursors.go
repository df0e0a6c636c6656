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
	"time"

	"github.com/LemmyNet/lemmy-federate/internal/store"
)

func (d *DB) GetCursor(ctx context.Context, instanceID int64) (int64, error) {
	var id int64
	err := d.conn.QueryRowContext(ctx, `
		select last_successful_id from cursors where instance_id = ?`, instanceID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		// an unseen instance starts at cursor 0
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	return id, nil
}

func (d *DB) SetCursor(ctx context.Context, instanceID int64, id int64) error {
	_, err := d.conn.ExecContext(ctx, `
		insert into cursors(instance_id, last_successful_id) values (?, ?)
		on conflict(instance_id) do update set last_successful_id = excluded.last_successful_id
		where excluded.last_successful_id > cursors.last_successful_id`, instanceID, id)
	return err
}

// RecordDeliveryFailure increments instanceID's consecutive failure count
// and stamps the current time as its last retry attempt.
func (d *DB) RecordDeliveryFailure(ctx context.Context, instanceID int64) error {
	_, err := d.conn.ExecContext(ctx, `
		insert into cursors(instance_id, fail_count, last_retry) values (?, 1, unixepoch())
		on conflict(instance_id) do update set fail_count = fail_count + 1, last_retry = unixepoch()`, instanceID)
	return err
}

// RecordDeliverySuccess resets instanceID's consecutive failure count.
func (d *DB) RecordDeliverySuccess(ctx context.Context, instanceID int64) error {
	_, err := d.conn.ExecContext(ctx, `
		insert into cursors(instance_id, fail_count) values (?, 0)
		on conflict(instance_id) do update set fail_count = 0`, instanceID)
	return err
}

func (d *DB) DeliveryState(ctx context.Context, instanceID int64) (int, time.Time, error) {
	var failCount int
	var lastRetry int64
	err := d.conn.QueryRowContext(ctx, `
		select fail_count, last_retry from cursors where instance_id = ?`, instanceID).Scan(&failCount, &lastRetry)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, time.Time{}, nil
	}
	if err != nil {
		return 0, time.Time{}, err
	}
	if lastRetry == 0 {
		return failCount, time.Time{}, nil
	}

	return failCount, time.Unix(lastRetry, 0), nil
}

var _ store.CursorStore = (*DB)(nil)
