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
	"time"

	"github.com/LemmyNet/lemmy-federate/internal/store"
)

// MarkReceived records id as seen in the inbound dedup bag. A unique
// constraint on id, not a prior select, is what makes this race-free
// across concurrent inbound requests.
func (d *DB) MarkReceived(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	expiresAt := time.Now().Add(ttl).Unix()

	res, err := d.conn.ExecContext(ctx, `
		insert into received(id, expires_at) values (?, ?)
		on conflict(id) do nothing`, id, expiresAt)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

func (d *DB) Prune(ctx context.Context) error {
	_, err := d.conn.ExecContext(ctx, `delete from received where expires_at < unixepoch()`)
	return err
}

var _ store.ReceivedStore = (*DB)(nil)
