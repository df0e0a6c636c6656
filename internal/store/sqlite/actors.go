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

	"github.com/LemmyNet/lemmy-federate/internal/ap"
	"github.com/LemmyNet/lemmy-federate/internal/store"
)

type actorRow struct {
	ID              string
	Kind            string
	Inbox           string
	SharedInbox     string
	PublicKeyPem    string
	PrivateKeyPem   string
	InstanceID      int64
	Local           int
	LastRefreshedAt int64
}

func (r actorRow) toActor() *store.Actor {
	return &store.Actor{
		ID:              r.ID,
		Kind:            ap.ActorKind(r.Kind),
		Inbox:           r.Inbox,
		SharedInbox:     r.SharedInbox,
		PublicKeyPem:    r.PublicKeyPem,
		PrivateKeyPem:   r.PrivateKeyPem,
		InstanceID:      r.InstanceID,
		Local:           r.Local != 0,
		LastRefreshedAt: time.Unix(r.LastRefreshedAt, 0).UTC(),
	}
}

func (d *DB) GetActor(ctx context.Context, id string) (*store.Actor, error) {
	rows, err := queryCollect[actorRow](ctx, d.conn, `
		select id, kind, inbox, shared_inbox, public_key_pem, private_key_pem, instance_id, local, last_refreshed_at
		from actors where id = ?`, id)
	if err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}

	return rows[0].toActor(), nil
}

func (d *DB) PutActor(ctx context.Context, a *store.Actor) error {
	local := 0
	if a.Local {
		local = 1
	}

	_, err := d.conn.ExecContext(ctx, `
		insert into actors(id, kind, inbox, shared_inbox, public_key_pem, private_key_pem, instance_id, local, last_refreshed_at)
		values (?, ?, ?, ?, ?, ?, ?, ?, unixepoch())
		on conflict(id) do update set
			kind = excluded.kind,
			inbox = excluded.inbox,
			shared_inbox = excluded.shared_inbox,
			public_key_pem = excluded.public_key_pem,
			instance_id = excluded.instance_id,
			last_refreshed_at = unixepoch()`,
		a.ID, string(a.Kind), a.Inbox, a.SharedInbox, a.PublicKeyPem, a.PrivateKeyPem, a.InstanceID, local)
	return err
}

func (d *DB) DeleteActor(ctx context.Context, id string) error {
	_, err := d.conn.ExecContext(ctx, `delete from actors where id = ?`, id)
	return err
}

var _ store.ActorStore = (*DB)(nil)
