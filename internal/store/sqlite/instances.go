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

	"github.com/LemmyNet/lemmy-federate/internal/store"
)

type instanceRow struct {
	ID       int64
	Domain   string
	Blocked  int
	Inbox    string
	Software string
}

func defaultInbox(domain string) string {
	return "https://" + domain + "/inbox"
}

func (r instanceRow) toInstance() store.Instance {
	inbox := r.Inbox
	if inbox == "" {
		inbox = defaultInbox(r.Domain)
	}

	return store.Instance{
		ID:       r.ID,
		Domain:   r.Domain,
		Blocked:  r.Blocked != 0,
		Inbox:    inbox,
		Software: r.Software,
	}
}

func (d *DB) GetInstance(ctx context.Context, domain string) (*store.Instance, error) {
	rows, err := queryCollect[instanceRow](ctx, d.conn, `
		select id, domain, blocked, inbox, software from instances where domain = ?`, domain)
	if err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}

	i := rows[0].toInstance()
	return &i, nil
}

// PutInstance inserts domain if unknown, and returns its row either way.
func (d *DB) PutInstance(ctx context.Context, domain string) (*store.Instance, error) {
	if _, err := d.conn.ExecContext(ctx, `
		insert into instances(domain) values (?) on conflict(domain) do nothing`, domain); err != nil {
		return nil, err
	}

	return d.GetInstance(ctx, domain)
}

func (d *DB) ListInstances(ctx context.Context) ([]store.Instance, error) {
	rows, err := queryCollect[instanceRow](ctx, d.conn, `
		select id, domain, blocked, inbox, software from instances order by id`)
	if err != nil {
		return nil, err
	}

	out := make([]store.Instance, len(rows))
	for i, r := range rows {
		out[i] = r.toInstance()
	}

	return out, nil
}

func (d *DB) SetBlocked(ctx context.Context, domain string, blocked bool) error {
	v := 0
	if blocked {
		v = 1
	}

	_, err := d.conn.ExecContext(ctx, `update instances set blocked = ? where domain = ?`, v, domain)
	return err
}

func (d *DB) SetInbox(ctx context.Context, domain, inbox string) error {
	_, err := d.conn.ExecContext(ctx, `update instances set inbox = ? where domain = ?`, inbox, domain)
	return err
}

var _ store.InstanceStore = (*DB)(nil)
