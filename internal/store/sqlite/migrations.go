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

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
)

type migration struct {
	ID string
	Up func(context.Context, *sql.DB) error
}

var migrationList = []migration{
	{"001_instances", createInstances},
	{"002_actors", createActors},
	{"003_outbox", createOutbox},
	{"004_received", createReceived},
	{"005_cursors", createCursors},
	{"006_followers", createFollowers},
	{"007_outbox_target_domains", addOutboxTargetDomains},
	{"008_follower_state", addFollowerState},
	{"009_cursor_fail_state", addCursorFailState},
}

func createInstances(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		create table instances(
			id integer primary key,
			domain text not null unique,
			blocked integer not null default 0,
			inbox text not null default '',
			software text not null default ''
		)`)
	return err
}

func createActors(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		create table actors(
			id text not null primary key,
			kind text not null,
			inbox text not null,
			shared_inbox text not null default '',
			public_key_pem text not null default '',
			private_key_pem text not null default '',
			instance_id integer not null references instances(id),
			local integer not null default 0,
			last_refreshed_at integer not null default (unixepoch())
		)`)
	return err
}

func createOutbox(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		create table outbox(
			id integer primary key autoincrement,
			actor_id text not null references actors(id),
			activity blob not null,
			created_at integer not null default (unixepoch())
		)`)
	return err
}

func addOutboxTargetDomains(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		alter table outbox add column target_domains text not null default ''`)
	return err
}

func createReceived(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		create table received(
			id text not null primary key,
			received_at integer not null default (unixepoch()),
			expires_at integer not null
		)`)
	return err
}

func createCursors(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		create table cursors(
			instance_id integer not null primary key references instances(id),
			last_successful_id integer not null default 0
		)`)
	return err
}

func addCursorFailState(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `alter table cursors add column fail_count integer not null default 0`); err != nil {
		return err
	}
	_, err := db.ExecContext(ctx, `alter table cursors add column last_retry integer not null default 0`)
	return err
}

func createFollowers(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		create table followers(
			id integer primary key autoincrement,
			community text not null,
			follower text not null,
			inbox text not null,
			unique(community, follower)
		)`)
	return err
}

func addFollowerState(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `alter table followers add column state text not null default 'Accepted'`)
	return err
}

// runMigrations applies every not-yet-applied migration in migrationList,
// in order, recording each as it succeeds.
func runMigrations(ctx context.Context, log *slog.Logger, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `create table if not exists migrations(id text not null primary key, applied integer default (unixepoch()))`); err != nil {
		return err
	}

	for _, m := range migrationList {
		var applied string
		err := db.QueryRowContext(ctx, `select datetime(applied, 'unixepoch') from migrations where id = ?`, m.ID).Scan(&applied)
		if err == nil {
			log.Debug("Skipping migration", "id", m.ID, "applied", applied)
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to check if %s is applied: %w", m.ID, err)
		}

		log.Info("Applying migration", "id", m.ID)

		if err := m.Up(ctx, db); err != nil {
			return fmt.Errorf("failed to apply %s: %w", m.ID, err)
		}

		if _, err := db.ExecContext(ctx, `insert into migrations(id) values (?)`, m.ID); err != nil {
			return fmt.Errorf("failed to record %s: %w", m.ID, err)
		}
	}

	return nil
}
