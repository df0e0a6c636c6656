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

// Package delivery implements the Delivery Queue: one worker per remote
// instance, replaying the outbound activity log in order, retrying a
// failing entry with exponential backoff (capped after MaxDeliveryAttempts)
// until it succeeds rather than skipping past it.
package delivery

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/LemmyNet/lemmy-federate/internal/activitylog"
	"github.com/LemmyNet/lemmy-federate/internal/cfg"
	"github.com/LemmyNet/lemmy-federate/internal/signer"
	"github.com/LemmyNet/lemmy-federate/internal/store"
)

// Worker delivers the activity log, in order, to one remote instance.
type Worker struct {
	instance store.Instance
	log      *activitylog.Log
	actors   store.ActorStore
	followers store.FollowerStore
	cursors  store.CursorStore
	signer   *signer.Signer
	client   *http.Client
	cfg      *cfg.Config
	slog     *slog.Logger

	inFlight *inFlightSet
}

// NewWorker returns a [Worker] for instance, resuming delivery from its
// persisted cursor.
func NewWorker(instance store.Instance, log *activitylog.Log, actors store.ActorStore, followers store.FollowerStore, cursors store.CursorStore, s *signer.Signer, c *cfg.Config, l *slog.Logger) *Worker {
	return &Worker{
		instance:  instance,
		log:       log,
		actors:    actors,
		followers: followers,
		cursors:   cursors,
		signer:    s,
		client:    &http.Client{Timeout: c.DeliveryOutboundTimeout},
		cfg:       c,
		slog:      l.With("instance", instance.Domain),
		inFlight:  newInFlightSet(),
	}
}

// Run replays the log until ctx is cancelled, advancing the cursor past
// each contiguous prefix of successfully delivered entries.
func (w *Worker) Run(ctx context.Context) error {
	cursor, err := w.cursors.GetCursor(ctx, w.instance.ID)
	if err != nil {
		return fmt.Errorf("load cursor for %s: %w", w.instance.Domain, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		entries, err := w.log.ReadFrom(ctx, cursor, w.cfg.DeliveryBatchSize)
		if err != nil {
			return fmt.Errorf("read log for %s: %w", w.instance.Domain, err)
		}

		if len(entries) == 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		advanced, err := w.deliverBatch(ctx, entries)
		if err != nil {
			return err
		}

		if advanced > cursor {
			cursor = advanced
			if err := w.cursors.SetCursor(ctx, w.instance.ID, cursor); err != nil {
				w.slog.Warn("Failed to persist delivery cursor", "cursor", cursor, "error", err)
			}
		}
	}
}

// deliverBatch concurrently attempts every entry in the batch (bounded by
// Config.DeliveryConcurrency) and returns the id up to which delivery has
// advanced without a gap, per [inFlightSet]. An entry whose delivery is
// still retrying when ctx is cancelled is left out of the completed set,
// so the next Run resumes on it rather than skipping past an activity
// that was never delivered.
func (w *Worker) deliverBatch(ctx context.Context, entries []store.OutboxEntry) (int64, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.DeliveryConcurrency)

	for _, entry := range entries {
		entry := entry
		w.inFlight.Add(entry.ID)

		g.Go(func() error {
			if err := w.deliverOne(gctx, entry); err != nil {
				return nil
			}
			w.inFlight.Complete(entry.ID)
			return nil
		})
	}

	// errgroup's error is always nil here: deliverOne only returns an
	// error when ctx is cancelled mid-retry.
	_ = g.Wait()

	return w.inFlight.AdvancedTo(), nil
}

// deliverOne retries entry against this worker's instance until it
// succeeds or ctx is cancelled — it never gives up and skips an entry,
// per the delivery queue's ordering guarantee. The backoff delay between
// attempts grows until MaxDeliveryAttempts, then holds steady.
func (w *Worker) deliverOne(ctx context.Context, entry store.OutboxEntry) error {
	if len(entry.TargetDomains) > 0 && !slices.Contains(entry.TargetDomains, w.instance.Domain) {
		// this instance isn't in the activity's restricted audience (e.g.
		// a private community's followers-only Announce); nothing to send.
		return nil
	}

	// the worker only delivers to the single instance it owns, via its
	// shared inbox; the supervisor fans an entry out to every worker whose
	// instance is a target of that entry's audience.
	inbox := w.instance.Inbox

	var fails int
	for {
		err := w.attempt(ctx, entry, inbox)
		if err == nil {
			if rerr := w.cursors.RecordDeliverySuccess(ctx, w.instance.ID); rerr != nil {
				w.slog.Warn("Failed to record delivery success", "error", rerr)
			}
			return nil
		}

		fails++
		if rerr := w.cursors.RecordDeliveryFailure(ctx, w.instance.ID); rerr != nil {
			w.slog.Warn("Failed to record delivery failure", "error", rerr)
		}

		n := fails
		if n > w.cfg.MaxDeliveryAttempts {
			n = w.cfg.MaxDeliveryAttempts
		}
		delay := Backoff(w.cfg, n)
		w.slog.Warn("Retrying delivery", "id", entry.ID, "attempt", fails, "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (w *Worker) attempt(ctx context.Context, entry store.OutboxEntry, inbox string) error {
	actor, err := w.actors.GetActor(ctx, entry.ActorID)
	if err != nil {
		return fmt.Errorf("resolve sender %s: %w", entry.ActorID, err)
	}

	return w.send(ctx, actor, inbox, entry.Activity)
}

// Backoff returns the delay before retry attempt n, following an
// explicit base·factor^(n-1) schedule (base 3s, factor 3: 3s, 9s, 27s, ...).
func Backoff(c *cfg.Config, n int) time.Duration {
	d := float64(c.BackoffBase)
	for range n - 1 {
		d *= c.BackoffFactor
	}

	return time.Duration(d)
}

func (w *Worker) send(ctx context.Context, actor *store.Actor, inbox string, activity []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, inbox, bytes.NewReader(activity))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", `application/activity+json`)
	req.Header.Set("User-Agent", "lemmy-federate/1.0")

	if err := w.signer.Sign(req, actor.ID+"#main-key", actor.PrivateKeyPem); err != nil {
		return fmt.Errorf("sign: %w", err)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned status %d", inbox, resp.StatusCode)
	}

	return nil
}
