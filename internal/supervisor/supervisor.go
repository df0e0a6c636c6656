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

// Package supervisor implements the Shutdown/Supervisor: it spawns one
// Delivery Queue worker per allowed remote instance, reconciles that set
// against the instance table every 60s, and drains every worker on
// shutdown within a bounded deadline.
package supervisor

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/LemmyNet/lemmy-federate/internal/activitylog"
	"github.com/LemmyNet/lemmy-federate/internal/cfg"
	"github.com/LemmyNet/lemmy-federate/internal/delivery"
	"github.com/LemmyNet/lemmy-federate/internal/signer"
	"github.com/LemmyNet/lemmy-federate/internal/store"
)

type managedWorker struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Supervisor owns the lifecycle of every per-instance delivery worker.
type Supervisor struct {
	cfg       *cfg.Config
	instances store.InstanceStore
	actors    store.ActorStore
	followers store.FollowerStore
	cursors   store.CursorStore
	log       *activitylog.Log
	signer    *signer.Signer
	slog      *slog.Logger

	mu      sync.Mutex
	workers map[int64]*managedWorker
}

func New(c *cfg.Config, instances store.InstanceStore, actors store.ActorStore, followers store.FollowerStore, cursors store.CursorStore, log *activitylog.Log, s *signer.Signer, l *slog.Logger) *Supervisor {
	return &Supervisor{
		cfg:       c,
		instances: instances,
		actors:    actors,
		followers: followers,
		cursors:   cursors,
		log:       log,
		signer:    s,
		slog:      l,
		workers:   make(map[int64]*managedWorker),
	}
}

// Run reconciles the worker set immediately, then every
// Config.ReconciliationInterval, until ctx is cancelled. On cancellation
// it drains every worker within Config.ShutdownDrainTimeout.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.reconcile(ctx); err != nil {
		s.slog.Error("Initial reconciliation failed", "error", err)
	}

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		s.slog.Debug("Failed to notify readiness", "error", err)
	} else if ok {
		s.slog.Debug("Notified systemd readiness")
	}

	statsTicker := time.NewTicker(s.cfg.StatsInterval)
	defer statsTicker.Stop()

	reconcileTicker := time.NewTicker(s.cfg.ReconciliationInterval)
	defer reconcileTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.drain()
			return nil

		case <-reconcileTicker.C:
			if err := s.reconcile(ctx); err != nil {
				s.slog.Warn("Reconciliation failed", "error", err)
			}

		case <-statsTicker.C:
			s.printStats()
		}
	}
}

// reconcile spawns a worker for every allowed instance this shard owns
// that doesn't already have one, and cancels workers for instances that
// became blocked, were purged, or are no longer this shard's
// responsibility.
func (s *Supervisor) reconcile(ctx context.Context) error {
	instances, err := s.instances.ListInstances(ctx)
	if err != nil {
		return err
	}

	live := make(map[int64]struct{}, len(instances))

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, inst := range instances {
		owned := s.owns(inst.Domain)

		if inst.Blocked || !owned {
			if w, ok := s.workers[inst.ID]; ok {
				w.cancel()
				delete(s.workers, inst.ID)
			}
			continue
		}

		live[inst.ID] = struct{}{}

		if _, ok := s.workers[inst.ID]; ok {
			continue
		}

		s.spawn(ctx, inst)
	}

	for id, w := range s.workers {
		if _, ok := live[id]; !ok {
			w.cancel()
			delete(s.workers, id)
		}
	}

	return nil
}

// owns reports whether this shard is responsible for domain, per
// Config.ShardIndex/ShardCount. A single-shard deployment (the default)
// owns everything.
func (s *Supervisor) owns(domain string) bool {
	if s.cfg.ShardCount <= 1 {
		return true
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(domain))
	return int(h.Sum32()%uint32(s.cfg.ShardCount)) == s.cfg.ShardIndex
}

func (s *Supervisor) spawn(parent context.Context, inst store.Instance) {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	w := delivery.NewWorker(inst, s.log, s.actors, s.followers, s.cursors, s.signer, s.cfg, s.slog)

	s.workers[inst.ID] = &managedWorker{cancel: cancel, done: done}

	go func() {
		defer close(done)
		if err := w.Run(ctx); err != nil {
			s.slog.Error("Delivery worker exited", "instance", inst.Domain, "error", err)
		}
	}()

	s.slog.Info("Spawned delivery worker", "instance", inst.Domain)
}

// drain cancels every worker and waits for it to exit, up to
// Config.ShutdownDrainTimeout.
func (s *Supervisor) drain() {
	s.mu.Lock()
	workers := make([]*managedWorker, 0, len(s.workers))
	for _, w := range s.workers {
		w.cancel()
		workers = append(workers, w)
	}
	s.mu.Unlock()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	deadline := time.After(s.cfg.ShutdownDrainTimeout)
	for _, w := range workers {
		select {
		case <-w.done:
		case <-deadline:
			s.slog.Warn("Shutdown drain deadline exceeded, abandoning remaining workers")
			return
		}
	}

	s.slog.Info("All delivery workers drained")
}

// printStats logs the supervisor's own worker count, plus, for every
// instance this shard owns, how far its delivery cursor is behind the
// log's tip, its consecutive failure count, and when its worker will
// retry next.
func (s *Supervisor) printStats() {
	s.mu.Lock()
	n := len(s.workers)
	s.mu.Unlock()

	s.slog.Info("Supervisor stats", "active_workers", n)

	ctx := context.Background()

	latest, err := s.log.LatestID(ctx)
	if err != nil {
		s.slog.Warn("Failed to read outbox watermark for stats", "error", err)
		return
	}

	instances, err := s.instances.ListInstances(ctx)
	if err != nil {
		s.slog.Warn("Failed to list instances for stats", "error", err)
		return
	}

	for _, inst := range instances {
		if inst.Blocked || !s.owns(inst.Domain) {
			continue
		}

		cursor, err := s.cursors.GetCursor(ctx, inst.ID)
		if err != nil {
			s.slog.Warn("Failed to read cursor for stats", "instance", inst.Domain, "error", err)
			continue
		}

		failCount, lastRetry, err := s.cursors.DeliveryState(ctx, inst.ID)
		if err != nil {
			s.slog.Warn("Failed to read delivery state for stats", "instance", inst.Domain, "error", err)
			continue
		}

		nextRetry := time.Duration(0)
		if failCount > 0 && !lastRetry.IsZero() {
			n := failCount
			if n > s.cfg.MaxDeliveryAttempts {
				n = s.cfg.MaxDeliveryAttempts
			}
			if d := time.Until(lastRetry.Add(delivery.Backoff(s.cfg, n))); d > 0 {
				nextRetry = d
			}
		}

		s.slog.Info("Instance federation state",
			"instance", inst.Domain,
			"behind", latest-cursor,
			"consecutive_fails", failCount,
			"next_retry", nextRetry)
	}
}
