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

// Package inbound implements the Inbound Router: per-request processing
// budget, signature verification, dedup, and typed dispatch to an
// Activity Handler.
package inbound

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/LemmyNet/lemmy-federate/internal/activitylog"
	"github.com/LemmyNet/lemmy-federate/internal/ap"
	"github.com/LemmyNet/lemmy-federate/internal/cfg"
	"github.com/LemmyNet/lemmy-federate/internal/fetcher"
	"github.com/LemmyNet/lemmy-federate/internal/logging"
	"github.com/LemmyNet/lemmy-federate/internal/signer"
	"github.com/LemmyNet/lemmy-federate/internal/store"
)

// Handler verifies and receives one activity type. One is registered per
// [ap.ActivityType] the router knows how to dispatch.
type Handler interface {
	Verify(ctx context.Context, activity *ap.Activity, sender *ap.Actor) error
	Receive(ctx context.Context, activity *ap.Activity, sender *ap.Actor) error
}

// Router is the Inbound Router: the single entry point an HTTP handler
// calls for every request delivered to an actor's inbox or the shared
// inbox.
type Router struct {
	domain   string
	cfg      *cfg.Config
	actors   store.ActorStore
	log      *activitylog.Log
	fetcher  *fetcher.Fetcher
	handlers map[ap.ActivityType]Handler
	slog     *slog.Logger
}

func New(domain string, c *cfg.Config, actors store.ActorStore, log *activitylog.Log, f *fetcher.Fetcher, l *slog.Logger) *Router {
	return &Router{
		domain:   domain,
		cfg:      c,
		actors:   actors,
		log:      log,
		fetcher:  f,
		handlers: make(map[ap.ActivityType]Handler),
		slog:     l,
	}
}

// Register wires a [Handler] for typ. Calling it twice for the same type
// replaces the previous handler.
func (r *Router) Register(typ ap.ActivityType, h Handler) {
	r.handlers[typ] = h
}

var (
	ErrUnsupportedActivity = ap.ErrUnsupportedActivity
	ErrDuplicate           = errors.New("activity already processed")
)

// Deliver is the synchronous verify/receive contract an inbox HTTP
// handler calls with the request body already read. It enforces the
// inbound processing deadline, verifies the sender's signature,
// deduplicates by activity id, and dispatches to the registered
// [Handler] for the activity's type.
func (r *Router) Deliver(ctx context.Context, req *http.Request, body []byte) error {
	correlationID := logging.NewCorrelationID()
	ctx = logging.WithCorrelationID(ctx, correlationID)
	ctx = fetcher.WithBudget(ctx, r.cfg.FetchBudget)

	ctx, cancel := context.WithTimeout(ctx, r.cfg.InboundProcessingBudget)
	defer cancel()

	var activity ap.Activity
	if err := json.Unmarshal(body, &activity); err != nil {
		return fmt.Errorf("%w: %w", ap.ErrInvalidActivity, err)
	}

	if activity.ID == "" || activity.Actor == "" {
		return fmt.Errorf("%w: missing id or actor", ap.ErrInvalidActivity)
	}

	sig, err := signer.Extract(req, r.cfg.MaxRequestAge)
	if err != nil {
		return fmt.Errorf("extract signature: %w", err)
	}

	sender, err := r.resolveSigner(ctx, sig.KeyID, activity.Actor)
	if err != nil {
		return fmt.Errorf("resolve sender: %w", err)
	}

	if err := sig.Verify(sender.PublicKeyPem); err != nil {
		return fmt.Errorf("verify signature: %w", err)
	}

	if !ap.DomainsMatch(activity.Actor, sender.ID) {
		return fmt.Errorf("%w: actor %s signed by %s", ap.ErrDomainMismatch, activity.Actor, sender.ID)
	}

	first, err := r.log.Dedup(ctx, activity.ID)
	if err != nil {
		return fmt.Errorf("dedup: %w", err)
	}
	if !first {
		r.slog.Debug("Dropping duplicate activity", "id", activity.ID, "correlation_id", correlationID)
		return nil
	}

	h, ok := r.handlers[activity.Type]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedActivity, activity.Type)
	}

	senderAP := sender.toAP()

	if err := h.Verify(ctx, &activity, senderAP); err != nil {
		return fmt.Errorf("verify %s: %w", activity.Type, err)
	}

	if err := h.Receive(ctx, &activity, senderAP); err != nil {
		return fmt.Errorf("receive %s: %w", activity.Type, err)
	}

	r.slog.Info("Processed inbound activity", "type", activity.Type, "id", activity.ID, "correlation_id", correlationID)
	return nil
}

// DispatchInner re-enters the verify/receive pipeline for an activity
// unwrapped from an Announce. It resolves the nested activity's own
// claimed actor and dedups and dispatches exactly as Deliver does, but
// skips HTTP signature verification: the nested activity arrived
// embedded in an envelope this instance already verified, not as its own
// delivery, so there is no signature to check. This is the seam
// [handlers.Deps.Dispatch] is wired to.
func (r *Router) DispatchInner(ctx context.Context, inner *ap.Activity) error {
	if inner.ID == "" || inner.Actor == "" {
		return fmt.Errorf("%w: missing id or actor", ap.ErrInvalidActivity)
	}

	first, err := r.log.Dedup(ctx, inner.ID)
	if err != nil {
		return fmt.Errorf("dedup: %w", err)
	}
	if !first {
		return nil
	}

	h, ok := r.handlers[inner.Type]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedActivity, inner.Type)
	}

	sender, err := r.resolveSigner(ctx, inner.Actor, inner.Actor)
	if err != nil {
		return fmt.Errorf("resolve forwarded actor: %w", err)
	}

	senderAP := sender.toAP()

	if err := h.Verify(ctx, inner, senderAP); err != nil {
		return fmt.Errorf("verify forwarded %s: %w", inner.Type, err)
	}

	return h.Receive(ctx, inner, senderAP)
}

// resolveSigner resolves the actor identified by keyID from the actor
// store, fetching and storing it only when the store has no record of it.
// claimedActor is not consulted, and a stored actor is not re-fetched when
// its key has rotated.
func (r *Router) resolveSigner(ctx context.Context, keyID, claimedActor string) (*cachedActor, error) {
	actorID, err := stripKeyFragment(keyID)
	if err != nil {
		return nil, err
	}

	a, err := r.actors.GetActor(ctx, actorID)
	if err == nil {
		return &cachedActor{a}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	fetched, err := r.fetcher.FetchActor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	rec := &store.Actor{
		ID:           fetched.ID,
		Kind:         fetched.Type,
		Inbox:        fetched.Inbox,
		SharedInbox:  fetched.EffectiveSharedInbox(),
		PublicKeyPem: fetched.PublicKey.PublicKeyPem,
	}
	if err := r.actors.PutActor(ctx, rec); err != nil {
		r.slog.Warn("Failed to cache resolved actor", "id", rec.ID, "error", err)
	}

	return &cachedActor{rec}, nil
}

type cachedActor struct {
	*store.Actor
}

func (c *cachedActor) toAP() *ap.Actor {
	return &ap.Actor{
		ID:          c.ID,
		Type:        c.Kind,
		Inbox:       c.Inbox,
		SharedInbox: c.SharedInbox,
		PublicKey:   ap.PublicKey{ID: c.ID + "#main-key", Owner: c.ID, PublicKeyPem: c.PublicKeyPem},
	}
}

func stripKeyFragment(keyID string) (string, error) {
	if keyID == "" {
		return "", errors.New("empty key id")
	}

	for i := 0; i < len(keyID); i++ {
		if keyID[i] == '#' {
			return keyID[:i], nil
		}
	}

	return keyID, nil
}

// ReadBody enforces the inbound request body size bound before the
// caller hands the result to Deliver.
func ReadBody(r *http.Request, maxSize int64) ([]byte, error) {
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxSize+1))
	if err != nil {
		return nil, err
	}

	if int64(len(body)) > maxSize {
		return nil, fmt.Errorf("request body exceeds %d bytes", maxSize)
	}

	return body, nil
}
