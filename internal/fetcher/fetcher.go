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

// Package fetcher implements the Object Fetcher: bounded, cached,
// origin-verified dereferencing of remote ActivityPub objects and
// actors.
package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/LemmyNet/lemmy-federate/internal/ap"
	"github.com/LemmyNet/lemmy-federate/internal/cfg"
	"github.com/LemmyNet/lemmy-federate/internal/signer"
)

const userAgent = "lemmy-federate/1.0"

var (
	// ErrBudgetExhausted is returned when a fetch chain (e.g. following
	// inReplyTo links while processing one inbound activity) has spent its
	// allotted number of remote requests.
	ErrBudgetExhausted = errors.New("fetch budget exhausted")
	ErrBlockedDomain   = errors.New("domain is blocked")
	ErrOriginMismatch  = errors.New("fetched object id does not match its origin")
	ErrTooLarge        = errors.New("response exceeds maximum size")
	ErrGone            = errors.New("object is gone")
)

// BlockList reports whether a domain is blocked. Satisfied by
// *cfg.DomainList.
type BlockList interface {
	Contains(domain string) bool
}

// Fetcher dereferences remote ActivityPub objects and actors over HTTP,
// verifying that what comes back actually originates from the host it
// was requested from, and caching successes for Config.ActorCacheTTL.
type Fetcher struct {
	cfg     *cfg.Config
	client  *http.Client
	blocked BlockList
	signer  *signer.Signer
	// signingKeyID/signingKey identify the local instance actor used to
	// sign authorized-fetch requests some deployments require.
	signingKeyID string
	signingKey   string

	cache   *lru
	flights singleflight.Group
}

// New returns a Fetcher. signingKeyID/signingKey may be empty, in which
// case requests are sent unsigned.
func New(c *cfg.Config, blocked BlockList, s *signer.Signer, signingKeyID, signingKey string) *Fetcher {
	maxRedirects := c.MaxRedirects

	return &Fetcher{
		cfg: c,
		client: &http.Client{
			Timeout: c.FetchTimeout,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		blocked:      blocked,
		signer:       s,
		signingKeyID: signingKeyID,
		signingKey:   signingKey,
		cache:        newLRU(c.ActorCacheSize),
	}
}

// budgetKeyType keys the remaining-fetch-budget counter threaded through
// a context.Context for the duration of one inbound activity's
// processing.
type budgetKeyType int

var budgetKey budgetKeyType

// WithBudget attaches a fresh fetch budget to ctx.
func WithBudget(ctx context.Context, n int) context.Context {
	remaining := n
	return context.WithValue(ctx, budgetKey, &remaining)
}

func spend(ctx context.Context) error {
	v, ok := ctx.Value(budgetKey).(*int)
	if !ok {
		return nil
	}

	if *v <= 0 {
		return ErrBudgetExhausted
	}

	*v--
	return nil
}

// FetchObject dereferences id as an ActivityPub object, decrementing the
// context's fetch budget and verifying the returned id matches the
// requested host.
func (f *Fetcher) FetchObject(ctx context.Context, id string) (*ap.Object, error) {
	body, err := f.fetchBody(ctx, id, "object")
	if err != nil {
		return nil, err
	}

	var obj ap.Object
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("decode %s: %w", id, err)
	}

	if obj.Type == ap.Tombstone {
		return nil, ErrGone
	}

	if err := verifyOrigin(id, obj.ID); err != nil {
		return nil, err
	}

	return &obj, nil
}

// FetchActor dereferences id as an ActivityPub actor.
func (f *Fetcher) FetchActor(ctx context.Context, id string) (*ap.Actor, error) {
	body, err := f.fetchBody(ctx, id, "actor")
	if err != nil {
		return nil, err
	}

	var actor ap.Actor
	if err := json.Unmarshal(body, &actor); err != nil {
		return nil, fmt.Errorf("decode %s: %w", id, err)
	}

	if err := verifyOrigin(id, actor.ID); err != nil {
		return nil, err
	}

	return &actor, nil
}

func verifyOrigin(requested, got string) error {
	reqOrigin, err1 := ap.Origin(requested)
	gotOrigin, err2 := ap.Origin(got)
	if err1 != nil || err2 != nil || reqOrigin == "" || reqOrigin != gotOrigin {
		return fmt.Errorf("%w: requested %s, got %s", ErrOriginMismatch, requested, got)
	}

	return nil
}

// fetchBody handles budget/blocklist checks, cache lookup, single-flight
// collapsing of concurrent identical fetches and the HTTP round trip
// itself. kind is used only for cache namespacing.
func (f *Fetcher) fetchBody(ctx context.Context, id, kind string) ([]byte, error) {
	if err := spend(ctx); err != nil {
		return nil, err
	}

	host, err := ap.Origin(id)
	if err != nil {
		return nil, fmt.Errorf("invalid id %s: %w", id, err)
	}

	if f.blocked != nil && f.blocked.Contains(host) {
		return nil, ErrBlockedDomain
	}

	cacheKey := kind + ":" + id
	if body, ok := f.cache.Get(cacheKey); ok {
		return body, nil
	}

	v, err, _ := f.flights.Do(cacheKey, func() (any, error) {
		body, err := f.get(ctx, id)
		if err != nil {
			return nil, err
		}

		f.cache.Put(cacheKey, body, f.cfg.ActorCacheTTL)
		return body, nil
	})
	if err != nil {
		return nil, err
	}

	return v.([]byte), nil
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", `application/activity+json`)

	if f.signer != nil && f.signingKeyID != "" {
		if err := f.signer.Sign(req, f.signingKeyID, f.signingKey); err != nil {
			return nil, fmt.Errorf("sign request to %s: %w", url, err)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
		return nil, ErrGone
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}

	if resp.ContentLength > f.cfg.MaxResponseBodySize {
		return nil, ErrTooLarge
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxResponseBodySize+1))
	if err != nil {
		return nil, err
	}

	if int64(len(body)) > f.cfg.MaxResponseBodySize {
		return nil, ErrTooLarge
	}

	return body, nil
}

// Invalidate drops a cached copy of id, e.g. after a Delete or Update
// activity makes it stale.
func (f *Fetcher) Invalidate(id string) {
	f.cache.Delete("object:" + id)
	f.cache.Delete("actor:" + id)
}
