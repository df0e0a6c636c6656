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

// Package logging wires up structured logging and request/activity
// correlation ids, carried through a [context.Context].
package logging

import (
	"context"
	"log/slog"
	"os"

	"github.com/google/uuid"
)

type (
	fieldsKeyType      int
	correlationKeyType int
)

var (
	fieldsKey      fieldsKeyType
	correlationKey correlationKeyType
)

type handler struct {
	inner slog.Handler
}

// WithFields adds log fields to a [context.Context]; every record logged
// through a [New] logger while this context is in scope carries them.
//
// Arguments are in the same format as [slog.Logger.Log].
func WithFields(ctx context.Context, args ...any) context.Context {
	if v := ctx.Value(fieldsKey); v != nil {
		return context.WithValue(ctx, fieldsKey, append(v.([]any), args...))
	}

	return context.WithValue(ctx, fieldsKey, args)
}

func (h handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h handler) Handle(ctx context.Context, r slog.Record) error {
	if v := ctx.Value(fieldsKey); v != nil {
		r.Add(v.([]any)...)
	}

	if id, ok := CorrelationID(ctx); ok {
		r.Add("correlation_id", id)
	}

	return h.inner.Handle(ctx, r)
}

func (h handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &handler{h.inner.WithAttrs(attrs)}
}

func (h handler) WithGroup(name string) slog.Handler {
	return &handler{h.inner.WithGroup(name)}
}

// New returns a [slog.Logger] that writes JSON lines to stderr, picking up
// any fields or correlation id attached to a record's context.
func New(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	inner := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug,
	})

	return slog.New(handler{inner: inner})
}

// NewCorrelationID generates a random id for a newly-received HTTP request
// or a newly-enqueued outbound activity.
func NewCorrelationID() string {
	return uuid.NewString()
}

// WithCorrelationID attaches id to ctx, so every record logged within it
// carries a "correlation_id" field. Used to tie an inbound request's log
// lines, and any outbound activity or delivery it causes, together.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey, id)
}

// CorrelationID returns the id attached by [WithCorrelationID], if any.
func CorrelationID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(correlationKey).(string)
	return v, ok
}
