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

// Package memsink is an in-memory implementation of the handlers
// package's content/vote/moderation/report/community sinks. The SQL
// schema those sinks front (Lemmy's posts, comments, votes, bans,
// reports, community settings) is explicitly out of scope for this
// module; memsink exists so cmd/federationd has something concrete to
// wire a full pipeline against, and so its tests can exercise a handler
// end to end without a caller-supplied schema.
package memsink

import (
	"context"
	"sync"

	"github.com/LemmyNet/lemmy-federate/internal/ap"
	"github.com/LemmyNet/lemmy-federate/internal/fanout"
)

// Sink is a single in-memory backing store satisfying every sink
// interface the handlers package depends on.
type Sink struct {
	mu sync.Mutex

	objects    map[string]*ap.Object
	deleted    map[string]bool
	votes      map[string]int // key: actor + "|" + object
	bans       map[string]bool // key: community + "|" + person
	locked     map[string]bool
	reports    []Report
	featured   map[string]bool // key: community + "|" + object
	visibility map[string]string
}

// Report is one recorded Flag activity.
type Report struct {
	Reporter, Object, Reason string
}

func New() *Sink {
	return &Sink{
		objects:    make(map[string]*ap.Object),
		deleted:    make(map[string]bool),
		votes:      make(map[string]int),
		bans:       make(map[string]bool),
		locked:     make(map[string]bool),
		featured:   make(map[string]bool),
		visibility: make(map[string]string),
	}
}

func (s *Sink) UpsertObject(ctx context.Context, obj *ap.Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[obj.ID] = obj
	return nil
}

func (s *Sink) MarkDeleted(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted[id] = true
	delete(s.objects, id)
	return nil
}

func (s *Sink) IsDeletedOrRemoved(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleted[id], nil
}

func (s *Sink) RecordVote(ctx context.Context, actor, object string, score int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.votes[actor+"|"+object] = score
	return nil
}

func (s *Sink) RemoveVote(ctx context.Context, actor, object string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.votes, actor+"|"+object)
	return nil
}

func (s *Sink) BanPerson(ctx context.Context, community, person string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bans[community+"|"+person] = true
	return nil
}

func (s *Sink) UnbanPerson(ctx context.Context, community, person string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bans, community+"|"+person)
	return nil
}

func (s *Sink) SetLocked(ctx context.Context, object string, locked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locked[object] = locked
	return nil
}

func (s *Sink) RecordReport(ctx context.Context, reporter, object, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, Report{reporter, object, reason})
	return nil
}

func (s *Sink) SetFeatured(ctx context.Context, community, object string, featured bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := community + "|" + object
	if featured {
		s.featured[key] = true
	} else {
		delete(s.featured, key)
	}
	return nil
}

// SetVisibility records community's visibility, for VisibilityOf to
// return. A community absent from this map is treated as not local.
func (s *Sink) SetVisibility(community string, v fanout.Visibility) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visibility[community] = string(v)
}

func (s *Sink) VisibilityOf(ctx context.Context, id string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.visibility[id]
	return v, ok, nil
}
