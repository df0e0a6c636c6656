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

package delivery

import (
	"container/heap"
	"sync"
)

// idHeap is a min-heap of in-flight activity-log ids: the smallest
// pending id must always be available at the top, so completions can
// tell whether they closed a gap or are still waiting behind one.
type idHeap []int64

func (h idHeap) Len() int            { return len(h) }
func (h idHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h idHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *idHeap) Push(x any)         { *h = append(*h, x.(int64)) }
func (h *idHeap) Pop() any {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// inFlightSet tracks the ids of a batch's not-yet-completed deliveries,
// so the worker can advance its cursor past the longest contiguous
// prefix that has finished, even when later ids complete out of order.
type inFlightSet struct {
	mu        sync.Mutex
	pending   idHeap
	completed map[int64]struct{}
	advanced  int64
}

func newInFlightSet() *inFlightSet {
	return &inFlightSet{completed: make(map[int64]struct{})}
}

// Add registers id as in flight.
func (s *inFlightSet) Add(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	heap.Push(&s.pending, id)
}

// Complete marks id as successfully delivered, so it no longer blocks the
// cursor, and advances the contiguous-prefix cursor as far as completions
// allow. An id that is never completed keeps the cursor below it.
func (s *inFlightSet) Complete(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.completed[id] = struct{}{}

	for s.pending.Len() > 0 {
		smallest := s.pending[0]
		if _, ok := s.completed[smallest]; !ok {
			break
		}

		heap.Pop(&s.pending)
		delete(s.completed, smallest)
		s.advanced = smallest
	}
}

// AdvancedTo returns the id up to which delivery has advanced without a
// gap.
func (s *inFlightSet) AdvancedTo() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.advanced
}
