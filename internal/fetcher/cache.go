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

package fetcher

import (
	"container/list"
	"sync"
	"time"
)

type cacheEntry struct {
	key     string
	value   []byte
	expires time.Time
	elem    *list.Element
}

// lru is a fixed-capacity, TTL-aware cache of fetched object bodies,
// kept in memory rather than a SQL table, since fetched objects here
// are re-verified against their origin on every cache miss rather than
// relied upon as the durable copy.
type lru struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	entries  map[string]*cacheEntry
}

func newLRU(capacity int) *lru {
	return &lru{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*cacheEntry, capacity),
	}
}

func (c *lru) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	if time.Now().After(e.expires) {
		c.order.Remove(e.elem)
		delete(c.entries, key)
		return nil, false
	}

	c.order.MoveToFront(e.elem)
	return e.value, true
}

func (c *lru) Put(key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		e.expires = time.Now().Add(ttl)
		c.order.MoveToFront(e.elem)
		return
	}

	e := &cacheEntry{key: key, value: value, expires: time.Now().Add(ttl)}
	e.elem = c.order.PushFront(e)
	c.entries[key] = e

	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}

		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

func (c *lru) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.order.Remove(e.elem)
		delete(c.entries, key)
	}
}
