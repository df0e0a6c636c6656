/*
Copyright 2023 - 2025 Dima Krasner

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

package ap

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Public is the special audience URI marking an activity as publicly addressed.
const Public = "https://www.w3.org/ns/activitystreams#Public"

// Audience is an ordered, unique set of actor or collection URIs, used for
// the "to" and "cc" fields of an [Activity] or [Object].
type Audience struct {
	order []string
	seen  map[string]struct{}
}

// Add inserts id into the audience, if not already present.
func (a *Audience) Add(id string) {
	if id == "" {
		return
	}

	if a.seen == nil {
		a.seen = make(map[string]struct{}, 1)
	}

	if _, ok := a.seen[id]; ok {
		return
	}

	a.seen[id] = struct{}{}
	a.order = append(a.order, id)
}

// Contains reports whether id is a member of the audience.
func (a Audience) Contains(id string) bool {
	if a.seen == nil {
		return false
	}

	_, ok := a.seen[id]
	return ok
}

// Keys returns the audience members in insertion order.
func (a Audience) Keys() []string {
	return a.order
}

// Len returns the number of distinct members.
func (a Audience) Len() int {
	return len(a.order)
}

func (a *Audience) UnmarshalJSON(b []byte) error {
	var l []string
	if err := json.Unmarshal(b, &l); err != nil {
		// some implementations address a single recipient as a bare string
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}

		a.Add(s)
		return nil
	}

	for _, s := range l {
		a.Add(s)
	}

	return nil
}

func (a Audience) MarshalJSON() ([]byte, error) {
	if len(a.order) == 0 {
		return []byte("[]"), nil
	}

	return json.Marshal(a.order)
}

func (a *Audience) Scan(src any) error {
	if src == nil {
		return nil
	}

	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	default:
		return fmt.Errorf("unsupported conversion from %T to %T", src, a)
	}
}

func (a Audience) Value() (driver.Value, error) {
	buf, err := json.Marshal(a)
	return string(buf), err
}
