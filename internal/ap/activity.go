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
	"encoding/json"
	"fmt"
)

// ActivityType is the polymorphic variant of an [Activity].
type ActivityType string

const (
	Create          ActivityType = "Create"
	Update          ActivityType = "Update"
	Delete          ActivityType = "Delete"
	Undo            ActivityType = "Undo"
	Like            ActivityType = "Like"
	Dislike         ActivityType = "Dislike"
	Follow          ActivityType = "Follow"
	Accept          ActivityType = "Accept"
	Reject          ActivityType = "Reject"
	Announce        ActivityType = "Announce"
	Block           ActivityType = "Block"
	Lock            ActivityType = "Lock"
	Report          ActivityType = "Flag"
	CollectionAdd   ActivityType = "Add"
	CollectionRemove ActivityType = "Remove"
)

// Activity is an ActivityStreams activity. Object may hold a nested
// *Activity (e.g. Undo wrapping a Follow), a nested *Object (e.g. Create
// wrapping a Post), or a bare string IRI (e.g. Like referencing a Comment
// by id) — [Activity.UnmarshalJSON] probes each in turn.
type Activity struct {
	Context   any          `json:"@context,omitempty"`
	ID        string       `json:"id"`
	Type      ActivityType `json:"type"`
	Actor     string       `json:"actor"`
	To        Audience     `json:"to,omitempty"`
	CC        Audience     `json:"cc,omitempty"`
	Object    any          `json:"object"`
	Target    string       `json:"target,omitempty"`
	Summary   string       `json:"summary,omitempty"`
	Published *Time        `json:"published,omitempty"`
}

// IsPublic reports whether the activity is addressed to the special Public
// audience, directly or through cc.
func (a *Activity) IsPublic() bool {
	return a.To.Contains(Public) || a.CC.Contains(Public)
}

// ObjectID returns the id of the nested object, regardless of whether it
// was wire-encoded as a bare string, an [Object] or an [Activity].
func (a *Activity) ObjectID() (string, bool) {
	switch o := a.Object.(type) {
	case string:
		return o, true
	case *Object:
		return o.ID, true
	case *Activity:
		return o.ID, true
	default:
		return "", false
	}
}

// anyActivity mirrors Activity but leaves Object as json.RawMessage, so it
// can be decoded a second time once we know which concrete type it holds.
type anyActivity struct {
	Context   any             `json:"@context,omitempty"`
	ID        string          `json:"id"`
	Type      ActivityType    `json:"type"`
	Actor     string          `json:"actor"`
	To        Audience        `json:"to,omitempty"`
	CC        Audience        `json:"cc,omitempty"`
	Object    json.RawMessage `json:"object"`
	Target    string          `json:"target,omitempty"`
	Summary   string          `json:"summary,omitempty"`
	Published *Time           `json:"published,omitempty"`
}

func (a *Activity) UnmarshalJSON(b []byte) error {
	var raw anyActivity
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	a.Context = raw.Context
	a.ID = raw.ID
	a.Type = raw.Type
	a.Actor = raw.Actor
	a.To = raw.To
	a.CC = raw.CC
	a.Target = raw.Target
	a.Summary = raw.Summary
	a.Published = raw.Published

	if len(raw.Object) == 0 || string(raw.Object) == "null" {
		return nil
	}

	// a bare IRI, addressing the object by id alone
	var s string
	if err := json.Unmarshal(raw.Object, &s); err == nil {
		a.Object = s
		return nil
	}

	// a nested activity, e.g. Undo wrapping a Follow; an object (Page,
	// Note, ...) carries attributedTo rather than actor, so it falls through
	var nested Activity
	if err := json.Unmarshal(raw.Object, &nested); err == nil && nested.Type != "" && nested.Actor != "" {
		a.Object = &nested
		return nil
	}

	// a nested object, e.g. Create wrapping a Post or Comment
	var obj Object
	if err := json.Unmarshal(raw.Object, &obj); err != nil {
		return fmt.Errorf("cannot decode activity object: %w", err)
	}

	a.Object = &obj
	return nil
}
