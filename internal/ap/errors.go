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

package ap

import "errors"

var (
	// ErrUnsupportedActivity is returned when an activity's type is not one
	// this implementation knows how to verify or receive.
	ErrUnsupportedActivity = errors.New("unsupported activity type")

	// ErrInvalidActivity is returned when an activity is structurally
	// malformed: missing actor, missing object, or an object of the wrong
	// wire shape for the activity's type.
	ErrInvalidActivity = errors.New("invalid activity")

	// ErrDomainMismatch is returned when an activity fails a
	// verify_domains_match check, e.g. actor and object id hosts differ.
	ErrDomainMismatch = errors.New("activity domain mismatch")
)
