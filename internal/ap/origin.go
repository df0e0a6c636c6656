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

import "net/url"

// Origin returns the host of an ActivityPub ID. A bare domain with no
// scheme (as configured for this instance's own Domain) has no host once
// parsed as a URL, so it's returned unchanged.
func Origin(id string) (string, error) {
	u, err := url.Parse(id)
	if err != nil {
		return "", err
	}

	if u.Host == "" {
		return id, nil
	}

	return u.Host, nil
}

// DomainsMatch reports whether a and b share the same host, ignoring any
// fragment or path. Used by verify_domains_match across activity handlers.
func DomainsMatch(a, b string) bool {
	ao, err := Origin(a)
	if err != nil {
		return false
	}

	bo, err := Origin(b)
	if err != nil {
		return false
	}

	return ao == bo
}
