/*
Copyright 2024 - 2026 Dima Krasner

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

package signer

import (
	"errors"
	"net/http"
	"time"

	"code.superseriousbusiness.org/httpsig"
)

// ErrKeyMismatch is returned when the request was signed by a different
// key than the one the caller supplied for verification.
var ErrKeyMismatch = errors.New("signature does not verify under this key")

// Extracted is a request's signature, parsed but not yet verified against
// a specific actor's public key.
type Extracted struct {
	KeyID string

	verifier httpsig.Verifier
}

// Extract parses the Signature header of r without verifying it, so the
// caller can resolve KeyID to an actor and its public key first.
func Extract(r *http.Request, maxAge time.Duration) (*Extracted, error) {
	date := r.Header.Get("Date")
	if date == "" {
		return nil, errors.New("date header is missing")
	}

	t, err := http.ParseTime(date)
	if err != nil {
		return nil, errors.New("date header is malformed")
	}

	if age := time.Since(t); age > maxAge || age < -maxAge {
		return nil, errors.New("date header is too old or in the future")
	}

	v, err := httpsig.NewVerifier(r)
	if err != nil {
		return nil, err
	}

	return &Extracted{KeyID: v.KeyId(), verifier: v}, nil
}

// Verify checks the extracted signature against publicKeyPem.
func (e *Extracted) Verify(publicKeyPem string) error {
	key, err := ParsePublicKey(publicKeyPem)
	if err != nil {
		return err
	}

	if err := e.verifier.Verify(key, httpsig.RSA_SHA256); err != nil {
		return ErrKeyMismatch
	}

	return nil
}
