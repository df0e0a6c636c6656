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

// Package signer implements HTTP Signatures (draft-cavage), the only
// signing scheme this module speaks: request signing on the way out of
// the delivery queue, and signature verification on the way into the
// inbound router.
package signer

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"code.superseriousbusiness.org/httpsig"
)

var signedHeaders = []string{httpsig.RequestTarget, "host", "date", "digest"}

// Signer signs outgoing activity deliveries with a local actor's private
// key.
type Signer struct {
	signer httpsig.Signer
}

// NewSigner returns a [Signer] that signs with RSA-SHA256 over the
// request target, host, date and body digest, matching the signature
// every ActivityPub implementation in the wild is expected to verify.
func NewSigner() (*Signer, error) {
	s, _, err := httpsig.NewSigner(
		[]httpsig.Algorithm{httpsig.RSA_SHA256},
		httpsig.DigestSha256,
		signedHeaders,
		httpsig.Signature,
		int64((time.Minute * 10).Seconds()),
	)
	if err != nil {
		return nil, err
	}

	return &Signer{signer: s}, nil
}

// Sign attaches a Signature header (and a Digest header, for requests
// with a body) to r, identifying the signer as keyID and signing with
// privateKeyPem.
func (s *Signer) Sign(r *http.Request, keyID, privateKeyPem string) error {
	key, err := ParsePrivateKey(privateKeyPem)
	if err != nil {
		return fmt.Errorf("parse private key: %w", err)
	}

	var body []byte
	if r.Body != nil {
		body, err = io.ReadAll(r.Body)
		if err != nil {
			return err
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		r.ContentLength = int64(len(body))
	}

	r.Header.Set("Host", r.URL.Host)

	return s.signer.SignRequest(key, keyID, r, body)
}

// ParsePrivateKey parses a PEM-encoded PKCS#1 or PKCS#8 RSA private key.
func ParsePrivateKey(pemStr string) (crypto.Signer, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, errors.New("invalid PEM block")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}

	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, errors.New("not a signing key")
	}

	return signer, nil
}

// ParsePublicKey parses a PEM-encoded PKIX RSA public key.
func ParsePublicKey(pemStr string) (crypto.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, errors.New("invalid PEM block")
	}

	return x509.ParsePKIXPublicKey(block.Bytes)
}
