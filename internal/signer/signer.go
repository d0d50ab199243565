// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package signer produces time-bounded signed download links. A link is the
// canonical object URL carrying an RS256 token bound to that URL, issued
// with a configured key-pair ID and private key. Signing is purely
// computational — no network calls.
package signer

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pkgdrop/notifier/internal/errdefs"
	"github.com/pkgdrop/notifier/internal/models"
)

// DefaultExpiryYears is the link lifetime when none is configured.
const DefaultExpiryYears = 3

// Signer signs download links for uploaded objects.
type Signer struct {
	publicBase  string
	keyPairID   string
	key         any // *rsa.PrivateKey, opaque to callers
	expiryYears int
	now         func() time.Time // stubbed in tests
}

// New creates a signer from PEM private key material. Malformed or missing
// key material fails here so the process halts before any record is
// processed. A non-positive expiryYears falls back to the default, keeping
// the expiration strictly in the future.
func New(publicBase, keyPairID string, privateKeyPEM []byte, expiryYears int) (*Signer, error) {
	if keyPairID == "" {
		return nil, fmt.Errorf("signing key-pair ID is empty: %w", errdefs.ErrSigning)
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse signing private key: %v: %w", err, errdefs.ErrSigning)
	}

	if expiryYears <= 0 {
		expiryYears = DefaultExpiryYears
	}

	return &Signer{
		publicBase:  strings.TrimRight(publicBase, "/"),
		keyPairID:   keyPairID,
		key:         key,
		expiryYears: expiryYears,
		now:         time.Now,
	}, nil
}

// Sign attaches a signed link for the record's object, expiring at
// now + the configured year offset.
func (s *Signer) Sign(rec *models.UploadRecord) error {
	canonical := s.CanonicalURL(rec.Bucket, rec.Key)
	expiresAt := s.now().AddDate(s.expiryYears, 0, 0)

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub": canonical,
		"exp": expiresAt.Unix(),
		"iat": s.now().Unix(),
	})
	token.Header["kid"] = s.keyPairID

	signed, err := token.SignedString(s.key)
	if err != nil {
		return fmt.Errorf("sign link for %s/%s: %v: %w", rec.Bucket, rec.Key, err, errdefs.ErrSigning)
	}

	q := url.Values{}
	q.Set("token", signed)
	q.Set("expires", strconv.FormatInt(expiresAt.Unix(), 10))
	rec.SignedURL = canonical + "?" + q.Encode()

	return nil
}

// CanonicalURL builds the unsigned download URL for an object. Each path
// segment of the key is escaped individually so slashes survive.
func (s *Signer) CanonicalURL(bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return fmt.Sprintf("%s/%s/%s", s.publicBase, url.PathEscape(bucket), strings.Join(segments, "/"))
}
