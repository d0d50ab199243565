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

// Package checksum resolves the SHA-256 checksum of an uploaded object from
// its stored attributes, backfilling via an in-place copy when the store did
// not compute one at upload time. The store returns checksums base64-encoded;
// the canonical representation everywhere downstream is lowercase hex.
package checksum

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/pkgdrop/notifier/internal/errdefs"
	"github.com/pkgdrop/notifier/internal/models"
	"github.com/pkgdrop/notifier/internal/objectstore"
)

// Resolver attaches the canonical hex checksum to upload records.
type Resolver struct {
	store objectstore.Store
}

// NewResolver creates a checksum resolver backed by the given object store.
func NewResolver(store objectstore.Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve fetches the object's stored checksum attribute and attaches it to
// the record in hex form. When the attribute is absent it falls back to the
// copy backfill. The backfill copy is issued at most once per resolution;
// repeating it is harmless (the store recomputes the same value) but emits a
// second copy event, which the orchestrator filters.
func (r *Resolver) Resolve(ctx context.Context, rec *models.UploadRecord) error {
	attrs, err := r.store.GetAttributes(ctx, rec.Bucket, rec.Key)
	if err != nil {
		return fmt.Errorf("fetch attributes: %w", err)
	}

	if attrs.ChecksumSHA256 != "" {
		hexSum, err := Normalize(attrs.ChecksumSHA256)
		if err != nil {
			return err
		}
		rec.ChecksumHex = hexSum
		slog.Debug("checksum resolved from attributes",
			"bucket", rec.Bucket,
			"key", rec.Key,
		)
		return nil
	}

	return r.backfill(ctx, rec)
}

// backfill copies the object onto itself requesting SHA-256 computation and
// normalizes the checksum from the copy response. The store guarantees the
// value when the algorithm is requested — an empty response is a hard,
// non-retriable failure.
func (r *Resolver) backfill(ctx context.Context, rec *models.UploadRecord) error {
	slog.Info("checksum attribute missing, backfilling via copy",
		"bucket", rec.Bucket,
		"key", rec.Key,
	)

	b64, err := r.store.CopyForChecksum(ctx, rec.Bucket, rec.Key)
	if err != nil {
		return fmt.Errorf("backfill copy: %w", err)
	}

	if b64 == "" {
		return fmt.Errorf("copy response for %s/%s carried no checksum: %w",
			rec.Bucket, rec.Key, errdefs.ErrChecksumUnavailable)
	}

	hexSum, err := Normalize(b64)
	if err != nil {
		return err
	}
	rec.ChecksumHex = hexSum

	slog.Info("checksum backfilled",
		"bucket", rec.Bucket,
		"key", rec.Key,
	)
	return nil
}

// Normalize converts a base64 SHA-256 checksum to its canonical lowercase
// hex representation. The decoded value must be exactly one SHA-256 digest.
func Normalize(b64 string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", fmt.Errorf("checksum %q is not valid base64: %w", b64, errdefs.ErrValidation)
	}
	if len(raw) != sha256.Size {
		return "", fmt.Errorf("checksum decodes to %d bytes, want %d: %w",
			len(raw), sha256.Size, errdefs.ErrValidation)
	}
	return hex.EncodeToString(raw), nil
}
