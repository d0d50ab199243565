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

// Package materialize downloads objects into transient local storage for
// tools that need file-system access.
package materialize

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pkgdrop/notifier/internal/errdefs"
	"github.com/pkgdrop/notifier/internal/models"
	"github.com/pkgdrop/notifier/internal/objectstore"
)

// Materializer streams objects to a local working directory.
type Materializer struct {
	store   objectstore.Store
	workDir string
}

// NewMaterializer creates a materializer writing under workDir. An empty
// workDir falls back to a notifier subdirectory of the system temp dir.
func NewMaterializer(store objectstore.Store, workDir string) *Materializer {
	if workDir == "" {
		workDir = filepath.Join(os.TempDir(), "pkgdrop")
	}
	return &Materializer{store: store, workDir: workDir}
}

// Materialize downloads the record's object to workDir/bucket/key, creating
// intermediate directories. LocalPath is attached only after the stream has
// fully drained and the file closed cleanly — an open handle is not a
// materialized file.
func (m *Materializer) Materialize(ctx context.Context, rec *models.UploadRecord) error {
	localPath := filepath.Join(m.workDir, rec.Bucket, filepath.FromSlash(rec.Key))

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("create directories for %s: %v: %w", localPath, err, errdefs.ErrMaterialization)
	}

	body, err := m.store.GetObject(ctx, rec.Bucket, rec.Key)
	if err != nil {
		return fmt.Errorf("open object stream %s/%s: %v: %w", rec.Bucket, rec.Key, err, errdefs.ErrMaterialization)
	}
	defer body.Close()

	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create local file %s: %v: %w", localPath, err, errdefs.ErrMaterialization)
	}

	written, err := io.Copy(f, body)
	if err != nil {
		f.Close()
		os.Remove(localPath)
		return fmt.Errorf("drain object stream %s/%s: %v: %w", rec.Bucket, rec.Key, err, errdefs.ErrMaterialization)
	}

	if err := f.Close(); err != nil {
		os.Remove(localPath)
		return fmt.Errorf("close local file %s: %v: %w", localPath, err, errdefs.ErrMaterialization)
	}

	rec.LocalPath = localPath

	slog.Debug("object materialized",
		"bucket", rec.Bucket,
		"key", rec.Key,
		"local_path", localPath,
		"bytes", written,
	)
	return nil
}

// Cleanup removes the record's transient local file, if any. Best-effort —
// the working directory is disposable.
func (m *Materializer) Cleanup(rec *models.UploadRecord) {
	if rec.LocalPath == "" {
		return
	}
	if err := os.Remove(rec.LocalPath); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to remove transient file",
			"local_path", rec.LocalPath,
			"error", err,
		)
	}
}
