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

package materialize

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkgdrop/notifier/internal/errdefs"
	"github.com/pkgdrop/notifier/internal/models"
	"github.com/pkgdrop/notifier/internal/objectstore"
)

type mockStore struct {
	content string
	openErr error
	readErr error
}

func (m *mockStore) GetAttributes(_ context.Context, _, _ string) (objectstore.Attributes, error) {
	return objectstore.Attributes{}, nil
}

func (m *mockStore) CopyForChecksum(_ context.Context, _, _ string) (string, error) {
	return "", nil
}

func (m *mockStore) GetObject(_ context.Context, _, _ string) (io.ReadCloser, error) {
	if m.openErr != nil {
		return nil, m.openErr
	}
	if m.readErr != nil {
		return io.NopCloser(&failingReader{err: m.readErr}), nil
	}
	return io.NopCloser(strings.NewReader(m.content)), nil
}

type failingReader struct {
	err error
}

func (r *failingReader) Read(_ []byte) (int, error) {
	return 0, r.err
}

// TestMaterialize_WritesFile verifies the object lands under
// workDir/bucket/key with intermediate directories created, and that the
// local path is attached.
func TestMaterialize_WritesFile(t *testing.T) {
	store := &mockStore{content: "msi payload"}
	m := NewMaterializer(store, t.TempDir())

	rec := &models.UploadRecord{Bucket: "uploads", Key: "nested/dir/app.msi"}
	if err := m.Materialize(context.Background(), rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec.LocalPath == "" {
		t.Fatal("local path not attached")
	}

	data, err := os.ReadFile(rec.LocalPath)
	if err != nil {
		t.Fatalf("read materialized file: %v", err)
	}
	if string(data) != "msi payload" {
		t.Errorf("content = %q, want %q", data, "msi payload")
	}
}

// TestMaterialize_StreamFailure verifies a mid-stream read error yields
// ErrMaterialization, no local path, and no leftover partial file.
func TestMaterialize_StreamFailure(t *testing.T) {
	store := &mockStore{readErr: errors.New("connection reset")}
	workDir := t.TempDir()
	m := NewMaterializer(store, workDir)

	rec := &models.UploadRecord{Bucket: "uploads", Key: "app.msi"}
	err := m.Materialize(context.Background(), rec)
	if !errors.Is(err, errdefs.ErrMaterialization) {
		t.Fatalf("error = %v, want ErrMaterialization", err)
	}
	if rec.LocalPath != "" {
		t.Errorf("local path attached despite failure: %q", rec.LocalPath)
	}

	if _, err := os.Stat(filepath.Join(workDir, "uploads", "app.msi")); !os.IsNotExist(err) {
		t.Error("partial file left behind")
	}
}

// TestMaterialize_OpenFailure verifies open failures are wrapped.
func TestMaterialize_OpenFailure(t *testing.T) {
	store := &mockStore{openErr: errors.New("no such key")}
	m := NewMaterializer(store, t.TempDir())

	rec := &models.UploadRecord{Bucket: "uploads", Key: "app.msi"}
	if err := m.Materialize(context.Background(), rec); !errors.Is(err, errdefs.ErrMaterialization) {
		t.Fatalf("error = %v, want ErrMaterialization", err)
	}
}

// TestCleanup_RemovesFile verifies cleanup deletes the transient file and
// tolerates records that never materialized.
func TestCleanup_RemovesFile(t *testing.T) {
	store := &mockStore{content: "payload"}
	m := NewMaterializer(store, t.TempDir())

	rec := &models.UploadRecord{Bucket: "uploads", Key: "app.msi"}
	if err := m.Materialize(context.Background(), rec); err != nil {
		t.Fatalf("materialize: %v", err)
	}

	m.Cleanup(rec)
	if _, err := os.Stat(rec.LocalPath); !os.IsNotExist(err) {
		t.Errorf("file still exists after cleanup: %s", rec.LocalPath)
	}

	// No local path — must not panic.
	m.Cleanup(&models.UploadRecord{})
}
