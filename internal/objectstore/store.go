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

// Package objectstore defines the bucket operations the pipeline consumes
// and provides a MinIO-backed implementation for any S3-compatible store.
package objectstore

import (
	"context"
	"io"
)

// Attributes are the stored attributes of an object. ChecksumSHA256 is the
// provider's base64 representation and is empty when no checksum was
// computed at upload time.
type Attributes struct {
	Size           int64
	ChecksumSHA256 string
}

// Store is the contract the pipeline stages consume. Implementations must be
// safe for concurrent use — records in a batch are processed in parallel.
type Store interface {
	// GetAttributes fetches stored checksum/size attributes for an object.
	GetAttributes(ctx context.Context, bucket, key string) (Attributes, error)

	// CopyForChecksum issues a same-bucket, same-key copy requesting SHA-256
	// computation and returns the base64 checksum from the copy response.
	// An empty return value means the store did not compute one.
	CopyForChecksum(ctx context.Context, bucket, key string) (string, error)

	// GetObject opens the object's byte stream. The caller must drain and
	// close it.
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}
