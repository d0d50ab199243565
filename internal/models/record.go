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

// Package models defines the data structures shared across the notifier service.
package models

import (
	"path"
	"strings"
)

// FileType classifies an uploaded object by its key extension.
type FileType string

const (
	FileTypeMSI     FileType = "msi"
	FileTypeZIP     FileType = "zip"
	FileTypeUnknown FileType = "unknown"
)

// Classify maps an object key to a FileType by extension, case-insensitively.
// Keys without an extension classify as unknown.
func Classify(key string) FileType {
	switch strings.ToLower(path.Ext(key)) {
	case ".msi":
		return FileTypeMSI
	case ".zip":
		return FileTypeZIP
	default:
		return FileTypeUnknown
	}
}

// UploadRecord is the unit of work flowing through the pipeline. Bucket and
// Key identify the object and never change; the remaining fields are attached
// by pipeline stages as they run. A record is owned by exactly one pipeline —
// no two goroutines ever share one.
type UploadRecord struct {
	Bucket    string
	Key       string
	EventName string
	Size      int64
	ETag      string
	Sequencer string

	Type FileType

	// Derived by stages, in order.
	ChecksumHex    string // lowercase hex SHA-256
	LocalPath      string // transient local copy, MSI only
	RevisionNumber string // GUID-like installer revision, MSI only
	SignedURL      string
	MessageID      string // transport-assigned, set on dispatch
}

// RecordResult is the terminal outcome of one record's pipeline.
type RecordResult struct {
	Bucket    string
	Key       string
	Type      FileType
	MessageID string
	Err       error
}

// BatchResult aggregates per-record outcomes for one invocation. NothingToDo
// is the distinguished non-error state reached when every incoming entry was
// filtered out as a self-generated copy event (or a duplicate).
type BatchResult struct {
	Results     []RecordResult
	NothingToDo bool
}

// Succeeded counts records that dispatched a message.
func (b *BatchResult) Succeeded() int {
	n := 0
	for _, r := range b.Results {
		if r.Err == nil {
			n++
		}
	}
	return n
}

// Failed counts records that terminated with an error.
func (b *BatchResult) Failed() int {
	return len(b.Results) - b.Succeeded()
}
