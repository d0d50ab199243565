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

// Package event parses S3-compatible bucket notification payloads into
// upload records. Both AWS S3 and MinIO webhook targets POST this shape.
package event

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/pkgdrop/notifier/internal/models"
)

// CopyEventName is the event kind emitted by the checksum backfill's
// same-key copy. Entries carrying it must be filtered before processing or
// every backfill would trigger another batch.
const CopyEventName = "s3:ObjectCreated:Copy"

// Notification is the wrapper the bucket notification target POSTs.
type Notification struct {
	EventName string   `json:"EventName"`
	Key       string   `json:"Key"`
	Records   []Record `json:"Records"`
}

// Record is a single bucket event entry.
type Record struct {
	EventVersion string `json:"eventVersion"`
	EventSource  string `json:"eventSource"`
	EventTime    string `json:"eventTime"`
	EventName    string `json:"eventName"`
	S3           struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			Key       string `json:"key"`
			Size      int64  `json:"size"`
			ETag      string `json:"eTag"`
			Sequencer string `json:"sequencer"`
		} `json:"object"`
	} `json:"s3"`
}

// Decode parses a notification payload body.
func Decode(body []byte) (*Notification, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("decode bucket notification: %w", err)
	}
	return &n, nil
}

// IsBackfillCopy reports whether an event kind matches the backfill copy
// event. Some notification sources omit the "s3:" prefix, so comparison is
// done on the trimmed name.
func IsBackfillCopy(eventName string) bool {
	return strings.TrimPrefix(eventName, "s3:") == strings.TrimPrefix(CopyEventName, "s3:")
}

// ToRecord converts an event entry into an upload record. Object keys arrive
// URL-encoded in bucket events ('+' for space), so the key is unescaped here.
func ToRecord(r Record) (*models.UploadRecord, error) {
	key, err := url.QueryUnescape(r.S3.Object.Key)
	if err != nil {
		return nil, fmt.Errorf("unescape object key %q: %w", r.S3.Object.Key, err)
	}

	return &models.UploadRecord{
		Bucket:    r.S3.Bucket.Name,
		Key:       key,
		EventName: r.EventName,
		Size:      r.S3.Object.Size,
		ETag:      r.S3.Object.ETag,
		Sequencer: r.S3.Object.Sequencer,
	}, nil
}
