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

package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pkgdrop/notifier/internal/event"
	"github.com/pkgdrop/notifier/internal/models"
)

type mockProcessor struct {
	batches chan []event.Record
}

func newMockProcessor() *mockProcessor {
	return &mockProcessor{batches: make(chan []event.Record, 1)}
}

func (m *mockProcessor) ProcessBatch(_ context.Context, entries []event.Record) *models.BatchResult {
	m.batches <- entries
	return &models.BatchResult{}
}

// TestServeNotification_AcceptsBatch verifies a notification payload is
// accepted with 202 and handed to the processor.
func TestServeNotification_AcceptsBatch(t *testing.T) {
	p := newMockProcessor()
	h := NewHandler(p)

	body := `{
		"EventName": "s3:ObjectCreated:Put",
		"Records": [
			{
				"eventName": "s3:ObjectCreated:Put",
				"s3": {
					"bucket": {"name": "uploads"},
					"object": {"key": "app.msi", "size": 5}
				}
			}
		]
	}`

	req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	h.ServeNotification(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusAccepted)
	}

	select {
	case entries := <-p.batches:
		if len(entries) != 1 {
			t.Fatalf("entries = %d, want 1", len(entries))
		}
		if entries[0].S3.Object.Key != "app.msi" {
			t.Errorf("key = %q", entries[0].S3.Object.Key)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("processor never received the batch")
	}
}

// TestServeNotification_NonPostReturnsOK verifies GET probes return 200
// without touching the processor.
func TestServeNotification_NonPostReturnsOK(t *testing.T) {
	p := newMockProcessor()
	h := NewHandler(p)

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	rr := httptest.NewRecorder()

	h.ServeNotification(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if len(p.batches) != 0 {
		t.Error("processor called for non-POST request")
	}
}

// TestServeNotification_InvalidJSON verifies graceful handling of bad
// payloads — still 2xx so the store does not redeliver.
func TestServeNotification_InvalidJSON(t *testing.T) {
	p := newMockProcessor()
	h := NewHandler(p)

	req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader("not json"))
	rr := httptest.NewRecorder()

	h.ServeNotification(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusAccepted)
	}
	if len(p.batches) != 0 {
		t.Error("processor called with undecodable payload")
	}
}
