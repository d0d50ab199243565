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

package dispatch

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pkgdrop/notifier/internal/compose"
	"github.com/pkgdrop/notifier/internal/errdefs"
)

func testMessage() *compose.Message {
	return &compose.Message{
		From:     "noreply@example.com",
		To:       "ops@example.com",
		Subject:  "Signed link available: app.zip",
		TextBody: "link here",
		HTMLBody: "<p>link here</p>",
	}
}

// TestSend_SubmitsRawMIME verifies the request shape: sender-scoped endpoint,
// base64 text/plain body decoding to a MIME message, and the transport
// request-id surfaced as the message identifier.
func TestSend_SubmitsRawMIME(t *testing.T) {
	var gotPath, gotContentType string
	var gotBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("request-id", "req-789")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	d := NewDispatcher(server.Client(), server.URL)

	id, err := d.Send(context.Background(), testMessage())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if id != "req-789" {
		t.Errorf("message id = %q, want req-789", id)
	}
	if gotPath != "/users/noreply@example.com/sendMail" {
		t.Errorf("path = %q", gotPath)
	}
	if gotContentType != "text/plain" {
		t.Errorf("content type = %q", gotContentType)
	}

	raw, err := base64.StdEncoding.DecodeString(string(gotBody))
	if err != nil {
		t.Fatalf("body is not base64: %v", err)
	}
	for _, want := range []string{
		"From: noreply@example.com",
		"To: ops@example.com",
		"Subject: Signed link available: app.zip",
	} {
		if !strings.Contains(string(raw), want) {
			t.Errorf("decoded MIME missing %q", want)
		}
	}
}

// TestSend_EscapesSenderInPath verifies the sender address is escaped as a
// path segment, so reserved characters cannot truncate or reroute the
// sendMail endpoint.
func TestSend_EscapesSenderInPath(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	d := NewDispatcher(server.Client(), server.URL)

	msg := testMessage()
	msg.From = "release#1 team@example.com"

	if _, err := d.Send(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/users/release#1 team@example.com/sendMail" {
		t.Errorf("path = %q, want sender round-tripped intact", gotPath)
	}
}

// TestSend_FallsBackToMessageID verifies a transport that stamps no
// request-id still yields an identifier.
func TestSend_FallsBackToMessageID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	d := NewDispatcher(server.Client(), server.URL)

	id, err := d.Send(context.Background(), testMessage())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(id, "@pkgdrop") {
		t.Errorf("fallback id = %q, want generated Message-ID", id)
	}
}

// TestSend_TransportRejection verifies non-2xx responses yield ErrDispatch.
func TestSend_TransportRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":"ErrorSendAsDenied"}}`, http.StatusForbidden)
	}))
	defer server.Close()

	d := NewDispatcher(server.Client(), server.URL)

	if _, err := d.Send(context.Background(), testMessage()); !errors.Is(err, errdefs.ErrDispatch) {
		t.Fatalf("error = %v, want ErrDispatch", err)
	}
}
