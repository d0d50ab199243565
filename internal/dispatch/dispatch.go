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

// Package dispatch submits composed notification messages through the
// Microsoft Graph sendMail endpoint as raw MIME. The HTTP client is expected
// to carry OAuth2 client-credential tokens (see cmd/server wiring).
package dispatch

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/pkgdrop/notifier/internal/compose"
	"github.com/pkgdrop/notifier/internal/errdefs"
)

// Dispatcher sends composed messages via the Graph API.
type Dispatcher struct {
	httpClient   *http.Client
	graphBaseURL string
}

// NewDispatcher creates a mail dispatcher. httpClient must be authenticated
// for the sender's tenant.
func NewDispatcher(httpClient *http.Client, graphBaseURL string) *Dispatcher {
	return &Dispatcher{
		httpClient:   httpClient,
		graphBaseURL: graphBaseURL,
	}
}

// Send serializes the message to raw MIME and submits it under the sender's
// mailbox. Returns the transport-assigned message identifier — the
// `request-id` the transport stamps on the response, falling back to the
// generated Message-ID. Transport rejections (unverified sender, throttling)
// surface as ErrDispatch and are not retried here; the orchestrator records
// them as that record's failure.
func (d *Dispatcher) Send(ctx context.Context, msg *compose.Message) (string, error) {
	messageID := uuid.New().String() + "@pkgdrop"

	raw, err := msg.MIME(messageID)
	if err != nil {
		return "", fmt.Errorf("serialize message: %v: %w", err, errdefs.ErrDispatch)
	}

	// Graph accepts raw MIME as a base64 text/plain body.
	body := base64.StdEncoding.EncodeToString(raw)
	endpoint := fmt.Sprintf("%s/users/%s/sendMail", d.graphBaseURL, url.PathEscape(msg.From))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(body))
	if err != nil {
		return "", fmt.Errorf("build sendMail request: %v: %w", err, errdefs.ErrDispatch)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit message: %v: %w", err, errdefs.ErrDispatch)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("sendMail returned HTTP %d: %s: %w",
			resp.StatusCode, respBody, errdefs.ErrDispatch)
	}

	transportID := resp.Header.Get("request-id")
	if transportID == "" {
		transportID = messageID
	}

	slog.Info("message dispatched",
		"to", msg.To,
		"subject", msg.Subject,
		"message_id", transportID,
	)
	return transportID, nil
}
