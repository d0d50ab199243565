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

// Package webhook receives bucket notification POSTs from the object store.
// When an object lands in a watched bucket, the store POSTs an event batch
// to the registered webhook URL; this handler hands the batch to the
// pipeline orchestrator.
package webhook

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/pkgdrop/notifier/internal/event"
	"github.com/pkgdrop/notifier/internal/models"
)

// BatchProcessor runs the pipeline over an event batch.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, entries []event.Record) *models.BatchResult
}

// Handler processes bucket notification requests.
type Handler struct {
	processor BatchProcessor
}

// NewHandler creates a bucket notification handler.
func NewHandler(processor BatchProcessor) *Handler {
	return &Handler{processor: processor}
}

// ServeNotification handles bucket notification webhook requests.
//
// The object store expects a fast response and redelivers on failure, so we
// respond 202 Accepted immediately and run the batch in the background. Any
// other outcome (bad payload, GET probes) also returns a 2xx — telling the
// store to retry would only replay a payload we already know we can't use.
func (h *Handler) ServeNotification(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusOK)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		slog.Error("failed to read notification body", "error", err)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	n, err := event.Decode(body)
	if err != nil {
		slog.Info("notification body not valid JSON, treating as probe",
			"body_len", len(body),
		)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	// Respond immediately — the store expects a fast response.
	w.WriteHeader(http.StatusAccepted)

	go func() {
		batch := h.processor.ProcessBatch(context.Background(), n.Records)
		if batch.NothingToDo {
			slog.Debug("notification batch had nothing to do")
		}
	}()
}

// Serve starts the webhook HTTP server on the given port.
// It binds the port immediately and signals readiness via the returned channel
// before starting to accept connections.
func Serve(ctx context.Context, port int, handler *Handler) (<-chan struct{}, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", handler.ServeNotification)

	server := &http.Server{
		Handler: mux,
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("bind webhook port %d: %w", port, err)
	}

	ready := make(chan struct{})

	go func() {
		<-ctx.Done()
		slog.Info("webhook server shutting down")
		server.Close()
	}()

	go func() {
		slog.Info("webhook server listening", "port", port)
		close(ready)
		if err := server.Serve(ln); err != http.ErrServerClosed {
			slog.Error("webhook server error", "error", err)
		}
	}()

	return ready, nil
}
