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

// Package results publishes per-record processing outcomes to a Redis queue
// for downstream consumers (dashboards, alerting). Publishing is
// best-effort — the orchestrator logs failures but never fails a record
// over them.
package results

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/pkgdrop/notifier/internal/models"
)

// Publisher sends outcome events to Redis.
type Publisher struct {
	rdb       *redis.Client
	queueName string
}

// NewPublisher creates a Redis publisher targeting the specified queue.
func NewPublisher(rdb *redis.Client, queueName string) *Publisher {
	return &Publisher{
		rdb:       rdb,
		queueName: queueName,
	}
}

// outcomeEvent is the JSON envelope downstream consumers read.
type outcomeEvent struct {
	ID         string `json:"id"`
	Bucket     string `json:"bucket"`
	Key        string `json:"key"`
	FileType   string `json:"file_type"`
	Status     string `json:"status"` // "dispatched" or "failed"
	MessageID  string `json:"message_id,omitempty"`
	Error      string `json:"error,omitempty"`
	FinishedAt string `json:"finished_at"`
}

// PublishOutcome serialises a record outcome and pushes it onto the queue.
func (p *Publisher) PublishOutcome(ctx context.Context, res models.RecordResult) error {
	ev := outcomeEvent{
		ID:         uuid.New().String(),
		Bucket:     res.Bucket,
		Key:        res.Key,
		FileType:   string(res.Type),
		Status:     "dispatched",
		MessageID:  res.MessageID,
		FinishedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if res.Err != nil {
		ev.Status = "failed"
		ev.Error = res.Err.Error()
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal outcome event: %w", err)
	}

	if err := p.rdb.LPush(ctx, p.queueName, string(payload)).Err(); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Debug("published outcome event",
		"event_id", ev.ID,
		"bucket", res.Bucket,
		"key", res.Key,
		"status", ev.Status,
		"queue", p.queueName,
	)
	return nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}
