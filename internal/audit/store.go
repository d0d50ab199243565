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

// Package audit provides a Postgres-backed log of per-record processing
// outcomes. Upload records themselves are ephemeral; the audit row is the
// only durable trace of what the pipeline did with an object.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pkgdrop/notifier/internal/models"
)

// Entry is a single processed-object outcome persisted in Postgres.
type Entry struct {
	ID          int64
	Bucket      string
	Key         string
	FileType    string
	Status      string // "dispatched" or "failed"
	MessageID   string
	ErrorDetail string
	ProcessedAt time.Time
}

// Store records processing outcomes in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates an audit store backed by the given Postgres pool.
// It ensures the outcomes table exists on creation.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure audit schema: %w", err)
	}
	slog.Info("audit store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS processing_outcomes (
			id           BIGSERIAL PRIMARY KEY,
			bucket       TEXT NOT NULL,
			object_key   TEXT NOT NULL,
			file_type    TEXT NOT NULL,
			status       TEXT NOT NULL,
			message_id   TEXT DEFAULT '',
			error_detail TEXT DEFAULT '',
			processed_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_outcomes_object ON processing_outcomes(bucket, object_key);
		CREATE INDEX IF NOT EXISTS idx_outcomes_status ON processing_outcomes(status);
	`)
	return err
}

// Record inserts an outcome row for a settled record.
func (s *Store) Record(ctx context.Context, res models.RecordResult) error {
	status := "dispatched"
	errDetail := ""
	if res.Err != nil {
		status = "failed"
		errDetail = res.Err.Error()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO processing_outcomes
			(bucket, object_key, file_type, status, message_id, error_detail)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, res.Bucket, res.Key, string(res.Type), status, res.MessageID, errDetail)
	return err
}

// ListByObject returns the processing history of one object, newest first.
func (s *Store) ListByObject(ctx context.Context, bucket, key string) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, bucket, object_key, file_type, status, message_id, error_detail, processed_at
		FROM processing_outcomes
		WHERE bucket = $1 AND object_key = $2
		ORDER BY processed_at DESC
	`, bucket, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

// ListRecentFailures returns failed outcomes within the lookback window.
func (s *Store) ListRecentFailures(ctx context.Context, lookback time.Duration) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, bucket, object_key, file_type, status, message_id, error_detail, processed_at
		FROM processing_outcomes
		WHERE status = 'failed' AND processed_at > NOW() - $1::interval
		ORDER BY processed_at DESC
	`, fmt.Sprintf("%d seconds", int(lookback.Seconds())))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

// collectEntries scans multiple rows into a slice of Entries.
func collectEntries(rows pgx.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID, &e.Bucket, &e.Key, &e.FileType, &e.Status,
			&e.MessageID, &e.ErrorDetail, &e.ProcessedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
