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

// Package pipeline orchestrates per-object processing: it filters
// self-generated copy events out of an incoming batch, validates and
// classifies the remaining entries, runs the type-specific stage sequence
// per record concurrently, and aggregates the outcomes. One record's
// failure never blocks or fails its siblings.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/pkgdrop/notifier/internal/compose"
	"github.com/pkgdrop/notifier/internal/errdefs"
	"github.com/pkgdrop/notifier/internal/event"
	"github.com/pkgdrop/notifier/internal/models"
)

// Stage collaborators, one per pipeline step. Declared here so tests and
// alternative implementations only need to satisfy what the orchestrator
// actually calls.

type ChecksumResolver interface {
	Resolve(ctx context.Context, rec *models.UploadRecord) error
}

type Materializer interface {
	Materialize(ctx context.Context, rec *models.UploadRecord) error
	Cleanup(rec *models.UploadRecord)
}

type RevisionExtractor interface {
	ExtractRevision(ctx context.Context, rec *models.UploadRecord) error
}

type LinkSigner interface {
	Sign(rec *models.UploadRecord) error
}

type Composer interface {
	Compose(rec *models.UploadRecord) (*compose.Message, error)
}

type Dispatcher interface {
	Send(ctx context.Context, msg *compose.Message) (string, error)
}

// Optional collaborators. Nil disables the concern; their failures are
// logged and never escalate to a record failure.

type DedupFilter interface {
	IsNew(ctx context.Context, eventKey string) (bool, error)
}

type OutcomePublisher interface {
	PublishOutcome(ctx context.Context, res models.RecordResult) error
}

type AuditLog interface {
	Record(ctx context.Context, res models.RecordResult) error
}

// Orchestrator sequences the pipeline stages for each record in a batch.
type Orchestrator struct {
	checksums  ChecksumResolver
	files      Materializer
	revisions  RevisionExtractor
	links      LinkSigner
	composer   Composer
	dispatcher Dispatcher

	dedup   DedupFilter
	results OutcomePublisher
	audit   AuditLog
}

// Config holds the orchestrator's collaborators. Dedup, Results and Audit
// are optional.
type Config struct {
	Checksums  ChecksumResolver
	Files      Materializer
	Revisions  RevisionExtractor
	Links      LinkSigner
	Composer   Composer
	Dispatcher Dispatcher

	Dedup   DedupFilter
	Results OutcomePublisher
	Audit   AuditLog
}

// NewOrchestrator creates a pipeline orchestrator.
func NewOrchestrator(cfg Config) *Orchestrator {
	return &Orchestrator{
		checksums:  cfg.Checksums,
		files:      cfg.Files,
		revisions:  cfg.Revisions,
		links:      cfg.Links,
		composer:   cfg.Composer,
		dispatcher: cfg.Dispatcher,
		dedup:      cfg.Dedup,
		results:    cfg.Results,
		audit:      cfg.Audit,
	}
}

// ProcessBatch runs the pipeline over a batch of bucket event entries and
// returns once every record has settled. Entries produced by the checksum
// backfill's own copy operation are dropped first — without that filter
// every backfill would trigger another batch. NothingToDo is set when no
// record entered a pipeline (all entries filtered, duplicated, or invalid).
func (o *Orchestrator) ProcessBatch(ctx context.Context, entries []event.Record) *models.BatchResult {
	slog.Info("received upload batch", "entries", len(entries))

	batch := &models.BatchResult{}
	var records []*models.UploadRecord

	for _, e := range entries {
		if event.IsBackfillCopy(e.EventName) {
			slog.Debug("skipping self-generated copy event",
				"event", e.EventName,
				"key", e.S3.Object.Key,
			)
			continue
		}

		if o.dedup != nil {
			dedupKey := fmt.Sprintf("%s/%s/%s", e.S3.Bucket.Name, e.S3.Object.Key, e.S3.Object.Sequencer)
			isNew, err := o.dedup.IsNew(ctx, dedupKey)
			if err != nil {
				slog.Warn("dedup check failed, proceeding", "error", err)
			} else if !isNew {
				slog.Debug("skipping duplicate event", "key", e.S3.Object.Key)
				continue
			}
		}

		rec, err := event.ToRecord(e)
		if err == nil {
			err = validate(rec)
		}
		if err != nil {
			batch.Results = append(batch.Results, models.RecordResult{
				Bucket: e.S3.Bucket.Name,
				Key:    e.S3.Object.Key,
				Err:    err,
			})
			continue
		}

		rec.Type = models.Classify(rec.Key)
		records = append(records, rec)
	}

	if len(records) == 0 {
		batch.NothingToDo = true
		slog.Info("nothing to do", "filtered_entries", len(entries), "invalid", len(batch.Results))
		o.settle(ctx, batch)
		return batch
	}

	// Records are independent: process them concurrently, each writing only
	// its own slot. The batch does not resolve until every record settled.
	offset := len(batch.Results)
	batch.Results = append(batch.Results, make([]models.RecordResult, len(records))...)

	var wg sync.WaitGroup
	for i, rec := range records {
		wg.Add(1)
		go func(i int, rec *models.UploadRecord) {
			defer wg.Done()
			batch.Results[offset+i] = o.processRecord(ctx, rec)
		}(i, rec)
	}
	wg.Wait()

	o.settle(ctx, batch)

	slog.Info("batch complete",
		"records", len(batch.Results),
		"dispatched", batch.Succeeded(),
		"failed", batch.Failed(),
	)
	return batch
}

// validate enforces the identity fields every pipeline needs.
func validate(rec *models.UploadRecord) error {
	if strings.TrimSpace(rec.Bucket) == "" {
		return fmt.Errorf("entry has no bucket name: %w", errdefs.ErrValidation)
	}
	if strings.TrimSpace(rec.Key) == "" {
		return fmt.Errorf("entry has no object key: %w", errdefs.ErrValidation)
	}
	return nil
}

// stage is one step of a record's pipeline. Stages run strictly in order;
// the first failure terminates the record.
type stage struct {
	name string
	run  func(ctx context.Context, rec *models.UploadRecord) error
}

// stagesFor returns the stage sequence for the record's file type.
//
//	MSI:     checksum → materialize → extract revision → sign link
//	ZIP:     sign link
//	UNKNOWN: (composition only)
//
// Composition and dispatch are appended for every type.
func (o *Orchestrator) stagesFor(rec *models.UploadRecord) []stage {
	var stages []stage

	switch rec.Type {
	case models.FileTypeMSI:
		stages = append(stages,
			stage{"resolve checksum", o.checksums.Resolve},
			stage{"materialize", o.files.Materialize},
			stage{"extract revision", o.revisions.ExtractRevision},
			stage{"sign link", o.signStage},
		)
	case models.FileTypeZIP:
		stages = append(stages,
			stage{"sign link", o.signStage},
		)
	}

	return append(stages, stage{"dispatch", o.dispatchStage})
}

func (o *Orchestrator) signStage(_ context.Context, rec *models.UploadRecord) error {
	return o.links.Sign(rec)
}

// dispatchStage composes the type-specific message and submits it. The
// transport identifier lands on the record on success.
func (o *Orchestrator) dispatchStage(ctx context.Context, rec *models.UploadRecord) error {
	msg, err := o.composer.Compose(rec)
	if err != nil {
		return err
	}

	id, err := o.dispatcher.Send(ctx, msg)
	if err != nil {
		return err
	}

	rec.MessageID = id
	return nil
}

// processRecord runs one record's stage sequence to a terminal outcome.
// The transient local file, if any, is removed once the record settles.
func (o *Orchestrator) processRecord(ctx context.Context, rec *models.UploadRecord) models.RecordResult {
	res := models.RecordResult{
		Bucket: rec.Bucket,
		Key:    rec.Key,
		Type:   rec.Type,
	}

	defer func() {
		if rec.LocalPath != "" {
			o.files.Cleanup(rec)
		}
	}()

	for _, st := range o.stagesFor(rec) {
		if err := st.run(ctx, rec); err != nil {
			slog.Error("pipeline stage failed",
				"bucket", rec.Bucket,
				"key", rec.Key,
				"file_type", string(rec.Type),
				"stage", st.name,
				"error", err,
			)
			res.Err = fmt.Errorf("%s: %w", st.name, err)
			return res
		}
	}

	res.MessageID = rec.MessageID
	return res
}

// settle reports every outcome to the optional results queue and audit log.
// Both are best-effort.
func (o *Orchestrator) settle(ctx context.Context, batch *models.BatchResult) {
	for _, res := range batch.Results {
		if o.results != nil {
			if err := o.results.PublishOutcome(ctx, res); err != nil {
				slog.Warn("outcome publish failed", "key", res.Key, "error", err)
			}
		}
		if o.audit != nil {
			if err := o.audit.Record(ctx, res); err != nil {
				slog.Warn("audit record failed", "key", res.Key, "error", err)
			}
		}
	}
}
