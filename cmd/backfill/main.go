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

// PkgDrop — Historical Backfill Command
//
// Standalone CLI tool that re-drives the notification pipeline over objects
// already sitting in a bucket, as if each had just been uploaded. Intended
// for seeding new deployments or recovering from missed notifications.
//
// Usage:
//
//	go run ./cmd/backfill/ --bucket uploads [--prefix installers/] [--batch 16] [--dry-run]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/pkgdrop/notifier/internal/checksum"
	"github.com/pkgdrop/notifier/internal/compose"
	"github.com/pkgdrop/notifier/internal/config"
	"github.com/pkgdrop/notifier/internal/dispatch"
	"github.com/pkgdrop/notifier/internal/event"
	"github.com/pkgdrop/notifier/internal/materialize"
	"github.com/pkgdrop/notifier/internal/msimeta"
	"github.com/pkgdrop/notifier/internal/objectstore"
	"github.com/pkgdrop/notifier/internal/pipeline"
	"github.com/pkgdrop/notifier/internal/results"
	"github.com/pkgdrop/notifier/internal/signer"
)

const graphBaseURL = "https://graph.microsoft.com/v1.0"

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// --- CLI Flags ---
	bucketFlag := flag.String("bucket", "", "Bucket to backfill (required)")
	prefixFlag := flag.String("prefix", "", "Only objects under this key prefix (optional)")
	batchFlag := flag.Int("batch", 16, "Objects processed per pipeline batch")
	dryRunFlag := flag.Bool("dry-run", false, "List matching objects without processing them")
	flag.Parse()

	if *bucketFlag == "" {
		fmt.Fprintf(os.Stderr, "Error: --bucket is required\n\n")
		flag.Usage()
		os.Exit(1)
	}
	if *batchFlag < 1 {
		fmt.Fprintf(os.Stderr, "Error: --batch must be at least 1\n")
		os.Exit(1)
	}

	slog.Info("starting historical backfill",
		"bucket", *bucketFlag,
		"prefix", *prefixFlag,
		"dry_run", *dryRunFlag,
	)

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to the Object Store ---
	store, err := objectstore.NewMinIO(cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3UseSSL)
	if err != nil {
		slog.Error("failed to create object store client", "error", err)
		os.Exit(1)
	}

	// --- List Objects ---
	infos, err := store.ListKeys(ctx, *bucketFlag, *prefixFlag)
	if err != nil {
		slog.Error("failed to list objects", "error", err)
		os.Exit(1)
	}
	if len(infos) == 0 {
		slog.Info("no objects matched, nothing to backfill")
		return
	}
	slog.Info("resolved objects for backfill", "count", len(infos))

	if *dryRunFlag {
		for _, info := range infos {
			slog.Info("would process", "key", info.Key, "size", info.Size)
		}
		return
	}

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	publisher := results.NewPublisher(rdb, cfg.OutcomesQueue)
	if err := publisher.Ping(ctx); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to Redis")

	// --- Link Signer ---
	links, err := signer.New(cfg.PublicBaseURL, cfg.KeyPairID, cfg.PrivateKeyPEM, cfg.ExpiryYears)
	if err != nil {
		slog.Error("failed to initialise link signer", "error", err)
		os.Exit(1)
	}

	// --- Mail Transport ---
	mailClient := &http.Client{Timeout: 30 * time.Second}
	if cfg.Graph.TenantID != "" {
		creds := &clientcredentials.Config{
			ClientID:     cfg.Graph.ClientID,
			ClientSecret: cfg.Graph.ClientSecret,
			TokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", cfg.Graph.TenantID),
			Scopes:       []string{"https://graph.microsoft.com/.default"},
		}
		mailClient = creds.Client(ctx)
	} else {
		slog.Warn("no mail tenant configured, dispatching without authentication")
	}

	// --- Pipeline ---
	// No dedup filter: backfill is an explicit request to reprocess, so
	// previously seen objects must not be skipped.
	orchestrator := pipeline.NewOrchestrator(pipeline.Config{
		Checksums:  checksum.NewResolver(store),
		Files:      materialize.NewMaterializer(store, cfg.WorkDir),
		Revisions:  msimeta.NewExtractor(cfg.MetadataTool),
		Links:      links,
		Composer:   compose.NewComposer(cfg.Sender, cfg.Receiver),
		Dispatcher: dispatch.NewDispatcher(mailClient, graphBaseURL),
		Results:    publisher,
	})

	// --- Run Backfill ---
	started := time.Now()
	var succeeded, failed int

	for offset := 0; offset < len(infos); offset += *batchFlag {
		end := offset + *batchFlag
		if end > len(infos) {
			end = len(infos)
		}

		entries := make([]event.Record, 0, end-offset)
		for _, info := range infos[offset:end] {
			var e event.Record
			e.EventName = "s3:ObjectCreated:Put"
			e.S3.Bucket.Name = *bucketFlag
			// Keys are carried URL-encoded, matching store notifications.
			e.S3.Object.Key = url.QueryEscape(info.Key)
			e.S3.Object.Size = info.Size
			e.S3.Object.ETag = info.ETag
			e.S3.Object.Sequencer = fmt.Sprintf("backfill-%d", time.Now().UnixNano())
			entries = append(entries, e)
		}

		batch := orchestrator.ProcessBatch(ctx, entries)
		succeeded += batch.Succeeded()
		failed += batch.Failed()

		for _, res := range batch.Results {
			if res.Err != nil {
				slog.Error("backfill record failed",
					"key", res.Key,
					"type", res.Type,
					"error", res.Err,
				)
			}
		}
	}

	// --- Summary ---
	slog.Info("backfill complete",
		"bucket", *bucketFlag,
		"total", len(infos),
		"succeeded", succeeded,
		"failed", failed,
		"elapsed", time.Since(started).Round(time.Millisecond),
	)

	if failed > 0 {
		os.Exit(1)
	}
}
