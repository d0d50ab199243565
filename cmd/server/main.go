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

// PkgDrop — Upload Notification Service
//
// Entry point for the notifier service. It:
//  1. Loads configuration from config.yaml
//  2. Connects to the object store, Redis, and (optionally) PostgreSQL
//  3. Builds the per-type processing pipeline (checksum, materialize,
//     revision extraction, link signing, mail composition, dispatch)
//  4. Serves the bucket notification webhook
//  5. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/pkgdrop/notifier/internal/audit"
	"github.com/pkgdrop/notifier/internal/checksum"
	"github.com/pkgdrop/notifier/internal/compose"
	"github.com/pkgdrop/notifier/internal/config"
	"github.com/pkgdrop/notifier/internal/dedup"
	"github.com/pkgdrop/notifier/internal/dispatch"
	"github.com/pkgdrop/notifier/internal/materialize"
	"github.com/pkgdrop/notifier/internal/msimeta"
	"github.com/pkgdrop/notifier/internal/objectstore"
	"github.com/pkgdrop/notifier/internal/pipeline"
	"github.com/pkgdrop/notifier/internal/results"
	"github.com/pkgdrop/notifier/internal/signer"
	"github.com/pkgdrop/notifier/internal/webhook"
)

const graphBaseURL = "https://graph.microsoft.com/v1.0"

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting PkgDrop notifier service")

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"s3_endpoint", cfg.S3Endpoint,
		"public_base", cfg.PublicBaseURL,
		"expiry_years", cfg.ExpiryYears,
		"audit_enabled", cfg.AuditDatabaseURL != "",
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to the Object Store ---
	store, err := objectstore.NewMinIO(cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3UseSSL)
	if err != nil {
		slog.Error("failed to create object store client", "error", err)
		os.Exit(1)
	}
	slog.Info("object store client ready", "endpoint", cfg.S3Endpoint)

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)

	publisher := results.NewPublisher(rdb, cfg.OutcomesQueue)
	if err := publisher.Ping(ctx); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to Redis", "outcomes_queue", cfg.OutcomesQueue)

	// --- Dedup Filter ---
	filter := dedup.NewFilter(rdb)

	// --- Audit Store (Postgres, optional) ---
	var pgPool *pgxpool.Pool
	var auditLog *audit.Store
	if cfg.AuditDatabaseURL != "" {
		pgPool, err = pgxpool.New(ctx, cfg.AuditDatabaseURL)
		if err != nil {
			slog.Error("failed to create Postgres pool", "error", err)
			os.Exit(1)
		}
		defer pgPool.Close()

		if err := pgPool.Ping(ctx); err != nil {
			slog.Error("failed to connect to PostgreSQL", "error", err)
			os.Exit(1)
		}

		auditLog, err = audit.NewStore(ctx, pgPool)
		if err != nil {
			slog.Error("failed to initialise audit store", "error", err)
			os.Exit(1)
		}
		slog.Info("audit store ready")
	}

	// --- Link Signer ---
	links, err := signer.New(cfg.PublicBaseURL, cfg.KeyPairID, cfg.PrivateKeyPEM, cfg.ExpiryYears)
	if err != nil {
		slog.Error("failed to initialise link signer", "error", err)
		os.Exit(1)
	}

	// --- Mail Transport ---
	// Without tenant credentials the dispatcher sends unauthenticated,
	// which only works against a local transport stub.
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
	pcfg := pipeline.Config{
		Checksums:  checksum.NewResolver(store),
		Files:      materialize.NewMaterializer(store, cfg.WorkDir),
		Revisions:  msimeta.NewExtractor(cfg.MetadataTool),
		Links:      links,
		Composer:   compose.NewComposer(cfg.Sender, cfg.Receiver),
		Dispatcher: dispatch.NewDispatcher(mailClient, graphBaseURL),
		Dedup:      filter,
		Results:    publisher,
	}
	if auditLog != nil {
		pcfg.Audit = auditLog
	}
	orchestrator := pipeline.NewOrchestrator(pcfg)

	// --- Webhook Server ---
	handler := webhook.NewHandler(orchestrator)
	ready, err := webhook.Serve(ctx, cfg.WebhookPort, handler)
	if err != nil {
		slog.Error("failed to start webhook server", "error", err)
		os.Exit(1)
	}
	<-ready
	slog.Info("webhook server ready", "port", cfg.WebhookPort)

	// --- Health Check Server ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := publisher.Ping(r.Context()); err != nil {
			http.Error(w, "redis unhealthy", http.StatusServiceUnavailable)
			return
		}
		if pgPool != nil {
			if err := pgPool.Ping(r.Context()); err != nil {
				http.Error(w, "postgres unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy"}`))
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// --- Graceful Shutdown ---
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh

		slog.Info("received shutdown signal", "signal", sig)
		cancel() // Stop the webhook server and in-flight batches

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}

		rdb.Close()
		if pgPool != nil {
			pgPool.Close()
		}
	}()

	slog.Info("notifier service listening", "addr", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("notifier service stopped")
}
