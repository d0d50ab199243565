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

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// GraphConfig holds credentials for the mail transport tenant.
type GraphConfig struct {
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// Config holds all configuration for the notifier service. Built once at
// startup and read-only afterwards; components receive it (or slices of it)
// explicitly.
type Config struct {
	// Link signing
	KeyPairID     string
	PrivateKeyPEM []byte
	ExpiryYears   int

	// Notification mail
	Sender   string
	Receiver string
	Graph    GraphConfig

	// Object store
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3UseSSL    bool

	// Download link base (CDN or store endpoint fronting the bucket)
	PublicBaseURL string

	// Local materialization
	WorkDir      string
	MetadataTool string

	// Redis (dedup + outcome queue)
	RedisURL      string
	OutcomesQueue string

	// Postgres audit log; empty disables auditing
	AuditDatabaseURL string

	// Servers
	Port        int // health check
	WebhookPort int
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Signing struct {
		KeyPairID      string `yaml:"key_pair_id"`
		PrivateKey     string `yaml:"private_key"`
		PrivateKeyFile string `yaml:"private_key_file"`
		ExpiryYears    int    `yaml:"expiry_years"`
	} `yaml:"signing"`
	Mail struct {
		Sender   string      `yaml:"sender"`
		Receiver string      `yaml:"receiver"`
		Graph    GraphConfig `yaml:"graph"`
	} `yaml:"mail"`
	S3 struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"access_key"`
		SecretKey  string `yaml:"secret_key"`
		UseSSL     bool   `yaml:"use_ssl"`
		PublicBase string `yaml:"public_base"`
	} `yaml:"s3"`
	Redis struct {
		URL    string `yaml:"url"`
		Queues struct {
			Outcomes string `yaml:"outcomes"`
		} `yaml:"queues"`
	} `yaml:"redis"`
	Audit struct {
		DatabaseURL string `yaml:"database_url"`
	} `yaml:"audit"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables for non-YAML settings. Missing required settings
// fail here so the batch invocation halts before any record is processed.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "/app/config/config.yaml")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	// Expand ${VAR} references in the YAML
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	cfg := &Config{
		KeyPairID:        raw.Signing.KeyPairID,
		ExpiryYears:      raw.Signing.ExpiryYears,
		Sender:           raw.Mail.Sender,
		Receiver:         raw.Mail.Receiver,
		Graph:            raw.Mail.Graph,
		S3Endpoint:       firstNonEmpty(raw.S3.Endpoint, envOrDefault("S3_ENDPOINT", "localhost:9000")),
		S3AccessKey:      raw.S3.AccessKey,
		S3SecretKey:      raw.S3.SecretKey,
		S3UseSSL:         raw.S3.UseSSL,
		PublicBaseURL:    raw.S3.PublicBase,
		WorkDir:          envOrDefault("WORK_DIR", ""),
		MetadataTool:     envOrDefault("MSIINFO_PATH", "msiinfo"),
		RedisURL:         firstNonEmpty(raw.Redis.URL, envOrDefault("REDIS_URL", "redis://localhost:6379/0")),
		OutcomesQueue:    firstNonEmpty(raw.Redis.Queues.Outcomes, envOrDefault("OUTCOMES_QUEUE", "outcomes")),
		AuditDatabaseURL: firstNonEmpty(raw.Audit.DatabaseURL, os.Getenv("AUDIT_DATABASE_URL")),
		Port:             envOrDefaultInt("PORT", 8080),
		WebhookPort:      envOrDefaultInt("WEBHOOK_PORT", 8081),
	}

	if cfg.ExpiryYears <= 0 {
		cfg.ExpiryYears = 3
	}

	// Resolve key material: inline PEM wins, file path second.
	switch {
	case strings.TrimSpace(raw.Signing.PrivateKey) != "":
		cfg.PrivateKeyPEM = []byte(raw.Signing.PrivateKey)
	case raw.Signing.PrivateKeyFile != "":
		pemBytes, err := os.ReadFile(raw.Signing.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read signing key file %s: %w", raw.Signing.PrivateKeyFile, err)
		}
		cfg.PrivateKeyPEM = pemBytes
	}

	var missing []string
	if cfg.KeyPairID == "" {
		missing = append(missing, "signing.key_pair_id")
	}
	if len(cfg.PrivateKeyPEM) == 0 {
		missing = append(missing, "signing.private_key")
	}
	if cfg.Sender == "" {
		missing = append(missing, "mail.sender")
	}
	if cfg.Receiver == "" {
		missing = append(missing, "mail.receiver")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if cfg.PublicBaseURL == "" {
		scheme := "http"
		if cfg.S3UseSSL {
			scheme = "https"
		}
		cfg.PublicBaseURL = fmt.Sprintf("%s://%s", scheme, cfg.S3Endpoint)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
