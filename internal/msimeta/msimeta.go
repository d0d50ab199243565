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

// Package msimeta extracts the installer revision GUID from a materialized
// MSI file by invoking an external metadata tool (msiinfo by default) and
// parsing its summary-information output.
package msimeta

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"

	"github.com/pkgdrop/notifier/internal/errdefs"
	"github.com/pkgdrop/notifier/internal/models"
)

// revisionPattern matches the GUID-like revision value the tool prints,
// e.g. "{12345678-1234-1234-1234-123456789012}".
var revisionPattern = regexp.MustCompile(`\{[0-9A-Fa-f-]+\}`)

// Extractor invokes the metadata tool against materialized files.
type Extractor struct {
	tool string
}

// NewExtractor creates an extractor using the given tool binary. Empty tool
// falls back to "msiinfo" on PATH.
func NewExtractor(tool string) *Extractor {
	if tool == "" {
		tool = "msiinfo"
	}
	return &Extractor{tool: tool}
}

// ExtractRevision runs the tool against the record's local file and attaches
// the revision GUID. The record must already be materialized. A summary that
// carries no revision value is a hard extraction failure: the MSI composer
// needs the revision for both the install manifest and the device-management
// URI, so there is nothing useful to do with the record without it.
func (e *Extractor) ExtractRevision(ctx context.Context, rec *models.UploadRecord) error {
	if strings.TrimSpace(rec.LocalPath) == "" {
		return fmt.Errorf("record %s/%s has no local path: %w", rec.Bucket, rec.Key, errdefs.ErrValidation)
	}

	out, err := exec.CommandContext(ctx, e.tool, "suminfo", rec.LocalPath).Output()
	if err != nil {
		return fmt.Errorf("run %s against %s: %v: %w", e.tool, rec.LocalPath, err, errdefs.ErrMetadataExtraction)
	}

	revision := parseRevision(string(out))
	if revision == "" {
		return fmt.Errorf("no revision number in %s output for %s: %w",
			e.tool, rec.LocalPath, errdefs.ErrMetadataExtraction)
	}

	rec.RevisionNumber = revision

	slog.Debug("revision extracted",
		"bucket", rec.Bucket,
		"key", rec.Key,
		"revision", revision,
	)
	return nil
}

// parseRevision finds the "Revision number" line in summary-information
// output and returns its GUID value, or "" when absent.
func parseRevision(out string) string {
	for _, line := range strings.Split(out, "\n") {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(name), "Revision number") {
			continue
		}
		return revisionPattern.FindString(value)
	}
	return ""
}
