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

package compose

import (
	"encoding/xml"
	"errors"
	"strings"
	"testing"

	"github.com/pkgdrop/notifier/internal/errdefs"
	"github.com/pkgdrop/notifier/internal/models"
)

func msiRecord() *models.UploadRecord {
	return &models.UploadRecord{
		Bucket:         "uploads",
		Key:            "app.msi",
		Type:           models.FileTypeMSI,
		ChecksumHex:    "abc123",
		RevisionNumber: "{1234-5678}",
		SignedURL:      "https://dl.example.com/uploads/app.msi?token=t&expires=99",
	}
}

// TestBuildManifest verifies ampersand entity-escaping in the content URL,
// the exact file hash, and the fixed enforcement policy.
func TestBuildManifest(t *testing.T) {
	out, err := BuildManifest("{1234-5678}", "https://dl.example.com/a?token=t&expires=99", "abc123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	manifest := string(out)

	if !strings.Contains(manifest, "https://dl.example.com/a?token=t&amp;expires=99") {
		t.Errorf("content URL not entity-escaped:\n%s", manifest)
	}
	if strings.Contains(manifest, "token=t&expires") {
		t.Error("manifest contains raw ampersand in content URL")
	}
	if !strings.Contains(manifest, "<FileHash>abc123</FileHash>") {
		t.Errorf("file hash not embedded exactly:\n%s", manifest)
	}
	if !strings.Contains(manifest, `<MsiInstallJob id="{1234-5678}">`) {
		t.Errorf("revision not set as job id:\n%s", manifest)
	}

	for _, want := range []string{
		"<CommandLine>/quiet</CommandLine>",
		"<TimeOut>5</TimeOut>",
		"<RetryCount>3</RetryCount>",
		"<RetryInterval>5</RetryInterval>",
	} {
		if !strings.Contains(manifest, want) {
			t.Errorf("enforcement policy missing %s:\n%s", want, manifest)
		}
	}

	// The manifest must round-trip as well-formed XML.
	var job msiInstallJob
	if err := xml.Unmarshal(out, &job); err != nil {
		t.Fatalf("manifest is not well-formed XML: %v", err)
	}
	if job.Product.Download.ContentURLList.ContentURL != "https://dl.example.com/a?token=t&expires=99" {
		t.Errorf("round-tripped URL = %q", job.Product.Download.ContentURLList.ContentURL)
	}
}

// TestDeviceManagementURI verifies braces percent-encode as %7B / %7D.
func TestDeviceManagementURI(t *testing.T) {
	got := DeviceManagementURI("{1234-5678}")
	want := "./Device/Vendor/MSFT/EnterpriseDesktopAppManagement/MSI/%7B1234-5678%7D/DownloadInstall"
	if got != want {
		t.Errorf("URI = %q, want %q", got, want)
	}
}

// TestCompose_MSI verifies the MSI variant embeds checksum, revision,
// management URI and signed link, and attaches the manifest.
func TestCompose_MSI(t *testing.T) {
	c := NewComposer("noreply@example.com", "ops@example.com")

	msg, err := c.Compose(msiRecord())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(msg.Subject, "install manifest") {
		t.Errorf("subject = %q, want install manifest mention", msg.Subject)
	}
	for _, want := range []string{
		"abc123",
		"{1234-5678}",
		"%7B1234-5678%7D",
		"https://dl.example.com/uploads/app.msi?token=t&expires=99",
	} {
		if !strings.Contains(msg.TextBody, want) {
			t.Errorf("text body missing %q", want)
		}
	}

	if msg.Attachment == nil {
		t.Fatal("MSI message has no attachment")
	}
	if msg.Attachment.Filename != "install-job.xml" {
		t.Errorf("attachment filename = %q", msg.Attachment.Filename)
	}
	if msg.Attachment.ContentType != "application/xml" {
		t.Errorf("attachment content type = %q", msg.Attachment.ContentType)
	}
}

// TestCompose_MSI_MissingFields verifies each required field is enforced.
func TestCompose_MSI_MissingFields(t *testing.T) {
	c := NewComposer("noreply@example.com", "ops@example.com")

	tests := []struct {
		name   string
		mutate func(*models.UploadRecord)
	}{
		{name: "no signed link", mutate: func(r *models.UploadRecord) { r.SignedURL = "" }},
		{name: "no checksum", mutate: func(r *models.UploadRecord) { r.ChecksumHex = "" }},
		{name: "no revision", mutate: func(r *models.UploadRecord) { r.RevisionNumber = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := msiRecord()
			tt.mutate(rec)
			if _, err := c.Compose(rec); !errors.Is(err, errdefs.ErrValidation) {
				t.Fatalf("error = %v, want ErrValidation", err)
			}
		})
	}
}

// TestCompose_ZIP verifies the ZIP variant carries the signed link and no
// attachment.
func TestCompose_ZIP(t *testing.T) {
	c := NewComposer("noreply@example.com", "ops@example.com")

	rec := &models.UploadRecord{
		Bucket:    "uploads",
		Key:       "archive.zip",
		Type:      models.FileTypeZIP,
		SignedURL: "https://dl.example.com/uploads/archive.zip?token=t",
	}
	msg, err := c.Compose(rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(msg.Subject, "Signed link available") {
		t.Errorf("subject = %q", msg.Subject)
	}
	if !strings.Contains(msg.TextBody, rec.SignedURL) {
		t.Error("text body missing signed URL")
	}
	if msg.Attachment != nil {
		t.Error("ZIP message should not carry an attachment")
	}

	rec.SignedURL = ""
	if _, err := c.Compose(rec); !errors.Is(err, errdefs.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation for missing link", err)
	}
}

// TestCompose_Unknown verifies the unsupported-type variant.
func TestCompose_Unknown(t *testing.T) {
	c := NewComposer("noreply@example.com", "ops@example.com")

	rec := &models.UploadRecord{
		Bucket: "uploads",
		Key:    "notes.txt",
		Type:   models.FileTypeUnknown,
	}
	msg, err := c.Compose(rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(msg.Subject, "Unsupported file type") {
		t.Errorf("subject = %q", msg.Subject)
	}
	if !strings.Contains(msg.TextBody, "Only MSI and ZIP files are accepted") {
		t.Errorf("text body = %q", msg.TextBody)
	}
	if !strings.Contains(msg.HTMLBody, "Only MSI and ZIP files are accepted") {
		t.Errorf("html body = %q", msg.HTMLBody)
	}
}

// TestMIME verifies the raw serialization carries headers, both bodies, and
// the base64 attachment.
func TestMIME(t *testing.T) {
	c := NewComposer("noreply@example.com", "ops@example.com")

	msg, err := c.Compose(msiRecord())
	if err != nil {
		t.Fatalf("compose: %v", err)
	}

	raw, err := msg.MIME("id-123@pkgdrop")
	if err != nil {
		t.Fatalf("mime: %v", err)
	}
	s := string(raw)

	for _, want := range []string{
		"From: noreply@example.com",
		"To: ops@example.com",
		"Message-ID: <id-123@pkgdrop>",
		"Content-Type: multipart/mixed",
		"multipart/alternative",
		"text/plain; charset=UTF-8",
		"text/html; charset=UTF-8",
		`filename="install-job.xml"`,
		"Content-Transfer-Encoding: base64",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("raw message missing %q", want)
		}
	}
}
