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

// Package compose builds the notification message for a processed upload.
// One variant per file type; composition is pure — given a fully populated
// record it performs no I/O.
package compose

import (
	"fmt"
	"strings"

	"github.com/pkgdrop/notifier/internal/errdefs"
	"github.com/pkgdrop/notifier/internal/models"
)

// Attachment is a binary message part.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Message is a composed notification ready for dispatch. Built fresh per
// record, never reused.
type Message struct {
	From       string
	To         string
	Subject    string
	TextBody   string
	HTMLBody   string
	Attachment *Attachment
}

// Composer builds type-specific notification messages.
type Composer struct {
	from string
	to   string
}

// NewComposer creates a composer with the configured sender and recipient.
func NewComposer(from, to string) *Composer {
	return &Composer{from: from, to: to}
}

// Compose selects the variant for the record's file type. Records missing a
// field the variant requires fail with ErrValidation.
func (c *Composer) Compose(rec *models.UploadRecord) (*Message, error) {
	switch rec.Type {
	case models.FileTypeMSI:
		return c.composeMSI(rec)
	case models.FileTypeZIP:
		return c.composeZIP(rec)
	case models.FileTypeUnknown:
		return c.composeUnknown(rec)
	default:
		return nil, fmt.Errorf("record %s/%s has unclassified type %q: %w",
			rec.Bucket, rec.Key, rec.Type, errdefs.ErrValidation)
	}
}

func (c *Composer) composeUnknown(rec *models.UploadRecord) (*Message, error) {
	text := fmt.Sprintf(
		"The uploaded file %s has an unsupported type.\n\n"+
			"Only MSI and ZIP files are accepted. Nothing was generated for this upload.\n",
		rec.Key)

	html := fmt.Sprintf(
		"<p>The uploaded file <b>%s</b> has an unsupported type.</p>"+
			"<p>Only MSI and ZIP files are accepted. Nothing was generated for this upload.</p>",
		htmlEscape(rec.Key))

	return &Message{
		From:     c.from,
		To:       c.to,
		Subject:  fmt.Sprintf("Unsupported file type: %s", rec.Key),
		TextBody: text,
		HTMLBody: html,
	}, nil
}

func (c *Composer) composeZIP(rec *models.UploadRecord) (*Message, error) {
	if rec.SignedURL == "" {
		return nil, fmt.Errorf("ZIP record %s/%s has no signed link: %w",
			rec.Bucket, rec.Key, errdefs.ErrValidation)
	}

	text := fmt.Sprintf(
		"A signed download link for %s is ready:\n\n%s\n",
		rec.Key, rec.SignedURL)

	html := fmt.Sprintf(
		"<p>A signed download link for <b>%s</b> is ready:</p>"+
			"<p><a href=\"%s\">%s</a></p>",
		htmlEscape(rec.Key), htmlEscape(rec.SignedURL), htmlEscape(rec.SignedURL))

	return &Message{
		From:     c.from,
		To:       c.to,
		Subject:  fmt.Sprintf("Signed link available: %s", rec.Key),
		TextBody: text,
		HTMLBody: html,
	}, nil
}

func (c *Composer) composeMSI(rec *models.UploadRecord) (*Message, error) {
	switch {
	case rec.SignedURL == "":
		return nil, fmt.Errorf("MSI record %s/%s has no signed link: %w",
			rec.Bucket, rec.Key, errdefs.ErrValidation)
	case rec.ChecksumHex == "":
		return nil, fmt.Errorf("MSI record %s/%s has no checksum: %w",
			rec.Bucket, rec.Key, errdefs.ErrValidation)
	case rec.RevisionNumber == "":
		return nil, fmt.Errorf("MSI record %s/%s has no revision number: %w",
			rec.Bucket, rec.Key, errdefs.ErrValidation)
	}

	manifest, err := BuildManifest(rec.RevisionNumber, rec.SignedURL, rec.ChecksumHex)
	if err != nil {
		return nil, err
	}

	deviceURI := DeviceManagementURI(rec.RevisionNumber)

	text := fmt.Sprintf(
		"A signed download link and install manifest for %s are ready.\n\n"+
			"Signed link:\n%s\n\n"+
			"SHA-256 checksum: %s\n"+
			"Revision number:  %s\n"+
			"Management URI:   %s\n\n"+
			"The install-job manifest is attached.\n",
		rec.Key, rec.SignedURL, rec.ChecksumHex, rec.RevisionNumber, deviceURI)

	html := fmt.Sprintf(
		"<p>A signed download link and install manifest for <b>%s</b> are ready.</p>"+
			"<p><a href=\"%s\">%s</a></p>"+
			"<ul>"+
			"<li>SHA-256 checksum: <code>%s</code></li>"+
			"<li>Revision number: <code>%s</code></li>"+
			"<li>Management URI: <code>%s</code></li>"+
			"</ul>"+
			"<p>The install-job manifest is attached.</p>",
		htmlEscape(rec.Key), htmlEscape(rec.SignedURL), htmlEscape(rec.SignedURL),
		htmlEscape(rec.ChecksumHex), htmlEscape(rec.RevisionNumber), htmlEscape(deviceURI))

	return &Message{
		From:     c.from,
		To:       c.to,
		Subject:  fmt.Sprintf("Signed link and install manifest available: %s", rec.Key),
		TextBody: text,
		HTMLBody: html,
		Attachment: &Attachment{
			Filename:    "install-job.xml",
			ContentType: "application/xml",
			Content:     manifest,
		},
	}, nil
}

// DeviceManagementURI derives the device-management node for an installer
// revision. CSP URIs cannot carry literal braces, so they are
// percent-encoded.
func DeviceManagementURI(revision string) string {
	encoded := strings.NewReplacer("{", "%7B", "}", "%7D").Replace(revision)
	return "./Device/Vendor/MSFT/EnterpriseDesktopAppManagement/MSI/" + encoded + "/DownloadInstall"
}

func htmlEscape(s string) string {
	return strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
	).Replace(s)
}
