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
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
)

// MIME serializes the message to a raw RFC 2822 byte blob suitable for a
// raw-send mail transport: multipart/mixed wrapping a multipart/alternative
// (plain + HTML) body and, when present, a base64 attachment part.
// messageID is written as the Message-ID header.
func (m *Message) MIME(messageID string) ([]byte, error) {
	// Render the alternative (plain + HTML) section first so its boundary is
	// known when the enclosing part header is written.
	var altBuf bytes.Buffer
	alt := multipart.NewWriter(&altBuf)

	textPart, err := alt.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/plain; charset=UTF-8"},
	})
	if err != nil {
		return nil, fmt.Errorf("create text part: %w", err)
	}
	fmt.Fprintf(textPart, "%s\r\n", m.TextBody)

	htmlPart, err := alt.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/html; charset=UTF-8"},
	})
	if err != nil {
		return nil, fmt.Errorf("create html part: %w", err)
	}
	fmt.Fprintf(htmlPart, "%s\r\n", m.HTMLBody)

	if err := alt.Close(); err != nil {
		return nil, fmt.Errorf("close alternative section: %w", err)
	}

	var buf bytes.Buffer
	mixed := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", m.From)
	fmt.Fprintf(&buf, "To: %s\r\n", m.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", m.Subject)
	fmt.Fprintf(&buf, "Message-ID: <%s>\r\n", messageID)
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n", mixed.Boundary())
	fmt.Fprintf(&buf, "\r\n")

	altPart, err := mixed.CreatePart(textproto.MIMEHeader{
		"Content-Type": {fmt.Sprintf("multipart/alternative; boundary=%q", alt.Boundary())},
	})
	if err != nil {
		return nil, fmt.Errorf("create alternative part: %w", err)
	}
	if _, err := altPart.Write(altBuf.Bytes()); err != nil {
		return nil, fmt.Errorf("write alternative part: %w", err)
	}

	if m.Attachment != nil {
		attPart, err := mixed.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {fmt.Sprintf("%s; name=%q", m.Attachment.ContentType, m.Attachment.Filename)},
			"Content-Transfer-Encoding": {"base64"},
			"Content-Disposition":       {fmt.Sprintf("attachment; filename=%q", m.Attachment.Filename)},
		})
		if err != nil {
			return nil, fmt.Errorf("create attachment part: %w", err)
		}
		if err := writeBase64Wrapped(attPart, m.Attachment.Content); err != nil {
			return nil, fmt.Errorf("encode attachment: %w", err)
		}
	}

	if err := mixed.Close(); err != nil {
		return nil, fmt.Errorf("close message: %w", err)
	}

	return buf.Bytes(), nil
}

// writeBase64Wrapped base64-encodes content in 76-column lines per RFC 2045.
func writeBase64Wrapped(w io.Writer, content []byte) error {
	encoded := base64.StdEncoding.EncodeToString(content)
	const lineLen = 76
	for len(encoded) > 0 {
		n := lineLen
		if n > len(encoded) {
			n = len(encoded)
		}
		if _, err := fmt.Fprintf(w, "%s\r\n", encoded[:n]); err != nil {
			return err
		}
		encoded = encoded[n:]
	}
	return nil
}
