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
	"fmt"
)

// Enforcement policy for generated install jobs: silent install with a
// 5-minute timeout and 3 retries at 5-minute intervals.
const (
	enforcementCommandLine   = "/quiet"
	enforcementTimeoutMin    = 5
	enforcementRetryCount    = 3
	enforcementRetryInterval = 5
)

// msiInstallJob is the install-job manifest consumed by the device
// management stack. The XML encoder entity-escapes the content URL, so
// ampersands in signed links survive as &amp;.
type msiInstallJob struct {
	XMLName xml.Name   `xml:"MsiInstallJob"`
	ID      string     `xml:"id,attr"`
	Product msiProduct `xml:"Product"`
}

type msiProduct struct {
	Version     string         `xml:"Version,attr"`
	Download    msiDownload    `xml:"Download"`
	Validation  msiValidation  `xml:"Validation"`
	Enforcement msiEnforcement `xml:"Enforcement"`
}

type msiDownload struct {
	ContentURLList msiContentURLList `xml:"ContentURLList"`
}

type msiContentURLList struct {
	ContentURL string `xml:"ContentURL"`
}

type msiValidation struct {
	FileHash string `xml:"FileHash"`
}

type msiEnforcement struct {
	CommandLine   string `xml:"CommandLine"`
	TimeOut       int    `xml:"TimeOut"`
	RetryCount    int    `xml:"RetryCount"`
	RetryInterval int    `xml:"RetryInterval"`
}

// BuildManifest renders the install-job XML for an MSI upload. The file hash
// is the canonical hex checksum, embedded exactly as resolved.
func BuildManifest(revision, signedURL, checksumHex string) ([]byte, error) {
	job := msiInstallJob{
		ID: revision,
		Product: msiProduct{
			Version: "1.0.0",
			Download: msiDownload{
				ContentURLList: msiContentURLList{ContentURL: signedURL},
			},
			Validation: msiValidation{FileHash: checksumHex},
			Enforcement: msiEnforcement{
				CommandLine:   enforcementCommandLine,
				TimeOut:       enforcementTimeoutMin,
				RetryCount:    enforcementRetryCount,
				RetryInterval: enforcementRetryInterval,
			},
		},
	}

	out, err := xml.MarshalIndent(job, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal install-job manifest: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}
