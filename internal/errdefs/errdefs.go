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

// Package errdefs defines the error taxonomy shared by the pipeline stages.
// Stages wrap these sentinels with fmt.Errorf("...: %w", ...) so the
// orchestrator and tests can classify failures with errors.Is without
// depending on stage packages.
package errdefs

import "errors"

var (
	// ErrValidation marks a missing or malformed required field.
	// Caller input defect — never retriable.
	ErrValidation = errors.New("validation failed")

	// ErrChecksumUnavailable marks a backfill copy whose response carried
	// no checksum. The store guarantees the value when the algorithm is
	// requested, so absence is systemic — not retried.
	ErrChecksumUnavailable = errors.New("checksum unavailable")

	// ErrMaterialization marks a failure streaming an object to local storage.
	ErrMaterialization = errors.New("materialization failed")

	// ErrMetadataExtraction marks a metadata tool invocation failure.
	ErrMetadataExtraction = errors.New("metadata extraction failed")

	// ErrSigning marks missing or malformed signing key material.
	ErrSigning = errors.New("link signing failed")

	// ErrDispatch marks a mail transport rejection.
	ErrDispatch = errors.New("dispatch failed")
)
