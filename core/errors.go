// Copyright 2025 Poiesic Systems
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


package core

import (
	"context"
	"errors"
)

// ErrorKind classifies why a file failed to reach the remote store.
type ErrorKind string

const (
	// KindValidation marks files rejected before any transfer (type, size).
	KindValidation ErrorKind = "validation"
	// KindTransient marks network and timeout failures that outlived the retry policy.
	KindTransient ErrorKind = "transient"
	// KindQuota marks files rejected by the external quota gate.
	KindQuota ErrorKind = "quota"
	// KindCorruption marks files whose remote offset disagreed with local state.
	KindCorruption ErrorKind = "corruption"
	// KindCanceled marks files that never reached a terminal state because
	// the batch was canceled.
	KindCanceled ErrorKind = "canceled"
)

// Error taxonomy sentinels. Wrap these with fmt.Errorf("...: %w") so
// KindOf can recover the kind.
var (
	ErrValidation = errors.New("validation failed")
	ErrTransient  = errors.New("transient failure")
	ErrQuota      = errors.New("quota exceeded")
	ErrCorruption = errors.New("offset mismatch")
	ErrCanceled   = errors.New("canceled")
)

// Domain validation errors
var (
	// ErrInvalidSession indicates an UploadSession failed validation.
	ErrInvalidSession = errors.New("invalid upload session")

	// ErrEmptyDigest indicates the content digest is empty.
	ErrEmptyDigest = errors.New("content digest cannot be empty")

	// ErrOffsetOutOfRange indicates bytesAcknowledged lies outside [0, totalBytes].
	ErrOffsetOutOfRange = errors.New("acknowledged offset out of range")

	// ErrInvalidChunkSize indicates a non-positive chunk size.
	ErrInvalidChunkSize = errors.New("chunk size must be positive")

	// ErrInvalidExpiry indicates expiresAt does not follow createdAt.
	ErrInvalidExpiry = errors.New("expiry must be after creation")
)

// KindOf maps err to its ErrorKind. Unrecognised errors are treated as transient.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrCorruption):
		return KindCorruption
	case errors.Is(err, ErrQuota):
		return KindQuota
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidSession):
		return KindValidation
	case errors.Is(err, ErrCanceled), errors.Is(err, context.Canceled):
		return KindCanceled
	default:
		return KindTransient
	}
}
