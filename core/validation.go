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
	"fmt"
)

// ValidateSession validates an UploadSession according to domain rules.
//
// Validation rules:
//   - ContentDigest must not be empty
//   - 0 <= BytesAcknowledged <= TotalBytes
//   - ChunkSizeBytes must be positive
//   - ExpiresAt must follow CreatedAt (when both are set)
//
// NOT validated:
//   - TransferURL (empty until the destination is negotiated)
//   - ScopeID (optional)
func ValidateSession(session *UploadSession) error {
	if session == nil {
		return fmt.Errorf("%w: session is nil", ErrInvalidSession)
	}

	if session.ContentDigest == "" {
		return fmt.Errorf("%w: %w", ErrInvalidSession, ErrEmptyDigest)
	}

	if err := ValidateOffset(session.BytesAcknowledged, session.TotalBytes); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}

	if session.ChunkSizeBytes <= 0 {
		return fmt.Errorf("%w: %w", ErrInvalidSession, ErrInvalidChunkSize)
	}

	if !session.CreatedAt.IsZero() && !session.ExpiresAt.IsZero() && !session.ExpiresAt.After(session.CreatedAt) {
		return fmt.Errorf("%w: %w", ErrInvalidSession, ErrInvalidExpiry)
	}

	return nil
}

// ValidateOffset checks 0 <= offset <= total.
func ValidateOffset(offset, total int64) error {
	if offset < 0 || offset > total {
		return fmt.Errorf("%w: %d of %d", ErrOffsetOutOfRange, offset, total)
	}
	return nil
}
