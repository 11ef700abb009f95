package storage

import (
	"context"

	"github.com/poiesic/filedrop/core"
)

// SessionUpdate carries a partial update. Only non-nil fields are applied.
type SessionUpdate struct {
	BytesAcknowledged *int64
	TransferURL       *string
	ScopeID           *string
}

// Offset returns an update that sets BytesAcknowledged.
func Offset(n int64) SessionUpdate {
	return SessionUpdate{BytesAcknowledged: &n}
}

type SessionStore interface {
	// Save stores a session under its ContentDigest, replacing any previous record.
	// CreatedAt and ExpiresAt are filled in when zero.
	Save(ctx context.Context, session *core.UploadSession) error

	// Get returns the session for digest.
	// Returns nil, nil when no session exists or the session has expired.
	Get(ctx context.Context, digest string) (*core.UploadSession, error)

	// Update applies the non-nil fields of update and returns the stored session.
	// Returns ErrNotFound if the session doesn't exist or has expired, and
	// core.ErrInvalidSession if the new offset falls outside [0, TotalBytes].
	Update(ctx context.Context, digest string, update SessionUpdate) (*core.UploadSession, error)

	// Remove deletes the session for digest. Removing a missing session is not an error.
	Remove(ctx context.Context, digest string) error

	// ListAll returns every unexpired session ordered by digest.
	ListAll(ctx context.Context) ([]*core.UploadSession, error)

	// Sweep deletes expired sessions and returns how many were removed.
	Sweep(ctx context.Context) (int, error)

	// Close releases resources held by the store.
	Close() error
}
