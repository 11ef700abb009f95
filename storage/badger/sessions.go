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


package badger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/filedrop/core"
	"github.com/poiesic/filedrop/storage"
)

// DefaultTTL is how long a session stays resumable after creation.
const DefaultTTL = 24 * time.Hour

// ErrBackendRequired is returned when NewSessionStore is called without a backend.
var ErrBackendRequired = errors.New("backend is required")

// SessionStore implements storage.SessionStore for BadgerDB.
//
// Expiry is evaluated against the store's clock rather than badger's native
// TTL so that expired records stay visible to Sweep and tests can control time.
type SessionStore struct {
	backend *Backend
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

var _ storage.SessionStore = (*SessionStore)(nil)

// Option configures a SessionStore.
type Option func(*SessionStore) error

// WithTTL sets the lifetime of newly saved sessions.
func WithTTL(ttl time.Duration) Option {
	return func(s *SessionStore) error {
		if ttl <= 0 {
			return fmt.Errorf("ttl must be positive, got %s", ttl)
		}
		s.ttl = ttl
		return nil
	}
}

// WithClock replaces time.Now for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(s *SessionStore) error {
		if now == nil {
			return errors.New("clock cannot be nil")
		}
		s.now = now
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *SessionStore) error {
		s.logger = logger
		return nil
	}
}

// NewSessionStore creates a new SessionStore on top of backend.
// The store does not own the backend; closing the store leaves it open.
func NewSessionStore(backend *Backend, opts ...Option) (*SessionStore, error) {
	if backend == nil {
		return nil, ErrBackendRequired
	}

	s := &SessionStore{
		backend: backend,
		ttl:     DefaultTTL,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	s.logger = s.logger.With("component", "session-store")

	return s, nil
}

// Close is a no-op; the backend is closed by its owner.
func (s *SessionStore) Close() error {
	return nil
}

// Save stores session under its content digest.
func (s *SessionStore) Save(ctx context.Context, session *core.UploadSession) error {
	if session == nil {
		return fmt.Errorf("%w: session is nil", core.ErrInvalidSession)
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = s.now().UTC()
	}
	if session.ExpiresAt.IsZero() {
		session.ExpiresAt = session.CreatedAt.Add(s.ttl)
	}
	if err := core.ValidateSession(session); err != nil {
		return err
	}
	if s.backend.IsClosed() {
		return storage.ErrStorageClosed
	}

	value, err := storage.MarshalSession(session)
	if err != nil {
		return err
	}

	return s.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeSessionKey(session.ContentDigest), value); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// Get retrieves the live session for digest.
// Returns nil, nil if no session exists or it has expired.
func (s *SessionStore) Get(ctx context.Context, digest string) (*core.UploadSession, error) {
	if digest == "" {
		return nil, storage.ErrEmptyDigest
	}
	if s.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}

	var session *core.UploadSession
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		session, err = readSession(tx, makeSessionKey(digest))
		return err
	}, false)
	if err != nil {
		return nil, err
	}
	if session == nil || session.Expired(s.now()) {
		return nil, nil
	}
	return session, nil
}

// Update applies the non-nil fields of update to a live session.
func (s *SessionStore) Update(ctx context.Context, digest string, update storage.SessionUpdate) (*core.UploadSession, error) {
	if digest == "" {
		return nil, storage.ErrEmptyDigest
	}
	if s.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}

	var session *core.UploadSession
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		key := makeSessionKey(digest)
		current, err := readSession(tx, key)
		if err != nil {
			return err
		}
		if current == nil || current.Expired(s.now()) {
			return fmt.Errorf("%w: %s", storage.ErrNotFound, digest)
		}

		if update.BytesAcknowledged != nil {
			if err := core.ValidateOffset(*update.BytesAcknowledged, current.TotalBytes); err != nil {
				return fmt.Errorf("%w: %w", core.ErrInvalidSession, err)
			}
			current.BytesAcknowledged = *update.BytesAcknowledged
		}
		if update.TransferURL != nil {
			current.TransferURL = *update.TransferURL
		}
		if update.ScopeID != nil {
			current.ScopeID = *update.ScopeID
		}

		value, err := storage.MarshalSession(current)
		if err != nil {
			return err
		}
		if err := tx.Set(key, value); err != nil {
			return err
		}
		session = current
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Remove deletes the session for digest. Missing sessions are ignored.
func (s *SessionStore) Remove(ctx context.Context, digest string) error {
	if digest == "" {
		return storage.ErrEmptyDigest
	}
	if s.backend.IsClosed() {
		return storage.ErrStorageClosed
	}
	return s.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Delete(makeSessionKey(digest)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// ListAll returns every unexpired session in digest order.
// Records that fail to decode are skipped and left for Sweep.
func (s *SessionStore) ListAll(ctx context.Context) ([]*core.UploadSession, error) {
	if s.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}

	now := s.now()
	var sessions []*core.UploadSession
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		return scanPrefix(tx, sessionScanPrefix(), func(key, val []byte) error {
			session, err := storage.UnmarshalSession(val)
			if err != nil {
				s.logger.Warn("skipping unreadable session", "key", string(key), "error", err)
				return nil
			}
			if !session.Expired(now) {
				sessions = append(sessions, session)
			}
			return nil
		})
	}, false)
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// Sweep deletes expired and unreadable sessions and returns the number removed.
// Each candidate is re-checked inside its own write transaction, so a session
// re-saved between the scan and the delete survives.
func (s *SessionStore) Sweep(ctx context.Context) (int, error) {
	if s.backend.IsClosed() {
		return 0, storage.ErrStorageClosed
	}

	now := s.now()
	var stale [][]byte
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		return scanPrefix(tx, sessionScanPrefix(), func(key, val []byte) error {
			if isStale(val, now) {
				stale = append(stale, bytes.Clone(key))
			}
			return nil
		})
	}, false)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, key := range stale {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		deleted := false
		err := s.backend.WithTx(func(tx *badger.Txn) error {
			item, err := tx.Get(key)
			if err != nil {
				if err == badger.ErrKeyNotFound {
					return nil
				}
				return err
			}
			var stillStale bool
			if err := item.Value(func(val []byte) error {
				stillStale = isStale(val, now)
				return nil
			}); err != nil {
				return err
			}
			if !stillStale {
				return nil
			}
			if err := tx.Delete(key); err != nil {
				return err
			}
			deleted = true
			return tx.Commit()
		}, true)
		if err != nil {
			return removed, err
		}
		if deleted {
			removed++
		}
	}

	if removed > 0 {
		s.logger.Info("swept expired sessions", "count", removed)
	}
	return removed, nil
}

func isStale(val []byte, now time.Time) bool {
	session, err := storage.UnmarshalSession(val)
	if err != nil {
		return true
	}
	return session.Expired(now)
}

// readSession reads a session record. Returns nil, nil if the key is absent.
func readSession(tx *badger.Txn, key []byte) (*core.UploadSession, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var session *core.UploadSession
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		session, unmarshalErr = storage.UnmarshalSession(val)
		return unmarshalErr
	})
	return session, err
}
