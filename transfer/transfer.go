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


package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/poiesic/filedrop/core"
	"github.com/poiesic/filedrop/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultChunkSize is the number of bytes sent per chunk (5 MiB).
	DefaultChunkSize int64 = 5 << 20

	// DefaultChunkTimeout bounds each chunk request.
	DefaultChunkTimeout = 30 * time.Second

	tracerName = "github.com/poiesic/filedrop/transfer"
)

// Source is the file a Transfer reads from.
type Source struct {
	Reader   io.ReaderAt
	FileName string
	MimeType string
	Size     int64
	Digest   string
	ScopeID  string
}

// Transfer uploads one file through an Endpoint, one chunk at a time,
// persisting the acknowledged offset after each chunk.
// A Transfer is safe for concurrent use; Pause, Abort and Status may be
// called while Run is in progress.
type Transfer struct {
	src          Source
	endpoint     Endpoint
	store        storage.SessionStore
	chunkSize    int64
	chunkTimeout time.Duration
	retry        RetryPolicy
	progress     chan<- Progress
	tracer       trace.Tracer
	logger       *slog.Logger

	mu           sync.Mutex
	state        State
	location     string
	acked        int64
	lastReported int64
	recordID     string
	err          error
	cancelChunk  context.CancelFunc
	done         chan struct{}
}

// Option configures a Transfer.
type Option func(*Transfer) error

// WithChunkSize sets the chunk size in bytes.
func WithChunkSize(size int64) Option {
	return func(t *Transfer) error {
		if size <= 0 {
			return fmt.Errorf("chunk size must be positive, got %d", size)
		}
		t.chunkSize = size
		return nil
	}
}

// WithChunkTimeout bounds each chunk request. Exceeding it is a transient failure.
func WithChunkTimeout(timeout time.Duration) Option {
	return func(t *Transfer) error {
		if timeout <= 0 {
			return fmt.Errorf("chunk timeout must be positive, got %s", timeout)
		}
		t.chunkTimeout = timeout
		return nil
	}
}

// WithRetryPolicy sets the policy applied to every endpoint call.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(t *Transfer) error {
		t.retry = policy
		return nil
	}
}

// WithProgress delivers a Progress event after every acknowledged chunk.
// Sends block until received or the operation's context is done.
func WithProgress(ch chan<- Progress) Option {
	return func(t *Transfer) error {
		t.progress = ch
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transfer) error {
		t.logger = logger
		return nil
	}
}

// New creates a Transfer for src.
func New(src Source, endpoint Endpoint, store storage.SessionStore, opts ...Option) (*Transfer, error) {
	if endpoint == nil {
		return nil, ErrEndpointRequired
	}
	if store == nil {
		return nil, ErrStoreRequired
	}
	if src.Reader == nil {
		return nil, ErrSourceRequired
	}
	if src.Digest == "" {
		return nil, ErrDigestRequired
	}
	if src.Size < 0 {
		return nil, fmt.Errorf("%w: negative size %d", core.ErrValidation, src.Size)
	}

	t := &Transfer{
		src:          src,
		endpoint:     endpoint,
		store:        store,
		chunkSize:    DefaultChunkSize,
		chunkTimeout: DefaultChunkTimeout,
		retry:        DefaultRetryPolicy(),
		tracer:       otel.Tracer(tracerName),
		logger:       slog.Default(),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	t.logger = t.logger.With("component", "transfer", "file", src.FileName, "digest", src.Digest)

	return t, nil
}

// Status returns the current state and offset.
func (t *Transfer) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Status{State: t.state, BytesAcknowledged: t.acked, TotalBytes: t.src.Size}
}

// Done is closed once, when the transfer reaches a terminal state.
func (t *Transfer) Done() <-chan struct{} {
	return t.done
}

// Result returns the record ID after completion, or the terminal error.
// Before a terminal state it returns ErrInvalidState.
func (t *Transfer) Result() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.state {
	case StateCompleted:
		return t.recordID, nil
	case StateAborted, StateFailed:
		return "", t.err
	default:
		return "", fmt.Errorf("%w: %s", ErrInvalidState, t.state)
	}
}

// Start adopts a resumable session for the source's digest, or negotiates a
// new upload and persists a fresh session at offset 0.
//
// A resumed session is checked against the endpoint's offset first. If they
// disagree the session is discarded and the transfer fails with
// core.ErrCorruption rather than sending from a desynchronized offset.
func (t *Transfer) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.state != StateUninitialized {
		state := t.state
		t.mu.Unlock()
		return fmt.Errorf("%w: cannot start from %s", ErrInvalidState, state)
	}
	t.mu.Unlock()

	resumed, err := t.tryResume(ctx)
	if err != nil {
		return t.startFailed(ctx, err)
	}
	if resumed {
		return nil
	}

	var location string
	err = t.retry.Do(ctx, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, t.chunkTimeout)
		defer cancel()
		var err error
		location, err = t.endpoint.Create(attemptCtx, CreateRequest{
			FileName:       t.src.FileName,
			SizeBytes:      t.src.Size,
			MimeType:       t.src.MimeType,
			Digest:         t.src.Digest,
			ScopeID:        t.src.ScopeID,
			ChunkSizeBytes: t.chunkSize,
		})
		return err
	})
	if err != nil {
		return t.startFailed(ctx, fmt.Errorf("create upload: %w", err))
	}

	session := &core.UploadSession{
		ID:             core.NewSessionID(),
		ContentDigest:  t.src.Digest,
		FileName:       t.src.FileName,
		FileSizeBytes:  t.src.Size,
		MimeType:       t.src.MimeType,
		ScopeID:        t.src.ScopeID,
		TransferURL:    location,
		TotalBytes:     t.src.Size,
		ChunkSizeBytes: t.chunkSize,
	}
	if err := t.store.Save(ctx, session); err != nil {
		return t.startFailed(ctx, fmt.Errorf("persist session: %w", err))
	}

	t.mu.Lock()
	t.location = location
	t.acked = 0
	t.state = StateTransferring
	t.mu.Unlock()

	t.logger.Debug("started transfer", "location", location, "size", t.src.Size)
	return nil
}

// tryResume adopts a persisted session when one is resumable for this source.
func (t *Transfer) tryResume(ctx context.Context) (bool, error) {
	session, err := t.store.Get(ctx, t.src.Digest)
	if err != nil {
		return false, fmt.Errorf("load session: %w", err)
	}
	if session == nil {
		return false, nil
	}
	if session.TransferURL == "" || session.TotalBytes != t.src.Size || session.ChunkSizeBytes != t.chunkSize {
		t.logger.Info("discarding incompatible session",
			"sessionSize", session.TotalBytes, "sessionChunk", session.ChunkSizeBytes)
		return false, t.store.Remove(ctx, t.src.Digest)
	}

	// Offset equal to total means every chunk was acknowledged but completion
	// was never recorded; skip straight to completion.
	if session.BytesAcknowledged < session.TotalBytes {
		var remote int64
		err := t.retry.Do(ctx, func(ctx context.Context) error {
			attemptCtx, cancel := context.WithTimeout(ctx, t.chunkTimeout)
			defer cancel()
			var err error
			remote, err = t.endpoint.Offset(attemptCtx, session.TransferURL)
			return err
		})
		if errors.Is(err, ErrRemoteGone) {
			t.logger.Info("remote upload gone, starting over", "location", session.TransferURL)
			return false, t.store.Remove(ctx, t.src.Digest)
		}
		if err != nil {
			return false, fmt.Errorf("verify offset: %w", err)
		}
		if remote != session.BytesAcknowledged {
			return false, fmt.Errorf("%w: endpoint reports %d bytes, session has %d",
				core.ErrCorruption, remote, session.BytesAcknowledged)
		}
	}

	t.mu.Lock()
	t.location = session.TransferURL
	t.acked = session.BytesAcknowledged
	t.lastReported = session.BytesAcknowledged
	t.state = StateTransferring
	t.mu.Unlock()

	t.logger.Info("resuming transfer", "offset", session.BytesAcknowledged, "total", session.TotalBytes)
	return true, nil
}

// startFailed moves an unstarted transfer to Failed. Corrupt sessions are discarded.
func (t *Transfer) startFailed(ctx context.Context, err error) error {
	if errors.Is(err, core.ErrCorruption) {
		if rmErr := t.store.Remove(context.WithoutCancel(ctx), t.src.Digest); rmErr != nil {
			t.logger.Warn("failed to discard corrupt session", "error", rmErr)
		}
	}
	if ctx.Err() != nil {
		err = fmt.Errorf("%w: %w", ErrPaused, err)
	}
	t.mu.Lock()
	t.finishLocked(StateFailed, err)
	t.mu.Unlock()
	return err
}

// UploadNextChunk sends the next chunk and persists the new offset. It
// returns done=true once the upload is complete. A chunk interrupted by
// Pause or by cancellation of ctx leaves the transfer Paused with its
// session intact.
func (t *Transfer) UploadNextChunk(ctx context.Context) (bool, error) {
	t.mu.Lock()
	if t.state != StateTransferring {
		completed := t.state == StateCompleted
		err := t.stateErrorLocked()
		t.mu.Unlock()
		if completed {
			return true, nil
		}
		return false, err
	}
	offset := t.acked
	location := t.location
	if offset >= t.src.Size {
		t.mu.Unlock()
		return t.complete(ctx)
	}
	chunkCtx, cancel := context.WithCancel(ctx)
	t.cancelChunk = cancel
	t.mu.Unlock()
	defer cancel()

	end := min(offset+t.chunkSize, t.src.Size)
	chunk := make([]byte, end-offset)
	if n, err := t.src.Reader.ReadAt(chunk, offset); n != len(chunk) {
		if err == nil || errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return false, t.fail(ctx, fmt.Errorf("%w: read %s at %d: %w", core.ErrValidation, t.src.FileName, offset, err))
	}

	err := t.sendChunk(chunkCtx, location, offset, chunk)

	t.mu.Lock()
	t.cancelChunk = nil
	if err != nil {
		state := t.state
		t.mu.Unlock()
		switch {
		case state == StateAborted:
			return false, ErrAborted
		case state == StatePaused:
			return false, ErrPaused
		case ctx.Err() != nil:
			t.pauseOnCancel()
			return false, fmt.Errorf("%w: %w", ErrPaused, ctx.Err())
		}
		return false, t.fail(ctx, err)
	}
	if t.state == StateAborted {
		t.mu.Unlock()
		return false, ErrAborted
	}
	// The endpoint holds these bytes now; record them even if Pause raced us.
	if _, err := t.store.Update(context.WithoutCancel(ctx), t.src.Digest, storage.Offset(end)); err != nil {
		t.mu.Unlock()
		return false, t.fail(ctx, fmt.Errorf("persist offset %d: %w", end, err))
	}
	t.acked = end
	report := end > t.lastReported
	if report {
		t.lastReported = end
	}
	paused := t.state == StatePaused
	t.mu.Unlock()

	if report {
		t.emit(ctx, end)
	}
	if paused {
		return false, ErrPaused
	}
	if end == t.src.Size {
		return t.complete(ctx)
	}
	return false, nil
}

func (t *Transfer) sendChunk(ctx context.Context, location string, offset int64, chunk []byte) error {
	ctx, span := t.tracer.Start(ctx, "transfer.chunk", trace.WithAttributes(
		attribute.String("file.digest", t.src.Digest),
		attribute.Int64("chunk.offset", offset),
		attribute.Int("chunk.size", len(chunk)),
	))
	defer span.End()

	expected := offset + int64(len(chunk))
	uncertain := false
	err := t.retry.Do(ctx, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, t.chunkTimeout)
		defer cancel()
		// A failed attempt may still have been stored by the endpoint.
		if uncertain {
			remote, err := t.endpoint.Offset(attemptCtx, location)
			if err != nil {
				return err
			}
			switch remote {
			case expected:
				t.logger.Debug("chunk already stored by endpoint", "offset", offset)
				return nil
			case offset:
			default:
				return fmt.Errorf("%w: endpoint at %d after failed chunk at %d", core.ErrCorruption, remote, offset)
			}
		}
		acked, err := t.endpoint.WriteChunk(attemptCtx, location, offset, chunk)
		if err != nil {
			uncertain = true
			return err
		}
		if acked != expected {
			return fmt.Errorf("%w: endpoint acknowledged %d, expected %d", core.ErrCorruption, acked, expected)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// complete finalizes the upload. Session removal and the completion signal
// happen together under the mutex, exactly once.
func (t *Transfer) complete(ctx context.Context) (bool, error) {
	t.mu.Lock()
	location := t.location
	t.mu.Unlock()

	var recordID string
	err := t.retry.Do(ctx, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, t.chunkTimeout)
		defer cancel()
		var err error
		recordID, err = t.endpoint.Complete(attemptCtx, location, t.src.Size)
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			t.pauseOnCancel()
			return false, fmt.Errorf("%w: %w", ErrPaused, ctx.Err())
		}
		return false, t.fail(ctx, fmt.Errorf("complete upload: %w", err))
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// A Pause that raced the final request still ends in completion: the
	// endpoint has already assembled the upload.
	if t.state != StateTransferring && t.state != StatePaused {
		return false, t.stateErrorLocked()
	}
	if err := t.store.Remove(context.WithoutCancel(ctx), t.src.Digest); err != nil {
		t.logger.Warn("failed to remove completed session", "error", err)
	}
	t.recordID = recordID
	t.finishLocked(StateCompleted, nil)
	t.logger.Debug("transfer complete", "recordID", recordID)
	return true, nil
}

// Run drives the transfer to a terminal state, starting it if needed.
// It returns the record ID on completion. When ctx is canceled or Pause is
// called, Run returns an error wrapping ErrPaused and the session is kept.
func (t *Transfer) Run(ctx context.Context) (string, error) {
	if t.Status().State == StateUninitialized {
		if err := t.Start(ctx); err != nil {
			return "", err
		}
	}
	for {
		done, err := t.UploadNextChunk(ctx)
		if err != nil {
			return "", err
		}
		if done {
			return t.Result()
		}
	}
}

// Pause stops issuing chunks and cancels the one in flight.
// The session stays at the last acknowledged offset.
func (t *Transfer) Pause() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateTransferring {
		return fmt.Errorf("%w: cannot pause from %s", ErrInvalidState, t.state)
	}
	t.state = StatePaused
	if t.cancelChunk != nil {
		t.cancelChunk()
	}
	t.logger.Debug("transfer paused", "offset", t.acked)
	return nil
}

// Resume re-reads the persisted offset, which another process may have
// advanced, and returns the transfer to Transferring.
func (t *Transfer) Resume(ctx context.Context) error {
	t.mu.Lock()
	if t.state != StatePaused {
		state := t.state
		t.mu.Unlock()
		return fmt.Errorf("%w: cannot resume from %s", ErrInvalidState, state)
	}
	t.mu.Unlock()

	session, err := t.store.Get(ctx, t.src.Digest)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StatePaused {
		return fmt.Errorf("%w: cannot resume from %s", ErrInvalidState, t.state)
	}
	if session == nil {
		err := fmt.Errorf("%w: %s", ErrSessionLost, t.src.Digest)
		t.finishLocked(StateFailed, err)
		return err
	}
	if session.BytesAcknowledged < t.acked {
		err := fmt.Errorf("%w: persisted offset %d behind acknowledged %d",
			core.ErrCorruption, session.BytesAcknowledged, t.acked)
		t.finishLocked(StateFailed, err)
		return err
	}
	t.acked = session.BytesAcknowledged
	t.location = session.TransferURL
	t.state = StateTransferring
	t.logger.Debug("transfer resumed", "offset", t.acked)
	return nil
}

// Abort cancels in-flight work, deletes the session and discards the remote
// upload. Aborting a finished transfer is a no-op.
func (t *Transfer) Abort(ctx context.Context) error {
	t.mu.Lock()
	if t.state == StateCompleted || t.state == StateAborted {
		t.mu.Unlock()
		return nil
	}
	location := t.location
	if t.cancelChunk != nil {
		t.cancelChunk()
	}
	t.finishLocked(StateAborted, ErrAborted)
	t.mu.Unlock()

	var errs []error
	if err := t.store.Remove(ctx, t.src.Digest); err != nil {
		errs = append(errs, fmt.Errorf("remove session: %w", err))
	}
	if location != "" {
		if err := t.endpoint.Terminate(ctx, location); err != nil {
			t.logger.Warn("failed to terminate remote upload", "location", location, "error", err)
		}
	}
	t.logger.Info("transfer aborted")
	return errors.Join(errs...)
}

// fail moves the transfer to Failed. Corruption discards the session so the
// next attempt starts over; other failures keep it for a later resume.
func (t *Transfer) fail(ctx context.Context, err error) error {
	if errors.Is(err, core.ErrCorruption) {
		if rmErr := t.store.Remove(context.WithoutCancel(ctx), t.src.Digest); rmErr != nil {
			t.logger.Warn("failed to discard corrupt session", "error", rmErr)
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Terminal() {
		return err
	}
	t.finishLocked(StateFailed, err)
	t.logger.Warn("transfer failed", "offset", t.acked, "error", err)
	return err
}

func (t *Transfer) pauseOnCancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateTransferring {
		t.state = StatePaused
	}
}

// finishLocked records a terminal state and closes done. Must be called with lock held.
func (t *Transfer) finishLocked(state State, err error) {
	if t.state.Terminal() {
		return
	}
	t.state = state
	t.err = err
	close(t.done)
}

// stateErrorLocked explains why no chunk can be sent. Must be called with lock held.
func (t *Transfer) stateErrorLocked() error {
	switch t.state {
	case StatePaused:
		return ErrPaused
	case StateAborted, StateFailed:
		return t.err
	}
	return fmt.Errorf("%w: %s", ErrInvalidState, t.state)
}

func (t *Transfer) emit(ctx context.Context, offset int64) {
	if t.progress == nil {
		return
	}
	ev := Progress{
		Digest:            t.src.Digest,
		FileName:          t.src.FileName,
		BytesAcknowledged: offset,
		TotalBytes:        t.src.Size,
	}
	select {
	case t.progress <- ev:
	case <-ctx.Done():
	}
}
