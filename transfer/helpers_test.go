package transfer

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/filedrop/storage/badger"
	"github.com/stretchr/testify/require"
)

type chunkCall struct {
	Location string
	Offset   int64
	Size     int
}

// memEndpoint is an in-memory Endpoint that records every call.
type memEndpoint struct {
	mu        sync.Mutex
	uploads   map[string][]byte
	totals    map[string]int64
	nextID    int
	calls     []chunkCall
	completes int
	offsets   int
	aborted   []string

	// WriteFunc, when set, runs before a chunk is stored; a non-nil error fails the call.
	WriteFunc func(ctx context.Context, call int, offset int64) error
	// StoredFunc, when set, runs after a chunk is stored; a non-nil error is
	// returned although the endpoint keeps the bytes.
	StoredFunc func(call int) error
}

func newMemEndpoint() *memEndpoint {
	return &memEndpoint{
		uploads: make(map[string][]byte),
		totals:  make(map[string]int64),
	}
}

func (m *memEndpoint) Create(ctx context.Context, req CreateRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	loc := "mem://uploads/" + strconv.Itoa(m.nextID)
	m.uploads[loc] = nil
	m.totals[loc] = req.SizeBytes
	return loc, nil
}

func (m *memEndpoint) Offset(ctx context.Context, location string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offsets++
	data, ok := m.uploads[location]
	if !ok {
		return 0, ErrRemoteGone
	}
	return int64(len(data)), nil
}

func (m *memEndpoint) WriteChunk(ctx context.Context, location string, offset int64, chunk []byte) (int64, error) {
	m.mu.Lock()
	m.calls = append(m.calls, chunkCall{Location: location, Offset: offset, Size: len(chunk)})
	call := len(m.calls)
	fn := m.WriteFunc
	m.mu.Unlock()

	if fn != nil {
		if err := fn(ctx, call, offset); err != nil {
			return 0, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.uploads[location]
	if !ok {
		return 0, ErrRemoteGone
	}
	if int64(len(data)) != offset {
		return 0, fmt.Errorf("offset %d, have %d", offset, len(data))
	}
	m.uploads[location] = append(data, chunk...)
	if m.StoredFunc != nil {
		if err := m.StoredFunc(call); err != nil {
			return 0, err
		}
	}
	return offset + int64(len(chunk)), nil
}

func (m *memEndpoint) Complete(ctx context.Context, location string, totalBytes int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completes++
	if int64(len(m.uploads[location])) != totalBytes {
		return "", fmt.Errorf("incomplete upload")
	}
	return "rec-" + location[len("mem://uploads/"):], nil
}

func (m *memEndpoint) Terminate(ctx context.Context, location string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.uploads, location)
	m.aborted = append(m.aborted, location)
	return nil
}

func (m *memEndpoint) Calls() []chunkCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]chunkCall(nil), m.calls...)
}

func (m *memEndpoint) Data(location string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.uploads[location]...)
}

// instantRetry retries without waiting and records the requested delays.
func instantRetry(maxRetries int) (RetryPolicy, *[]time.Duration) {
	var delays []time.Duration
	var mu sync.Mutex
	p := DefaultRetryPolicy()
	p.MaxRetries = maxRetries
	p.Sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		delays = append(delays, d)
		mu.Unlock()
		return ctx.Err()
	}
	return p, &delays
}

func newStore(t *testing.T) *badger.SessionStore {
	t.Helper()
	store, backend, err := badger.NewMemorySessionStore()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return store
}

func patternBytes(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}
