package ingestion

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/poiesic/filedrop/catalog"
	"github.com/poiesic/filedrop/storage/badger"
	"github.com/poiesic/filedrop/transfer"
	"github.com/stretchr/testify/require"
)

// testEndpoint is an in-memory transfer.Endpoint that records every call.
type testEndpoint struct {
	mu         sync.Mutex
	uploads    map[string][]byte
	creates    []transfer.CreateRequest
	chunks     []int64
	terminated []string
	nextID     int

	// WriteFunc, when set, runs before a chunk is stored; a non-nil error fails the call.
	WriteFunc func(ctx context.Context, call int, offset int64) error
}

func newTestEndpoint() *testEndpoint {
	return &testEndpoint{uploads: make(map[string][]byte)}
}

func (e *testEndpoint) Create(ctx context.Context, req transfer.CreateRequest) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	loc := "mem://" + strconv.Itoa(e.nextID)
	e.uploads[loc] = nil
	e.creates = append(e.creates, req)
	return loc, nil
}

func (e *testEndpoint) Offset(ctx context.Context, location string) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	data, ok := e.uploads[location]
	if !ok {
		return 0, transfer.ErrRemoteGone
	}
	return int64(len(data)), nil
}

func (e *testEndpoint) WriteChunk(ctx context.Context, location string, offset int64, chunk []byte) (int64, error) {
	e.mu.Lock()
	e.chunks = append(e.chunks, offset)
	call := len(e.chunks)
	fn := e.WriteFunc
	e.mu.Unlock()

	if fn != nil {
		if err := fn(ctx, call, offset); err != nil {
			return 0, err
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	data := e.uploads[location]
	if int64(len(data)) != offset {
		return int64(len(data)), nil
	}
	e.uploads[location] = append(data, chunk...)
	return offset + int64(len(chunk)), nil
}

func (e *testEndpoint) Complete(ctx context.Context, location string, totalBytes int64) (string, error) {
	return "rec-" + location[len("mem://"):], nil
}

func (e *testEndpoint) Terminate(ctx context.Context, location string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.terminated = append(e.terminated, location)
	delete(e.uploads, location)
	return nil
}

func (e *testEndpoint) Creates() []transfer.CreateRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]transfer.CreateRequest(nil), e.creates...)
}

func (e *testEndpoint) Chunks() []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int64(nil), e.chunks...)
}

func (e *testEndpoint) Terminated() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.terminated...)
}

func (e *testEndpoint) Data(location string) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.uploads[location]
}

// instantRetry retries without waiting.
func instantRetry() transfer.RetryPolicy {
	return transfer.RetryPolicy{
		MaxRetries: 2,
		Backoff:    []time.Duration{time.Millisecond},
		Sleep:      func(ctx context.Context, d time.Duration) error { return ctx.Err() },
	}
}

type fixture struct {
	store    *badger.SessionStore
	index    *catalog.Memory
	endpoint *testEndpoint
	fs       billy.Filesystem
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, backend, err := badger.NewMemorySessionStore()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	return &fixture{
		store:    store,
		index:    catalog.NewMemory(),
		endpoint: newTestEndpoint(),
		fs:       memfs.New(),
	}
}

func (f *fixture) write(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, util.WriteFile(f.fs, path, data, 0o644))
}

func (f *fixture) pipeline(t *testing.T, opts ...Option) *Pipeline {
	t.Helper()
	base := []Option{
		WithFilesystem(f.fs),
		WithBatchPause(0),
		WithRetryPolicy(instantRetry()),
	}
	p, err := NewPipeline(f.store, f.index, f.endpoint, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(p.Release)
	return p
}

func files(paths ...string) []File {
	out := make([]File, len(paths))
	for i, p := range paths {
		out[i] = File{Path: p}
	}
	return out
}
