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


package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/filedrop/catalog"
	"github.com/poiesic/filedrop/classify"
	"github.com/poiesic/filedrop/core"
	"github.com/poiesic/filedrop/hashing"
	"github.com/poiesic/filedrop/storage"
	"github.com/poiesic/filedrop/transfer"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultConcurrency is the number of files transferred at once.
	DefaultConcurrency = 2

	// DefaultBatchPause is the pause between scheduling rounds.
	DefaultBatchPause = 500 * time.Millisecond

	// DefaultMaxFileSize is the largest accepted file (2 GiB).
	DefaultMaxFileSize int64 = 2 << 30

	// DefaultSampleSize is how much of each file is read for MIME detection
	// and classification.
	DefaultSampleSize = 1 << 20

	tracerName = "github.com/poiesic/filedrop/ingestion"
)

// File is one input to a batch.
type File struct {
	Path string
	// MimeType overrides content detection when set.
	MimeType string
}

// RunOptions holds per-batch parameters.
type RunOptions struct {
	// ScopeID narrows duplicate checks and disables classification when set.
	ScopeID string
	// Quota, when set and not allowed, fails the whole batch before any network call.
	Quota *core.QuotaDecision
}

// Pipeline runs batches of files through validation, hashing, duplicate
// checks, classification and chunked transfer.
type Pipeline struct {
	store            storage.SessionStore
	index            catalog.Index
	endpoint         transfer.Endpoint
	pool             *ants.Pool
	concurrency      int
	batchPause       time.Duration
	chunkSize        int64
	chunkTimeout     time.Duration
	retry            transfer.RetryPolicy
	classifier       *classify.Classifier
	candidates       []core.Candidate
	hasher           hashing.Hasher
	fs               billy.Filesystem
	maxFileSize      int64
	allowedMimeTypes []string
	sampleSize       int
	registerer       prometheus.Registerer
	metrics          *Metrics
	progress         chan<- transfer.Progress
	tracer           trace.Tracer
	logger           *slog.Logger

	mu        sync.Mutex
	running   bool
	aborted   bool
	cancelRun context.CancelFunc
	active    map[string]*transfer.Transfer
	released  map[string]chan struct{} // closed when the digest leaves active
	completed map[string]string        // digest -> record ID, per run
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithConcurrency sets how many files are transferred at once.
// Default is 2, with a minimum of 1.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			n = 1
		}
		p.concurrency = n
		return nil
	}
}

// WithBatchPause sets the pause between scheduling rounds. Default is 500ms.
func WithBatchPause(d time.Duration) Option {
	return func(p *Pipeline) error {
		if d < 0 {
			return fmt.Errorf("batch pause cannot be negative, got %s", d)
		}
		p.batchPause = d
		return nil
	}
}

// WithChunkSize sets the transfer chunk size. Default is 5 MiB.
func WithChunkSize(size int64) Option {
	return func(p *Pipeline) error {
		if size <= 0 {
			return fmt.Errorf("chunk size must be positive, got %d", size)
		}
		p.chunkSize = size
		return nil
	}
}

// WithChunkTimeout bounds each chunk request. Default is 30s.
func WithChunkTimeout(d time.Duration) Option {
	return func(p *Pipeline) error {
		if d <= 0 {
			return fmt.Errorf("chunk timeout must be positive, got %s", d)
		}
		p.chunkTimeout = d
		return nil
	}
}

// WithRetryPolicy sets the retry policy for endpoint calls.
func WithRetryPolicy(policy transfer.RetryPolicy) Option {
	return func(p *Pipeline) error {
		p.retry = policy
		return nil
	}
}

// WithClassifier enables classification for batches run without a scope.
func WithClassifier(c *classify.Classifier) Option {
	return func(p *Pipeline) error {
		p.classifier = c
		return nil
	}
}

// WithCandidates sets the categories files are classified against.
func WithCandidates(candidates []core.Candidate) Option {
	return func(p *Pipeline) error {
		p.candidates = append([]core.Candidate(nil), candidates...)
		return nil
	}
}

// WithHasher sets the content hasher. Default is hashing.NewHasher().
func WithHasher(h hashing.Hasher) Option {
	return func(p *Pipeline) error {
		if h == nil {
			return fmt.Errorf("hasher cannot be nil")
		}
		p.hasher = h
		return nil
	}
}

// WithFilesystem sets the filesystem input paths are resolved against.
// Default is the host filesystem rooted at /.
func WithFilesystem(fs billy.Filesystem) Option {
	return func(p *Pipeline) error {
		if fs == nil {
			return fmt.Errorf("filesystem cannot be nil")
		}
		p.fs = fs
		return nil
	}
}

// WithMaxFileSize sets the largest accepted file. Default is 2 GiB.
func WithMaxFileSize(n int64) Option {
	return func(p *Pipeline) error {
		if n <= 0 {
			return fmt.Errorf("max file size must be positive, got %d", n)
		}
		p.maxFileSize = n
		return nil
	}
}

// WithAllowedMimeTypes restricts accepted files to the given types.
// Entries may end in "/*" to allow a whole top-level type.
// Default allows any type.
func WithAllowedMimeTypes(types ...string) Option {
	return func(p *Pipeline) error {
		p.allowedMimeTypes = append([]string(nil), types...)
		return nil
	}
}

// WithSampleSize sets how many leading bytes are read for MIME detection
// and classification. Default is 1 MiB.
func WithSampleSize(n int) Option {
	return func(p *Pipeline) error {
		if n <= 0 {
			return fmt.Errorf("sample size must be positive, got %d", n)
		}
		p.sampleSize = n
		return nil
	}
}

// WithMetrics registers the pipeline's collectors on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(p *Pipeline) error {
		p.registerer = reg
		return nil
	}
}

// WithProgress delivers every transfer's progress events to ch.
// Sends block until received, so ch must be drained.
func WithProgress(ch chan<- transfer.Progress) Option {
	return func(p *Pipeline) error {
		p.progress = ch
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a pipeline. Release must be called when done.
func NewPipeline(
	store storage.SessionStore,
	index catalog.Index,
	endpoint transfer.Endpoint,
	opts ...Option,
) (*Pipeline, error) {
	if store == nil {
		return nil, ErrSessionStoreRequired
	}
	if index == nil {
		return nil, ErrIndexRequired
	}
	if endpoint == nil {
		return nil, ErrEndpointRequired
	}

	p := &Pipeline{
		store:        store,
		index:        index,
		endpoint:     endpoint,
		concurrency:  DefaultConcurrency,
		batchPause:   DefaultBatchPause,
		chunkSize:    transfer.DefaultChunkSize,
		chunkTimeout: transfer.DefaultChunkTimeout,
		retry:        transfer.DefaultRetryPolicy(),
		maxFileSize:  DefaultMaxFileSize,
		sampleSize:   DefaultSampleSize,
		tracer:       otel.Tracer(tracerName),
		logger:       slog.Default(),
		active:       make(map[string]*transfer.Transfer),
		released:     make(map[string]chan struct{}),
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	p.logger = p.logger.With("component", "ingestion")

	if p.hasher == nil {
		h, err := hashing.NewHasher(hashing.WithLogger(p.logger))
		if err != nil {
			return nil, fmt.Errorf("create hasher: %w", err)
		}
		p.hasher = h
	}
	if p.fs == nil {
		p.fs = osfs.New("/")
	}
	if p.registerer != nil {
		m, err := NewMetrics(p.registerer)
		if err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		p.metrics = m
	}

	onRetry := p.retry.OnRetry
	p.retry.OnRetry = func(attempt int, err error) {
		p.metrics.retried()
		if onRetry != nil {
			onRetry(attempt, err)
		}
	}

	pool, err := ants.NewPool(p.concurrency)
	if err != nil {
		return nil, err
	}
	p.pool = pool

	return p, nil
}

// Run processes files and returns one result per file, in input order.
//
// Files are scheduled in rounds of the pipeline's concurrency with the batch
// pause between rounds. When ctx is canceled, in-flight transfers pause with
// their sessions kept and unstarted files fail as canceled; Run then returns
// the full result slice together with ctx's error. After Abort, Run returns
// ErrBatchAborted.
func (p *Pipeline) Run(ctx context.Context, files []File, opts RunOptions) ([]core.TransferResult, error) {
	results := make([]core.TransferResult, len(files))

	if opts.Quota != nil && !opts.Quota.Allowed {
		err := quotaError(opts.Quota)
		for i, f := range files {
			results[i] = p.finish(core.Failed(displayName(f.Path), err))
		}
		p.logger.Warn("batch rejected by quota", "files", len(files), "err", err)
		return results, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	p.running = true
	p.aborted = false
	p.cancelRun = cancel
	p.completed = make(map[string]string)
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.running = false
		p.cancelRun = nil
		p.mu.Unlock()
	}()

	p.logger.Info("starting batch", "files", len(files), "concurrency", p.concurrency, "scope", opts.ScopeID)

	next := 0
	for next < len(files) {
		if next > 0 && p.batchPause > 0 {
			if err := sleepContext(runCtx, p.batchPause); err != nil {
				break
			}
		}
		if runCtx.Err() != nil || p.isAborted() {
			break
		}

		end := min(next+p.concurrency, len(files))
		var wg sync.WaitGroup
		for i := next; i < end; i++ {
			wg.Add(1)
			err := p.pool.Submit(func() {
				defer wg.Done()
				results[i] = p.finish(p.processFile(runCtx, files[i], opts))
			})
			if err != nil {
				wg.Done()
				results[i] = p.finish(core.Failed(displayName(files[i].Path),
					fmt.Errorf("%w: schedule: %w", core.ErrTransient, err)))
			}
		}
		wg.Wait()
		next = end
	}

	for i := next; i < len(files); i++ {
		results[i] = p.finish(canceledResult(files[i].Path))
	}

	summary := summarize(results)
	p.logger.Info("batch finished",
		"uploaded", summary[core.OutcomeUploaded],
		"duplicate", summary[core.OutcomeDuplicate],
		"failed", summary[core.OutcomeFailed])

	if p.isAborted() {
		return results, ErrBatchAborted
	}
	return results, ctx.Err()
}

// Abort stops scheduling, aborts every in-flight transfer and discards
// their sessions. Files already finished keep their results.
func (p *Pipeline) Abort(ctx context.Context) {
	p.mu.Lock()
	p.aborted = true
	cancel := p.cancelRun
	active := make([]*transfer.Transfer, 0, len(p.active))
	for _, t := range p.active {
		active = append(active, t)
	}
	p.mu.Unlock()

	for _, t := range active {
		if err := t.Abort(ctx); err != nil {
			p.logger.Warn("failed to abort transfer", "err", err)
		}
	}
	if cancel != nil {
		cancel()
	}
	p.logger.Info("batch aborted", "inFlight", len(active))
}

// Release releases the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}

func (p *Pipeline) isAborted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.aborted
}

func (p *Pipeline) finish(r core.TransferResult) core.TransferResult {
	p.metrics.observeResult(r)
	return r
}

func quotaError(q *core.QuotaDecision) error {
	if q.RetryAfterSeconds != nil {
		return fmt.Errorf("%w: retry after %ds", core.ErrQuota, *q.RetryAfterSeconds)
	}
	return core.ErrQuota
}

func canceledResult(path string) core.TransferResult {
	return core.Failed(displayName(path), fmt.Errorf("%w: batch stopped before file started", core.ErrCanceled))
}

func summarize(results []core.TransferResult) map[core.Outcome]int {
	counts := make(map[core.Outcome]int, 3)
	for _, r := range results {
		counts[r.Outcome]++
	}
	return counts
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
