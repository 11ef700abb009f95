// Package filedrop uploads batches of files to a remote store with resumable,
// deduplicated, chunked transfers. Open the session database, then build
// pipelines from it.
package filedrop

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/filedrop/catalog"
	"github.com/poiesic/filedrop/ingestion"
	"github.com/poiesic/filedrop/storage"
	"github.com/poiesic/filedrop/storage/badger"
	"github.com/poiesic/filedrop/transfer"
)

// Client owns the session database and hands out pipelines bound to it.
type Client struct {
	backend   *badger.Backend
	sessions  *badger.SessionStore
	stopSweep func()
	logger    *slog.Logger
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	ttl           time.Duration
	sweepInterval time.Duration
	logger        *slog.Logger
}

// WithSessionTTL sets how long an unfinished session stays resumable.
func WithSessionTTL(ttl time.Duration) Option {
	return func(o *clientOptions) {
		o.ttl = ttl
	}
}

// WithSweepInterval sets how often expired sessions are deleted.
// Zero or negative disables the background sweeper.
func WithSweepInterval(d time.Duration) Option {
	return func(o *clientOptions) {
		o.sweepInterval = d
	}
}

// WithLogger sets the logger handed to the session store.
func WithLogger(logger *slog.Logger) Option {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// Open opens the session database in sessionsDir, creating it if needed.
// An empty sessionsDir keeps sessions in memory only.
func Open(sessionsDir string, opts ...Option) (*Client, error) {
	options := &clientOptions{
		ttl:           badger.DefaultTTL,
		sweepInterval: badger.DefaultSweepInterval,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	backend, err := badger.OpenBackend(sessionsDir, sessionsDir == "")
	if err != nil {
		return nil, err
	}

	sessions, err := badger.NewSessionStore(backend,
		badger.WithTTL(options.ttl),
		badger.WithLogger(options.logger),
	)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("create session store: %w", err)
	}

	c := &Client{
		backend:   backend,
		sessions:  sessions,
		stopSweep: func() {},
		logger:    options.logger,
	}
	if options.sweepInterval > 0 {
		c.stopSweep = sessions.StartSweeper(context.Background(), options.sweepInterval)
	}
	return c, nil
}

// Close stops the sweeper and closes the session database.
func (c *Client) Close() error {
	c.stopSweep()

	if err := c.sessions.Close(); err != nil {
		c.logger.Error("error closing session store", "err", err)
		return err
	}
	if err := c.backend.Close(); err != nil {
		c.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

func (c *Client) SessionStore() storage.SessionStore {
	return c.sessions
}

// NewPipeline creates an ingestion pipeline that persists its sessions here.
// The caller must Release it.
func (c *Client) NewPipeline(index catalog.Index, endpoint transfer.Endpoint, opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	return ingestion.NewPipeline(c.sessions, index, endpoint, opts...)
}
