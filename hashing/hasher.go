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


package hashing

import (
	"context"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/go-crypt/x/blake2b"
	"github.com/poiesic/filedrop/core"
)

// DigestSize is the digest length in bytes (256 bits).
const DigestSize = 32

// copyBufferSize bounds how much file content is held in memory while hashing.
const copyBufferSize = 256 * 1024

// degradedOnce guards the process-wide degraded-mode warning.
var degradedOnce sync.Once

// FileInfo carries the metadata used by the identity fallback.
type FileInfo struct {
	// Path identifies the file within its source; the identity fallback
	// prefers it over Name so same-named files in different folders differ.
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
}

// Hasher computes a digest for a file's content.
type Hasher interface {
	Hash(ctx context.Context, r io.Reader, info FileInfo) (core.Digest, error)
}

// Option configures hasher construction.
type Option func(*options) error

type options struct {
	logger    *slog.Logger
	primitive func() (hash.Hash, error)
}

// WithLogger sets the logger used for the degraded-mode warning.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		o.logger = logger
		return nil
	}
}

func defaultPrimitive() (hash.Hash, error) {
	return blake2b.New(DigestSize, nil)
}

// NewHasher returns a BLAKE2b-256 hasher. If the primitive is unavailable it
// returns an IdentityHasher instead and logs a warning once per process.
func NewHasher(opts ...Option) (Hasher, error) {
	o := &options{
		logger:    slog.Default(),
		primitive: defaultPrimitive,
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if _, err := o.primitive(); err != nil {
		degradedOnce.Do(func() {
			o.logger.Warn("content hashing unavailable, using advisory identity keys",
				"error", err)
		})
		return IdentityHasher{}, nil
	}

	return &blakeHasher{newHash: o.primitive}, nil
}

type blakeHasher struct {
	newHash func() (hash.Hash, error)
}

// Hash streams r through BLAKE2b-256. The context is checked between reads
// so hashing a large file can be interrupted.
func (b *blakeHasher) Hash(ctx context.Context, r io.Reader, info FileInfo) (core.Digest, error) {
	if r == nil {
		return core.Digest{}, ErrReaderRequired
	}
	h, err := b.newHash()
	if err != nil {
		return core.Digest{}, fmt.Errorf("failed to create hash: %w", err)
	}

	buf := make([]byte, copyBufferSize)
	for {
		if err := ctx.Err(); err != nil {
			return core.Digest{}, err
		}
		n, readErr := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return core.Digest{}, fmt.Errorf("failed to read %s: %w", info.Name, readErr)
		}
	}

	return core.Digest{Value: hex.EncodeToString(h.Sum(nil))}, nil
}

// IdentityHasher derives an advisory key from file metadata without reading content.
type IdentityHasher struct{}

func (IdentityHasher) Hash(_ context.Context, _ io.Reader, info FileInfo) (core.Digest, error) {
	id := info.Path
	if id == "" {
		id = info.Name
	}
	if id == "" {
		return core.Digest{}, ErrFileNameRequired
	}
	key := id + "|" + strconv.FormatInt(info.Size, 10) + "|" + strconv.FormatInt(info.ModTime.UnixNano(), 10)
	return core.Digest{Value: hex.EncodeToString([]byte(key)), Advisory: true}, nil
}

// HashBytes returns the BLAKE2b-256 digest of data as lowercase hex.
func HashBytes(data []byte) (string, error) {
	h, err := blake2b.New(DigestSize, nil)
	if err != nil {
		return "", err
	}
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}
