package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-git/go-billy/v5"
	"github.com/poiesic/filedrop/core"
	"github.com/poiesic/filedrop/hashing"
	"github.com/poiesic/filedrop/transfer"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// inspected is a validated input file, open for reading.
type inspected struct {
	name     string
	file     billy.File
	info     fs.FileInfo
	mimeType string
	sample   []byte
}

// processFile runs one file through the pipeline and returns its terminal result.
func (p *Pipeline) processFile(ctx context.Context, f File, opts RunOptions) (result core.TransferResult) {
	name := displayName(f.Path)
	ctx, span := p.tracer.Start(ctx, "ingestion.file", trace.WithAttributes(
		attribute.String("file.name", name),
	))
	defer func() {
		span.SetAttributes(attribute.String("file.outcome", string(result.Outcome)))
		if result.Outcome == core.OutcomeFailed {
			span.SetStatus(codes.Error, result.Message)
		}
		span.End()
	}()

	if ctx.Err() != nil || p.isAborted() {
		return canceledResult(f.Path)
	}

	in, err := p.inspect(f)
	if err != nil {
		p.logger.Info("rejected file", "file", name, "err", err)
		return core.Failed(name, err)
	}
	defer in.file.Close()
	span.SetAttributes(
		attribute.Int64("file.size", in.info.Size()),
		attribute.String("file.mime_type", in.mimeType),
	)

	digest, err := p.hasher.Hash(ctx, io.NewSectionReader(in.file, 0, in.info.Size()), hashing.FileInfo{
		Path:    f.Path,
		Name:    name,
		Size:    in.info.Size(),
		ModTime: in.info.ModTime(),
	})
	if err != nil {
		return p.failed(ctx, name, fmt.Errorf("hash: %w", err))
	}
	span.SetAttributes(attribute.String("file.digest", digest.Value))

	withDigest := func(r core.TransferResult) core.TransferResult {
		r.Digest = digest.Value
		return r
	}

	// An advisory digest is not content-derived and must never skip an upload.
	if !digest.Advisory {
		check, err := p.index.Check(ctx, digest.Value, opts.ScopeID)
		if err != nil {
			return withDigest(p.failed(ctx, name, fmt.Errorf("duplicate check: %w", err)))
		}
		if check.IsDuplicate {
			p.logger.Info("duplicate content, skipping upload", "file", name, "existing", check.Existing.ID)
			r := core.Duplicate(name, check.Existing.ID)
			r.ScopeID = check.Existing.ScopeID
			return withDigest(r)
		}
	}

	scope := opts.ScopeID
	var classification *core.ClassificationResult
	if scope == "" && p.classifier != nil && len(p.candidates) > 0 {
		classification, err = p.classifier.Classify(ctx, name, in.mimeType, in.sample, p.candidates)
		if err != nil {
			return withDigest(p.failed(ctx, name, fmt.Errorf("classify: %w", err)))
		}
		if classification != nil {
			scope = classification.TargetID
			p.logger.Debug("classified file", "file", name, "target", scope, "confidence", classification.Confidence)
		}
	}

	r := p.transfer(ctx, in, digest, scope)
	r.ScopeID = scope
	r.Classification = classification
	return withDigest(r)
}

// inspect validates f and opens it.
func (p *Pipeline) inspect(f File) (*inspected, error) {
	name := displayName(f.Path)
	if f.Path == "" {
		return nil, fmt.Errorf("%w: empty path", core.ErrValidation)
	}
	info, err := p.fs.Stat(f.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s does not exist", core.ErrValidation, f.Path)
		}
		return nil, fmt.Errorf("%w: stat %s: %w", core.ErrValidation, f.Path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a regular file", core.ErrValidation, f.Path)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("%w: %s is empty", core.ErrValidation, f.Path)
	}
	if info.Size() > p.maxFileSize {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit is %d", core.ErrValidation, f.Path, info.Size(), p.maxFileSize)
	}

	file, err := p.fs.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", core.ErrValidation, f.Path, err)
	}

	sample := make([]byte, min(int64(p.sampleSize), info.Size()))
	n, err := file.ReadAt(sample, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		file.Close()
		return nil, fmt.Errorf("%w: read %s: %w", core.ErrValidation, f.Path, err)
	}
	sample = sample[:n]

	mimeType := f.MimeType
	if mimeType == "" {
		mimeType = mimetype.Detect(sample).String()
	}
	if !p.mimeAllowed(mimeType) {
		file.Close()
		return nil, fmt.Errorf("%w: %s has disallowed type %s", core.ErrValidation, name, mimeType)
	}

	return &inspected{name: name, file: file, info: info, mimeType: mimeType, sample: sample}, nil
}

func (p *Pipeline) mimeAllowed(mimeType string) bool {
	if len(p.allowedMimeTypes) == 0 {
		return true
	}
	base, _, _ := strings.Cut(mimeType, ";")
	base = strings.TrimSpace(strings.ToLower(base))
	for _, allowed := range p.allowedMimeTypes {
		if prefix, ok := strings.CutSuffix(allowed, "/*"); ok {
			if strings.HasPrefix(base, strings.ToLower(prefix)+"/") {
				return true
			}
			continue
		}
		if mimetype.EqualsAny(base, allowed) {
			return true
		}
	}
	return false
}

// transfer uploads in. A file whose digest was already uploaded in this run,
// or is being uploaded by a sibling, is reported as a duplicate of that record.
// Advisory digests are never treated as duplicates: the file waits for the
// sibling holding its session key and then uploads.
func (p *Pipeline) transfer(ctx context.Context, in *inspected, d core.Digest, scope string) core.TransferResult {
	digest := d.Value
	events := make(chan transfer.Progress)
	var base int64
	relayed := p.relayProgress(ctx, events, &base)
	defer func() {
		close(events)
		<-relayed
	}()

	tr, err := transfer.New(transfer.Source{
		Reader:   in.file,
		FileName: in.name,
		MimeType: in.mimeType,
		Size:     in.info.Size(),
		Digest:   digest,
		ScopeID:  scope,
	}, p.endpoint, p.store,
		transfer.WithChunkSize(p.chunkSize),
		transfer.WithChunkTimeout(p.chunkTimeout),
		transfer.WithRetryPolicy(p.retry),
		transfer.WithProgress(events),
		transfer.WithLogger(p.logger),
	)
	if err != nil {
		return core.Failed(in.name, err)
	}

	p.mu.Lock()
	for {
		if p.aborted {
			p.mu.Unlock()
			return core.Failed(in.name, transfer.ErrAborted)
		}
		if recordID, ok := p.completed[digest]; ok && !d.Advisory {
			p.mu.Unlock()
			return core.Duplicate(in.name, recordID)
		}
		sibling, ok := p.active[digest]
		if !ok {
			break
		}
		released := p.released[digest]
		p.mu.Unlock()
		if !d.Advisory {
			return p.awaitSibling(ctx, in.name, sibling)
		}
		select {
		case <-released:
		case <-ctx.Done():
			return core.Failed(in.name, fmt.Errorf("%w: %w", core.ErrCanceled, ctx.Err()))
		}
		p.mu.Lock()
	}
	p.active[digest] = tr
	released := make(chan struct{})
	p.released[digest] = released
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.active, digest)
		delete(p.released, digest)
		close(released)
		p.mu.Unlock()
	}()

	p.metrics.transferStarted()
	defer p.metrics.transferFinished()

	recordID, err := func() (string, error) {
		if err := tr.Start(ctx); err != nil {
			return "", err
		}
		// a resumed transfer only reports bytes sent from here on
		base = tr.Status().BytesAcknowledged
		return tr.Run(ctx)
	}()
	if err != nil {
		if tr.Status().State == transfer.StateAborted {
			err = transfer.ErrAborted
		}
		p.logger.Warn("transfer failed", "file", in.name, "err", err)
		return core.Failed(in.name, err)
	}
	if !d.Advisory {
		p.mu.Lock()
		p.completed[digest] = recordID
		p.mu.Unlock()
	}
	p.logger.Info("uploaded file", "file", in.name, "record", recordID)
	return core.Uploaded(in.name, recordID)
}

// relayProgress forwards events to the pipeline's progress channel and
// counts acknowledged bytes above *base. The returned channel is closed once
// events is closed and drained.
func (p *Pipeline) relayProgress(ctx context.Context, events <-chan transfer.Progress, base *int64) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			p.metrics.addBytes(ev.BytesAcknowledged - *base)
			*base = ev.BytesAcknowledged
			if p.progress != nil {
				select {
				case p.progress <- ev:
				case <-ctx.Done():
				}
			}
		}
	}()
	return done
}

// awaitSibling waits for the transfer of identical content started by
// another file in the same batch and reports this file as its duplicate.
func (p *Pipeline) awaitSibling(ctx context.Context, name string, sibling *transfer.Transfer) core.TransferResult {
	select {
	case <-sibling.Done():
	case <-ctx.Done():
		return core.Failed(name, fmt.Errorf("%w: %w", core.ErrCanceled, ctx.Err()))
	}
	recordID, err := sibling.Result()
	if err != nil {
		return core.Failed(name, fmt.Errorf("identical file failed: %w", err))
	}
	return core.Duplicate(name, recordID)
}

// failed maps errors raised while ctx was canceled to the canceled kind.
func (p *Pipeline) failed(ctx context.Context, name string, err error) core.TransferResult {
	if ctx.Err() != nil && !errors.Is(err, core.ErrCanceled) {
		err = fmt.Errorf("%w: %w", core.ErrCanceled, err)
	}
	return core.Failed(name, err)
}

func displayName(path string) string {
	return filepath.Base(path)
}
