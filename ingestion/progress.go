package ingestion

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/poiesic/filedrop/transfer"
)

// BatchProgress aggregates per-file transfer progress into a batch-level
// byte count and writes it to a writer.
type BatchProgress struct {
	writer         io.Writer
	total          int64
	reportInterval int64
	files          map[string]int64
	current        int64
	lastReported   int64
	startTime      time.Time
	started        bool
	mu             sync.Mutex
}

// NewBatchProgress creates a tracker.
// total: bytes expected across the batch
// reportInterval: write a line every N acknowledged bytes
func NewBatchProgress(writer io.Writer, total, reportInterval int64) *BatchProgress {
	return &BatchProgress{
		writer:         writer,
		total:          total,
		reportInterval: reportInterval,
		files:          make(map[string]int64),
	}
}

// Start begins tracking.
func (p *BatchProgress) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.startTime = time.Now()
	p.started = true
	p.current = 0
	p.lastReported = 0
	clear(p.files)
}

// Observe records one transfer progress event.
func (p *BatchProgress) Observe(ev transfer.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}
	prev := p.files[ev.Digest]
	if ev.BytesAcknowledged <= prev {
		return
	}
	p.files[ev.Digest] = ev.BytesAcknowledged
	p.current = min(p.current+ev.BytesAcknowledged-prev, p.total)

	if p.current-p.lastReported >= p.reportInterval {
		p.report()
		p.lastReported = p.current
	}
}

// Track observes events until ch is closed.
func (p *BatchProgress) Track(ch <-chan transfer.Progress) {
	for ev := range ch {
		p.Observe(ev)
	}
}

// Current returns the acknowledged byte count.
func (p *BatchProgress) Current() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Finish writes the final line. Duplicates and failures leave the count short
// of the total, so Finish reports what was actually acknowledged.
func (p *BatchProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}
	p.report()
	fmt.Fprintln(p.writer)
}

// Elapsed returns the time since Start.
func (p *BatchProgress) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return 0
	}
	return time.Since(p.startTime)
}

// report writes the current line. Must be called with lock held.
func (p *BatchProgress) report() {
	var rate float64
	if elapsed := time.Since(p.startTime).Seconds(); elapsed > 0 {
		rate = float64(p.current) / elapsed
	}

	percentage := 0.0
	if p.total > 0 {
		percentage = float64(p.current) / float64(p.total) * 100.0
	}

	fmt.Fprintf(p.writer, "\rProgress: %s/%s (%.1f%%) - %s/s",
		humanize.IBytes(uint64(p.current)), humanize.IBytes(uint64(p.total)), percentage, humanize.IBytes(uint64(rate)))
}
