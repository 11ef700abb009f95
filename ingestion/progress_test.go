package ingestion

import (
	"bytes"
	"strings"
	"testing"

	"github.com/poiesic/filedrop/transfer"
	"github.com/stretchr/testify/assert"
)

func TestBatchProgress_AggregatesPerFile(t *testing.T) {
	var buf bytes.Buffer
	p := NewBatchProgress(&buf, 100, 1000)
	p.Start()

	p.Observe(transfer.Progress{Digest: "a", BytesAcknowledged: 10, TotalBytes: 40})
	p.Observe(transfer.Progress{Digest: "b", BytesAcknowledged: 20, TotalBytes: 60})
	p.Observe(transfer.Progress{Digest: "a", BytesAcknowledged: 40, TotalBytes: 40})
	assert.Equal(t, int64(70), p.Current())

	// stale or repeated offsets are ignored
	p.Observe(transfer.Progress{Digest: "a", BytesAcknowledged: 30, TotalBytes: 40})
	p.Observe(transfer.Progress{Digest: "b", BytesAcknowledged: 20, TotalBytes: 60})
	assert.Equal(t, int64(70), p.Current())
	assert.Empty(t, buf.String(), "below the report interval")
}

func TestBatchProgress_ReportsAtInterval(t *testing.T) {
	var buf bytes.Buffer
	p := NewBatchProgress(&buf, 2048, 1024)
	p.Start()

	p.Observe(transfer.Progress{Digest: "a", BytesAcknowledged: 512})
	assert.Empty(t, buf.String())

	p.Observe(transfer.Progress{Digest: "a", BytesAcknowledged: 1024})
	assert.Contains(t, buf.String(), "1.0 KiB/2.0 KiB (50.0%)")

	p.Finish()
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
}

func TestBatchProgress_ClampsToTotal(t *testing.T) {
	p := NewBatchProgress(&bytes.Buffer{}, 10, 100)
	p.Start()
	p.Observe(transfer.Progress{Digest: "a", BytesAcknowledged: 25})
	assert.Equal(t, int64(10), p.Current())
}

func TestBatchProgress_IgnoredBeforeStart(t *testing.T) {
	var buf bytes.Buffer
	p := NewBatchProgress(&buf, 10, 1)
	p.Observe(transfer.Progress{Digest: "a", BytesAcknowledged: 5})
	p.Finish()

	assert.Zero(t, p.Current())
	assert.Zero(t, p.Elapsed())
	assert.Empty(t, buf.String())
}

func TestBatchProgress_Track(t *testing.T) {
	var buf bytes.Buffer
	p := NewBatchProgress(&buf, 8, 4)
	p.Start()

	ch := make(chan transfer.Progress, 3)
	ch <- transfer.Progress{Digest: "a", BytesAcknowledged: 4}
	ch <- transfer.Progress{Digest: "a", BytesAcknowledged: 6}
	ch <- transfer.Progress{Digest: "b", BytesAcknowledged: 2}
	close(ch)
	p.Track(ch)

	assert.Equal(t, int64(8), p.Current())
	assert.Contains(t, buf.String(), "(100.0%)")
}
