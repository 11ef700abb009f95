package ingestion

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/filedrop/classify"
	"github.com/poiesic/filedrop/core"
	"github.com/poiesic/filedrop/hashing"
	"github.com/poiesic/filedrop/transfer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPipeline_RequiresDependencies(t *testing.T) {
	f := newFixture(t)

	_, err := NewPipeline(nil, f.index, f.endpoint)
	assert.ErrorIs(t, err, ErrSessionStoreRequired)

	_, err = NewPipeline(f.store, nil, f.endpoint)
	assert.ErrorIs(t, err, ErrIndexRequired)

	_, err = NewPipeline(f.store, f.index, nil)
	assert.ErrorIs(t, err, ErrEndpointRequired)

	_, err = NewPipeline(f.store, f.index, f.endpoint, WithChunkSize(0))
	assert.Error(t, err)
}

func TestRun_UploadsInInputOrder(t *testing.T) {
	f := newFixture(t)
	f.write(t, "/in/a.txt", []byte("alpha contents"))
	f.write(t, "/in/b.txt", []byte("bravo contents, a little longer"))
	f.write(t, "/in/c.txt", []byte("charlie"))
	p := f.pipeline(t, WithChunkSize(8))

	results, err := p.Run(context.Background(), files("/in/a.txt", "/in/b.txt", "/in/c.txt"), RunOptions{})
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, name := range []string{"a.txt", "b.txt", "c.txt"} {
		assert.Equal(t, name, results[i].FileName)
		assert.Equal(t, core.OutcomeUploaded, results[i].Outcome, results[i].Message)
		assert.NotEmpty(t, results[i].RecordID)
		assert.Len(t, results[i].Digest, 64)
	}
	assert.Len(t, f.endpoint.Creates(), 3)
}

func TestRun_FailureIsolation(t *testing.T) {
	f := newFixture(t)
	f.write(t, "/in/one.txt", []byte("first file"))
	f.write(t, "/in/three.txt", []byte("third file"))
	p := f.pipeline(t)

	results, err := p.Run(context.Background(), files("/in/one.txt", "/in/missing.txt", "/in/three.txt"), RunOptions{})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, core.OutcomeUploaded, results[0].Outcome)
	assert.Equal(t, core.OutcomeFailed, results[1].Outcome)
	assert.Equal(t, core.KindValidation, results[1].ErrorKind)
	assert.Equal(t, "missing.txt", results[1].FileName)
	assert.Equal(t, core.OutcomeUploaded, results[2].Outcome)
}

func TestRun_ValidationRules(t *testing.T) {
	f := newFixture(t)
	f.write(t, "/in/empty.txt", nil)
	f.write(t, "/in/big.txt", []byte("0123456789"))
	f.write(t, "/in/ok.txt", []byte("small"))
	f.write(t, "/in/image.png", append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...))
	require.NoError(t, f.fs.MkdirAll("/in/dir", 0o755))
	p := f.pipeline(t, WithMaxFileSize(8), WithAllowedMimeTypes("text/*"))

	results, err := p.Run(context.Background(),
		files("/in/empty.txt", "/in/big.txt", "/in/dir", "/in/image.png", "/in/ok.txt", ""), RunOptions{})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		assert.Equal(t, core.OutcomeFailed, results[i].Outcome, results[i].FileName)
		assert.Equal(t, core.KindValidation, results[i].ErrorKind, results[i].FileName)
	}
	assert.Contains(t, results[3].Message, "image/png")
	assert.Equal(t, core.OutcomeUploaded, results[4].Outcome)
	assert.Equal(t, core.KindValidation, results[5].ErrorKind)
	require.Len(t, f.endpoint.Creates(), 1)
	assert.Equal(t, "text/plain; charset=utf-8", f.endpoint.Creates()[0].MimeType)
}

func TestRun_DeclaredMimeTypeWins(t *testing.T) {
	f := newFixture(t)
	f.write(t, "/in/notes.md", []byte("# heading"))
	p := f.pipeline(t)

	results, err := p.Run(context.Background(), []File{{Path: "/in/notes.md", MimeType: "text/markdown"}}, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeUploaded, results[0].Outcome)
	assert.Equal(t, "text/markdown", f.endpoint.Creates()[0].MimeType)
}

func TestRun_DuplicatesNeverTransferred(t *testing.T) {
	f := newFixture(t)
	known := []byte("already in the catalog")
	f.write(t, "/in/old.txt", known)
	f.write(t, "/in/new.txt", []byte("brand new"))
	digest, err := hashing.HashBytes(known)
	require.NoError(t, err)
	f.index.Add(digest, core.ExistingRecord{ID: "rec-existing", DisplayName: "old.txt", CreatedAt: time.Now()})
	p := f.pipeline(t)

	results, err := p.Run(context.Background(), files("/in/old.txt", "/in/new.txt"), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, core.OutcomeDuplicate, results[0].Outcome)
	assert.Equal(t, "rec-existing", results[0].ExistingRecordID)
	assert.Equal(t, digest, results[0].Digest)
	assert.Equal(t, core.OutcomeUploaded, results[1].Outcome)

	creates := f.endpoint.Creates()
	require.Len(t, creates, 1)
	assert.Equal(t, "new.txt", creates[0].FileName)
}

func TestRun_ScopeNarrowsDuplicateCheck(t *testing.T) {
	f := newFixture(t)
	data := []byte("shared handout")
	f.write(t, "/in/handout.txt", data)
	digest, err := hashing.HashBytes(data)
	require.NoError(t, err)
	f.index.Add(digest, core.ExistingRecord{ID: "rec-cs", ScopeID: "cs101", CreatedAt: time.Now()})
	p := f.pipeline(t)

	results, err := p.Run(context.Background(), files("/in/handout.txt"), RunOptions{ScopeID: "ma201"})
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeUploaded, results[0].Outcome)
	assert.Equal(t, "ma201", results[0].ScopeID)
	assert.Equal(t, "ma201", f.endpoint.Creates()[0].ScopeID)
}

// advisoryHasher always returns the same advisory digest.
type advisoryHasher struct{}

func (advisoryHasher) Hash(ctx context.Context, r io.Reader, info hashing.FileInfo) (core.Digest, error) {
	return core.Digest{Value: "advisory-" + info.Name, Advisory: true}, nil
}

func TestRun_AdvisoryDigestSkipsDuplicateCheck(t *testing.T) {
	f := newFixture(t)
	f.write(t, "/in/a.txt", []byte("content"))
	f.index.Add("advisory-a.txt", core.ExistingRecord{ID: "rec-x", CreatedAt: time.Now()})
	p := f.pipeline(t, WithHasher(advisoryHasher{}))

	results, err := p.Run(context.Background(), files("/in/a.txt"), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeUploaded, results[0].Outcome)
}

// pinnedIdentity is the metadata fallback with every file sharing one mtime,
// as after `cp -p` into separate folders.
type pinnedIdentity struct{}

func (pinnedIdentity) Hash(ctx context.Context, r io.Reader, info hashing.FileInfo) (core.Digest, error) {
	info.ModTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return hashing.IdentityHasher{}.Hash(ctx, r, info)
}

func TestRun_AdvisoryDigestsKeepSameNamedFilesApart(t *testing.T) {
	for _, concurrency := range []int{1, 2} {
		t.Run(fmt.Sprintf("concurrency=%d", concurrency), func(t *testing.T) {
			f := newFixture(t)
			f.write(t, "/a/notes.txt", []byte("alpha content"))
			f.write(t, "/b/notes.txt", []byte("bravo content"))
			p := f.pipeline(t, WithHasher(pinnedIdentity{}), WithConcurrency(concurrency))

			results, err := p.Run(context.Background(), files("/a/notes.txt", "/b/notes.txt"), RunOptions{})
			require.NoError(t, err)

			for _, r := range results {
				assert.Equal(t, core.OutcomeUploaded, r.Outcome, r.Message)
			}
			assert.NotEqual(t, results[0].Digest, results[1].Digest)
			assert.NotEqual(t, results[0].RecordID, results[1].RecordID)
			require.Len(t, f.endpoint.Creates(), 2)
			assert.ElementsMatch(t,
				[]string{"alpha content", "bravo content"},
				[]string{string(f.endpoint.Data("mem://1")), string(f.endpoint.Data("mem://2"))})
		})
	}
}

func TestRun_CollidingAdvisoryKeysUploadInTurn(t *testing.T) {
	f := newFixture(t)
	f.write(t, "/x/notes.txt", []byte("first notes"))
	f.write(t, "/y/notes.txt", []byte("second notes"))
	var once sync.Once
	f.endpoint.WriteFunc = func(ctx context.Context, call int, offset int64) error {
		once.Do(func() { time.Sleep(50 * time.Millisecond) })
		return nil
	}
	p := f.pipeline(t, WithHasher(advisoryHasher{}), WithConcurrency(2))

	results, err := p.Run(context.Background(), files("/x/notes.txt", "/y/notes.txt"), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, core.OutcomeUploaded, results[0].Outcome)
	assert.Equal(t, core.OutcomeUploaded, results[1].Outcome)
	assert.Len(t, f.endpoint.Creates(), 2)
	sessions, err := f.store.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestRun_QuotaDenied(t *testing.T) {
	f := newFixture(t)
	f.write(t, "/in/a.txt", []byte("a"))
	f.write(t, "/in/b.txt", []byte("b"))
	p := f.pipeline(t)
	retry := 30

	results, err := p.Run(context.Background(), files("/in/a.txt", "/in/b.txt"),
		RunOptions{Quota: &core.QuotaDecision{Allowed: false, RetryAfterSeconds: &retry}})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, core.OutcomeFailed, r.Outcome)
		assert.Equal(t, core.KindQuota, r.ErrorKind)
		assert.Contains(t, r.Message, "retry after 30s")
	}
	assert.Empty(t, f.endpoint.Creates())

	results, err = p.Run(context.Background(), files("/in/a.txt"), RunOptions{Quota: &core.QuotaDecision{Allowed: true}})
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeUploaded, results[0].Outcome)
}

func TestRun_ClassifiesWhenNoScope(t *testing.T) {
	f := newFixture(t)
	f.write(t, "/in/lecture.txt", []byte("CS101 lecture notes. Welcome to CS101, where we begin our study of computer science."))
	f.write(t, "/in/cs101_notes.pdf", []byte("%PDF-1.4 binary"))
	engine, err := classify.NewEngine()
	require.NoError(t, err)
	classifier, err := classify.NewClassifier(engine)
	require.NoError(t, err)
	candidates := []core.Candidate{
		{ID: "cs101", Code: "CS101", Name: "Intro to Computer Science"},
		{ID: "ma201", Code: "MA201", Name: "Calculus II"},
	}
	p := f.pipeline(t, WithClassifier(classifier), WithCandidates(candidates))

	results, err := p.Run(context.Background(), files("/in/lecture.txt", "/in/cs101_notes.pdf"), RunOptions{})
	require.NoError(t, err)

	require.NotNil(t, results[0].Classification)
	assert.Equal(t, "cs101", results[0].ScopeID)
	assert.False(t, results[0].Classification.FromFilename)
	require.NotNil(t, results[1].Classification)
	assert.True(t, results[1].Classification.FromFilename)
	for _, c := range f.endpoint.Creates() {
		assert.Equal(t, "cs101", c.ScopeID)
	}

	results, err = p.Run(context.Background(), files("/in/lecture.txt"), RunOptions{ScopeID: "ma201"})
	require.NoError(t, err)
	assert.Nil(t, results[0].Classification)
	assert.Equal(t, "ma201", results[0].ScopeID)
}

func TestRun_IdenticalFilesInOneBatch(t *testing.T) {
	f := newFixture(t)
	data := []byte("same bytes in two places")
	f.write(t, "/in/a.txt", data)
	f.write(t, "/in/copy-of-a.txt", data)
	var once sync.Once
	f.endpoint.WriteFunc = func(ctx context.Context, call int, offset int64) error {
		// hold the first upload open long enough for its twin to find it
		once.Do(func() { time.Sleep(100 * time.Millisecond) })
		return nil
	}
	p := f.pipeline(t, WithConcurrency(2))

	results, err := p.Run(context.Background(), files("/in/a.txt", "/in/copy-of-a.txt"), RunOptions{})
	require.NoError(t, err)

	outcomes := map[core.Outcome]int{}
	var recordID, existingID string
	for _, r := range results {
		outcomes[r.Outcome]++
		if r.Outcome == core.OutcomeUploaded {
			recordID = r.RecordID
		} else {
			existingID = r.ExistingRecordID
		}
	}
	assert.Equal(t, 1, outcomes[core.OutcomeUploaded])
	assert.Equal(t, 1, outcomes[core.OutcomeDuplicate])
	assert.Equal(t, recordID, existingID)
	assert.Len(t, f.endpoint.Creates(), 1)
}

func TestRun_IdenticalFilesInLaterRound(t *testing.T) {
	f := newFixture(t)
	data := []byte("same bytes, different rounds")
	f.write(t, "/in/a.txt", data)
	f.write(t, "/in/b.txt", []byte("something else"))
	f.write(t, "/in/a-again.txt", data)
	p := f.pipeline(t, WithConcurrency(1))

	results, err := p.Run(context.Background(), files("/in/a.txt", "/in/b.txt", "/in/a-again.txt"), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, core.OutcomeUploaded, results[0].Outcome)
	assert.Equal(t, core.OutcomeUploaded, results[1].Outcome)
	assert.Equal(t, core.OutcomeDuplicate, results[2].Outcome)
	assert.Equal(t, results[0].RecordID, results[2].ExistingRecordID)
	assert.Len(t, f.endpoint.Creates(), 2)
}

func TestRun_TransientFailureKeepsSession(t *testing.T) {
	f := newFixture(t)
	data := []byte("0123456789abcdef")
	f.write(t, "/in/a.txt", data)
	f.write(t, "/in/b.txt", []byte("short"))
	f.endpoint.WriteFunc = func(ctx context.Context, call int, offset int64) error {
		if offset == 8 {
			return fmt.Errorf("%w: connection reset", core.ErrTransient)
		}
		return nil
	}
	p := f.pipeline(t, WithChunkSize(8), WithConcurrency(1))

	results, err := p.Run(context.Background(), files("/in/a.txt", "/in/b.txt"), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeFailed, results[0].Outcome)
	assert.Equal(t, core.KindTransient, results[0].ErrorKind)
	assert.Equal(t, core.OutcomeUploaded, results[1].Outcome)

	session, err := f.store.Get(context.Background(), results[0].Digest)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, int64(8), session.BytesAcknowledged)
}

func TestRun_CancelPausesAndNextRunResumes(t *testing.T) {
	f := newFixture(t)
	data := []byte("0123456789ab")
	f.write(t, "/in/a.txt", data)
	f.write(t, "/in/b.txt", []byte("second"))

	ctx, cancel := context.WithCancel(context.Background())
	f.endpoint.WriteFunc = func(wctx context.Context, call int, offset int64) error {
		if call == 2 {
			cancel()
			<-wctx.Done()
			return wctx.Err()
		}
		return nil
	}
	p := f.pipeline(t, WithChunkSize(4), WithConcurrency(1))

	results, err := p.Run(ctx, files("/in/a.txt", "/in/b.txt"), RunOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 2)
	assert.Equal(t, core.KindCanceled, results[0].ErrorKind)
	assert.Equal(t, core.KindCanceled, results[1].ErrorKind)

	session, err := f.store.Get(context.Background(), results[0].Digest)
	require.NoError(t, err)
	require.NotNil(t, session, "paused transfer keeps its session")
	assert.Equal(t, int64(4), session.BytesAcknowledged)

	f.endpoint.WriteFunc = nil
	results, err = p.Run(context.Background(), files("/in/a.txt"), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeUploaded, results[0].Outcome)

	// offset 0 once, offset 4 interrupted and resent, then 8; nothing below the persisted offset
	assert.Equal(t, []int64{0, 4, 4, 8}, f.endpoint.Chunks())
	assert.Len(t, f.endpoint.Creates(), 1)
	assert.Equal(t, data, f.endpoint.Data("mem://1"))
}

func TestRun_AbortDiscardsSessions(t *testing.T) {
	f := newFixture(t)
	f.write(t, "/in/a.txt", []byte("0123456789ab"))
	f.write(t, "/in/b.txt", []byte("never started"))
	p := f.pipeline(t, WithChunkSize(4), WithConcurrency(1))
	aborted := make(chan struct{})
	f.endpoint.WriteFunc = func(wctx context.Context, call int, offset int64) error {
		if call == 2 {
			go func() {
				p.Abort(context.Background())
				close(aborted)
			}()
			<-wctx.Done()
			return wctx.Err()
		}
		return nil
	}

	results, err := p.Run(context.Background(), files("/in/a.txt", "/in/b.txt"), RunOptions{})
	<-aborted
	assert.ErrorIs(t, err, ErrBatchAborted)
	require.Len(t, results, 2)
	assert.Equal(t, core.KindCanceled, results[0].ErrorKind)
	assert.Equal(t, core.KindCanceled, results[1].ErrorKind)

	session, err := f.store.Get(context.Background(), results[0].Digest)
	require.NoError(t, err)
	assert.Nil(t, session, "aborted transfer discards its session")
	assert.Equal(t, []string{"mem://1"}, f.endpoint.Terminated())
	assert.Len(t, f.endpoint.Creates(), 1)
}

func TestRun_BatchPauseBetweenRounds(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"a", "b", "c"} {
		f.write(t, "/in/"+name+".txt", []byte("file "+name))
	}
	p := f.pipeline(t, WithConcurrency(1), WithBatchPause(50*time.Millisecond))

	start := time.Now()
	results, err := p.Run(context.Background(), files("/in/a.txt", "/in/b.txt", "/in/c.txt"), RunOptions{})
	require.NoError(t, err)
	assert.Len(t, results, 3)
	// two pauses: between rounds, never after the last
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestRun_MetricsAndProgress(t *testing.T) {
	f := newFixture(t)
	f.write(t, "/in/a.txt", []byte("0123456789"))
	f.write(t, "/in/b.txt", []byte("01234"))
	reg := prometheus.NewRegistry()
	events := make(chan transfer.Progress)
	var buf bytes.Buffer
	tracker := NewBatchProgress(&buf, 15, 1)
	tracker.Start()
	tracked := make(chan struct{})
	go func() {
		tracker.Track(events)
		close(tracked)
	}()

	p := f.pipeline(t, WithMetrics(reg), WithProgress(events), WithChunkSize(4))
	results, err := p.Run(context.Background(), files("/in/a.txt", "/in/b.txt", "/in/missing.txt"), RunOptions{})
	require.NoError(t, err)
	close(events)
	<-tracked
	tracker.Finish()

	assert.Equal(t, core.OutcomeUploaded, results[0].Outcome)
	assert.Equal(t, float64(2), testutil.ToFloat64(p.metrics.files.WithLabelValues("uploaded", "")))
	assert.Equal(t, float64(1), testutil.ToFloat64(p.metrics.files.WithLabelValues("failed", "validation")))
	assert.Equal(t, float64(15), testutil.ToFloat64(p.metrics.bytes))
	assert.Equal(t, float64(0), testutil.ToFloat64(p.metrics.inFlight))
	assert.Equal(t, int64(15), tracker.Current())
	assert.True(t, strings.Contains(buf.String(), "100.0%"))
}

func TestRun_RetriesAreCounted(t *testing.T) {
	f := newFixture(t)
	f.write(t, "/in/a.txt", []byte("abc"))
	f.endpoint.WriteFunc = func(ctx context.Context, call int, offset int64) error {
		if call == 1 {
			return fmt.Errorf("%w: flaky", core.ErrTransient)
		}
		return nil
	}
	reg := prometheus.NewRegistry()
	p := f.pipeline(t, WithMetrics(reg))

	results, err := p.Run(context.Background(), files("/in/a.txt"), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeUploaded, results[0].Outcome)
	assert.Equal(t, float64(1), testutil.ToFloat64(p.metrics.retries))
}

func TestNewPipeline_DuplicateMetricsRegistration(t *testing.T) {
	f := newFixture(t)
	reg := prometheus.NewRegistry()
	f.pipeline(t, WithMetrics(reg))

	_, err := NewPipeline(f.store, f.index, f.endpoint, WithMetrics(reg))
	assert.Error(t, err)
}
