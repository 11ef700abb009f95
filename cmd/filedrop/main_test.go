package main

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/filedrop/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// uploadServer is a minimal tus server keeping uploads in memory.
type uploadServer struct {
	mu      sync.Mutex
	uploads map[string][]byte
	next    int
}

func newUploadServer(t *testing.T) *httptest.Server {
	t.Helper()
	s := &uploadServer{uploads: make(map[string][]byte)}
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return srv
}

func (s *uploadServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch r.Method {
	case http.MethodPost:
		s.next++
		loc := "/files/" + strconv.Itoa(s.next)
		s.uploads[loc] = nil
		w.Header().Set("Location", loc)
		w.WriteHeader(http.StatusCreated)
	case http.MethodHead:
		data, ok := s.uploads[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Upload-Offset", strconv.Itoa(len(data)))
		w.WriteHeader(http.StatusOK)
	case http.MethodPatch:
		data, ok := s.uploads[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("Upload-Offset") != strconv.Itoa(len(data)) {
			w.WriteHeader(http.StatusConflict)
			return
		}
		body, _ := io.ReadAll(r.Body)
		s.uploads[r.URL.Path] = append(data, body...)
		w.Header().Set("Upload-Offset", strconv.Itoa(len(s.uploads[r.URL.Path])))
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		delete(s.uploads, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", "")
	return &config.Config{
		LogLevel:     "error",
		SessionsDir:  filepath.Join(t.TempDir(), "sessions"),
		SessionTTL:   time.Hour,
		Concurrency:  1,
		ChunkSize:    4,
		ChunkTimeout: 5 * time.Second,
		MaxRetries:   0,
		RetryDelay:   time.Millisecond,
		BatchPause:   0,
		MaxFileSize:  1 << 20,
	}
}

// runApp runs the CLI and returns its standard output.
func runApp(t *testing.T, cfg *config.Config, args ...string) (string, error) {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var out bytes.Buffer
	app := newApp(cfg)
	app.Writer = &out
	app.ErrWriter = io.Discard
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.Run(append([]string{"filedrop"}, args...))
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewApp_FlagDefaultsFromConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Concurrency = 7
	cfg.Endpoint = "https://uploads.example/files"
	app := newApp(cfg)

	var ingest *cli.Command
	for _, cmd := range app.Commands {
		if cmd.Name == "ingest" {
			ingest = cmd
		}
	}
	require.NotNil(t, ingest)

	for _, flag := range ingest.Flags {
		switch f := flag.(type) {
		case *cli.IntFlag:
			if f.Name == "concurrency" {
				assert.Equal(t, 7, f.Value)
			}
		case *cli.StringFlag:
			if f.Name == "endpoint" {
				assert.Equal(t, "https://uploads.example/files", f.Value)
			}
			if f.Name == "sessions" {
				assert.Equal(t, cfg.SessionsDir, f.Value)
			}
		}
	}
}

func TestIngest_InvalidInvocations(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	file := writeFile(t, dir, "a.txt", "hello")

	_, err := runApp(t, cfg, "ingest")
	assert.ErrorContains(t, err, "at least one file")

	_, err = runApp(t, cfg, "ingest", file)
	assert.ErrorContains(t, err, "--endpoint or --s3-bucket")

	_, err = runApp(t, cfg, "--log-level", "loud", "ingest", file)
	assert.ErrorContains(t, err, "invalid log level")
}

func TestIngest_UploadsBatch(t *testing.T) {
	cfg := testConfig(t)
	srv := newUploadServer(t)
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "first file contents")
	again := writeFile(t, dir, "a-copy.txt", "first file contents")
	b := writeFile(t, dir, "b.txt", "second")
	missing := filepath.Join(dir, "missing.txt")
	metrics := filepath.Join(dir, "filedrop.prom")

	out, err := runApp(t, cfg, "ingest",
		"--endpoint", srv.URL+"/files",
		"--metrics-file", metrics,
		a, again, b, missing)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "uploaded   a.txt record=1"), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "duplicate  a-copy.txt existing=1"), lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "uploaded   b.txt record=2"), lines[2])
	assert.True(t, strings.HasPrefix(lines[3], "failed     missing.txt kind=validation"), lines[3])

	prom, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "filedrop_files_total")
	assert.Contains(t, string(prom), `outcome="uploaded"} 2`)
}

func TestIngest_PipelineErrorLeavesNoGoroutines(t *testing.T) {
	cfg := testConfig(t)
	srv := newUploadServer(t)
	file := writeFile(t, t.TempDir(), "a.txt", "hello")
	before := runtime.NumGoroutine()

	_, err := runApp(t, cfg, "ingest", "--endpoint", srv.URL+"/files", "--chunk-size", "0", file)
	assert.ErrorContains(t, err, "failed to create pipeline")

	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before
	}, 2*time.Second, 10*time.Millisecond)
}

func TestIngest_AllFailedExitsNonZero(t *testing.T) {
	cfg := testConfig(t)
	srv := newUploadServer(t)
	dir := t.TempDir()

	_, err := runApp(t, cfg, "ingest", "--endpoint", srv.URL+"/files",
		filepath.Join(dir, "nope.txt"), filepath.Join(dir, "nada.txt"))
	require.Error(t, err)

	var exit cli.ExitCoder
	require.True(t, errors.As(err, &exit))
	assert.Equal(t, 1, exit.ExitCode())
}

func TestClassify(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	candidates := writeFile(t, dir, "courses.json", `[
		{"id": "cs101", "code": "CS101", "name": "Intro to Computer Science"},
		{"id": "ma201", "code": "MA201", "name": "Calculus II"}
	]`)
	notes := writeFile(t, dir, "week1.txt",
		"CS101 lecture notes. Welcome to CS101, where we begin our study of computer science.")

	out, err := runApp(t, cfg, "classify", "--candidates", candidates, notes)
	require.NoError(t, err)
	assert.Contains(t, out, "cs101 at 64 by content")

	_, err = runApp(t, cfg, "classify", notes)
	assert.ErrorContains(t, err, "candidates")
}

func TestLoadCandidates(t *testing.T) {
	dir := t.TempDir()

	_, err := loadCandidates(writeFile(t, dir, "bad.json", `{"id": "x"}`))
	assert.Error(t, err)

	_, err = loadCandidates(writeFile(t, dir, "nocode.json", `[{"id": "x", "name": "X"}]`))
	assert.ErrorContains(t, err, "id and code are required")

	got, err := loadCandidates(writeFile(t, dir, "ok.json", `[{"id": "x", "code": "X1", "keywords": ["k"]}]`))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"k"}, got[0].Keywords)
}

func TestSessionsCommands(t *testing.T) {
	cfg := testConfig(t)

	out, err := runApp(t, cfg, "sessions", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No unfinished sessions.")

	out, err = runApp(t, cfg, "sessions", "sweep")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 0 expired session(s).")
}
