package transfer

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/poiesic/filedrop/core"
)

// tus protocol headers.
const (
	tusVersion         = "1.0.0"
	headerTusResumable = "Tus-Resumable"
	headerUploadLength = "Upload-Length"
	headerUploadOffset = "Upload-Offset"
	headerUploadMeta   = "Upload-Metadata"
	headerUploadRecord = "Upload-Record-Id"
	contentTypeOffset  = "application/offset+octet-stream"
	defaultHTTPTimeout = 60 * time.Second
)

// HTTPEndpoint uploads to a tus 1.0 server.
type HTTPEndpoint struct {
	base    *url.URL
	client  *http.Client
	headers http.Header
	logger  *slog.Logger

	mu        sync.Mutex
	recordIDs map[string]string // location -> ID announced on the final PATCH
}

var _ Endpoint = (*HTTPEndpoint)(nil)

// HTTPOption configures an HTTPEndpoint.
type HTTPOption func(*HTTPEndpoint) error

// WithHTTPClient sets the HTTP client. Per-chunk timeouts come from the
// request context, so the client's own timeout should be generous.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(e *HTTPEndpoint) error {
		if client == nil {
			return errors.New("http client cannot be nil")
		}
		e.client = client
		return nil
	}
}

// WithHeader adds a header sent on every request, e.g. a signed-URL token.
func WithHeader(key, value string) HTTPOption {
	return func(e *HTTPEndpoint) error {
		e.headers.Add(key, value)
		return nil
	}
}

// WithHTTPLogger sets the logger.
func WithHTTPLogger(logger *slog.Logger) HTTPOption {
	return func(e *HTTPEndpoint) error {
		e.logger = logger
		return nil
	}
}

// NewHTTPEndpoint creates an endpoint that creates uploads by POSTing to baseURL.
func NewHTTPEndpoint(baseURL string, opts ...HTTPOption) (*HTTPEndpoint, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid endpoint url %q: scheme must be http or https", baseURL)
	}

	e := &HTTPEndpoint{
		base:      base,
		client:    &http.Client{Timeout: defaultHTTPTimeout},
		headers:   make(http.Header),
		logger:    slog.Default(),
		recordIDs: make(map[string]string),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	e.logger = e.logger.With("component", "tus-endpoint")

	return e, nil
}

// Create POSTs the upload length and metadata and returns the absolute upload URL.
func (e *HTTPEndpoint) Create(ctx context.Context, req CreateRequest) (string, error) {
	httpReq, err := e.newRequest(ctx, http.MethodPost, e.base.String(), nil)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set(headerUploadLength, strconv.FormatInt(req.SizeBytes, 10))
	if meta := encodeMetadata(req); meta != "" {
		httpReq.Header.Set(headerUploadMeta, meta)
	}

	resp, err := e.do(httpReq)
	if err != nil {
		return "", err
	}
	defer drain(resp)

	if !isSuccess(resp.StatusCode) {
		return "", &StatusError{Method: http.MethodPost, Code: resp.StatusCode}
	}
	loc := resp.Header.Get("Location")
	if loc == "" {
		return "", ErrLocationMissing
	}
	abs, err := e.base.Parse(loc)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrInvalidLocation, loc, err)
	}

	e.logger.Debug("created upload", "location", abs.String(), "size", req.SizeBytes)
	return abs.String(), nil
}

// Offset HEADs the upload and returns its Upload-Offset.
func (e *HTTPEndpoint) Offset(ctx context.Context, location string) (int64, error) {
	httpReq, err := e.newRequest(ctx, http.MethodHead, location, nil)
	if err != nil {
		return 0, err
	}
	resp, err := e.do(httpReq)
	if err != nil {
		return 0, err
	}
	defer drain(resp)

	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusGone:
		return 0, fmt.Errorf("%w: %s", ErrRemoteGone, location)
	case !isSuccess(resp.StatusCode):
		return 0, &StatusError{Method: http.MethodHead, Code: resp.StatusCode}
	}

	offset, err := parseOffset(resp.Header.Get(headerUploadOffset))
	if err != nil {
		return 0, err
	}
	return offset, nil
}

// WriteChunk PATCHes chunk at offset. A server-reported offset that differs
// from offset+len(chunk) is corruption.
func (e *HTTPEndpoint) WriteChunk(ctx context.Context, location string, offset int64, chunk []byte) (int64, error) {
	httpReq, err := e.newRequest(ctx, http.MethodPatch, location, bytes.NewReader(chunk))
	if err != nil {
		return 0, err
	}
	httpReq.ContentLength = int64(len(chunk))
	httpReq.Header.Set("Content-Type", contentTypeOffset)
	httpReq.Header.Set(headerUploadOffset, strconv.FormatInt(offset, 10))

	resp, err := e.do(httpReq)
	if err != nil {
		return 0, err
	}
	defer drain(resp)

	expected := offset + int64(len(chunk))
	switch {
	case resp.StatusCode == http.StatusConflict:
		return 0, fmt.Errorf("%w: server rejected offset %d", core.ErrCorruption, offset)
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusGone:
		return 0, fmt.Errorf("%w: %s", ErrRemoteGone, location)
	case !isSuccess(resp.StatusCode):
		return 0, &StatusError{Method: http.MethodPatch, Code: resp.StatusCode}
	}

	if raw := resp.Header.Get(headerUploadOffset); raw != "" {
		acked, err := parseOffset(raw)
		if err != nil {
			return 0, err
		}
		if acked != expected {
			return 0, fmt.Errorf("%w: server acknowledged %d, expected %d", core.ErrCorruption, acked, expected)
		}
	}
	if id := resp.Header.Get(headerUploadRecord); id != "" {
		e.mu.Lock()
		e.recordIDs[location] = id
		e.mu.Unlock()
	}

	return expected, nil
}

// Complete returns the record ID for a finished upload. tus has no explicit
// finalize step: the ID is the one announced on the last PATCH, or the final
// path segment of the location.
func (e *HTTPEndpoint) Complete(ctx context.Context, location string, totalBytes int64) (string, error) {
	e.mu.Lock()
	id, ok := e.recordIDs[location]
	delete(e.recordIDs, location)
	e.mu.Unlock()
	if ok {
		return id, nil
	}

	u, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidLocation, err)
	}
	id = path.Base(strings.TrimSuffix(u.Path, "/"))
	if id == "" || id == "." || id == "/" {
		return "", fmt.Errorf("%w: no record id in %q", ErrInvalidLocation, location)
	}
	return id, nil
}

// Terminate DELETEs the upload. Unknown uploads are ignored.
func (e *HTTPEndpoint) Terminate(ctx context.Context, location string) error {
	httpReq, err := e.newRequest(ctx, http.MethodDelete, location, nil)
	if err != nil {
		return err
	}
	resp, err := e.do(httpReq)
	if err != nil {
		return err
	}
	defer drain(resp)

	e.mu.Lock()
	delete(e.recordIDs, location)
	e.mu.Unlock()

	if isSuccess(resp.StatusCode) || resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return nil
	}
	return &StatusError{Method: http.MethodDelete, Code: resp.StatusCode}
}

func (e *HTTPEndpoint) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidLocation, err)
	}
	for k, vs := range e.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set(headerTusResumable, tusVersion)
	return req, nil
}

func (e *HTTPEndpoint) do(req *http.Request) (*http.Response, error) {
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Redacted(), err)
	}
	return resp, nil
}

// encodeMetadata renders the tus Upload-Metadata header: comma-separated
// "key base64(value)" pairs, empty values omitted.
func encodeMetadata(req CreateRequest) string {
	pairs := []struct{ key, value string }{
		{"filename", req.FileName},
		{"filetype", req.MimeType},
		{"digest", req.Digest},
		{"scope", req.ScopeID},
	}
	var parts []string
	for _, p := range pairs {
		if p.value == "" {
			continue
		}
		parts = append(parts, p.key+" "+base64.StdEncoding.EncodeToString([]byte(p.value)))
	}
	return strings.Join(parts, ",")
}

func parseOffset(raw string) (int64, error) {
	if raw == "" {
		return 0, fmt.Errorf("%w: missing %s header", ErrUnexpectedStatus, headerUploadOffset)
	}
	offset, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || offset < 0 {
		return 0, fmt.Errorf("%w: bad %s header %q", core.ErrCorruption, headerUploadOffset, raw)
	}
	return offset, nil
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}

// drain discards the rest of the body so the connection can be reused.
func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	resp.Body.Close()
}
