package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/poiesic/filedrop/core"
)

const defaultHTTPTimeout = 15 * time.Second

// HTTPIndex queries the catalog service's duplicate-check endpoint:
//
//	POST {base}/duplicates/check  {"digest": "...", "scopeId": "..."}
type HTTPIndex struct {
	endpoint string
	client   *http.Client
	token    string
	logger   *slog.Logger
}

var _ Index = (*HTTPIndex)(nil)

// HTTPOption configures an HTTPIndex.
type HTTPOption func(*HTTPIndex) error

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(h *HTTPIndex) error {
		if client == nil {
			return fmt.Errorf("http client cannot be nil")
		}
		h.client = client
		return nil
	}
}

// WithBearerToken authenticates requests with token.
func WithBearerToken(token string) HTTPOption {
	return func(h *HTTPIndex) error {
		h.token = token
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) HTTPOption {
	return func(h *HTTPIndex) error {
		h.logger = logger
		return nil
	}
}

// NewHTTPIndex creates an index backed by the catalog service at baseURL.
func NewHTTPIndex(baseURL string, opts ...HTTPOption) (*HTTPIndex, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("catalog url is required")
	}
	h := &HTTPIndex{
		endpoint: strings.TrimRight(baseURL, "/") + "/duplicates/check",
		client:   &http.Client{Timeout: defaultHTTPTimeout},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(h); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	h.logger = h.logger.With("component", "catalog-http")
	return h, nil
}

type checkRequest struct {
	Digest  string `json:"digest"`
	ScopeID string `json:"scopeId,omitempty"`
}

func (h *HTTPIndex) Check(ctx context.Context, digest, scopeID string) (*core.DuplicateCheck, error) {
	if digest == "" {
		return nil, ErrDigestRequired
	}
	body, err := json.Marshal(checkRequest{Digest: digest, ScopeID: scopeID})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: duplicate check: %w", core.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: %d: %s", ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var check core.DuplicateCheck
	if err := json.NewDecoder(resp.Body).Decode(&check); err != nil {
		return nil, fmt.Errorf("decode duplicate check: %w", err)
	}
	if check.IsDuplicate && check.Existing == nil {
		return nil, fmt.Errorf("decode duplicate check: duplicate without existing record")
	}
	h.logger.Debug("duplicate check", "digest", digest, "scope", scopeID, "duplicate", check.IsDuplicate)
	return &check, nil
}
