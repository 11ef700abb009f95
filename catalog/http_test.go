package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/poiesic/filedrop/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPIndex_Check(t *testing.T) {
	var got checkRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/duplicates/check", r.URL.Path)
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		if got.Digest == "dup" {
			w.Write([]byte(`{"isDuplicate":true,"existingRecord":{"id":"rec-9","displayName":"notes.pdf","sizeBytes":100,"createdAt":"2025-01-02T03:04:05Z","scopeId":"cs101"}}`))
			return
		}
		w.Write([]byte(`{"isDuplicate":false}`))
	}))
	defer srv.Close()

	idx, err := NewHTTPIndex(srv.URL+"/api/", WithBearerToken("t0k"))
	require.NoError(t, err)

	check, err := idx.Check(context.Background(), "dup", "cs101")
	require.NoError(t, err)
	assert.Equal(t, checkRequest{Digest: "dup", ScopeID: "cs101"}, got)
	assert.Equal(t, "Bearer t0k", auth)
	assert.True(t, check.IsDuplicate)
	assert.Equal(t, &core.ExistingRecord{
		ID: "rec-9", DisplayName: "notes.pdf", SizeBytes: 100,
		CreatedAt: check.Existing.CreatedAt, ScopeID: "cs101",
	}, check.Existing)
	assert.Equal(t, 2025, check.Existing.CreatedAt.Year())

	check, err = idx.Check(context.Background(), "fresh", "")
	require.NoError(t, err)
	assert.False(t, check.IsDuplicate)
	assert.Empty(t, got.ScopeID)
}

func TestHTTPIndex_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "catalog down", http.StatusBadGateway)
	}))
	defer srv.Close()

	idx, err := NewHTTPIndex(srv.URL)
	require.NoError(t, err)

	_, err = idx.Check(context.Background(), "abc", "")
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.ErrorContains(t, err, "catalog down")
}

func TestHTTPIndex_MalformedDuplicate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"isDuplicate":true}`))
	}))
	defer srv.Close()

	idx, err := NewHTTPIndex(srv.URL)
	require.NoError(t, err)
	_, err = idx.Check(context.Background(), "abc", "")
	assert.Error(t, err)
}

func TestNewHTTPIndex_RequiresURL(t *testing.T) {
	_, err := NewHTTPIndex("")
	assert.Error(t, err)
}
