package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyctaxi/taxietl/internal/errs"
)

func TestEnsureCachedReturnsExistingFile(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "cached.bin")
	require.NoError(t, os.WriteFile(dest, []byte("already here"), 0o644))

	f := New(dir, zerolog.Nop())
	got, err := f.ensureCached(context.Background(), "http://unused.invalid/x", dest)
	require.NoError(t, err)
	assert.Equal(t, dest, got)
}

func TestEnsureCachedDownloadsAndRenames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("parquet-bytes"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "out", "file.parquet")

	f := New(dir, zerolog.Nop())
	got, err := f.ensureCached(context.Background(), srv.URL, dest)
	require.NoError(t, err)
	assert.Equal(t, dest, got)

	body, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "parquet-bytes", string(body))
}

func TestEnsureCachedNotFoundClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := New(dir, zerolog.Nop())

	_, err := f.ensureCached(context.Background(), srv.URL, filepath.Join(dir, "missing.parquet"))
	require.Error(t, err)
	assert.Equal(t, errs.NotFound, errs.KindOf(err))
}

func TestEnsureCachedNetworkExhaustedAfterRetries(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := New(dir, zerolog.Nop())

	_, err := f.ensureCached(context.Background(), srv.URL, filepath.Join(dir, "flaky.parquet"))
	require.Error(t, err)
	assert.Equal(t, errs.Network, errs.KindOf(err))
	assert.Equal(t, maxAttempts, calls)
}
