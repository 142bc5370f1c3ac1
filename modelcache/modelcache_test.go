package modelcache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilename(t *testing.T) {
	table := []struct {
		name string
		uri  string
		want string
	}{
		{"basename with extension", "https://example.com/models/densenet121.h5", "densenet121.h5"},
		{"query string stripped", "https://example.com/models/densenet121.h5?token=abc", "densenet121.h5"},
		{"no extension falls back to hash", "https://example.com/models/latest", ""},
		{"trailing slash falls back to hash", "https://example.com/models/", ""},
	}
	for _, tc := range table {
		t.Run(tc.name, func(t *testing.T) {
			got := Filename(tc.uri)
			if tc.want != "" {
				assert.Equal(t, tc.want, got)
			} else {
				assert.Contains(t, got, coreName)
				assert.Contains(t, got, ".bin")
			}
		})
	}
}

func TestFilenameDeterministic(t *testing.T) {
	a := "https://example.com/download?id=12345"
	b := "https://example.com/download?id=67890"

	assert.Equal(t, Filename(a), Filename(a))
	assert.NotEqual(t, Filename(a), Filename(b))
}

func TestEnsureAvailableDownloadsOnce(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write([]byte("model bytes"))
	}))
	defer srv.Close()

	uri := srv.URL + "/core.onnx"

	first, err := EnsureAvailable(ctx, uri, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "core.onnx"), first)
	assert.Equal(t, 1, hits)

	data, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, "model bytes", string(data))

	// A present, nonzero-size file is trusted without a network call.
	second, err := EnsureAvailable(ctx, uri, dir)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, hits)

	// Known gap: the cache never evicts, so the directory grows
	// unboundedly across distinct URIs.
}

func TestEnsureAvailableRedownloadsEmptyFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("fresh"))
	}))
	defer srv.Close()

	uri := srv.URL + "/core.onnx"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "core.onnx"), nil, 0644))

	got, err := EnsureAvailable(ctx, uri, dir)
	require.NoError(t, err)

	data, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(data))
}

func TestEnsureAvailableHTTPError(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := EnsureAvailable(ctx, srv.URL+"/core.onnx", dir)
	require.Error(t, err)

	var dlErr *DownloadError
	require.ErrorAs(t, err, &dlErr)

	// Nothing partial is left behind at the artifact path.
	_, statErr := os.Stat(filepath.Join(dir, "core.onnx"))
	assert.True(t, os.IsNotExist(statErr))
}
