// Package modelcache resolves a remote model artifact URI to a local
// file, downloading at most once per cache directory.
package modelcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

const coreName = "core_model"

var downloadTimeout = 120 * time.Second

var httpClient = &http.Client{Timeout: downloadTimeout}

// DownloadError reports a failed artifact fetch. It is fatal at
// startup: the service must not accept traffic without an artifact.
type DownloadError struct {
	URI string
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s: %v", e.URI, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// Filename derives the cache filename for uri. A path basename that
// carries an extension is used verbatim; anything else gets a stable
// name from a hash of the full URI, so the same URI always resolves to
// the same file.
func Filename(uri string) string {
	base := path.Base(strings.SplitN(uri, "?", 2)[0])
	if base != "" && base != "." && base != "/" && strings.Contains(base, ".") {
		return base
	}
	sum := sha256.Sum256([]byte(uri))
	return fmt.Sprintf("%s_%s.bin", coreName, hex.EncodeToString(sum[:])[:16])
}

// EnsureAvailable returns the local path of the artifact at uri,
// downloading it into dir if no non-empty copy is already cached.
// Presence plus nonzero size is trusted; there is no checksum and no
// eviction.
func EnsureAvailable(ctx context.Context, uri, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}

	dst := filepath.Join(dir, Filename(uri))
	if info, err := os.Stat(dst); err == nil && info.Size() > 0 {
		slog.Debug("artifact cached", "path", dst, "size", info.Size())
		return dst, nil
	}

	slog.Info("downloading artifact", "uri", uri, "dest", dst)
	if err := download(ctx, uri, dst); err != nil {
		return "", &DownloadError{URI: uri, Err: err}
	}

	info, err := os.Stat(dst)
	if err != nil {
		return "", &DownloadError{URI: uri, Err: err}
	}
	slog.Info("artifact downloaded", "path", dst, "size", info.Size())
	return dst, nil
}

// download streams uri to a temporary file in the destination
// directory and renames it into place only once complete, so a partial
// download is never visible at dst.
func download(ctx context.Context, uri, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return err
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP status %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".download-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), dst)
}
