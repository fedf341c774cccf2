package host

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"langpacks/internal/version"
)

// maxPackageSize caps a downloaded translation package (100 MB).
const maxPackageSize = 100 << 20

// Downloader fetches a package to a temporary file and returns its path.
// The caller removes the file.
type Downloader interface {
	Download(ctx context.Context, url string) (string, error)
}

// HTTPDownloader downloads packages over HTTP.
type HTTPDownloader struct {
	client  *http.Client
	tempDir string
}

// NewHTTPDownloader creates a downloader writing into tempDir (os.TempDir() when empty).
func NewHTTPDownloader(client *http.Client, tempDir string) *HTTPDownloader {
	if client == nil {
		client = http.DefaultClient
	}
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &HTTPDownloader{client: client, tempDir: tempDir}
}

// Download GETs url into <tempDir>/langpacks-<uuid>.tmp.
func (d *HTTPDownloader) Download(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading package: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	path := filepath.Join(d.tempDir, "langpacks-"+uuid.NewString()+".tmp")
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}

	n, err := io.Copy(out, io.LimitReader(resp.Body, maxPackageSize+1))
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err == nil && n > maxPackageSize {
		err = fmt.Errorf("package exceeds %d bytes", maxPackageSize)
	}
	if err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("writing package: %w", err)
	}
	return path, nil
}
