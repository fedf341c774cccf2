package api

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"

	"langpacks/internal/catalog"
	"langpacks/internal/version"
)

// maxBodySize caps a catalog response (10 MB).
const maxBodySize = 10 * 1024 * 1024

// StatusError is returned for non-200 responses.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// fetch GETs url and returns the body when it is a JSON object.
func (c *Client) fetch(ctx context.Context, url, variant string) ([]byte, error) {
	start := time.Now()
	status := 0
	raw, err := c.doFetch(ctx, url, &status)
	if c.hooks.OnFetch != nil {
		c.hooks.OnFetch(FetchEvent{
			URL:        url,
			Variant:    variant,
			StatusCode: status,
			Duration:   time.Since(start),
			Err:        err,
		})
	}
	return raw, err
}

func (c *Client) doFetch(ctx context.Context, url string, status *int) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "br, gzip")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching catalog: %w", err)
	}
	defer resp.Body.Close()
	*status = resp.StatusCode

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := decodeBody(resp)
	if err != nil {
		return nil, err
	}

	limited := io.LimitReader(body, maxBodySize+1)
	raw, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if len(raw) > maxBodySize {
		return nil, fmt.Errorf("response body too large (exceeds %d bytes)", maxBodySize)
	}
	if !catalog.IsObject(raw) {
		return nil, fmt.Errorf("response from %s is not a JSON object", url)
	}
	return raw, nil
}

func decodeBody(resp *http.Response) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "", "identity":
		return resp.Body, nil
	case "br":
		return brotli.NewReader(resp.Body), nil
	case "gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("opening gzip body: %w", err)
		}
		return zr, nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", resp.Header.Get("Content-Encoding"))
	}
}

// V2URL derives the V2 endpoint from a V1 packages.json URL. It returns ""
// when url does not end with /packages.json.
func V2URL(url string) string {
	const v1Suffix, v2Suffix = "/packages.json", "/packages-v2.json"
	if !strings.HasSuffix(url, v1Suffix) {
		return ""
	}
	return strings.TrimSuffix(url, v1Suffix) + v2Suffix
}
