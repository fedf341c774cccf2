// Package api fetches translation catalogs from a language-pack CDN and caches them.
//
// A Client serves one catalog URL. Single-project URLs ending in /packages.json
// are probed once for a /packages-v2.json sibling; the outcome is remembered so
// later requests go straight to the right endpoint. Centralized URLs serve many
// projects from one document and are never probed.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"langpacks/internal/cache"
	"langpacks/internal/catalog"
	"langpacks/internal/httpclient"
)

// ErrEmptyURL is returned by New when no catalog URL is given.
var ErrEmptyURL = errors.New("api url is required")

// V2State records what is known about a URL's V2 endpoint.
type V2State int

const (
	// V2Unknown means the V2 endpoint has not been probed yet.
	V2Unknown V2State = iota
	// V2Supported means the V2 endpoint answered with api_version 2.
	V2Supported
	// V2Unsupported means the V2 endpoint is missing or not a V2 document.
	V2Unsupported
)

func (s V2State) String() string {
	switch s {
	case V2Supported:
		return "supported"
	case V2Unsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// FetchEvent describes one outbound catalog request.
type FetchEvent struct {
	URL        string
	Variant    string // "v1", "v2" or "centralized"
	StatusCode int
	Duration   time.Duration
	Err        error
}

// Hooks receive client activity, typically for metrics. Nil fields are skipped.
type Hooks struct {
	OnFetch       func(FetchEvent)
	OnCacheLookup func(url string, hit bool)
}

// Options configures a Client.
type Options struct {
	URL         string
	Centralized bool
	// Cache is required; use cache.New(cache.NewMemoryStore()) when nothing else is available.
	Cache *cache.Cache
	// HTTPClient defaults to httpclient.NewDefaultHTTPClient().
	HTTPClient *http.Client
	// Timeout bounds each request; zero means httpclient.DefaultTimeout.
	Timeout time.Duration
	Logger  *slog.Logger
	Hooks   Hooks
}

// Client fetches and caches one catalog URL.
type Client struct {
	url         string
	centralized bool
	cacheKey    string
	cache       *cache.Cache
	http        *http.Client
	logger      *slog.Logger
	hooks       Hooks

	mu      sync.Mutex
	timeout time.Duration
	v2      V2State
}

// New creates a Client.
func New(opts Options) (*Client, error) {
	if opts.URL == "" {
		return nil, ErrEmptyURL
	}
	if opts.Cache == nil {
		return nil, fmt.Errorf("cache is required")
	}

	c := &Client{
		url:         opts.URL,
		centralized: opts.Centralized,
		cacheKey:    CacheKey(opts.URL),
		cache:       opts.Cache,
		http:        opts.HTTPClient,
		logger:      opts.Logger,
		hooks:       opts.Hooks,
		timeout:     opts.Timeout,
	}
	if c.http == nil {
		c.http = httpclient.NewDefaultHTTPClient()
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	if c.timeout <= 0 {
		c.timeout = httpclient.DefaultTimeout
	}
	c.logger = c.logger.With("api_url", c.url)
	return c, nil
}

// CacheKey returns the cache entry name used for url.
func CacheKey(url string) string {
	return fmt.Sprintf("api_%016x", xxhash.Sum64String(url))
}

// URL returns the catalog URL.
func (c *Client) URL() string { return c.url }

// Centralized reports whether the URL serves many projects.
func (c *Client) Centralized() bool { return c.centralized }

// CacheKey returns this client's cache entry name.
func (c *Client) CacheKey() string { return c.cacheKey }

// Cache returns the cache shared by this client.
func (c *Client) Cache() *cache.Cache { return c.cache }

// Timeout returns the per-request timeout.
func (c *Client) Timeout() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeout
}

// SetTimeout changes the per-request timeout. Non-positive values are ignored.
func (c *Client) SetTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = d
}

// V2State returns what is known about the V2 endpoint.
func (c *Client) V2State() V2State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v2
}

func (c *Client) setV2State(s V2State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.v2 = s
}

// GetTranslations returns the catalog for slug. It never returns nil.
//
// For centralized URLs with a non-empty slug the cached projects mapping is
// indexed by slug, fetching the whole document on a miss; an unknown slug
// yields an empty document. Otherwise the single-project document is returned.
func (c *Client) GetTranslations(ctx context.Context, slug string) *catalog.Document {
	if c.centralized && slug != "" {
		return c.LookupProject(ctx, slug)
	}

	raw, ok := c.cache.Get(ctx, c.cacheKey)
	c.recordLookup(ok)
	if !ok {
		raw = c.load(ctx)
		if raw == nil {
			return &catalog.Document{}
		}
	}
	return c.decode(raw)
}

// Refresh drops the cached catalog and fetches it again. It reports false when
// the fetch produced nothing.
func (c *Client) Refresh(ctx context.Context) bool {
	c.cache.Delete(ctx, c.cacheKey)
	return c.load(ctx) != nil
}

// LookupProject resolves a project inside a centralized catalog, trying keys in
// order and returning the first non-empty document. The catalog is fetched at
// most once per call. Single-project clients ignore keys.
func (c *Client) LookupProject(ctx context.Context, keys ...string) *catalog.Document {
	if !c.centralized {
		return c.GetTranslations(ctx, "")
	}

	mapping, ok := c.cachedMapping(ctx)
	c.recordLookup(ok)
	if !ok {
		// A failed fetch is not retried for the remaining keys.
		raw := c.load(ctx)
		if raw == nil {
			return &catalog.Document{}
		}
		if err := json.Unmarshal(raw, &mapping); err != nil {
			return &catalog.Document{}
		}
	}

	// A fresh mapping without any of the keys is a definitive miss.
	var found *catalog.Document
	for _, key := range keys {
		raw, ok := mapping[key]
		if !ok || !catalog.IsObject(raw) {
			continue
		}
		doc := c.decode(raw)
		if !doc.IsEmpty() {
			return doc
		}
		if found == nil {
			found = doc
		}
	}
	if found == nil {
		return &catalog.Document{}
	}
	return found
}

func (c *Client) cachedMapping(ctx context.Context) (map[string]json.RawMessage, bool) {
	raw, ok := c.cache.Get(ctx, c.cacheKey)
	if !ok {
		return nil, false
	}
	var mapping map[string]json.RawMessage
	if err := json.Unmarshal(raw, &mapping); err != nil {
		c.logger.Warn("discarding malformed projects mapping", "error", err)
		return nil, false
	}
	return mapping, true
}

// load fetches the catalog and writes it to the cache. For centralized URLs the
// cached value is the projects mapping. It returns nil when nothing usable was fetched.
func (c *Client) load(ctx context.Context) json.RawMessage {
	raw := c.resolve(ctx)
	if raw == nil {
		return nil
	}

	if c.centralized {
		doc, err := catalog.ParseCentralized(raw)
		if err != nil || len(doc.Projects) == 0 {
			c.logger.Error("centralized catalog has no projects")
			return nil
		}
		raw, err = json.Marshal(doc.Projects)
		if err != nil {
			c.logger.Error("failed to encode projects mapping", "error", err)
			return nil
		}
	}

	if !c.cache.Set(ctx, c.cacheKey, json.RawMessage(raw)) {
		c.logger.Warn("catalog fetched but not cached")
	}
	return raw
}

// resolve picks the endpoint to fetch based on the V2 state.
func (c *Client) resolve(ctx context.Context) []byte {
	if c.centralized {
		return c.fetchLogged(ctx, c.url, "centralized")
	}

	switch c.V2State() {
	case V2Unknown:
		v2 := V2URL(c.url)
		if v2 == "" {
			c.setV2State(V2Unsupported)
			break
		}
		raw, err := c.fetch(ctx, v2, "v2")
		if err == nil && catalog.DeclaresV2(raw) {
			c.setV2State(V2Supported)
			c.logger.Debug("v2 catalog supported", "v2_url", v2)
			return raw
		}
		c.setV2State(V2Unsupported)
		c.logger.Debug("v2 catalog not available, using v1", "v2_url", v2, "error", err)

	case V2Supported:
		v2 := V2URL(c.url)
		raw, err := c.fetch(ctx, v2, "v2")
		if err == nil {
			return raw
		}
		c.logger.Error("v2 catalog fetch failed, falling back to v1", "v2_url", v2, "error", err)
	}

	return c.fetchLogged(ctx, c.url, "v1")
}

func (c *Client) fetchLogged(ctx context.Context, url, variant string) []byte {
	raw, err := c.fetch(ctx, url, variant)
	if err != nil {
		c.logger.Error("catalog fetch failed", "url", url, "error", err)
		return nil
	}
	return raw
}

func (c *Client) decode(raw []byte) *catalog.Document {
	doc, err := catalog.Parse(raw)
	if err != nil {
		c.logger.Error("discarding malformed catalog", "error", err)
		return &catalog.Document{}
	}
	return doc
}

func (c *Client) recordLookup(hit bool) {
	if c.hooks.OnCacheLookup != nil {
		c.hooks.OnCacheLookup(c.url, hit)
	}
}
