// Package httpclient provides a centralized HTTP client factory with unified configuration.
package httpclient

import (
	"net"
	"net/http"
	"os"
	"strconv"
	"time"
)

// ClientConfig holds configuration options for creating HTTP clients
type ClientConfig struct {
	// MaxIdleConns controls the maximum number of idle (keep-alive) connections across all hosts
	MaxIdleConns int

	// MaxIdleConnsPerHost controls the maximum idle (keep-alive) connections to keep per-host
	MaxIdleConnsPerHost int

	// IdleConnTimeout is the maximum amount of time an idle connection will remain idle before closing itself
	IdleConnTimeout time.Duration

	// Timeout specifies a time limit for requests made by the client
	Timeout time.Duration

	// DialTimeout is the maximum amount of time a dial will wait for a connect to complete
	DialTimeout time.Duration

	// TLSHandshakeTimeout specifies the maximum amount of time to wait for a TLS handshake
	TLSHandshakeTimeout time.Duration

	// ResponseHeaderTimeout specifies the amount of time to wait for a server's response headers
	ResponseHeaderTimeout time.Duration
}

// DefaultTimeout bounds a single catalog request.
const DefaultTimeout = 3 * time.Second

// getEnvDuration reads a duration from an environment variable, returning the default if not set or invalid.
// Accepts either plain integers (seconds) or Go duration strings ("500ms", "5s").
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	return defaultVal
}

// DefaultConfig returns a ClientConfig tuned for small JSON catalogs and zip downloads.
// Can be overridden via environment variables (seconds, or Go duration format):
//   - HTTP_TIMEOUT: overall request timeout (default: 3)
//   - HTTP_RESPONSE_HEADER_TIMEOUT: time to wait for response headers (default: 3)
func DefaultConfig() ClientConfig {
	return ClientConfig{
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		Timeout:               getEnvDuration("HTTP_TIMEOUT", DefaultTimeout),
		DialTimeout:           DefaultTimeout,
		TLSHandshakeTimeout:   DefaultTimeout,
		ResponseHeaderTimeout: getEnvDuration("HTTP_RESPONSE_HEADER_TIMEOUT", DefaultTimeout),
	}
}

// FromSeconds builds a config from second values, keeping defaults for zero values.
func FromSeconds(timeout, responseHeaderTimeout int) ClientConfig {
	cfg := DefaultConfig()
	if timeout > 0 {
		cfg.Timeout = time.Duration(timeout) * time.Second
		cfg.DialTimeout = cfg.Timeout
		cfg.TLSHandshakeTimeout = cfg.Timeout
	}
	if responseHeaderTimeout > 0 {
		cfg.ResponseHeaderTimeout = time.Duration(responseHeaderTimeout) * time.Second
	}
	return cfg
}

// PerRequest returns a copy of c without the client-wide and response header
// limits, for clients whose callers bound each request with a context deadline.
func (c ClientConfig) PerRequest() ClientConfig {
	c.Timeout = 0
	c.ResponseHeaderTimeout = 0
	return c
}

// NewHTTPClient creates a new HTTP client with the provided configuration.
// If config is nil, DefaultConfig() is used.
func NewHTTPClient(config *ClientConfig) *http.Client {
	if config == nil {
		cfg := DefaultConfig()
		config = &cfg
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   config.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          config.MaxIdleConns,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		IdleConnTimeout:       config.IdleConnTimeout,
		TLSHandshakeTimeout:   config.TLSHandshakeTimeout,
		ResponseHeaderTimeout: config.ResponseHeaderTimeout,
		ForceAttemptHTTP2:     true,
		// Decompression is handled by callers so brotli can be negotiated too.
		DisableCompression: true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   config.Timeout,
	}
}

// NewDefaultHTTPClient creates a new HTTP client with default configuration.
func NewDefaultHTTPClient() *http.Client {
	return NewHTTPClient(nil)
}
