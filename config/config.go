// Package config provides configuration management for the application.
//
// Configuration is layered: built-in defaults, then an optional YAML file with
// ${VAR} / ${VAR:-default} placeholders, then environment variable overrides.
// A .env file in the working directory is loaded into the environment first.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigFile is read when no path is given and the file exists.
	DefaultConfigFile = "config.yaml"

	// DefaultBodySizeLimit caps admin API request bodies (1MB).
	DefaultBodySizeLimit int64 = 1 << 20
)

// Config holds the application configuration
type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Log      LogConfig       `yaml:"log"`
	HTTP     HTTPConfig      `yaml:"http"`
	Cache    CacheConfig     `yaml:"cache"`
	Storage  StorageConfig   `yaml:"storage"`
	Host     HostConfig      `yaml:"host"`
	Metrics  MetricsConfig   `yaml:"metrics"`
	Projects []ProjectConfig `yaml:"projects"`
}

// ServerConfig holds HTTP admin server configuration
type ServerConfig struct {
	Port          string `yaml:"port"`
	MasterKey     string `yaml:"master_key"`
	BodySizeLimit int64  `yaml:"body_size_limit"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `yaml:"level"`
	// Format is "text", "json" or "auto" (text on a terminal, json otherwise)
	Format string `yaml:"format"`
}

// HTTPConfig holds outbound HTTP client settings. Values are seconds.
type HTTPConfig struct {
	Timeout               int `yaml:"timeout"`
	ResponseHeaderTimeout int `yaml:"response_header_timeout"`
}

// CacheConfig selects the transient store and catalog freshness.
type CacheConfig struct {
	// Type is memory, local, redis or storage
	Type string `yaml:"type"`
	// Expiration is how long a fetched catalog stays fresh, in seconds
	Expiration int `yaml:"expiration"`
	// MinLifespan is the debounce window for cache cleaning, in seconds
	MinLifespan int         `yaml:"min_lifespan"`
	Local       LocalConfig `yaml:"local"`
	Redis       RedisConfig `yaml:"redis"`
}

// LocalConfig holds the file store directory.
type LocalConfig struct {
	Dir string `yaml:"dir"`
}

// RedisConfig holds Redis store settings.
type RedisConfig struct {
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix"`
}

// StorageConfig describes the database used when cache.type is "storage".
type StorageConfig struct {
	Type       string           `yaml:"type"`
	SQLite     SQLiteConfig     `yaml:"sqlite"`
	PostgreSQL PostgreSQLConfig `yaml:"postgresql"`
	MongoDB    MongoDBConfig    `yaml:"mongodb"`
}

// SQLiteConfig holds SQLite settings.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgreSQLConfig holds PostgreSQL settings.
type PostgreSQLConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
}

// MongoDBConfig holds MongoDB settings.
type MongoDBConfig struct {
	URL      string `yaml:"url"`
	Database string `yaml:"database"`
}

// HostConfig describes the site whose translations are managed.
type HostConfig struct {
	// LanguagesDir holds plugins/ and themes/ translation directories
	LanguagesDir string `yaml:"languages_dir"`
	// Locale is the site's current locale
	Locale string `yaml:"locale"`
	// BaseLocale never needs a translation package
	BaseLocale string `yaml:"base_locale"`
	// Locales lists the locales the site uses; empty means discover from LanguagesDir
	Locales []string `yaml:"locales"`
	// AllowInstall grants the install capability
	AllowInstall bool `yaml:"allow_install"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// ProjectConfig registers one plugin or theme with a translation API.
type ProjectConfig struct {
	Type                string `yaml:"type"`
	Slug                string `yaml:"slug"`
	APIURL              string `yaml:"api_url"`
	Centralized         bool   `yaml:"is_centralized"`
	OverrideUpstream    bool   `yaml:"override_upstream"`
	UpstreamFallback    *bool  `yaml:"upstream_fallback"`
	Version             string `yaml:"version"`
	AutoInstall         bool   `yaml:"auto_install"`
	InstallOnLangChange bool   `yaml:"install_on_lang_change"`
	// CacheExpiration and Timeout are seconds; zero uses the global value
	CacheExpiration int `yaml:"cache_expiration"`
	Timeout         int `yaml:"timeout"`
}

// LoadResult is the outcome of Load.
type LoadResult struct {
	Config *Config
	// Path is the YAML file that was read, empty when none was.
	Path string
}

// Load reads configuration from .env, the YAML file at path (or config.yaml when
// path is empty and the file exists) and the environment.
func Load(path string) (*LoadResult, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := buildDefaultConfig()

	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal([]byte(expandString(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		path = ""
	default:
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &LoadResult{Config: cfg, Path: path}, nil
}

// Validate rejects configurations that cannot be acted on.
func (c *Config) Validate() error {
	for i, p := range c.Projects {
		if p.Type != "plugin" && p.Type != "theme" {
			return fmt.Errorf("projects[%d]: type must be plugin or theme, got %q", i, p.Type)
		}
		if p.Slug == "" {
			return fmt.Errorf("projects[%d]: slug is required", i)
		}
		if p.APIURL == "" {
			return fmt.Errorf("projects[%d] (%s): api_url is required", i, p.Slug)
		}
	}
	if c.Cache.Expiration < 0 {
		return fmt.Errorf("cache.expiration must not be negative")
	}
	return nil
}

func buildDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          "8080",
			BodySizeLimit: DefaultBodySizeLimit,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
		HTTP: HTTPConfig{
			Timeout:               3,
			ResponseHeaderTimeout: 3,
		},
		Cache: CacheConfig{
			Type:        "memory",
			Expiration:  12 * 60 * 60,
			MinLifespan: 15,
			Local:       LocalConfig{Dir: ".cache/transients"},
		},
		Storage: StorageConfig{
			Type:       "sqlite",
			SQLite:     SQLiteConfig{Path: "data/langpacks.db"},
			PostgreSQL: PostgreSQLConfig{MaxConns: 10},
			MongoDB:    MongoDBConfig{Database: "langpacks"},
		},
		Host: HostConfig{
			LanguagesDir: "languages",
			Locale:       "en_US",
			BaseLocale:   "en_US",
			AllowInstall: true,
		},
		Metrics: MetricsConfig{
			Endpoint: "/metrics",
		},
	}
}

// applyEnvOverrides copies recognised environment variables over cfg.
func applyEnvOverrides(cfg *Config) error {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) error {
		v := os.Getenv(key)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
		*dst = n
		return nil
	}
	setBool := func(key string, dst *bool) error {
		v := os.Getenv(key)
		if v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
		*dst = b
		return nil
	}

	setString("PORT", &cfg.Server.Port)
	setString("LANGPACKS_MASTER_KEY", &cfg.Server.MasterKey)
	setString("LOG_LEVEL", &cfg.Log.Level)
	setString("LOG_FORMAT", &cfg.Log.Format)
	setString("CACHE_TYPE", &cfg.Cache.Type)
	setString("CACHE_DIR", &cfg.Cache.Local.Dir)
	setString("REDIS_URL", &cfg.Cache.Redis.URL)
	setString("REDIS_PREFIX", &cfg.Cache.Redis.Prefix)
	setString("STORAGE_TYPE", &cfg.Storage.Type)
	setString("SQLITE_PATH", &cfg.Storage.SQLite.Path)
	setString("POSTGRES_URL", &cfg.Storage.PostgreSQL.URL)
	setString("MONGODB_URL", &cfg.Storage.MongoDB.URL)
	setString("MONGODB_DATABASE", &cfg.Storage.MongoDB.Database)
	setString("LANGUAGES_DIR", &cfg.Host.LanguagesDir)
	setString("SITE_LOCALE", &cfg.Host.Locale)
	setString("BASE_LOCALE", &cfg.Host.BaseLocale)
	setString("METRICS_ENDPOINT", &cfg.Metrics.Endpoint)

	if v := os.Getenv("SITE_LOCALES"); v != "" {
		cfg.Host.Locales = splitList(v)
	}

	var errs []error
	errs = append(errs,
		setInt("HTTP_TIMEOUT", &cfg.HTTP.Timeout),
		setInt("HTTP_RESPONSE_HEADER_TIMEOUT", &cfg.HTTP.ResponseHeaderTimeout),
		setInt("CACHE_EXPIRATION", &cfg.Cache.Expiration),
		setInt("CACHE_MIN_LIFESPAN", &cfg.Cache.MinLifespan),
		setInt("POSTGRES_MAX_CONNS", &cfg.Storage.PostgreSQL.MaxConns),
		setBool("METRICS_ENABLED", &cfg.Metrics.Enabled),
		setBool("ALLOW_INSTALL", &cfg.Host.AllowInstall),
	)
	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandString replaces ${VAR} and ${VAR:-default} placeholders.
// ${VAR} stays untouched when VAR is unset or empty; ${VAR:-default} uses the
// default in both cases.
func expandString(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return placeholder.ReplaceAllStringFunc(s, func(match string) string {
		parts := placeholder.FindStringSubmatch(match)
		name, hasDefault, def := parts[1], parts[2] != "", parts[3]
		if v := os.Getenv(name); v != "" {
			return v
		}
		if hasDefault {
			return def
		}
		return match
	})
}
