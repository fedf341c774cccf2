// Package app wires configuration, the transient store, the host environment
// and the updater registry into a runnable application.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"langpacks/config"
	"langpacks/internal/cache"
	"langpacks/internal/host"
	"langpacks/internal/httpclient"
	"langpacks/internal/observability"
	"langpacks/internal/server"
	"langpacks/internal/updater"
)

// downloadTimeout bounds a translation package download.
const downloadTimeout = 5 * time.Minute

// App represents the main application with all its dependencies.
// It provides centralized lifecycle management for all components.
type App struct {
	config  *config.Config
	logger  *slog.Logger
	store   *cache.StoreResult
	env     *host.Local
	updater *updater.Updater
	server  *server.Server

	shutdownMu sync.Mutex
	shutdown   bool
}

// Config holds the configuration options for creating an App.
type Config struct {
	// AppConfig is the result of config.Load.
	AppConfig *config.LoadResult

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Upstream is the first-party translation source; nil means none.
	Upstream host.Upstream
}

// New creates a new App with all dependencies initialized and every configured
// project registered. The caller must call Shutdown to release resources.
func New(ctx context.Context, cfg Config) (*App, error) {
	if cfg.AppConfig == nil {
		return nil, fmt.Errorf("app config is required")
	}
	if cfg.AppConfig.Config == nil {
		return nil, fmt.Errorf("app config contains nil Config")
	}

	appCfg := cfg.AppConfig.Config
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	app := &App{
		config: appCfg,
		logger: logger,
	}

	storeResult, err := cache.NewStore(ctx, appCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize transient store: %w", err)
	}
	app.store = storeResult

	app.env = host.NewLocal(host.LocalConfig{
		LanguagesDir: appCfg.Host.LanguagesDir,
		Locale:       appCfg.Host.Locale,
		BaseLocale:   appCfg.Host.BaseLocale,
		Locales:      appCfg.Host.Locales,
		AllowInstall: appCfg.Host.AllowInstall,
	})

	baseHTTP := httpclient.FromSeconds(appCfg.HTTP.Timeout, appCfg.HTTP.ResponseHeaderTimeout)
	// Catalog clients apply each project's timeout per request.
	catalogHTTP := baseHTTP.PerRequest()
	downloadHTTP := baseHTTP
	downloadHTTP.Timeout = downloadTimeout

	deps := updater.Deps{
		Env:         app.env,
		Store:       storeResult.Store,
		Upstream:    cfg.Upstream,
		HTTPClient:  httpclient.NewHTTPClient(&catalogHTTP),
		Downloader:  host.NewHTTPDownloader(httpclient.NewHTTPClient(&downloadHTTP), ""),
		Filesystem:  host.OSFilesystemProvider(appCfg.Host.LanguagesDir),
		Logger:      logger,
		MinLifespan: time.Duration(appCfg.Cache.MinLifespan) * time.Second,
	}
	if appCfg.Metrics.Enabled {
		metrics := observability.Default()
		deps.APIHooks = metrics.APIHooks()
		deps.OnInstall = metrics.ObserveInstall
	}

	u, err := updater.New(deps)
	if err != nil {
		closeErr := app.store.Close()
		if closeErr != nil {
			return nil, fmt.Errorf("failed to create updater: %w (also: store close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to create updater: %w", err)
	}
	app.updater = u

	app.logStartupInfo(cfg.AppConfig.Path)

	for _, p := range appCfg.Projects {
		if _, err := u.Register(ctx, projectOptions(appCfg, p)); err != nil {
			closeErr := errors.Join(u.Close(), app.store.Close())
			if closeErr != nil {
				return nil, fmt.Errorf("failed to register %s %s: %w (also: close error: %v)", p.Type, p.Slug, err, closeErr)
			}
			return nil, fmt.Errorf("failed to register %s %s: %w", p.Type, p.Slug, err)
		}
	}

	app.server = server.New(u, &server.Config{
		MasterKey:       appCfg.Server.MasterKey,
		MetricsEnabled:  appCfg.Metrics.Enabled,
		MetricsEndpoint: appCfg.Metrics.Endpoint,
		BodySizeLimit:   appCfg.Server.BodySizeLimit,
		Logger:          logger,
	})

	return app, nil
}

// projectOptions converts a configured project, filling per-project zero values
// from the global settings.
func projectOptions(cfg *config.Config, p config.ProjectConfig) updater.Options {
	expiration := p.CacheExpiration
	if expiration <= 0 {
		expiration = cfg.Cache.Expiration
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = cfg.HTTP.Timeout
	}
	return updater.Options{
		Type:                p.Type,
		Slug:                p.Slug,
		APIURL:              p.APIURL,
		Centralized:         p.Centralized,
		OverrideUpstream:    p.OverrideUpstream,
		UpstreamFallback:    p.UpstreamFallback,
		Version:             p.Version,
		AutoInstall:         p.AutoInstall,
		InstallOnLangChange: p.InstallOnLangChange,
		CacheExpiration:     time.Duration(expiration) * time.Second,
		Timeout:             time.Duration(timeout) * time.Second,
	}
}

// Config returns the loaded configuration.
func (a *App) Config() *config.Config { return a.config }

// Updater returns the project registry.
func (a *App) Updater() *updater.Updater { return a.updater }

// Environment returns the host environment.
func (a *App) Environment() *host.Local { return a.env }

// Handler returns the HTTP admin API handler.
func (a *App) Handler() http.Handler { return a.server }

// Start starts the HTTP server on the given address.
// This is a blocking call that returns when the server stops.
func (a *App) Start(addr string) error {
	if a.server == nil {
		return fmt.Errorf("server is not initialized")
	}
	a.logger.Info("starting server", "address", addr)
	if err := a.server.Start(addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			a.logger.Info("server stopped gracefully")
			return nil
		}
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Shutdown gracefully tears down app components in dependency order:
// the HTTP server, the updater's hooks, then the transient store.
// It is idempotent and returns every close failure joined.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownMu.Lock()
	if a.shutdown {
		a.shutdownMu.Unlock()
		return nil
	}
	a.shutdown = true
	a.shutdownMu.Unlock()

	a.logger.Info("shutting down application...")

	var errs []error

	// Stop accepting requests first
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Error("server shutdown error", "error", err)
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
	}

	if a.updater != nil {
		if err := a.updater.Close(); err != nil {
			a.logger.Error("updater close error", "error", err)
			errs = append(errs, fmt.Errorf("updater close: %w", err))
		}
	}

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("transient store close error", "error", err)
			errs = append(errs, fmt.Errorf("store close: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	a.logger.Info("application shutdown complete")
	return nil
}

// logStartupInfo logs the application configuration on startup.
func (a *App) logStartupInfo(configPath string) {
	cfg := a.config

	if configPath != "" {
		a.logger.Info("configuration loaded", "path", configPath)
	}

	if cfg.Server.MasterKey == "" {
		a.logger.Warn("LANGPACKS_MASTER_KEY not set, admin API is unauthenticated")
	} else {
		a.logger.Info("authentication enabled", "mode", "master_key")
	}

	if cfg.Metrics.Enabled {
		a.logger.Info("prometheus metrics enabled", "endpoint", cfg.Metrics.Endpoint)
	} else {
		a.logger.Info("prometheus metrics disabled")
	}

	a.logger.Info("host environment",
		"languages_dir", cfg.Host.LanguagesDir,
		"locale", cfg.Host.Locale,
		"base_locale", cfg.Host.BaseLocale,
		"allow_install", cfg.Host.AllowInstall,
	)
	a.logger.Info("catalog cache",
		"type", cfg.Cache.Type,
		"expiration_seconds", cfg.Cache.Expiration,
		"min_lifespan_seconds", cfg.Cache.MinLifespan,
		"projects", len(cfg.Projects),
	)
}
