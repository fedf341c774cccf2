// Package updater is the registry of translation projects and their wiring
// into the host's hooks.
//
// An Updater owns every registered project. Projects pointing at the same
// catalog URL share one API client and cache, so a centralized endpoint serving
// many projects is fetched once.
package updater

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"langpacks/internal/api"
	"langpacks/internal/cache"
	"langpacks/internal/host"
	"langpacks/internal/installer"
	"langpacks/internal/project"
)

// ErrNotRegistered is returned for an unknown project id.
var ErrNotRegistered = errors.New("project not registered")

// Deps are the collaborators shared by every registered project.
type Deps struct {
	Env   host.Environment
	Hooks *host.Hooks
	// Store backs every catalog cache.
	Store cache.Store
	// Upstream defaults to host.NoUpstream.
	Upstream   host.Upstream
	HTTPClient *http.Client
	Downloader host.Downloader
	Filesystem host.FilesystemProvider
	Logger     *slog.Logger

	// MinLifespan is the cache cleaning debounce window; zero uses the cache default.
	MinLifespan time.Duration
	// CacheOptions are applied to every catalog cache after the defaults.
	CacheOptions []cache.Option
	APIHooks     api.Hooks
	// OnInstall, when set, observes every install attempt.
	OnInstall func(projectID, locale string, ok bool)
}

// Options registers one project.
type Options struct {
	Type             string
	Slug             string
	APIURL           string
	Centralized      bool
	OverrideUpstream bool
	// UpstreamFallback defaults to true when nil.
	UpstreamFallback    *bool
	Version             string
	AutoInstall         bool
	InstallOnLangChange bool
	// CacheExpiration defaults to cache.DefaultExpiration.
	CacheExpiration time.Duration
	// Timeout defaults to httpclient.DefaultTimeout.
	Timeout time.Duration
}

type entry struct {
	project   *project.Project
	client    *api.Client
	installer *installer.Installer
	opts      Options
}

// Updater is an explicit registry of projects. Create one with New and
// release it with Close.
type Updater struct {
	env        host.Environment
	hooks      *host.Hooks
	store      cache.Store
	upstream   host.Upstream
	httpClient *http.Client
	downloader host.Downloader
	filesystem host.FilesystemProvider
	logger     *slog.Logger

	minLifespan  time.Duration
	cacheOptions []cache.Option
	apiHooks     api.Hooks
	onInstall    func(projectID, locale string, ok bool)

	state *project.State

	mu      sync.RWMutex
	entries map[string]*entry
	clients map[uint64]*api.Client
	hookIDs []host.HookID
	closed  bool
}

// New creates an Updater and registers its hook callbacks.
func New(deps Deps) (*Updater, error) {
	if deps.Env == nil {
		return nil, fmt.Errorf("environment is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("cache store is required")
	}

	u := &Updater{
		env:          deps.Env,
		hooks:        deps.Hooks,
		store:        deps.Store,
		upstream:     deps.Upstream,
		httpClient:   deps.HTTPClient,
		downloader:   deps.Downloader,
		filesystem:   deps.Filesystem,
		logger:       deps.Logger,
		minLifespan:  deps.MinLifespan,
		cacheOptions: deps.CacheOptions,
		apiHooks:     deps.APIHooks,
		onInstall:    deps.OnInstall,
		entries:      make(map[string]*entry),
		clients:      make(map[uint64]*api.Client),
	}
	if u.hooks == nil {
		u.hooks = host.NewHooks()
	}
	if u.upstream == nil {
		u.upstream = host.NoUpstream{}
	}
	if u.logger == nil {
		u.logger = slog.New(slog.DiscardHandler)
	}
	if u.downloader == nil {
		u.downloader = host.NewHTTPDownloader(nil, "")
	}
	if u.filesystem == nil {
		u.filesystem = host.OSFilesystemProvider(deps.Env.LanguagesDir())
	}
	u.state = project.NewState(u.env, u.logger)
	u.registerHooks()
	return u, nil
}

// Hooks returns the hook registry the updater is wired into.
func (u *Updater) Hooks() *host.Hooks { return u.hooks }

// State returns the install-state memo shared by registered projects.
func (u *Updater) State() *project.State { return u.state }

// Environment returns the host environment.
func (u *Updater) Environment() host.Environment { return u.env }

// Register adds or replaces a project. A project with the same type and slug
// is replaced. With AutoInstall the site locale is installed right away.
func (u *Updater) Register(ctx context.Context, opts Options) (*project.Project, error) {
	fallback := true
	if opts.UpstreamFallback != nil {
		fallback = *opts.UpstreamFallback
	}

	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return nil, fmt.Errorf("updater is closed")
	}
	client, err := u.clientLocked(opts)
	if err != nil {
		u.mu.Unlock()
		return nil, err
	}

	p, err := project.New(project.Options{
		Type:             opts.Type,
		Slug:             opts.Slug,
		Source:           client,
		OverrideUpstream: opts.OverrideUpstream,
		UpstreamFallback: fallback,
		Version:          opts.Version,
	})
	if err != nil {
		u.mu.Unlock()
		return nil, err
	}

	e := &entry{
		project: p,
		client:  client,
		opts:    opts,
		installer: installer.New(installer.Deps{
			Project:    p,
			State:      u.state,
			Hooks:      u.hooks,
			Downloader: u.downloader,
			Filesystem: u.filesystem,
			Logger:     u.logger,
		}),
	}
	prev, replaced := u.entries[p.ID()]
	if replaced {
		u.logger.Info("replacing registered project", "project", p.ID())
	}
	u.entries[p.ID()] = e
	if replaced && prev.client != client {
		u.pruneClientsLocked()
	}
	u.mu.Unlock()

	u.logger.Debug("project registered",
		"project", p.ID(),
		"api_url", opts.APIURL,
		"centralized", client.Centralized(),
		"override_upstream", opts.OverrideUpstream,
	)

	if opts.AutoInstall {
		u.install(ctx, e, "")
	}
	return p, nil
}

// clientLocked returns the shared client for opts.APIURL, creating it if needed.
func (u *Updater) clientLocked(opts Options) (*api.Client, error) {
	if opts.APIURL == "" {
		return nil, api.ErrEmptyURL
	}
	key := xxhash.Sum64String(opts.APIURL)

	if client, ok := u.clients[key]; ok {
		if client.Centralized() != opts.Centralized {
			u.logger.Warn("api url already registered with a different is_centralized flag",
				"api_url", opts.APIURL, "centralized", client.Centralized())
		}
		if opts.CacheExpiration > 0 {
			client.Cache().SetExpiration(opts.CacheExpiration)
		}
		client.SetTimeout(opts.Timeout)
		return client, nil
	}

	cacheOpts := []cache.Option{cache.WithLogger(u.logger)}
	if opts.CacheExpiration > 0 {
		cacheOpts = append(cacheOpts, cache.WithExpiration(opts.CacheExpiration))
	}
	if u.minLifespan > 0 {
		cacheOpts = append(cacheOpts, cache.WithMinLifespan(u.minLifespan))
	}
	cacheOpts = append(cacheOpts, u.cacheOptions...)

	client, err := api.New(api.Options{
		URL:         opts.APIURL,
		Centralized: opts.Centralized,
		Cache:       cache.New(u.store, cacheOpts...),
		HTTPClient:  u.httpClient,
		Timeout:     opts.Timeout,
		Logger:      u.logger,
		Hooks:       u.apiHooks,
	})
	if err != nil {
		return nil, err
	}
	u.clients[key] = client
	return client, nil
}

// Unregister removes a project. Its API client is dropped once no other
// project uses it.
func (u *Updater) Unregister(id string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.entries[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, id)
	}
	delete(u.entries, id)
	u.pruneClientsLocked()
	return nil
}

// pruneClientsLocked drops clients no registered project refers to.
func (u *Updater) pruneClientsLocked() {
	used := make(map[*api.Client]bool, len(u.entries))
	for _, e := range u.entries {
		used[e.client] = true
	}
	for key, c := range u.clients {
		if !used[c] {
			delete(u.clients, key)
			u.logger.Debug("api client released", "api_url", c.URL())
		}
	}
}

// Project returns a registered project.
func (u *Updater) Project(id string) (*project.Project, bool) {
	e, ok := u.entry(id)
	if !ok {
		return nil, false
	}
	return e.project, true
}

// Installer returns a registered project's installer.
func (u *Updater) Installer(id string) (*installer.Installer, bool) {
	e, ok := u.entry(id)
	if !ok {
		return nil, false
	}
	return e.installer, true
}

// Client returns the API client serving a registered project.
func (u *Updater) Client(id string) (*api.Client, bool) {
	e, ok := u.entry(id)
	if !ok {
		return nil, false
	}
	return e.client, true
}

// Projects returns every registered project ordered by id.
func (u *Updater) Projects() []*project.Project {
	entries := u.snapshot()
	out := make([]*project.Project, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.project)
	}
	return out
}

// Clients returns the distinct API clients in use.
func (u *Updater) Clients() []*api.Client {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make([]*api.Client, 0, len(u.clients))
	for _, c := range u.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL() < out[j].URL() })
	return out
}

// CheckUpdates builds the plugin and theme update transients, with this
// updater's records merged in, and returns their translation entries.
func (u *Updater) CheckUpdates(ctx context.Context) []host.TranslationUpdate {
	u.state.ClearCaches()
	var out []host.TranslationUpdate
	for _, typ := range []string{host.TypePlugin, host.TypeTheme} {
		out = append(out, host.BuildUpdateTransient(ctx, u.hooks, u.upstream, typ).Translations...)
	}
	return out
}

// Translations answers a translations API request through the hooks.
func (u *Updater) Translations(ctx context.Context, req host.TranslationsRequest) *host.TranslationsResult {
	return host.LookupTranslations(ctx, u.hooks, u.upstream, req)
}

// Install installs locale for a registered project.
func (u *Updater) Install(ctx context.Context, id, locale string) (bool, error) {
	e, ok := u.entry(id)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNotRegistered, id)
	}
	u.state.ClearCaches()
	return u.install(ctx, e, locale), nil
}

// Refresh refetches a registered project's catalog.
func (u *Updater) Refresh(ctx context.Context, id string) (bool, error) {
	e, ok := u.entry(id)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNotRegistered, id)
	}
	return e.client.Refresh(ctx), nil
}

// Locale returns the site's current locale.
func (u *Updater) Locale(ctx context.Context) string {
	return u.env.Locale(ctx)
}

// TransientChanged signals that a host transient was written or deleted.
func (u *Updater) TransientChanged(ctx context.Context, name string) {
	u.hooks.DoAction(ctx, host.ActionTransientChanged, name)
}

// ChangeLocale switches the site locale and fires the locale_changed action.
// The environment must support locale changes.
func (u *Updater) ChangeLocale(ctx context.Context, locale string) error {
	setter, ok := u.env.(interface{ SetLocale(string) string })
	if !ok {
		return fmt.Errorf("environment does not support locale changes")
	}
	prev := setter.SetLocale(locale)
	if prev != locale {
		u.hooks.DoAction(ctx, host.ActionLocaleChanged, locale, prev)
	}
	return nil
}

// Close unhooks the updater and drops every project.
func (u *Updater) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return nil
	}
	u.closed = true
	for _, id := range u.hookIDs {
		u.hooks.Remove(id)
	}
	u.hookIDs = nil
	u.entries = make(map[string]*entry)
	u.clients = make(map[uint64]*api.Client)
	return nil
}

func (u *Updater) install(ctx context.Context, e *entry, locale string) bool {
	if locale == "" {
		locale = u.Locale(ctx)
	}
	ok := e.installer.Install(ctx, locale)
	if u.onInstall != nil {
		u.onInstall(e.project.ID(), locale, ok)
	}
	return ok
}

func (u *Updater) entry(id string) (*entry, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	e, ok := u.entries[id]
	return e, ok
}

// snapshot returns the registered entries ordered by project id.
func (u *Updater) snapshot() []*entry {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make([]*entry, 0, len(u.entries))
	for _, e := range u.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].project.ID() < out[j].project.ID() })
	return out
}
