package updater

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"langpacks/internal/api"
	"langpacks/internal/cache"
	"langpacks/internal/catalog"
	"langpacks/internal/host"
	"langpacks/internal/project"
)

const catalogBody = `{"translations":[
	{"language":"fr_FR","version":"1.0.0","updated":"2024-06-15 12:00:00","package":"%s/fr.zip"},
	{"language":"de_DE","version":"1.0.0","updated":"2024-06-15 12:00:00","package":"%s/de.zip"}
]}`

const poBody = `msgid ""
msgstr ""
"PO-Revision-Date: 2024-06-15 12:00:00+0000\n"
`

// cdn serves a V1 catalog plus one archive per locale.
type cdn struct {
	srv      *httptest.Server
	catalogs atomic.Int32
	packages atomic.Int32
}

func newCDN(t *testing.T, slug string) *cdn {
	t.Helper()
	c := &cdn{}
	c.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/packages.json":
			c.catalogs.Add(1)
			w.Header().Set("Content-Type", "application/json")
			body := bytes.ReplaceAll([]byte(catalogBody), []byte("%s"), []byte(c.srv.URL))
			_, _ = w.Write(body)
		case "/fr.zip", "/de.zip":
			c.packages.Add(1)
			locale := map[string]string{"/fr.zip": "fr_FR", "/de.zip": "de_DE"}[r.URL.Path]
			_, _ = w.Write(archive(t, slug+"-"+locale))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(c.srv.Close)
	return c
}

func (c *cdn) url() string { return c.srv.URL + "/packages.json" }

func archive(t *testing.T, base string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range map[string]string{base + ".po": poBody, base + ".mo": "mo"} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// fakeUpstream is a first-party source with fixed answers.
type fakeUpstream struct {
	updates      []host.TranslationUpdate
	translations []catalog.Translation
	calls        int
}

func (f *fakeUpstream) Updates(_ context.Context, projectType string) []host.TranslationUpdate {
	var out []host.TranslationUpdate
	for _, u := range f.updates {
		if u.Type == projectType {
			out = append(out, u)
		}
	}
	return out
}

func (f *fakeUpstream) Translations(context.Context, host.TranslationsRequest) *host.TranslationsResult {
	f.calls++
	return &host.TranslationsResult{Translations: f.translations}
}

type installRecord struct {
	id, locale string
	ok         bool
}

type fixture struct {
	env      *host.Local
	upstream *fakeUpstream
	updater  *Updater

	mu       sync.Mutex
	installs []installRecord
}

func newFixture(t *testing.T, opts ...func(*Deps)) *fixture {
	t.Helper()
	f := &fixture{
		env: host.NewLocal(host.LocalConfig{
			LanguagesDir: t.TempDir(),
			Locale:       "fr_FR",
			Locales:      []string{"en_US", "fr_FR", "de_DE"},
			AllowInstall: true,
		}),
		upstream: &fakeUpstream{},
	}
	deps := Deps{
		Env:      f.env,
		Store:    cache.NewMemoryStore(),
		Upstream: f.upstream,
		OnInstall: func(id, locale string, ok bool) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.installs = append(f.installs, installRecord{id, locale, ok})
		},
	}
	for _, opt := range opts {
		opt(&deps)
	}
	u, err := New(deps)
	require.NoError(t, err)
	t.Cleanup(func() { _ = u.Close() })
	f.updater = u
	return f
}

func (f *fixture) installed() []installRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]installRecord(nil), f.installs...)
}

func TestNew_RequiresEnvironmentAndStore(t *testing.T) {
	_, err := New(Deps{Store: cache.NewMemoryStore()})
	assert.Error(t, err)
	_, err = New(Deps{Env: host.NewLocal(host.LocalConfig{})})
	assert.Error(t, err)
}

func TestRegister_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.updater.Register(ctx, Options{Type: host.TypePlugin, Slug: "acme"})
	assert.ErrorIs(t, err, api.ErrEmptyURL)

	_, err = f.updater.Register(ctx, Options{Type: "widget", Slug: "acme", APIURL: "https://cdn.invalid/packages.json"})
	assert.ErrorIs(t, err, project.ErrInvalidType)

	_, err = f.updater.Register(ctx, Options{Type: host.TypePlugin, APIURL: "https://cdn.invalid/packages.json"})
	assert.ErrorIs(t, err, project.ErrEmptySlug)

	assert.Empty(t, f.updater.Projects())
}

func TestRegister_Defaults(t *testing.T) {
	f := newFixture(t)
	p, err := f.updater.Register(context.Background(), Options{Type: host.TypePlugin, Slug: "acme", APIURL: "https://cdn.invalid/packages.json"})
	require.NoError(t, err)

	assert.Equal(t, "plugin_acme", p.ID())
	assert.True(t, p.UpstreamFallback())
	assert.False(t, p.OverrideUpstream())

	c, ok := f.updater.Client(p.ID())
	require.True(t, ok)
	assert.Equal(t, cache.DefaultExpiration, c.Cache().Expiration())
	assert.Equal(t, 3*time.Second, c.Timeout())
}

func TestRegister_SharesClientsByURL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const shared = "https://cdn.invalid/all/packages.json"

	for _, slug := range []string{"acme", "widgets"} {
		_, err := f.updater.Register(ctx, Options{Type: host.TypePlugin, Slug: slug, APIURL: shared, Centralized: true})
		require.NoError(t, err)
	}
	_, err := f.updater.Register(ctx, Options{Type: host.TypeTheme, Slug: "solo", APIURL: "https://cdn.invalid/solo/packages.json"})
	require.NoError(t, err)

	a, _ := f.updater.Client("plugin_acme")
	b, _ := f.updater.Client("plugin_widgets")
	assert.Same(t, a, b)
	assert.Len(t, f.updater.Clients(), 2)
}

func TestRegister_ReplacesExisting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	opts := Options{Type: host.TypePlugin, Slug: "acme", APIURL: "https://cdn.invalid/packages.json"}

	first, err := f.updater.Register(ctx, opts)
	require.NoError(t, err)
	opts.Version = "1.0.0"
	second, err := f.updater.Register(ctx, opts)
	require.NoError(t, err)

	got, ok := f.updater.Project("plugin_acme")
	require.True(t, ok)
	assert.NotSame(t, first, got)
	assert.Same(t, second, got)
	assert.Equal(t, "1.0.0", got.Version())
	assert.Len(t, f.updater.Projects(), 1)
}

func TestUnregister(t *testing.T) {
	f := newFixture(t)
	_, err := f.updater.Register(context.Background(), Options{Type: host.TypeTheme, Slug: "acme", APIURL: "https://cdn.invalid/packages.json"})
	require.NoError(t, err)

	require.NoError(t, f.updater.Unregister("theme_acme"))
	assert.ErrorIs(t, f.updater.Unregister("theme_acme"), ErrNotRegistered)
	_, ok := f.updater.Project("theme_acme")
	assert.False(t, ok)
	assert.Empty(t, f.updater.Clients())
}

func TestRegister_ReleasesUnusedClients(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const shared = "https://cdn.invalid/shared/packages.json"

	_, err := f.updater.Register(ctx, Options{Type: host.TypePlugin, Slug: "acme", APIURL: shared})
	require.NoError(t, err)
	_, err = f.updater.Register(ctx, Options{Type: host.TypeTheme, Slug: "skyline", APIURL: shared})
	require.NoError(t, err)
	require.Len(t, f.updater.Clients(), 1)

	require.NoError(t, f.updater.Unregister("plugin_acme"))
	require.Len(t, f.updater.Clients(), 1, "client still serves theme_skyline")

	_, err = f.updater.Register(ctx, Options{Type: host.TypeTheme, Slug: "skyline", APIURL: "https://cdn.invalid/skyline/packages.json"})
	require.NoError(t, err)
	clients := f.updater.Clients()
	require.Len(t, clients, 1)
	assert.Equal(t, "https://cdn.invalid/skyline/packages.json", clients[0].URL())
}

func TestRegister_AutoInstall(t *testing.T) {
	c := newCDN(t, "acme")
	f := newFixture(t)

	_, err := f.updater.Register(context.Background(), Options{Type: host.TypePlugin, Slug: "acme", APIURL: c.url(), AutoInstall: true})
	require.NoError(t, err)

	assert.Equal(t, []installRecord{{"plugin_acme", "fr_FR", true}}, f.installed())
	assert.Equal(t, int32(1), c.packages.Load())
	assert.FileExists(t, f.env.LanguagesDir()+"/plugins/acme-fr_FR.po")
}

func TestCheckUpdates_MergesWithUpstream(t *testing.T) {
	c := newCDN(t, "acme")
	f := newFixture(t)
	f.upstream.updates = []host.TranslationUpdate{
		{Type: host.TypePlugin, Slug: "acme", Language: "fr_FR", Package: "https://upstream/fr.zip"},
		{Type: host.TypePlugin, Slug: "other", Language: "fr_FR", Package: "https://upstream/other.zip"},
	}

	_, err := f.updater.Register(context.Background(), Options{Type: host.TypePlugin, Slug: "acme", APIURL: c.url()})
	require.NoError(t, err)

	updates := f.updater.CheckUpdates(context.Background())
	require.Len(t, updates, 3)
	assert.Equal(t, "other", updates[0].Slug)

	packages := map[string]string{}
	for _, u := range updates[1:] {
		assert.Equal(t, "acme", u.Slug)
		packages[u.Language] = u.Package
	}
	assert.Equal(t, c.srv.URL+"/fr.zip", packages["fr_FR"])
	assert.Equal(t, c.srv.URL+"/de.zip", packages["de_DE"])
}

func TestCheckUpdates_OverrideDropsUpstreamRecords(t *testing.T) {
	c := newCDN(t, "acme")
	f := newFixture(t)
	f.upstream.updates = []host.TranslationUpdate{
		{Type: host.TypePlugin, Slug: "acme", Language: "ja", Package: "https://upstream/ja.zip"},
	}

	_, err := f.updater.Register(context.Background(), Options{Type: host.TypePlugin, Slug: "acme", APIURL: c.url(), OverrideUpstream: true})
	require.NoError(t, err)

	for _, u := range f.updater.CheckUpdates(context.Background()) {
		assert.NotEqual(t, "ja", u.Language)
	}
}

func TestCheckUpdates_AfterInstallNothingPending(t *testing.T) {
	c := newCDN(t, "acme")
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.updater.Register(ctx, Options{Type: host.TypePlugin, Slug: "acme", APIURL: c.url()})
	require.NoError(t, err)
	require.Len(t, f.updater.CheckUpdates(ctx), 2)

	for _, locale := range []string{"fr_FR", "de_DE"} {
		ok, err := f.updater.Install(ctx, "plugin_acme", locale)
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.Empty(t, f.updater.CheckUpdates(ctx))
	assert.Equal(t, int32(1), c.catalogs.Load())
}

func TestTranslations_Override(t *testing.T) {
	c := newCDN(t, "acme")
	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"translations":[]}`))
	}))
	t.Cleanup(empty.Close)

	upstreamList := []catalog.Translation{{Language: "ja", Package: "https://upstream/ja.zip"}}
	no := false

	tests := []struct {
		name         string
		opts         Options
		wantUpstream bool
		wantLen      int
	}{
		{"not overriding", Options{APIURL: c.url()}, true, 1},
		{"override with translations", Options{APIURL: c.url(), OverrideUpstream: true}, false, 2},
		{"override empty with fallback", Options{APIURL: empty.URL + "/packages.json", OverrideUpstream: true}, true, 1},
		{"override empty without fallback", Options{APIURL: empty.URL + "/packages.json", OverrideUpstream: true, UpstreamFallback: &no}, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.upstream.translations = upstreamList
			tt.opts.Type, tt.opts.Slug = host.TypePlugin, "acme"
			_, err := f.updater.Register(context.Background(), tt.opts)
			require.NoError(t, err)

			res := f.updater.Translations(context.Background(), host.TranslationsRequest{Type: "plugins", Slug: "acme"})
			require.NotNil(t, res)
			assert.Len(t, res.Translations, tt.wantLen)
			if tt.wantUpstream {
				assert.Equal(t, upstreamList, res.Translations)
			}
		})
	}
}

func TestTranslations_UnknownProjectUsesUpstream(t *testing.T) {
	f := newFixture(t)
	f.upstream.translations = []catalog.Translation{{Language: "ja"}}

	res := f.updater.Translations(context.Background(), host.TranslationsRequest{Type: "plugin", Slug: "nobody"})
	assert.Equal(t, f.upstream.translations, res.Translations)
	assert.Equal(t, 1, f.upstream.calls)
}

func TestTransientChanged_CleansAfterLifespan(t *testing.T) {
	c := newCDN(t, "acme")
	now := time.Unix(1_700_000_000, 0)
	var clockMu sync.Mutex
	clock := func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		clockMu.Lock()
		defer clockMu.Unlock()
		now = now.Add(d)
	}

	f := newFixture(t, func(d *Deps) { d.CacheOptions = []cache.Option{cache.WithClock(clock)} })
	ctx := context.Background()
	_, err := f.updater.Register(ctx, Options{Type: host.TypePlugin, Slug: "acme", APIURL: c.url()})
	require.NoError(t, err)

	f.updater.CheckUpdates(ctx)
	require.Equal(t, int32(1), c.catalogs.Load())

	// Inside the debounce window the catalog survives.
	advance(10 * time.Second)
	f.updater.TransientChanged(ctx, host.TransientUpdatePlugins)
	f.updater.CheckUpdates(ctx)
	assert.Equal(t, int32(1), c.catalogs.Load())

	// Unrelated transients are ignored.
	advance(time.Minute)
	f.updater.TransientChanged(ctx, "doing_cron")
	f.updater.CheckUpdates(ctx)
	assert.Equal(t, int32(1), c.catalogs.Load())

	f.updater.TransientChanged(ctx, host.TransientUpdateThemes)
	f.updater.CheckUpdates(ctx)
	assert.Equal(t, int32(2), c.catalogs.Load())
}

func TestChangeLocale_ReinstallsOptedInProjects(t *testing.T) {
	c := newCDN(t, "acme")
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.updater.Register(ctx, Options{Type: host.TypePlugin, Slug: "acme", APIURL: c.url(), InstallOnLangChange: true})
	require.NoError(t, err)
	_, err = f.updater.Register(ctx, Options{Type: host.TypeTheme, Slug: "quiet", APIURL: c.url()})
	require.NoError(t, err)

	require.NoError(t, f.updater.ChangeLocale(ctx, "de_DE"))
	assert.Equal(t, "de_DE", f.env.Locale(ctx))
	assert.Equal(t, []installRecord{{"plugin_acme", "de_DE", true}}, f.installed())

	// Same locale again is not a change.
	require.NoError(t, f.updater.ChangeLocale(ctx, "de_DE"))
	assert.Len(t, f.installed(), 1)
}

func TestInstallAndRefresh_UnknownProject(t *testing.T) {
	f := newFixture(t)
	_, err := f.updater.Install(context.Background(), "plugin_nobody", "fr_FR")
	assert.ErrorIs(t, err, ErrNotRegistered)
	_, err = f.updater.Refresh(context.Background(), "plugin_nobody")
	assert.ErrorIs(t, err, ErrNotRegistered)
}

func TestRefresh_Refetches(t *testing.T) {
	c := newCDN(t, "acme")
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.updater.Register(ctx, Options{Type: host.TypePlugin, Slug: "acme", APIURL: c.url()})
	require.NoError(t, err)
	f.updater.CheckUpdates(ctx)

	ok, err := f.updater.Refresh(ctx, "plugin_acme")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(2), c.catalogs.Load())
}

func TestClose_Unhooks(t *testing.T) {
	hooks := host.NewHooks()
	f := newFixture(t, func(d *Deps) { d.Hooks = hooks })
	assert.True(t, hooks.Has(host.FilterUpdatePlugins))

	require.NoError(t, f.updater.Close())
	assert.False(t, hooks.Has(host.FilterUpdatePlugins))
	assert.False(t, hooks.Has(host.ActionLocaleChanged))

	_, err := f.updater.Register(context.Background(), Options{Type: host.TypePlugin, Slug: "acme", APIURL: "https://cdn.invalid/packages.json"})
	assert.Error(t, err)
}
