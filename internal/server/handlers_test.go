package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"langpacks/internal/api"
	"langpacks/internal/cache"
	"langpacks/internal/host"
	"langpacks/internal/project"
	"langpacks/internal/updater"
)

type mockUpdater struct {
	updates   []host.TranslationUpdate
	projects  []*project.Project
	installOK bool
	refreshOK bool
	localeErr error
	locale    string

	installed  []string
	locales    []string
	transients []string
}

func (m *mockUpdater) CheckUpdates(context.Context) []host.TranslationUpdate { return m.updates }

func (m *mockUpdater) Projects() []*project.Project { return m.projects }

func (m *mockUpdater) Install(_ context.Context, id, locale string) (bool, error) {
	if !m.known(id) {
		return false, fmt.Errorf("%w: %s", updater.ErrNotRegistered, id)
	}
	m.installed = append(m.installed, id+":"+locale)
	return m.installOK, nil
}

func (m *mockUpdater) Refresh(_ context.Context, id string) (bool, error) {
	if !m.known(id) {
		return false, fmt.Errorf("%w: %s", updater.ErrNotRegistered, id)
	}
	return m.refreshOK, nil
}

func (m *mockUpdater) ChangeLocale(_ context.Context, locale string) error {
	m.locales = append(m.locales, locale)
	return m.localeErr
}

func (m *mockUpdater) TransientChanged(_ context.Context, name string) {
	m.transients = append(m.transients, name)
}

func (m *mockUpdater) Locale(context.Context) string { return m.locale }

func (m *mockUpdater) known(id string) bool {
	for _, p := range m.projects {
		if p.ID() == id {
			return true
		}
	}
	return false
}

func newMock(t *testing.T) *mockUpdater {
	t.Helper()
	client, err := api.New(api.Options{
		URL:   "https://cdn.invalid/acme/packages.json",
		Cache: cache.New(cache.NewMemoryStore()),
	})
	require.NoError(t, err)
	p, err := project.New(project.Options{Type: host.TypePlugin, Slug: "acme", Source: client, UpstreamFallback: true})
	require.NoError(t, err)
	return &mockUpdater{projects: []*project.Project{p}, installOK: true, refreshOK: true, locale: "fr_FR"}
}

func do(t *testing.T, srv http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := do(t, New(newMock(t), nil), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestListUpdates(t *testing.T) {
	m := newMock(t)
	srv := New(m, nil)

	rec := do(t, srv, http.MethodGet, "/v1/updates", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"translations":[]}`, rec.Body.String())

	m.updates = []host.TranslationUpdate{{Type: "plugin", Slug: "acme", Language: "fr_FR", Package: "https://x/fr.zip"}}
	rec = do(t, srv, http.MethodGet, "/v1/updates", "")
	assert.JSONEq(t, `{"translations":[{"type":"plugin","slug":"acme","language":"fr_FR","package":"https://x/fr.zip"}]}`, rec.Body.String())
}

func TestListProjects(t *testing.T) {
	rec := do(t, New(newMock(t), nil), http.MethodGet, "/v1/projects", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Projects []ProjectInfo `json:"projects"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []ProjectInfo{{
		ID:               "plugin_acme",
		Type:             "plugin",
		Slug:             "acme",
		APIURL:           "https://cdn.invalid/acme/packages.json",
		UpstreamFallback: true,
		V2State:          "unknown",
	}}, body.Projects)
}

func TestInstall(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		installOK  bool
		wantStatus int
	}{
		{"installs requested locale", "/v1/projects/plugin/acme/install?locale=fr_FR", true, http.StatusOK},
		{"install failure", "/v1/projects/plugin/acme/install", false, http.StatusUnprocessableEntity},
		{"unknown project", "/v1/projects/theme/acme/install", true, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMock(t)
			m.installOK = tt.installOK
			rec := do(t, New(m, nil), http.MethodPost, tt.target, "")
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}

	m := newMock(t)
	rec := do(t, New(m, nil), http.MethodPost, "/v1/projects/plugin/acme/install?locale=de_DE", "")
	assert.JSONEq(t, `{"project":"plugin_acme","locale":"de_DE","installed":true}`, rec.Body.String())

	rec = do(t, New(m, nil), http.MethodPost, "/v1/projects/plugin/acme/install", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"project":"plugin_acme","locale":"fr_FR","installed":true}`, rec.Body.String())
	assert.Equal(t, []string{"plugin_acme:de_DE", "plugin_acme:fr_FR"}, m.installed)
}

func TestRefresh(t *testing.T) {
	m := newMock(t)
	srv := New(m, nil)

	rec := do(t, srv, http.MethodPost, "/v1/projects/plugin/acme/refresh", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	m.refreshOK = false
	rec = do(t, srv, http.MethodPost, "/v1/projects/plugin/acme/refresh", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = do(t, srv, http.MethodPost, "/v1/projects/plugin/nobody/refresh", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEvents(t *testing.T) {
	m := newMock(t)
	srv := New(m, nil)

	rec := do(t, srv, http.MethodPost, "/v1/events/locale", `{"locale":"de_DE"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"de_DE"}, m.locales)

	rec = do(t, srv, http.MethodPost, "/v1/events/locale", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	m.localeErr = errors.New("environment does not support locale changes")
	rec = do(t, srv, http.MethodPost, "/v1/events/locale", `{"locale":"fr_FR"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = do(t, srv, http.MethodPost, "/v1/events/transient", `{"name":"update_plugins"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"update_plugins"}, m.transients)
}

func TestServer_MasterKeyAndMetrics(t *testing.T) {
	srv := New(newMock(t), &Config{MasterKey: "k", MetricsEnabled: true, MetricsEndpoint: "stats"})

	assert.Equal(t, http.StatusUnauthorized, do(t, srv, http.MethodGet, "/v1/projects", "").Code)
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/health", "").Code)

	rec := do(t, srv, http.MethodGet, "/stats", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestServer_MetricsDisabled(t *testing.T) {
	rec := do(t, New(newMock(t), nil), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
