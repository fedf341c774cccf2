// Package server provides the HTTP admin API for the translation updater.
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"langpacks/internal/api"
	"langpacks/internal/host"
	"langpacks/internal/project"
	"langpacks/internal/updater"
)

// Updater is the registry surface the handlers drive. *updater.Updater implements it.
type Updater interface {
	CheckUpdates(ctx context.Context) []host.TranslationUpdate
	Projects() []*project.Project
	Install(ctx context.Context, id, locale string) (bool, error)
	Refresh(ctx context.Context, id string) (bool, error)
	ChangeLocale(ctx context.Context, locale string) error
	TransientChanged(ctx context.Context, name string)
	Locale(ctx context.Context) string
}

// Handler holds the HTTP handlers
type Handler struct {
	updater Updater
}

// NewHandler creates a new handler over updater
func NewHandler(u Updater) *Handler {
	return &Handler{updater: u}
}

// ProjectInfo describes a registered project.
type ProjectInfo struct {
	ID               string `json:"id"`
	Type             string `json:"type"`
	Slug             string `json:"slug"`
	APIURL           string `json:"api_url,omitempty"`
	Centralized      bool   `json:"is_centralized"`
	OverrideUpstream bool   `json:"override_upstream"`
	UpstreamFallback bool   `json:"upstream_fallback"`
	Version          string `json:"version,omitempty"`
	V2State          string `json:"v2_state,omitempty"`
}

type localeEvent struct {
	Locale string `json:"locale"`
}

type transientEvent struct {
	Name string `json:"name"`
}

// Health handles GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// ListUpdates handles GET /v1/updates
func (h *Handler) ListUpdates(c echo.Context) error {
	updates := h.updater.CheckUpdates(c.Request().Context())
	if updates == nil {
		updates = []host.TranslationUpdate{}
	}
	return c.JSON(http.StatusOK, map[string]any{"translations": updates})
}

// ListProjects handles GET /v1/projects
func (h *Handler) ListProjects(c echo.Context) error {
	projects := h.updater.Projects()
	out := make([]ProjectInfo, 0, len(projects))
	for _, p := range projects {
		out = append(out, describe(p))
	}
	return c.JSON(http.StatusOK, map[string]any{"projects": out})
}

// Install handles POST /v1/projects/:type/:slug/install?locale=
func (h *Handler) Install(c echo.Context) error {
	id := project.ID(c.Param("type"), c.Param("slug"))
	ctx := c.Request().Context()
	locale := c.QueryParam("locale")
	if locale == "" {
		locale = h.updater.Locale(ctx)
	}

	ok, err := h.updater.Install(ctx, id, locale)
	if err != nil {
		return handleError(c, err)
	}
	if !ok {
		return errorJSON(c, http.StatusUnprocessableEntity, "install_failed", "translation could not be installed for "+id)
	}
	return c.JSON(http.StatusOK, map[string]any{"project": id, "locale": locale, "installed": true})
}

// Refresh handles POST /v1/projects/:type/:slug/refresh
func (h *Handler) Refresh(c echo.Context) error {
	id := project.ID(c.Param("type"), c.Param("slug"))

	ok, err := h.updater.Refresh(c.Request().Context(), id)
	if err != nil {
		return handleError(c, err)
	}
	if !ok {
		return errorJSON(c, http.StatusBadGateway, "upstream_error", "catalog fetch returned no data")
	}
	return c.JSON(http.StatusOK, map[string]any{"project": id, "refreshed": true})
}

// LocaleChanged handles POST /v1/events/locale
func (h *Handler) LocaleChanged(c echo.Context) error {
	var ev localeEvent
	if err := c.Bind(&ev); err != nil || ev.Locale == "" {
		return errorJSON(c, http.StatusBadRequest, "invalid_request_error", "body must be {\"locale\": \"<locale>\"}")
	}
	if err := h.updater.ChangeLocale(c.Request().Context(), ev.Locale); err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"locale": ev.Locale})
}

// TransientChanged handles POST /v1/events/transient
func (h *Handler) TransientChanged(c echo.Context) error {
	var ev transientEvent
	if err := c.Bind(&ev); err != nil || ev.Name == "" {
		return errorJSON(c, http.StatusBadRequest, "invalid_request_error", "body must be {\"name\": \"<transient>\"}")
	}
	h.updater.TransientChanged(c.Request().Context(), ev.Name)
	return c.NoContent(http.StatusAccepted)
}

func describe(p *project.Project) ProjectInfo {
	info := ProjectInfo{
		ID:               p.ID(),
		Type:             p.Type(),
		Slug:             p.Slug(),
		Centralized:      p.Source().Centralized(),
		OverrideUpstream: p.OverrideUpstream(),
		UpstreamFallback: p.UpstreamFallback(),
		Version:          p.Version(),
	}
	if client, ok := p.Source().(*api.Client); ok {
		info.APIURL = client.URL()
		info.V2State = client.V2State().String()
	}
	return info
}

func handleError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, updater.ErrNotRegistered):
		return errorJSON(c, http.StatusNotFound, "not_found_error", err.Error())
	case errors.Is(err, project.ErrInvalidType), errors.Is(err, project.ErrEmptySlug):
		return errorJSON(c, http.StatusBadRequest, "invalid_request_error", err.Error())
	}

	// Fallback for unexpected errors
	return errorJSON(c, http.StatusInternalServerError, "internal_error", "an unexpected error occurred")
}

func errorJSON(c echo.Context, status int, errType, message string) error {
	return c.JSON(status, map[string]any{
		"error": map[string]any{
			"type":    errType,
			"message": message,
		},
	})
}
