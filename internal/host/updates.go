package host

import (
	"context"

	"langpacks/internal/catalog"
)

// Project types and their plural directory names.
const (
	TypePlugin = "plugin"
	TypeTheme  = "theme"
)

// Plural returns the directory/transient name for a project type.
func Plural(projectType string) string {
	return projectType + "s"
}

// TranslationUpdate is one entry in an update transient's translation list.
type TranslationUpdate struct {
	Type     string `json:"type"`
	Slug     string `json:"slug"`
	Language string `json:"language"`
	Version  string `json:"version,omitempty"`
	Updated  string `json:"updated,omitempty"`
	Package  string `json:"package"`
}

// UpdateTransient is the value passed through the site_transient_update_* filters.
type UpdateTransient struct {
	Translations []TranslationUpdate `json:"translations"`
}

// TranslationsRequest describes a translations_api lookup.
type TranslationsRequest struct {
	Type    string
	Slug    string
	Version string
}

// TranslationsResult is a translations_api answer.
type TranslationsResult struct {
	Translations []catalog.Translation `json:"translations"`
}

// Upstream is the platform's first-party translation source.
type Upstream interface {
	Updates(ctx context.Context, projectType string) []TranslationUpdate
	Translations(ctx context.Context, req TranslationsRequest) *TranslationsResult
}

// NoUpstream is an Upstream that knows about nothing.
type NoUpstream struct{}

// Updates returns nil.
func (NoUpstream) Updates(context.Context, string) []TranslationUpdate { return nil }

// Translations returns an empty result.
func (NoUpstream) Translations(context.Context, TranslationsRequest) *TranslationsResult {
	return &TranslationsResult{}
}

// UpdateFilter returns the transient filter name for a project type.
func UpdateFilter(projectType string) string {
	if projectType == TypeTheme {
		return FilterUpdateThemes
	}
	return FilterUpdatePlugins
}

// BuildUpdateTransient asks upstream for its updates and passes them through
// the project type's update filter.
func BuildUpdateTransient(ctx context.Context, hooks *Hooks, upstream Upstream, projectType string) *UpdateTransient {
	base := &UpdateTransient{Translations: upstream.Updates(ctx, projectType)}
	if out, ok := hooks.ApplyFilters(ctx, UpdateFilter(projectType), base).(*UpdateTransient); ok && out != nil {
		return out
	}
	return base
}

// LookupTranslations answers a translations API request: the translations_api
// filter may short-circuit the upstream call, then translations_api_result may
// rewrite whichever result was produced.
func LookupTranslations(ctx context.Context, hooks *Hooks, upstream Upstream, req TranslationsRequest) *TranslationsResult {
	var result *TranslationsResult
	if out, ok := hooks.ApplyFilters(ctx, FilterTranslationsAPI, nil, req).(*TranslationsResult); ok {
		result = out
	}
	if result == nil {
		result = upstream.Translations(ctx, req)
	}
	if out, ok := hooks.ApplyFilters(ctx, FilterTranslationsAPIResult, result, req).(*TranslationsResult); ok && out != nil {
		result = out
	}
	return result
}
