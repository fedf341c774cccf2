// Package project computes which translation packages a plugin or theme needs.
package project

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"langpacks/internal/catalog"
	"langpacks/internal/host"
)

var (
	// ErrInvalidType is returned for a type other than plugin or theme.
	ErrInvalidType = errors.New("project type must be plugin or theme")
	// ErrEmptySlug is returned when no slug is given.
	ErrEmptySlug = errors.New("project slug is required")
	// ErrNoSource is returned when no catalog source is given.
	ErrNoSource = errors.New("project catalog source is required")
)

// Source provides catalog documents. *api.Client implements it.
type Source interface {
	GetTranslations(ctx context.Context, slug string) *catalog.Document
	Centralized() bool
}

// projectLookup is implemented by sources that can try several project keys
// against a single catalog fetch.
type projectLookup interface {
	LookupProject(ctx context.Context, keys ...string) *catalog.Document
}

// Options configures a Project.
type Options struct {
	Type             string
	Slug             string
	Source           Source
	OverrideUpstream bool
	UpstreamFallback bool
	Version          string
}

// Project binds a plugin or theme to its catalog source.
type Project struct {
	projectType string
	slug        string
	source      Source

	mu               sync.RWMutex
	overrideUpstream bool
	upstreamFallback bool
	version          string
}

// New validates opts and creates a Project.
func New(opts Options) (*Project, error) {
	if opts.Type != host.TypePlugin && opts.Type != host.TypeTheme {
		return nil, fmt.Errorf("%w: %q", ErrInvalidType, opts.Type)
	}
	if opts.Slug == "" {
		return nil, ErrEmptySlug
	}
	if opts.Source == nil {
		return nil, ErrNoSource
	}
	return &Project{
		projectType:      opts.Type,
		slug:             opts.Slug,
		source:           opts.Source,
		overrideUpstream: opts.OverrideUpstream,
		upstreamFallback: opts.UpstreamFallback,
		version:          opts.Version,
	}, nil
}

// ID returns "<type>_<slug>", unique across a registry.
func ID(projectType, slug string) string {
	return projectType + "_" + slug
}

// ID returns the project's registry identifier.
func (p *Project) ID() string { return ID(p.projectType, p.slug) }

// Type returns "plugin" or "theme".
func (p *Project) Type() string { return p.projectType }

// Slug returns the project slug.
func (p *Project) Slug() string { return p.slug }

// Source returns the catalog source.
func (p *Project) Source() Source { return p.source }

// OverrideUpstream reports whether this project replaces the first-party translation source.
func (p *Project) OverrideUpstream() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.overrideUpstream
}

// SetOverrideUpstream changes the override flag.
func (p *Project) SetOverrideUpstream(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.overrideUpstream = v
}

// UpstreamFallback reports whether an overriding project with no translations
// defers to the first-party source.
func (p *Project) UpstreamFallback() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.upstreamFallback
}

// SetUpstreamFallback changes the fallback flag.
func (p *Project) SetUpstreamFallback(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.upstreamFallback = v
}

// Version returns the pinned project version, if any.
func (p *Project) Version() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.version
}

// SetVersion pins V2 version resolution.
func (p *Project) SetVersion(v string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.version = v
}

// Document returns the project's catalog. Centralized catalogs are looked up
// by slug, then by "<type>_<slug>".
func (p *Project) Document(ctx context.Context) *catalog.Document {
	if !p.source.Centralized() {
		return p.source.GetTranslations(ctx, "")
	}
	if l, ok := p.source.(projectLookup); ok {
		return l.LookupProject(ctx, p.slug, p.ID())
	}
	doc := p.source.GetTranslations(ctx, p.slug)
	if doc.IsEmpty() {
		if alt := p.source.GetTranslations(ctx, p.ID()); !alt.IsEmpty() {
			return alt
		}
	}
	return doc
}

// Translations returns the catalog entries for the pinned version.
func (p *Project) Translations(ctx context.Context) []catalog.Translation {
	return p.Document(ctx).TranslationsFor(p.Version())
}

// Updates returns the translation packages the site needs for this project.
func (p *Project) Updates(ctx context.Context, state *State) []host.TranslationUpdate {
	translations := p.Translations(ctx)
	if len(translations) == 0 {
		return nil
	}

	var updates []host.TranslationUpdate
	for _, t := range translations {
		if !state.ShouldUpdate(ctx, p.projectType, p.slug, t) {
			continue
		}
		updates = append(updates, host.TranslationUpdate{
			Type:     p.projectType,
			Slug:     p.slug,
			Language: t.Language,
			Version:  t.Version,
			Updated:  t.Updated,
			Package:  t.Package,
		})
	}
	return updates
}
