package project

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"langpacks/internal/catalog"
	"langpacks/internal/host"
)

// State memoizes host lookups for one request: installed translations per
// project type and the site's available languages. Call ClearCaches whenever
// installed translations change.
type State struct {
	env    host.Environment
	logger *slog.Logger

	mu        sync.Mutex
	installed map[string]host.Installed
	languages []string
	langsSet  bool
}

// NewState creates an empty memo over env.
func NewState(env host.Environment, logger *slog.Logger) *State {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &State{
		env:       env,
		logger:    logger,
		installed: make(map[string]host.Installed),
	}
}

// Environment returns the host environment behind the memo.
func (s *State) Environment() host.Environment { return s.env }

// Installed returns installed translations for a type plural. Lookup errors
// are logged and treated as nothing installed.
func (s *State) Installed(ctx context.Context, typePlural string) host.Installed {
	s.mu.Lock()
	defer s.mu.Unlock()

	if installed, ok := s.installed[typePlural]; ok {
		return installed
	}
	installed, err := s.env.InstalledTranslations(ctx, typePlural)
	if err != nil {
		s.logger.Error("failed to read installed translations", "type", typePlural, "error", err)
		installed = host.Installed{}
	}
	s.installed[typePlural] = installed
	return installed
}

// AvailableLanguages returns the locales the site uses.
func (s *State) AvailableLanguages(ctx context.Context) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.langsSet {
		return s.languages
	}
	langs, err := s.env.AvailableLanguages(ctx)
	if err != nil {
		s.logger.Error("failed to read available languages", "error", err)
	}
	s.languages = langs
	s.langsSet = true
	return langs
}

// ClearCaches drops both memoized lookups.
func (s *State) ClearCaches() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.installed = make(map[string]host.Installed)
	s.languages = nil
	s.langsSet = false
}

// ShouldUpdate decides whether entry must be installed for the given project.
//
// Locales the site does not use are never updated. A locale with no installed
// record, an entry without an updated timestamp, or a timestamp that fails to
// parse is always updated. Otherwise the remote timestamp must be strictly
// later than the installed PO-Revision-Date.
func (s *State) ShouldUpdate(ctx context.Context, projectType, slug string, entry catalog.Translation) bool {
	if !slices.Contains(s.AvailableLanguages(ctx), entry.Language) {
		return false
	}

	record, ok := s.Installed(ctx, host.Plural(projectType))[slug][entry.Language]
	if !ok {
		return true
	}
	if entry.Updated == "" {
		return true
	}
	return catalog.IsNewer(entry.Updated, record[host.HeaderRevisionDate])
}
