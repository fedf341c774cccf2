// Package installer downloads and unpacks translation packages for one project.
package installer

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"langpacks/internal/catalog"
	"langpacks/internal/host"
	"langpacks/internal/project"
)

// Deps are the collaborators an Installer needs.
type Deps struct {
	Project    *project.Project
	State      *project.State
	Hooks      *host.Hooks
	Downloader host.Downloader
	Filesystem host.FilesystemProvider
	Logger     *slog.Logger
}

// Installer installs translation packages for one project. Locales installed
// by this instance are remembered and not installed again.
type Installer struct {
	project    *project.Project
	state      *project.State
	hooks      *host.Hooks
	downloader host.Downloader
	provider   host.FilesystemProvider
	logger     *slog.Logger

	mu        sync.Mutex
	fs        host.Filesystem
	installed map[string]bool
}

// New creates an Installer.
func New(deps Deps) *Installer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	hooks := deps.Hooks
	if hooks == nil {
		hooks = host.NewHooks()
	}
	return &Installer{
		project:    deps.Project,
		state:      deps.State,
		hooks:      hooks,
		downloader: deps.Downloader,
		provider:   deps.Filesystem,
		logger:     logger.With("project", deps.Project.ID()),
		installed:  make(map[string]bool),
	}
}

// Installed reports whether locale was installed by this instance.
func (i *Installer) Installed(locale string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.installed[locale]
}

// Install makes sure the package for locale is installed. An empty locale
// means the site's current locale. It reports success; the reason for a
// failure is logged.
func (i *Installer) Install(ctx context.Context, locale string) bool {
	env := i.state.Environment()
	if locale == "" {
		locale = env.Locale(ctx)
	}
	if locale == env.BaseLocale() || i.Installed(locale) {
		return true
	}

	translations := i.project.Translations(ctx)
	if len(translations) == 0 {
		i.logger.Error("no translations available", "locale", locale)
		return false
	}

	entry, ok := find(translations, locale)
	if !ok {
		i.logger.Error("no translation for locale", "locale", locale)
		return false
	}

	if !i.state.ShouldUpdate(ctx, i.project.Type(), i.project.Slug(), entry) {
		i.logger.Debug("translation up to date", "locale", locale)
		return true
	}

	return i.downloadAndInstall(ctx, entry)
}

func (i *Installer) downloadAndInstall(ctx context.Context, entry catalog.Translation) bool {
	locale := entry.Language
	log := i.logger.With("locale", locale, "package", entry.Package)

	if entry.Package == "" {
		log.Error("translation has no package url")
		return false
	}
	env := i.state.Environment()
	if !env.CanInstall(ctx) {
		log.Error("not permitted to install translations")
		return false
	}
	fsys, err := i.filesystem(ctx)
	if err != nil {
		log.Error("failed to initialize filesystem", "error", err)
		return false
	}

	dest := filepath.Join(env.LanguagesDir(), host.Plural(i.project.Type()))
	if !fsys.Exists(dest) {
		if err := fsys.MkdirAll(dest); err != nil {
			log.Error("failed to create translations directory", "dir", dest, "error", err)
			return false
		}
	}

	tmp, err := i.downloader.Download(ctx, entry.Package)
	if err != nil {
		log.Error("failed to download translation package", "error", err)
		return false
	}

	archive := filepath.Join(dest, i.project.Slug()+"-"+locale+".zip")
	copyErr := fsys.Copy(tmp, archive)
	if err := fsys.Delete(tmp); err != nil {
		log.Warn("failed to remove temporary download", "path", tmp, "error", err)
	}
	if copyErr != nil {
		log.Error("failed to copy translation package", "error", copyErr)
		return false
	}

	// Extracted files are left in place if this fails part way.
	if err := fsys.Unzip(ctx, archive, dest); err != nil {
		log.Error("failed to extract translation package", "error", err)
		return false
	}
	if err := fsys.Delete(archive); err != nil {
		log.Warn("failed to remove translation package", "path", archive, "error", err)
	}

	i.mu.Lock()
	i.installed[locale] = true
	i.mu.Unlock()

	i.state.ClearCaches()
	i.hooks.DoAction(ctx, host.ActionTranslationsInstalled, i.project.Type(), i.project.Slug(), locale)

	log.Info("translation installed", "version", entry.Version)
	return true
}

// filesystem initializes the filesystem on first use.
func (i *Installer) filesystem(ctx context.Context) (host.Filesystem, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.fs != nil {
		return i.fs, nil
	}
	fsys, err := i.provider(ctx)
	if err != nil {
		return nil, err
	}
	i.fs = fsys
	return fsys, nil
}

func find(translations []catalog.Translation, locale string) (catalog.Translation, bool) {
	for _, t := range translations {
		if t.Language == locale {
			return t, true
		}
	}
	return catalog.Translation{}, false
}
