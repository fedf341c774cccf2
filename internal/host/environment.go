package host

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// HeaderRevisionDate is the PO header compared against catalog timestamps.
const HeaderRevisionDate = "PO-Revision-Date"

// Headers are the header fields of an installed PO file.
type Headers map[string]string

// Installed maps slug -> locale -> headers for one project type.
type Installed map[string]map[string]Headers

// Environment reports what the site uses and has installed.
type Environment interface {
	// Locale is the site's current locale.
	Locale(ctx context.Context) string
	// BaseLocale never needs a translation package.
	BaseLocale() string
	// AvailableLanguages lists the locales the site uses.
	AvailableLanguages(ctx context.Context) ([]string, error)
	// InstalledTranslations lists installed translations for a type plural ("plugins", "themes").
	InstalledTranslations(ctx context.Context, typePlural string) (Installed, error)
	// CanInstall reports whether translation installs are permitted.
	CanInstall(ctx context.Context) bool
	// LanguagesDir is the root directory translations are installed under.
	LanguagesDir() string
}

// LocalConfig configures a Local environment.
type LocalConfig struct {
	LanguagesDir string
	Locale       string
	BaseLocale   string
	// Locales, when set, replaces discovery from <LanguagesDir>/*.mo.
	Locales      []string
	AllowInstall bool
}

// Local is an Environment backed by a languages directory on disk:
//
//	<dir>/fr_FR.mo                      site locale files (available languages)
//	<dir>/plugins/<slug>-<locale>.po    installed plugin translations
//	<dir>/themes/<slug>-<locale>.po     installed theme translations
type Local struct {
	dir          string
	baseLocale   string
	locales      []string
	allowInstall bool

	mu     sync.RWMutex
	locale string
}

// NewLocal creates a Local environment.
func NewLocal(cfg LocalConfig) *Local {
	base := cfg.BaseLocale
	if base == "" {
		base = "en_US"
	}
	locale := cfg.Locale
	if locale == "" {
		locale = base
	}
	return &Local{
		dir:          cfg.LanguagesDir,
		baseLocale:   base,
		locales:      append([]string(nil), cfg.Locales...),
		allowInstall: cfg.AllowInstall,
		locale:       locale,
	}
}

// Locale returns the current site locale.
func (l *Local) Locale(context.Context) string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.locale
}

// SetLocale changes the site locale and returns the previous one.
func (l *Local) SetLocale(locale string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	prev := l.locale
	l.locale = locale
	return prev
}

// BaseLocale returns the platform's base locale.
func (l *Local) BaseLocale() string { return l.baseLocale }

// LanguagesDir returns the languages root.
func (l *Local) LanguagesDir() string { return l.dir }

// CanInstall reports the configured install permission.
func (l *Local) CanInstall(context.Context) bool { return l.allowInstall }

// AvailableLanguages returns the configured locales, or the *.mo files in the
// languages directory. The current locale is always included.
func (l *Local) AvailableLanguages(ctx context.Context) ([]string, error) {
	set := map[string]struct{}{l.Locale(ctx): {}}
	if len(l.locales) > 0 {
		for _, loc := range l.locales {
			set[loc] = struct{}{}
		}
	} else {
		entries, err := os.ReadDir(l.dir)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading languages dir: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() || filepath.Ext(e.Name()) != ".mo" {
				continue
			}
			set[strings.TrimSuffix(e.Name(), ".mo")] = struct{}{}
		}
	}

	out := make([]string, 0, len(set))
	for loc := range set {
		out = append(out, loc)
	}
	sort.Strings(out)
	return out, nil
}

// InstalledTranslations reads the headers of every <slug>-<locale>.po file
// under <dir>/<typePlural>.
func (l *Local) InstalledTranslations(_ context.Context, typePlural string) (Installed, error) {
	dir := filepath.Join(l.dir, typePlural)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return Installed{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	installed := Installed{}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".po" {
			continue
		}
		slug, locale, ok := SplitTranslationFile(e.Name())
		if !ok {
			continue
		}
		headers, err := ReadPOHeaders(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		if installed[slug] == nil {
			installed[slug] = map[string]Headers{}
		}
		installed[slug][locale] = headers
	}
	return installed, nil
}

// SplitTranslationFile splits "acme-forms-fr_FR.po" into ("acme-forms", "fr_FR").
// Locales never contain '-', so the split is at the last one.
func SplitTranslationFile(name string) (slug, locale string, ok bool) {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	i := strings.LastIndexByte(base, '-')
	if i <= 0 || i == len(base)-1 {
		return "", "", false
	}
	return base[:i], base[i+1:], true
}

// ReadPOHeaders parses the header entry (the msgstr of the empty msgid) of a PO file.
func ReadPOHeaders(path string) (Headers, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	headers := Headers{}
	scanner := bufio.NewScanner(f)
	inHeader := false
	var block strings.Builder
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == `msgid ""`:
			inHeader = block.Len() == 0
		case !inHeader:
			continue
		case strings.HasPrefix(line, "msgstr "):
			block.WriteString(unquote(strings.TrimPrefix(line, "msgstr ")))
		case strings.HasPrefix(line, `"`):
			block.WriteString(unquote(line))
		case line == "" || strings.HasPrefix(line, "msgid "):
			inHeader = false
		}
		if !inHeader && block.Len() > 0 {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	for _, field := range strings.Split(block.String(), "\n") {
		key, value, ok := strings.Cut(field, ":")
		if !ok {
			continue
		}
		headers[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return headers, nil
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if v, err := strconv.Unquote(s); err == nil {
		return v
	}
	return strings.Trim(s, `"`)
}
