// Package catalog defines the translation catalog documents served by a
// language-pack CDN and resolves version-pinned translation lists.
//
// Three shapes exist on the wire:
//
//	V1:          {"translations": [...]}
//	V2:          {"api_version": 2, "current_version": "x.y.z", "translations": [...],
//	              "versions": {"x.y.z": {"fr_FR": {"package": "...", "updated": "..."}}}}
//	centralized: {"projects": {"<slug or type_slug>": <V1 or V2 document>}}
package catalog

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/tidwall/gjson"
)

// APIVersion2 is the api_version value that marks a V2 document.
const APIVersion2 = 2

// Translation is one locale's package metadata.
type Translation struct {
	Language string `json:"language"`
	Version  string `json:"version,omitempty"`
	Updated  string `json:"updated,omitempty"`
	Package  string `json:"package"`
}

// VersionPackage is a locale's package for a specific project version.
type VersionPackage struct {
	Package string `json:"package"`
	Updated string `json:"updated,omitempty"`
}

// Document is a single-project catalog, V1 or V2.
type Document struct {
	APIVersion     int                                  `json:"api_version,omitempty"`
	CurrentVersion string                               `json:"current_version,omitempty"`
	Translations   []Translation                        `json:"translations"`
	Versions       map[string]map[string]VersionPackage `json:"versions,omitempty"`
}

// Centralized is a multi-project catalog.
type Centralized struct {
	Projects map[string]json.RawMessage `json:"projects"`
}

// IsV2 reports whether the document declares api_version 2.
func (d *Document) IsV2() bool {
	return d != nil && d.APIVersion == APIVersion2
}

// IsEmpty reports whether the document carries no translations.
func (d *Document) IsEmpty() bool {
	return d == nil || len(d.Translations) == 0
}

// TranslationsFor returns the translation list for the given project version.
//
// An empty version, the current version, a V1 document or a version missing
// from the versions map all yield the top-level list. A known version yields
// one entry per locale in that version's map: current metadata for the locale
// cloned with version and package replaced (updated only when the version entry
// has one), or a minimal entry built from the version entry alone.
func (d *Document) TranslationsFor(version string) []Translation {
	if d == nil {
		return nil
	}
	if version == "" || !d.IsV2() || version == d.CurrentVersion {
		return d.Translations
	}
	packages, ok := d.Versions[version]
	if !ok {
		return d.Translations
	}

	current := make(map[string]Translation, len(d.Translations))
	for _, t := range d.Translations {
		current[t.Language] = t
	}

	locales := make([]string, 0, len(packages))
	for locale := range packages {
		locales = append(locales, locale)
	}
	sort.Strings(locales)

	out := make([]Translation, 0, len(locales))
	for _, locale := range locales {
		info := packages[locale]
		entry, ok := current[locale]
		if !ok {
			entry = Translation{Language: locale, Updated: info.Updated}
		}
		entry.Version = version
		entry.Package = info.Package
		if info.Updated != "" {
			entry.Updated = info.Updated
		}
		out = append(out, entry)
	}
	return out
}

// Parse decodes a single-project document. The input must be a JSON object.
func Parse(raw []byte) (*Document, error) {
	if !IsObject(raw) {
		return nil, fmt.Errorf("catalog is not a JSON object")
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing catalog JSON: %w", err)
	}
	return &doc, nil
}

// ParseCentralized decodes a multi-project document.
func ParseCentralized(raw []byte) (*Centralized, error) {
	if !IsObject(raw) {
		return nil, fmt.Errorf("catalog is not a JSON object")
	}
	var doc Centralized
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing centralized catalog JSON: %w", err)
	}
	return &doc, nil
}

// IsObject reports whether raw is a well-formed JSON object.
func IsObject(raw []byte) bool {
	return gjson.ValidBytes(raw) && gjson.ParseBytes(raw).IsObject()
}

// DeclaresV2 reports whether raw is an object with api_version == 2.
func DeclaresV2(raw []byte) bool {
	if !IsObject(raw) {
		return false
	}
	v := gjson.GetBytes(raw, "api_version")
	return v.Type == gjson.Number && v.Int() == APIVersion2
}
