package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const v2Doc = `{
	"api_version": 2,
	"current_version": "2.0.0",
	"translations": [
		{"language": "fr_FR", "version": "2.0.0", "updated": "2024-06-15 12:00:00", "package": "https://x/2.0.0/fr.zip"},
		{"language": "de_DE", "version": "2.0.0", "updated": "2024-06-10 08:00:00", "package": "https://x/2.0.0/de.zip"}
	],
	"versions": {
		"1.0.0": {
			"fr_FR": {"package": "https://x/1.0.0/fr.zip", "updated": "2023-01-01 00:00:00"},
			"de_DE": {"package": "https://x/1.0.0/de.zip"},
			"es_ES": {"package": "https://x/1.0.0/es.zip", "updated": "2023-02-02 00:00:00"}
		}
	}
}`

func TestParse(t *testing.T) {
	doc, err := Parse([]byte(v2Doc))
	require.NoError(t, err)
	assert.True(t, doc.IsV2())
	assert.Equal(t, "2.0.0", doc.CurrentVersion)
	assert.Len(t, doc.Translations, 2)

	_, err = Parse([]byte(`["not", "an", "object"]`))
	assert.Error(t, err)

	_, err = Parse([]byte(`{"translations":`))
	assert.Error(t, err)
}

func TestTranslationsFor(t *testing.T) {
	doc, err := Parse([]byte(v2Doc))
	require.NoError(t, err)

	t.Run("current version is authoritative", func(t *testing.T) {
		assert.Equal(t, doc.Translations, doc.TranslationsFor("2.0.0"))
		assert.Equal(t, doc.Translations, doc.TranslationsFor(""))
	})

	t.Run("unknown version falls back to current", func(t *testing.T) {
		assert.Equal(t, doc.Translations, doc.TranslationsFor("0.9.0"))
	})

	t.Run("known version overrides package and version", func(t *testing.T) {
		got := doc.TranslationsFor("1.0.0")
		require.Len(t, got, 3)

		byLocale := map[string]Translation{}
		for _, tr := range got {
			byLocale[tr.Language] = tr
		}

		fr := byLocale["fr_FR"]
		assert.Equal(t, "https://x/1.0.0/fr.zip", fr.Package)
		assert.Equal(t, "1.0.0", fr.Version)
		assert.Equal(t, "2023-01-01 00:00:00", fr.Updated)

		de := byLocale["de_DE"]
		assert.Equal(t, "https://x/1.0.0/de.zip", de.Package)
		assert.Equal(t, "2024-06-10 08:00:00", de.Updated, "empty version updated keeps current metadata")

		es := byLocale["es_ES"]
		assert.Equal(t, Translation{Language: "es_ES", Version: "1.0.0", Updated: "2023-02-02 00:00:00", Package: "https://x/1.0.0/es.zip"}, es)
	})

	t.Run("source list untouched", func(t *testing.T) {
		assert.Equal(t, "https://x/2.0.0/fr.zip", doc.Translations[0].Package)
	})
}

func TestTranslationsFor_V1IgnoresVersion(t *testing.T) {
	doc, err := Parse([]byte(`{"translations":[{"language":"fr_FR","package":"p"}]}`))
	require.NoError(t, err)
	assert.Equal(t, doc.Translations, doc.TranslationsFor("1.0.0"))
}

func TestDeclaresV2(t *testing.T) {
	assert.True(t, DeclaresV2([]byte(`{"api_version":2}`)))
	assert.False(t, DeclaresV2([]byte(`{"api_version":"2"}`)))
	assert.False(t, DeclaresV2([]byte(`{"api_version":1}`)))
	assert.False(t, DeclaresV2([]byte(`{"translations":[]}`)))
	assert.False(t, DeclaresV2([]byte(`not json`)))
}

func TestParseCentralized(t *testing.T) {
	doc, err := ParseCentralized([]byte(`{"projects":{"addon-one":{"translations":[]},"plugin_addon-two":{"translations":[]}}}`))
	require.NoError(t, err)
	assert.Len(t, doc.Projects, 2)
	assert.Contains(t, doc.Projects, "plugin_addon-two")
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-06-15 12:00:00", time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)},
		{"2024-06-15 12:00+0200", time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)},
		{"2024-06-15 12:00:00+0000", time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)},
		{"2024-06-15T12:00:00Z", time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)},
		{"2024-06-15", time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ParseTimestamp(tt.in)
		require.NoError(t, err, tt.in)
		assert.True(t, tt.want.Equal(got), "%s: got %v want %v", tt.in, got, tt.want)
	}

	_, err := ParseTimestamp("YEAR-MO-DA HO:MI+ZONE")
	assert.Error(t, err)
	_, err = ParseTimestamp("")
	assert.Error(t, err)
}

func TestIsNewer(t *testing.T) {
	assert.False(t, IsNewer("2024-06-15 12:00:00", "2024-06-15 12:00:00"), "equal is not newer")
	assert.True(t, IsNewer("2024-06-15 12:00:00", "2024-06-14 12:00:00"))
	assert.False(t, IsNewer("2024-06-15 12:00:00", "2024-06-16 12:00:00"))
	assert.True(t, IsNewer("garbage", "2024-06-16 12:00:00"), "unparseable remote fails open")
	assert.True(t, IsNewer("2024-06-15 12:00:00", "YEAR-MO-DA HO:MI+ZONE"), "unparseable local fails open")
}
