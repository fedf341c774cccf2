package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ExampleFile(t *testing.T) {
	t.Setenv("SITE_LOCALE", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("LANGPACKS_MASTER_KEY", "")

	result, err := Load("config.example.yaml")
	require.NoError(t, err)

	cfg := result.Config
	assert.Equal(t, "local", cfg.Cache.Type)
	assert.Equal(t, "redis://localhost:6379", cfg.Cache.Redis.URL)
	assert.Equal(t, "en_US", cfg.Host.Locale)
	require.Len(t, cfg.Projects, 3)
	assert.True(t, cfg.Projects[0].AutoInstall)
	require.NotNil(t, cfg.Projects[1].UpstreamFallback)
	assert.False(t, *cfg.Projects[1].UpstreamFallback)
	assert.True(t, cfg.Projects[2].Centralized)
	assert.Equal(t, "2.1.0", cfg.Projects[2].Version)
}
