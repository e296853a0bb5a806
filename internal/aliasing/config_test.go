package aliasing

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "pitchlog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadConfig_ValidYAML(t *testing.T) {
	path := writeConfig(t, `
team_aliases:
  "Lions FC": Lions
  "The Lions": Lions
team_patterns:
  - pattern: "{club} (U21)"
    canonical: "{club}"
api_keys:
  - id: scorer-1
    name: Stadium scorer
    hash: "$2a$10$abcdefghijklmnopqrstuv"
  - id: scorer-2
    disabled: true
    expires_at: 2027-01-01T00:00:00Z
`)

	cfg, err := LoadConfig(path)

	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, map[string]string{"Lions FC": "Lions", "The Lions": "Lions"}, cfg.TeamAliases)
	require.Len(t, cfg.TeamPatterns, 1)
	assert.Equal(t, "{club} (U21)", cfg.TeamPatterns[0].Pattern)
	require.Len(t, cfg.APIKeys, 2)
	assert.Equal(t, "scorer-1", cfg.APIKeys[0].ID)
	assert.Equal(t, "Stadium scorer", cfg.APIKeys[0].Name)
	assert.True(t, cfg.APIKeys[1].Disabled)
	assert.Nil(t, cfg.APIKeys[0].ExpiresAt)
	require.NotNil(t, cfg.APIKeys[1].ExpiresAt)
	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), cfg.APIKeys[1].ExpiresAt.UTC())
}

func TestLoadConfig_EmptySections(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "team_aliases:\napi_keys:\n"))

	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.NotNil(t, cfg.TeamAliases)
	assert.Empty(t, cfg.TeamAliases)
	assert.Empty(t, cfg.APIKeys)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/path/pitchlog.yaml")

	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Empty(t, cfg.TeamAliases)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "team_aliases: [invalid yaml\n"))

	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Empty(t, cfg.TeamAliases)
	assert.Empty(t, cfg.APIKeys)
}

func TestLoadConfig_EmptyFile(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, ""))

	require.NoError(t, err)
	assert.Empty(t, cfg.TeamAliases)
}

func TestLoadConfigFromEnv(t *testing.T) {
	path := writeConfig(t, "team_aliases:\n  Leones: Lions\n")
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := LoadConfigFromEnv()

	require.NoError(t, err)
	assert.Equal(t, "Lions", cfg.TeamAliases["Leones"])
}
