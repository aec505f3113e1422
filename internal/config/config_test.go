package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvStr(t *testing.T) {
	t.Setenv("TEST_STR", "hello")
	assert.Equal(t, "hello", envStr("TEST_STR", "fallback"))
	assert.Equal(t, "fallback", envStr("TEST_STR_MISSING", "fallback"))
}

func TestEnvInt(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	assert.Equal(t, 42, envInt("TEST_INT", 0))
	assert.Equal(t, 99, envInt("TEST_INT_MISSING", 99))

	t.Setenv("TEST_INT_BAD", "abc")
	assert.Equal(t, 7, envInt("TEST_INT_BAD", 7))
}

func TestEnvBool(t *testing.T) {
	t.Setenv("TEST_BOOL", "true")
	assert.True(t, envBool("TEST_BOOL", false))
	assert.False(t, envBool("TEST_BOOL_MISSING", false))

	t.Setenv("TEST_BOOL_BAD", "maybe")
	assert.True(t, envBool("TEST_BOOL_BAD", true))
}

func TestEnvDuration(t *testing.T) {
	t.Setenv("TEST_DUR", "5s")
	assert.Equal(t, 5*time.Second, envDuration("TEST_DUR", 0))
	assert.Equal(t, time.Minute, envDuration("TEST_DUR_MISSING", time.Minute))

	t.Setenv("TEST_DUR_BAD", "five-seconds")
	assert.Equal(t, time.Second, envDuration("TEST_DUR_BAD", time.Second))
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3500, cfg.Port)
	assert.Equal(t, "https://api.enso.dev", cfg.TransportURL)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "unknown", cfg.OrgID)
	assert.False(t, cfg.CloudConfigured())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ENSO_PORT", "4000")
	t.Setenv("ENSO_API_KEY", "sk_test")
	t.Setenv("ENSO_CLOUD_PROJECT_ID", "proj_123")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 4000, cfg.Port)
	assert.Equal(t, "proj_123", cfg.ProjectID)
	assert.True(t, cfg.CloudConfigured())
}

func TestLoadInvalidPort(t *testing.T) {
	t.Setenv("ENSO_PORT", "99999")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ENSO_PORT")
}

func TestParseManifest(t *testing.T) {
	const raw = `
name: support-bot
version: 1.2.0
project_id: proj_abc
agents:
  - id: agent_111
    name: triage
    description: Routes incoming tickets.
  - id: agent_222
    name: responder
    filename: responder.go
`
	m, err := ParseManifest([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, "support-bot", m.Name)
	assert.Equal(t, "1.2.0", m.Version)
	require.Len(t, m.Agents, 2)
	assert.Equal(t, "agent_111", m.Agents[0].ID)
	assert.Equal(t, "triage", m.Agents[0].Name)
	assert.Equal(t, "responder.go", m.Agents[1].Filename)
}

func TestParseManifestMissingID(t *testing.T) {
	const raw = `
name: broken
agents:
  - name: nameless
`
	_, err := ParseManifest([]byte(raw))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id is required")
}

func TestParseManifestBadYAML(t *testing.T) {
	_, err := ParseManifest([]byte("agents: [unclosed"))
	require.Error(t, err)
}

func TestLoadManifestMissingFile(t *testing.T) {
	_, err := LoadManifest("does-not-exist.yaml")
	require.Error(t, err)
}
