package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(key string) string { return m[key] }
}

func TestFromEnv_Defaults(t *testing.T) {
	c, err := FromEnv(envMap(nil))
	require.NoError(t, err)

	assert.Equal(t, Default(), c)
	assert.Equal(t, 24*time.Hour, c.GapCooldown)
	assert.True(t, c.Features.GapNotifications)
}

func TestFromEnv_Overrides(t *testing.T) {
	c, err := FromEnv(envMap(map[string]string{
		"PORT":                      "9090",
		"LOG_LEVEL":                 "DEBUG",
		"CORS_ORIGINS":              "https://app.example.com, https://admin.example.com,",
		"DEFAULT_TIMEZONE":          "America/Chicago",
		"EXPANSION_HORIZON":         "48h",
		"SNOOZE_MINUTES":            "15",
		"GAP_WINDOW_DAYS":           "14",
		"FEATURE_GAP_NOTIFICATIONS": "false",
	}))
	require.NoError(t, err)

	assert.Equal(t, 9090, c.Port)
	assert.Equal(t, "debug", c.LogLevel)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, c.CORSOrigins)
	assert.Equal(t, 48*time.Hour, c.ExpansionHorizon)
	assert.Equal(t, 15, c.SnoozeMinutes)
	assert.Equal(t, 14, c.GapWindowDays)
	assert.False(t, c.Features.GapNotifications)
	assert.True(t, c.Features.MissedSweep)

	loc, err := c.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/Chicago", loc.String())
}

func TestFromEnv_Rejects(t *testing.T) {
	cases := map[string]map[string]string{
		"bad int":      {"SNOOZE_MINUTES": "ten"},
		"bad duration": {"GAP_COOLDOWN": "a day"},
		"bad bool":     {"FEATURE_MISSED_SWEEP": "maybe"},
		"zero window":  {"GAP_WINDOW_DAYS": "0"},
		"port range":   {"PORT": "70000"},
		"unknown zone": {"DEFAULT_TIMEZONE": "Mars/Olympus"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromEnv(envMap(env))
			assert.Error(t, err)
		})
	}
}

func TestLoad_EnvFileUnderProcessEnv(t *testing.T) {
	// GIVEN: A .env file setting two keys, one of which the process also sets
	// THEN: The file fills the gap and the process value wins

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("GAP_WINDOW_DAYS=3\nSNOOZE_MINUTES=20\n"), 0o600))
	t.Setenv("SNOOZE_MINUTES", "5")
	t.Cleanup(func() { os.Unsetenv("GAP_WINDOW_DAYS") })

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3, c.GapWindowDays)
	assert.Equal(t, 5, c.SnoozeMinutes)
}

func TestLoad_MissingFileIsIgnored(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	assert.Equal(t, 7, c.GapWindowDays)
}
