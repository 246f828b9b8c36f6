package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"PORT", "NODE_ENV", "CLIENT_URL", "MAX_PLAYERS_PER_GAME",
		"MIN_PLAYERS_TO_START", "COUNTDOWN_SECONDS", "MAX_RACE_TIME_MINUTES",
		"CLEANUP_DELAY_MINUTES", "LOG_LEVEL", "ADMIN_API_KEY", "TYPERACE_SELF_HEALING",
	}
	for _, k := range keys {
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, 4, cfg.MaxPlayersPerGame)
	assert.Equal(t, 2, cfg.MinPlayersToStart)
	assert.False(t, cfg.SelfHealingEnabled)
}

func TestLoadProductionEnablesSelfHealing(t *testing.T) {
	clearEnv(t)
	os.Setenv("NODE_ENV", "production")
	defer os.Unsetenv("NODE_ENV")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.SelfHealingEnabled)
}

func TestLoadRejectsInvalidEnv(t *testing.T) {
	clearEnv(t)
	os.Setenv("NODE_ENV", "staging")
	defer os.Unsetenv("NODE_ENV")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsOutOfRangeMaxRaceTime(t *testing.T) {
	clearEnv(t)
	os.Setenv("MAX_RACE_TIME_MINUTES", "10")
	defer os.Unsetenv("MAX_RACE_TIME_MINUTES")
	_, err := Load()
	assert.Error(t, err)
}
