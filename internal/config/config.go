// Package config loads the environment-driven configuration described in
// spec.md §6. Values are validated and defaulted the way
// CorsaClub-AssettoServer/agones/types.Config groups related tunables
// into a single struct handed to the rest of the process at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Env is the deployment environment. Self-healing auto-starts only in
// EnvProduction (spec.md §6).
type Env string

const (
	EnvDevelopment Env = "development"
	EnvProduction  Env = "production"
	EnvTest        Env = "test"
)

// Config is the fully-resolved, validated process configuration.
type Config struct {
	Port     int
	Env      Env
	ClientURL string

	MaxPlayersPerGame  int
	MinPlayersToStart  int
	CountdownSeconds   int
	MaxRaceTime        time.Duration
	CleanupDelay       time.Duration

	LogLevel string

	// AdminAPIKey gates the metrics/stats/dashboard monitor endpoints
	// whenever it is set. Empty means those endpoints are open.
	AdminAPIKey string

	// SelfHealingEnabled controls whether the controller's sampling loop
	// starts automatically. Defaults to true iff Env == EnvProduction, but
	// can be forced via TYPERACE_SELF_HEALING for tests/local staging.
	SelfHealingEnabled bool
}

// Load reads configuration from the process environment, applying the
// defaults and bounds documented in spec.md §6.
func Load() (Config, error) {
	cfg := Config{
		Port:              envInt("PORT", 8080),
		Env:               Env(envString("NODE_ENV", string(EnvDevelopment))),
		ClientURL:         envString("CLIENT_URL", "*"),
		MaxPlayersPerGame: envInt("MAX_PLAYERS_PER_GAME", 4),
		MinPlayersToStart: envInt("MIN_PLAYERS_TO_START", 2),
		CountdownSeconds:  envInt("COUNTDOWN_SECONDS", 3),
		MaxRaceTime:       time.Duration(envInt("MAX_RACE_TIME_MINUTES", 3)) * time.Minute,
		CleanupDelay:      time.Duration(envInt("CLEANUP_DELAY_MINUTES", 3)) * time.Minute,
		LogLevel:          envString("LOG_LEVEL", "info"),
		AdminAPIKey:       envString("ADMIN_API_KEY", ""),
	}

	switch cfg.Env {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		return Config{}, fmt.Errorf("config: invalid NODE_ENV %q", cfg.Env)
	}

	if v, ok := os.LookupEnv("TYPERACE_SELF_HEALING"); ok {
		cfg.SelfHealingEnabled = v == "1" || v == "true"
	} else {
		cfg.SelfHealingEnabled = cfg.Env == EnvProduction
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: PORT out of range: %d", c.Port)
	}
	if c.MaxPlayersPerGame < 2 {
		return fmt.Errorf("config: MAX_PLAYERS_PER_GAME must be >= 2, got %d", c.MaxPlayersPerGame)
	}
	if c.MinPlayersToStart < 1 {
		return fmt.Errorf("config: MIN_PLAYERS_TO_START must be >= 1, got %d", c.MinPlayersToStart)
	}
	if c.CountdownSeconds < 0 {
		return fmt.Errorf("config: COUNTDOWN_SECONDS must be >= 0, got %d", c.CountdownSeconds)
	}
	if c.MaxRaceTime < time.Minute || c.MaxRaceTime > 3*time.Minute {
		return fmt.Errorf("config: MAX_RACE_TIME_MINUTES must be within 1-3, got %s", c.MaxRaceTime)
	}
	if c.CleanupDelay < 3*time.Minute || c.CleanupDelay > 5*time.Minute {
		return fmt.Errorf("config: CLEANUP_DELAY_MINUTES must be within 3-5, got %s", c.CleanupDelay)
	}
	return nil
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
