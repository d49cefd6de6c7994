/*
config.go - Runtime configuration and feature flags

PURPOSE:
  Collects every tunable of the care engine in one struct that is built once
  at startup and injected. No other package reads the environment.

SOURCES (later wins):
  1. Defaults (Default())
  2. .env file in the working directory, if present
  3. Process environment
  4. Command-line flags in cmd/server (-port, -db)

VARIABLES:
  PORT                     HTTP port (8080)
  DB_PATH                  SQLite path, ":memory:" allowed (care.db)
  LOG_LEVEL                debug | info | warn | error (info)
  LOG_FORMAT               json | console (json)
  CORS_ORIGINS             Comma-separated origins (http://localhost:5173)
  DEFAULT_TIMEZONE         IANA zone for reminders/seniors without one (UTC)
  EXPANSION_HORIZON        Rolling window kept materialized (24h)
  SNOOZE_MINUTES           Default snooze delay (10)
  MISSED_GRACE             Pending occurrences older than this become missed (2h)
  GAP_WINDOW_DAYS          Days ahead checked by the gap sweep (7)
  GAP_COOLDOWN             Per caregiver/senior notification cool-down (24h)
  SWEEP_INTERVAL           Scheduler tick (1h)
  FEATURE_GAP_NOTIFICATIONS, FEATURE_MISSED_SWEEP, FEATURE_ROLLING_EXPANSION,
  FEATURE_SCHEDULER        Booleans (all true)

  Durations use time.ParseDuration syntax ("90m", "24h").
*/
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Features gates optional behavior.
type Features struct {
	GapNotifications bool
	MissedSweep      bool
	RollingExpansion bool
	Scheduler        bool
}

type Config struct {
	Port        int
	DBPath      string
	LogLevel    string
	LogFormat   string
	CORSOrigins []string

	DefaultTimezone  string
	ExpansionHorizon time.Duration
	SnoozeMinutes    int
	MissedGrace      time.Duration
	GapWindowDays    int
	GapCooldown      time.Duration
	SweepInterval    time.Duration

	Features Features
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:             8080,
		DBPath:           "care.db",
		LogLevel:         "info",
		LogFormat:        "json",
		CORSOrigins:      []string{"http://localhost:5173"},
		DefaultTimezone:  "UTC",
		ExpansionHorizon: 24 * time.Hour,
		SnoozeMinutes:    10,
		MissedGrace:      2 * time.Hour,
		GapWindowDays:    7,
		GapCooldown:      24 * time.Hour,
		SweepInterval:    time.Hour,
		Features: Features{
			GapNotifications: true,
			MissedSweep:      true,
			RollingExpansion: true,
			Scheduler:        true,
		},
	}
}

// Load reads the env files (".env" when none are named) and then the
// environment over the defaults. Missing files are ignored; variables already
// set in the process win over file values.
func Load(envFiles ...string) (*Config, error) {
	_ = godotenv.Load(envFiles...)
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv over the defaults.
func FromEnv(getenv func(string) string) (*Config, error) {
	c := Default()
	p := parser{getenv: getenv}

	c.Port = p.getInt("PORT", c.Port)
	c.DBPath = p.getString("DB_PATH", c.DBPath)
	c.LogLevel = strings.ToLower(p.getString("LOG_LEVEL", c.LogLevel))
	c.LogFormat = strings.ToLower(p.getString("LOG_FORMAT", c.LogFormat))
	c.CORSOrigins = p.getList("CORS_ORIGINS", c.CORSOrigins)

	c.DefaultTimezone = p.getString("DEFAULT_TIMEZONE", c.DefaultTimezone)
	c.ExpansionHorizon = p.getDuration("EXPANSION_HORIZON", c.ExpansionHorizon)
	c.SnoozeMinutes = p.getInt("SNOOZE_MINUTES", c.SnoozeMinutes)
	c.MissedGrace = p.getDuration("MISSED_GRACE", c.MissedGrace)
	c.GapWindowDays = p.getInt("GAP_WINDOW_DAYS", c.GapWindowDays)
	c.GapCooldown = p.getDuration("GAP_COOLDOWN", c.GapCooldown)
	c.SweepInterval = p.getDuration("SWEEP_INTERVAL", c.SweepInterval)

	c.Features.GapNotifications = p.getBool("FEATURE_GAP_NOTIFICATIONS", c.Features.GapNotifications)
	c.Features.MissedSweep = p.getBool("FEATURE_MISSED_SWEEP", c.Features.MissedSweep)
	c.Features.RollingExpansion = p.getBool("FEATURE_ROLLING_EXPANSION", c.Features.RollingExpansion)
	c.Features.Scheduler = p.getBool("FEATURE_SCHEDULER", c.Features.Scheduler)

	if p.err != nil {
		return nil, p.err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks ranges and that DefaultTimezone loads.
func (c *Config) Validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("config: PORT %d out of range", c.Port)
	case c.ExpansionHorizon <= 0:
		return fmt.Errorf("config: EXPANSION_HORIZON must be positive")
	case c.SnoozeMinutes <= 0:
		return fmt.Errorf("config: SNOOZE_MINUTES must be positive")
	case c.MissedGrace < 0:
		return fmt.Errorf("config: MISSED_GRACE must not be negative")
	case c.GapWindowDays <= 0:
		return fmt.Errorf("config: GAP_WINDOW_DAYS must be positive")
	case c.GapCooldown < 0:
		return fmt.Errorf("config: GAP_COOLDOWN must not be negative")
	case c.SweepInterval <= 0:
		return fmt.Errorf("config: SWEEP_INTERVAL must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location loads DefaultTimezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.DefaultTimezone)
	if err != nil {
		return nil, fmt.Errorf("config: DEFAULT_TIMEZONE %q: %w", c.DefaultTimezone, err)
	}
	return loc, nil
}

// =============================================================================
// PARSING
// =============================================================================

// parser keeps the first error so callers can read every key and check once.
type parser struct {
	getenv func(string) string
	err    error
}

func (p *parser) getString(key, def string) string {
	if v := strings.TrimSpace(p.getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) getInt(key string, def int) int {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return n
}

func (p *parser) getBool(key string, def bool) bool {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return b
}

func (p *parser) getDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return d
}

func (p *parser) getList(key string, def []string) []string {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (p *parser) fail(key, value string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("config: %s=%q: %w", key, value, err)
	}
}
