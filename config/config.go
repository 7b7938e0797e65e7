// Package config loads server settings from the environment and the band
// identity table from YAML.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/tnsmusic/rehearsal-booking/booking"
)

type App struct {
	// Network
	Port        int      `envconfig:"PORT" default:"8080"`
	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"*"`

	// Storage
	DBPath string `envconfig:"DB_PATH" default:"./rehearsal.db"`

	// Auth
	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`

	// Booking rules
	Timezone           string `envconfig:"TIMEZONE" default:"Asia/Bangkok"`
	MaxDurationMin     int    `envconfig:"MAX_DURATION_MIN" default:"180"`
	HorizonDays        int    `envconfig:"HORIZON_DAYS" default:"2"`
	CooldownDaysBefore int    `envconfig:"COOLDOWN_DAYS_BEFORE" default:"1"`
	CooldownDaysAfter  int    `envconfig:"COOLDOWN_DAYS_AFTER" default:"2"`
	BandTableFile      string `envconfig:"BAND_TABLE_FILE"`

	LeaderboardLimit int `envconfig:"LEADERBOARD_LIMIT" default:"10"`
	RateLimitPerMin  int `envconfig:"RATE_LIMIT_PER_MIN" default:"30"`

	// Logging
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
}

// Load reads envFile if it exists, then the process environment.
// Variables already set in the environment win over the file.
func Load(envFile string) (App, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return App{}, fmt.Errorf("failed to read %s: %w", envFile, err)
		}
	}

	var c App
	if err := envconfig.Process("", &c); err != nil {
		return App{}, err
	}
	if err := c.validate(); err != nil {
		return App{}, err
	}
	return c, nil
}

func (c App) validate() error {
	switch {
	case c.JWTSecret == "":
		return fmt.Errorf("JWT_SECRET must not be empty")
	case c.MaxDurationMin <= 0:
		return fmt.Errorf("MAX_DURATION_MIN must be positive, got %d", c.MaxDurationMin)
	case c.HorizonDays < 0:
		return fmt.Errorf("HORIZON_DAYS must not be negative, got %d", c.HorizonDays)
	case c.CooldownDaysBefore < 0 || c.CooldownDaysAfter < 0:
		return fmt.Errorf("cooldown days must not be negative")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return nil
}

// Rules converts the settings into booking rules.
func (c App) Rules() (booking.Rules, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return booking.Rules{}, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return booking.Rules{
		Location:           loc,
		MaxDuration:        time.Duration(c.MaxDurationMin) * time.Minute,
		HorizonDays:        c.HorizonDays,
		CooldownDaysBefore: c.CooldownDaysBefore,
		CooldownDaysAfter:  c.CooldownDaysAfter,
	}, nil
}

// =============================================================================
// BAND TABLE
// =============================================================================

// bandTableFile is the on-disk shape of the identity table:
//
//	version: "2024-06"
//	bands:
//	  tns band: TNS Band
type bandTableFile struct {
	Version string            `yaml:"version"`
	Bands   map[string]string `yaml:"bands"`
}

// LoadBandTable reads the identity table at path. An empty path yields an
// empty table, so every band keeps the spelling it was booked with.
func LoadBandTable(path string) (*booking.IdentityTable, error) {
	if path == "" {
		return booking.NewIdentityTable("", nil), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read band table: %w", err)
	}
	return ParseBandTable(data)
}

func ParseBandTable(data []byte) (*booking.IdentityTable, error) {
	var f bandTableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse band table: %w", err)
	}
	return booking.NewIdentityTable(f.Version, f.Bands), nil
}

// =============================================================================
// LOGGER
// =============================================================================

// NewLogger builds a zap logger from LOG_LEVEL and LOG_FORMAT.
func (c App) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err)
	}

	var cfg zap.Config
	switch strings.ToLower(c.LogFormat) {
	case "console":
		cfg = zap.NewDevelopmentConfig()
	case "json", "":
		cfg = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("invalid LOG_FORMAT %q (want json or console)", c.LogFormat)
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}
