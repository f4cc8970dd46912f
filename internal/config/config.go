package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/aintyourcupoftea/PDF-Signer/internal/stamp"
)

const DefaultAddr = ":7860"

// Config holds runtime configuration for pdfsign.
type Config struct {
	Addr           string
	StagingDir     string
	StagingTTL     time.Duration
	MaxUploadBytes int64

	PageIndex int
	Scale     float64
	OffsetX   float64
	OffsetY   float64
	DPI       float64

	MaxImagePixels int64

	LogLevel  string
	LogFormat string
	Watch     bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	p := stamp.DefaultPlacement()
	return Config{
		Addr:           DefaultAddr,
		StagingDir:     filepath.Join(os.TempDir(), "pdfsign"),
		StagingTTL:     15 * time.Minute,
		MaxUploadBytes: 32 << 20, // 32MB
		PageIndex:      p.PageIndex,
		Scale:          p.Scale,
		OffsetX:        p.OffsetX,
		OffsetY:        p.OffsetY,
		DPI:            stamp.DefaultDPI,
		MaxImagePixels: stamp.DefaultMaxImagePixels,
		LogLevel:       "info",
		LogFormat:      "console",
	}
}

// Placement returns the stamp placement described by c.
func (c Config) Placement() stamp.Placement {
	return stamp.Placement{
		PageIndex: c.PageIndex,
		Scale:     c.Scale,
		OffsetX:   c.OffsetX,
		OffsetY:   c.OffsetY,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if c.StagingDir == "" {
		return fmt.Errorf("staging-dir is required")
	}
	if c.StagingTTL <= 0 {
		return fmt.Errorf("staging ttl must be positive")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload bytes must be positive")
	}
	if c.DPI <= 0 || math.IsInf(c.DPI, 0) || math.IsNaN(c.DPI) {
		return fmt.Errorf("dpi must be positive")
	}
	if c.MaxImagePixels <= 0 {
		return fmt.Errorf("max image pixels must be positive")
	}
	if err := c.Placement().Validate(); err != nil {
		return fmt.Errorf("placement: %w", err)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	if c.LogFormat != "console" && c.LogFormat != "json" {
		return fmt.Errorf("log format must be console or json, got %q", c.LogFormat)
	}
	return nil
}

// Load layers the config file at path (if it exists) and PDFSIGN_*
// environment variables over cfg, leaving values of changed flags alone,
// then validates the result.
func Load(path string, cfg Config, changed map[string]bool) (Config, error) {
	if path != "" && FileExists(path) {
		fc, err := LoadFileConfig(path)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		if err := ApplyFileConfig(&cfg, fc, changed); err != nil {
			return cfg, err
		}
	}
	if err := ApplyEnvConfig(&cfg, changed); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// configSetter applies values unless the corresponding flag was set explicitly.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt64 sets an int64 value if positive and flag not changed.
func (s *configSetter) setInt64(flag string, value int64, dst *int64) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setIntPtr(flag string, value *int, dst *int) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

func (s *configSetter) setFloatPtr(flag string, value *float64, dst *float64) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setIntFromString parses a string to int. Zero and negative values are
// passed through so Validate can report them.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = i
	return nil
}

func (s *configSetter) setInt64FromString(flag, value string, dst *int64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = i
	return nil
}

func (s *configSetter) setFloatFromString(flag, value string, dst *float64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = f
	return nil
}

// setBoolFromString accepts "true" and "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
