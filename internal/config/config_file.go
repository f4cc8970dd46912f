package config

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config with TOML-friendly types. Pointer fields
// distinguish "unset" from a legitimate zero.
type FileConfig struct {
	Addr           string   `toml:"addr"`
	StagingDir     string   `toml:"staging_dir"`
	StagingTTL     string   `toml:"staging_ttl"`
	MaxUploadBytes int64    `toml:"max_upload_bytes"`
	PageIndex      *int     `toml:"page_index"`
	Scale          *float64 `toml:"scale"`
	OffsetX        *float64 `toml:"offset_x"`
	OffsetY        *float64 `toml:"offset_y"`
	DPI            *float64 `toml:"dpi"`
	MaxImagePixels int64    `toml:"max_image_pixels"`
	LogLevel       string   `toml:"log_level"`
	LogFormat      string   `toml:"log_format"`
	Watch          *bool    `toml:"watch"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.pdfsign/config.toml, or "" without a home directory.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".pdfsign", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("addr", fc.Addr, &cfg.Addr)
	s.setString("staging-dir", fc.StagingDir, &cfg.StagingDir)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("log-format", fc.LogFormat, &cfg.LogFormat)

	if err := s.setDuration("staging-ttl", fc.StagingTTL, &cfg.StagingTTL); err != nil {
		return err
	}
	s.setInt64("max-upload-bytes", fc.MaxUploadBytes, &cfg.MaxUploadBytes)

	s.setIntPtr("page", fc.PageIndex, &cfg.PageIndex)
	s.setFloatPtr("scale", fc.Scale, &cfg.Scale)
	s.setFloatPtr("offset-x", fc.OffsetX, &cfg.OffsetX)
	s.setFloatPtr("offset-y", fc.OffsetY, &cfg.OffsetY)
	s.setFloatPtr("dpi", fc.DPI, &cfg.DPI)
	s.setInt64("max-image-pixels", fc.MaxImagePixels, &cfg.MaxImagePixels)

	s.setBool("watch", fc.Watch, &cfg.Watch)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
