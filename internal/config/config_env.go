package config

import "os"

// ApplyEnvConfig applies configuration from environment variables (PDFSIGN_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("addr", os.Getenv("PDFSIGN_ADDR"), &cfg.Addr)
	s.setString("staging-dir", os.Getenv("PDFSIGN_STAGING_DIR"), &cfg.StagingDir)
	s.setString("log-level", os.Getenv("PDFSIGN_LOG_LEVEL"), &cfg.LogLevel)
	s.setString("log-format", os.Getenv("PDFSIGN_LOG_FORMAT"), &cfg.LogFormat)

	if err := s.setDuration("staging-ttl", os.Getenv("PDFSIGN_STAGING_TTL"), &cfg.StagingTTL); err != nil {
		return err
	}
	if err := s.setInt64FromString("max-upload-bytes", os.Getenv("PDFSIGN_MAX_UPLOAD_BYTES"), &cfg.MaxUploadBytes); err != nil {
		return err
	}

	if err := s.setIntFromString("page", os.Getenv("PDFSIGN_PAGE_INDEX"), &cfg.PageIndex); err != nil {
		return err
	}
	if err := s.setFloatFromString("scale", os.Getenv("PDFSIGN_SCALE"), &cfg.Scale); err != nil {
		return err
	}
	if err := s.setFloatFromString("offset-x", os.Getenv("PDFSIGN_OFFSET_X"), &cfg.OffsetX); err != nil {
		return err
	}
	if err := s.setFloatFromString("offset-y", os.Getenv("PDFSIGN_OFFSET_Y"), &cfg.OffsetY); err != nil {
		return err
	}
	if err := s.setFloatFromString("dpi", os.Getenv("PDFSIGN_DPI"), &cfg.DPI); err != nil {
		return err
	}
	if err := s.setInt64FromString("max-image-pixels", os.Getenv("PDFSIGN_MAX_IMAGE_PIXELS"), &cfg.MaxImagePixels); err != nil {
		return err
	}

	s.setBoolFromString("watch", os.Getenv("PDFSIGN_WATCH"), &cfg.Watch)

	return nil
}
