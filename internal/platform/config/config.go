package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Server captures process-level configuration. Empty vendor IDs are legal:
// the corresponding loader stays inert.
type Server struct {
	Addr        string `yaml:"addr"`
	StoragePath string `yaml:"storage_path"`
	AnalyticsID string `yaml:"analytics_id"`
	PixelID     string `yaml:"pixel_id"`
	LogLevel    string `yaml:"log_level"`
}

// Load builds a Server config so main stays lean: defaults, then the optional
// YAML file named by CONSENTGATE_CONFIG, then environment overrides.
func Load() (Server, error) {
	cfg := Server{
		Addr:        ":8080",
		StoragePath: "consent.db",
		LogLevel:    "info",
	}

	if path := os.Getenv("CONSENTGATE_CONFIG"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(&cfg.Addr, "CONSENTGATE_ADDR")
	applyEnv(&cfg.StoragePath, "CONSENTGATE_STORAGE_PATH")
	applyEnv(&cfg.AnalyticsID, "CONSENTGATE_ANALYTICS_ID")
	applyEnv(&cfg.PixelID, "CONSENTGATE_PIXEL_ID")
	applyEnv(&cfg.LogLevel, "CONSENTGATE_LOG_LEVEL")

	return cfg, nil
}

func applyEnv(target *string, key string) {
	if value := os.Getenv(key); value != "" {
		*target = value
	}
}
