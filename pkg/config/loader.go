package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sheinberglab/fleet-gateway/pkg/models"
)

// Load reads path into the defaults, then applies LOG_LEVEL/DEBUG/
// HOMEBASE_ALLOWED_IPS environment overrides, matching the teacher's
// pkg/logger/config.go getEnvOrDefault convention applied to the gateway's
// own config tree.
func Load(ctx context.Context, path string) (models.Config, error) {
	cfg := models.DefaultConfig()

	loader := &FileLoader{}
	if err := loader.Load(ctx, path, &cfg); err != nil {
		return models.Config{}, fmt.Errorf("config: %w", err)
	}

	applyEnvOverrides(&cfg)

	return cfg, nil
}

func applyEnvOverrides(cfg *models.Config) {
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}

	if debug := os.Getenv("DEBUG"); debug != "" {
		cfg.Logging.Debug = parseEnvBool(debug)
	}

	if allowed := os.Getenv("HOMEBASE_ALLOWED_IPS"); allowed != "" {
		cfg.HomebaseAllowedIPs = splitAndTrim(allowed)
	}
}

func parseEnvBool(value string) bool {
	value = strings.ToLower(strings.TrimSpace(value))
	return value == "true" || value == "1" || value == "yes" || value == "on"
}

func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))

	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}

	return out
}
