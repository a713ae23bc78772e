// Package config loads MiAssistant's runtime settings from a .env file in
// the project root, overridable by environment variables, following the
// same load-then-override pattern the teacher's device config loader uses.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"miassistant/internal/validate"
)

// Config holds the settings every front-end (CLI, TUI, API server) reads
// before constructing the core collaborators.
type Config struct {
	// ValidationEndpoint overrides validate.DefaultEndpoint, for pointing at
	// a staging mirror during testing.
	ValidationEndpoint string
	// USBBus and USBAddress hold a bus/address pair read from
	// MIASSISTANT_USB_BUS / MIASSISTANT_USB_ADDRESS. The CLI and TUI do not
	// consult them: both always open the first ADB-class interface found.
	USBBus     uint8
	USBAddress uint8
	// BulkTimeout bounds every individual USB bulk transfer.
	BulkTimeout time.Duration
	// APIAddr holds MIASSISTANT_API_ADDR (default 127.0.0.1:7766). The CLI
	// and TUI do not consult it: they start internal/apiserver only on the
	// address given by their -api flag.
	APIAddr string
}

var (
	loaded     *Config
	loadedOnce bool
)

// Load reads .env (if present) and environment variables, caching the
// result for subsequent calls within the process.
func Load() (*Config, error) {
	if loaded != nil && loadedOnce {
		return loaded, nil
	}

	cfg := &Config{
		ValidationEndpoint: validate.DefaultEndpoint,
		BulkTimeout:        10 * time.Second,
		APIAddr:            "127.0.0.1:7766",
	}

	envPath := filepath.Join(findProjectRoot(), ".env")
	if data, err := os.ReadFile(envPath); err == nil {
		parseEnvFile(string(data), cfg)
	}

	applyEnvOverride("MIASSISTANT_VALIDATION_ENDPOINT", &cfg.ValidationEndpoint)
	applyEnvOverride("MIASSISTANT_API_ADDR", &cfg.APIAddr)
	if v := os.Getenv("MIASSISTANT_USB_BUS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.USBBus = uint8(n)
		}
	}
	if v := os.Getenv("MIASSISTANT_USB_ADDRESS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.USBAddress = uint8(n)
		}
	}
	if v := os.Getenv("MIASSISTANT_BULK_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.BulkTimeout = d
		}
	}

	loaded = cfg
	loadedOnce = true
	return cfg, nil
}

func applyEnvOverride(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func parseEnvFile(content string, cfg *Config) {
	lines := strings.Split(content, "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		switch key {
		case "MIASSISTANT_VALIDATION_ENDPOINT":
			cfg.ValidationEndpoint = value
		case "MIASSISTANT_API_ADDR":
			cfg.APIAddr = value
		case "MIASSISTANT_USB_BUS":
			if n, err := strconv.Atoi(value); err == nil {
				cfg.USBBus = uint8(n)
			}
		case "MIASSISTANT_USB_ADDRESS":
			if n, err := strconv.Atoi(value); err == nil {
				cfg.USBAddress = uint8(n)
			}
		case "MIASSISTANT_BULK_TIMEOUT":
			if d, err := time.ParseDuration(value); err == nil {
				cfg.BulkTimeout = d
			}
		}
	}
}

func findProjectRoot() string {
	cwd, _ := os.Getwd()
	if _, err := os.Stat(filepath.Join(cwd, ".env")); err == nil {
		return cwd
	}
	for {
		if _, err := os.Stat(filepath.Join(cwd, "go.mod")); err == nil {
			return cwd
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			return cwd
		}
		cwd = parent
	}
}
