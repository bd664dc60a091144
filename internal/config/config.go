// Package config provides configuration loading for axcored, including
// environment variable parsing, an optional TOML overlay, and defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds the configuration for axcored, loaded from environment
// variables and optionally layered with a TOML file. All fields have
// sensible defaults via Load.
type Config struct {
	// PromptForTrust controls whether the startup trust check is allowed
	// to prompt the user via the OS accessibility-permission dialog
	// (env: AXCORE_PROMPT_FOR_TRUST, default: true).
	PromptForTrust bool
	// MessagingTimeout bounds every accessibility API round trip so a
	// single frozen application cannot wedge the event loop
	// (env: AXCORE_MESSAGING_TIMEOUT, default: 1s).
	MessagingTimeout time.Duration
	// RefreshInterval is the fallback poll period for the connection-state
	// refresh (conn's UpdateKnownAppsAndWindows),
	// independent of the event-driven refreshes triggered by
	// AppTerminated and lookup misses (env: AXCORE_REFRESH_INTERVAL,
	// default: 5s).
	RefreshInterval time.Duration
	// HidePointMargin is subtracted from the bottom-right corner of the
	// last display to compute the off-screen hide point, in case a
	// display's extreme corner pixel is itself clipped by the OS
	// (env: AXCORE_HIDE_POINT_MARGIN, default: 1).
	HidePointMargin int32
	// MetricsAddress is the Prometheus-text metrics listen address, or
	// empty to disable the endpoint (env: AXCORE_METRICS_ADDRESS,
	// default: empty).
	MetricsAddress string
	// AuditLogFile, if non-empty, enables a JSON audit trail of every
	// OS-affecting command-layer call (env: AXCORE_AUDIT_LOG_FILE,
	// default: empty).
	AuditLogFile string
	// Debug enables verbose diagnostic logging of the event loop and
	// command dispatch (env: AXCORE_DEBUG, default: false).
	Debug bool
	// FloatingOwners is the allowlist of owner names that
	// client_should_float matches exactly against. It is the one slice
	// of WM-engine configuration the Command Layer itself consults; the
	// rest (workspace tags, layouts, hotkeys) stays the engine's concern.
	FloatingOwners []string
}

// fileOverlay is the shape of the optional TOML configuration file. Its
// field names intentionally mirror Config's so LoadFile can unmarshal
// directly into it before copying non-zero values across.
type fileOverlay struct {
	PromptForTrust   *bool    `toml:"prompt_for_trust"`
	MessagingTimeout string   `toml:"messaging_timeout"`
	RefreshInterval  string   `toml:"refresh_interval"`
	HidePointMargin  *int32   `toml:"hide_point_margin"`
	MetricsAddress   string   `toml:"metrics_address"`
	AuditLogFile     string   `toml:"audit_log_file"`
	Debug            *bool    `toml:"debug"`
	FloatingOwners   []string `toml:"floating_owners"`
}

// Load loads the configuration from environment variables.
func Load() (*Config, error) {
	messagingTimeout, err := getEnvAsDuration("AXCORE_MESSAGING_TIMEOUT", time.Second)
	if err != nil {
		return nil, err
	}
	refreshInterval, err := getEnvAsDuration("AXCORE_REFRESH_INTERVAL", 5*time.Second)
	if err != nil {
		return nil, err
	}
	hidePointMargin, err := getEnvAsInt("AXCORE_HIDE_POINT_MARGIN", 1)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		PromptForTrust:   getEnvAsBool("AXCORE_PROMPT_FOR_TRUST", true),
		MessagingTimeout: messagingTimeout,
		RefreshInterval:  refreshInterval,
		HidePointMargin:  int32(hidePointMargin),
		MetricsAddress:   os.Getenv("AXCORE_METRICS_ADDRESS"),
		AuditLogFile:     os.Getenv("AXCORE_AUDIT_LOG_FILE"),
		Debug:            getEnvAsBool("AXCORE_DEBUG", false),
		FloatingOwners:   splitNonEmpty(os.Getenv("AXCORE_FLOATING_OWNERS")),
	}

	if cfg.MessagingTimeout <= 0 {
		return nil, fmt.Errorf("messaging timeout must be positive, got %s", cfg.MessagingTimeout)
	}
	if cfg.RefreshInterval <= 0 {
		return nil, fmt.Errorf("refresh interval must be positive, got %s", cfg.RefreshInterval)
	}

	return cfg, nil
}

// LoadFile layers a TOML file on top of cfg, overriding only the fields
// the file sets. It is used for the workspace-owner floating-class
// allowlist and any of the other knobs operators prefer to check into a
// dotfile rather than export as environment variables.
func LoadFile(cfg *Config, path string) error {
	var overlay fileOverlay
	if _, err := toml.DecodeFile(path, &overlay); err != nil {
		return fmt.Errorf("config: decode %s: %w", path, err)
	}

	if overlay.PromptForTrust != nil {
		cfg.PromptForTrust = *overlay.PromptForTrust
	}
	if overlay.MessagingTimeout != "" {
		d, err := time.ParseDuration(overlay.MessagingTimeout)
		if err != nil {
			return fmt.Errorf("config: %s: messaging_timeout: %w", path, err)
		}
		cfg.MessagingTimeout = d
	}
	if overlay.RefreshInterval != "" {
		d, err := time.ParseDuration(overlay.RefreshInterval)
		if err != nil {
			return fmt.Errorf("config: %s: refresh_interval: %w", path, err)
		}
		cfg.RefreshInterval = d
	}
	if overlay.HidePointMargin != nil {
		cfg.HidePointMargin = *overlay.HidePointMargin
	}
	if overlay.MetricsAddress != "" {
		cfg.MetricsAddress = overlay.MetricsAddress
	}
	if overlay.AuditLogFile != "" {
		cfg.AuditLogFile = overlay.AuditLogFile
	}
	if overlay.Debug != nil {
		cfg.Debug = *overlay.Debug
	}
	if len(overlay.FloatingOwners) > 0 {
		cfg.FloatingOwners = overlay.FloatingOwners
	}

	return nil
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	var result int
	_, err := fmt.Sscanf(value, "%d", &result)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q (expected integer)", key, value)
	}
	return result, nil
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q (expected duration, e.g., '30s', '5m')", key, value)
	}
	return d, nil
}
