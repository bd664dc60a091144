package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"AXCORE_PROMPT_FOR_TRUST",
		"AXCORE_MESSAGING_TIMEOUT",
		"AXCORE_REFRESH_INTERVAL",
		"AXCORE_HIDE_POINT_MARGIN",
		"AXCORE_METRICS_ADDRESS",
		"AXCORE_AUDIT_LOG_FILE",
		"AXCORE_DEBUG",
		"AXCORE_FLOATING_OWNERS",
	} {
		os.Unsetenv(k)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !cfg.PromptForTrust {
		t.Errorf("PromptForTrust = %v, want true", cfg.PromptForTrust)
	}
	if cfg.MessagingTimeout != time.Second {
		t.Errorf("MessagingTimeout = %v, want 1s", cfg.MessagingTimeout)
	}
	if cfg.RefreshInterval != 5*time.Second {
		t.Errorf("RefreshInterval = %v, want 5s", cfg.RefreshInterval)
	}
	if cfg.HidePointMargin != 1 {
		t.Errorf("HidePointMargin = %d, want 1", cfg.HidePointMargin)
	}
	if cfg.MetricsAddress != "" {
		t.Errorf("MetricsAddress = %q, want empty", cfg.MetricsAddress)
	}
	if cfg.AuditLogFile != "" {
		t.Errorf("AuditLogFile = %q, want empty", cfg.AuditLogFile)
	}
	if cfg.Debug {
		t.Errorf("Debug = %v, want false", cfg.Debug)
	}
	if len(cfg.FloatingOwners) != 0 {
		t.Errorf("FloatingOwners = %v, want empty", cfg.FloatingOwners)
	}
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	os.Setenv("AXCORE_PROMPT_FOR_TRUST", "false")
	os.Setenv("AXCORE_MESSAGING_TIMEOUT", "2s")
	os.Setenv("AXCORE_REFRESH_INTERVAL", "10s")
	os.Setenv("AXCORE_HIDE_POINT_MARGIN", "2")
	os.Setenv("AXCORE_METRICS_ADDRESS", ":9090")
	os.Setenv("AXCORE_AUDIT_LOG_FILE", "/tmp/axcore-audit.log")
	os.Setenv("AXCORE_DEBUG", "true")
	os.Setenv("AXCORE_FLOATING_OWNERS", "Finder,System Preferences")
	defer clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.PromptForTrust {
		t.Errorf("PromptForTrust = %v, want false", cfg.PromptForTrust)
	}
	if cfg.MessagingTimeout != 2*time.Second {
		t.Errorf("MessagingTimeout = %v, want 2s", cfg.MessagingTimeout)
	}
	if cfg.RefreshInterval != 10*time.Second {
		t.Errorf("RefreshInterval = %v, want 10s", cfg.RefreshInterval)
	}
	if cfg.HidePointMargin != 2 {
		t.Errorf("HidePointMargin = %d, want 2", cfg.HidePointMargin)
	}
	if cfg.MetricsAddress != ":9090" {
		t.Errorf("MetricsAddress = %q, want :9090", cfg.MetricsAddress)
	}
	if cfg.AuditLogFile != "/tmp/axcore-audit.log" {
		t.Errorf("AuditLogFile = %q", cfg.AuditLogFile)
	}
	if !cfg.Debug {
		t.Errorf("Debug = %v, want true", cfg.Debug)
	}
	want := []string{"Finder", "System Preferences"}
	if len(cfg.FloatingOwners) != len(want) {
		t.Fatalf("FloatingOwners = %v, want %v", cfg.FloatingOwners, want)
	}
	for i, w := range want {
		if cfg.FloatingOwners[i] != w {
			t.Errorf("FloatingOwners[%d] = %q, want %q", i, cfg.FloatingOwners[i], w)
		}
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	clearEnv(t)
	os.Setenv("AXCORE_MESSAGING_TIMEOUT", "not-a-duration")
	defer clearEnv(t)

	if _, err := Load(); err == nil {
		t.Error("Load() should return error for invalid duration config")
	}
}

func TestLoad_InvalidInt(t *testing.T) {
	clearEnv(t)
	os.Setenv("AXCORE_HIDE_POINT_MARGIN", "not-a-number")
	defer clearEnv(t)

	if _, err := Load(); err == nil {
		t.Error("Load() should return error for invalid integer config")
	}
}

func TestLoad_NonPositiveTimeout(t *testing.T) {
	clearEnv(t)
	os.Setenv("AXCORE_MESSAGING_TIMEOUT", "0s")
	defer clearEnv(t)

	if _, err := Load(); err == nil {
		t.Error("Load() should reject a zero messaging timeout")
	}
}

func TestLoadFile_Overlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "axcore.toml")
	contents := `
prompt_for_trust = false
messaging_timeout = "3s"
floating_owners = ["Calculator", "Finder"]
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg := &Config{
		PromptForTrust:   true,
		MessagingTimeout: time.Second,
		RefreshInterval:  5 * time.Second,
		HidePointMargin:  1,
	}
	if err := LoadFile(cfg, path); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.PromptForTrust {
		t.Errorf("PromptForTrust = %v, want false", cfg.PromptForTrust)
	}
	if cfg.MessagingTimeout != 3*time.Second {
		t.Errorf("MessagingTimeout = %v, want 3s", cfg.MessagingTimeout)
	}
	if cfg.RefreshInterval != 5*time.Second {
		t.Errorf("RefreshInterval = %v, want unchanged 5s", cfg.RefreshInterval)
	}
	want := []string{"Calculator", "Finder"}
	if len(cfg.FloatingOwners) != len(want) {
		t.Fatalf("FloatingOwners = %v, want %v", cfg.FloatingOwners, want)
	}
}

func TestLoadFile_MissingFile(t *testing.T) {
	cfg := &Config{}
	if err := LoadFile(cfg, filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("LoadFile() should error on a missing file")
	}
}

func TestSplitNonEmpty(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"a", []string{"a"}},
		{"a,b", []string{"a", "b"}},
		{"a,,b", []string{"a", "b"}},
		{",a,", []string{"a"}},
	}
	for _, tt := range tests {
		got := splitNonEmpty(tt.in)
		if len(got) != len(tt.want) {
			t.Fatalf("splitNonEmpty(%q) = %v, want %v", tt.in, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("splitNonEmpty(%q)[%d] = %q, want %q", tt.in, i, got[i], tt.want[i])
			}
		}
	}
}
