package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Matchmaking.FreshnessWindow != 120*time.Second {
		t.Errorf("freshness window default = %v, want 120s", cfg.Matchmaking.FreshnessWindow)
	}
	if cfg.Matchmaking.RescanInterval != 10*time.Second {
		t.Errorf("rescan interval default = %v, want 10s", cfg.Matchmaking.RescanInterval)
	}
	if cfg.Generator.MaxAttempts != 3 {
		t.Errorf("generator attempts default = %d, want 3", cfg.Generator.MaxAttempts)
	}
	if cfg.Rtc.SoftRestartLimit != 5 {
		t.Errorf("soft restart limit default = %d, want 5", cfg.Rtc.SoftRestartLimit)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MATCH_RESCAN_INTERVAL", "3s")
	t.Setenv("RTC_ICE_SERVERS", "stun:a.example:3478, turn:b.example:3478")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Matchmaking.RescanInterval != 3*time.Second {
		t.Errorf("rescan interval = %v, want 3s", cfg.Matchmaking.RescanInterval)
	}
	if len(cfg.Rtc.ICEServers) != 2 || cfg.Rtc.ICEServers[1] != "turn:b.example:3478" {
		t.Errorf("ice servers = %v", cfg.Rtc.ICEServers)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("GENERATOR_MAX_ATTEMPTS", "-1")

	if _, err := Load(); err == nil {
		t.Fatal("expected validation error for negative generator attempts")
	}
}
