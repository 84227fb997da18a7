package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8080")
	}
	if cfg.RemoteTimeout != 5*time.Second {
		t.Errorf("RemoteTimeout = %v, want 5s", cfg.RemoteTimeout)
	}
	if cfg.RemoteDatabaseURL != "" {
		t.Errorf("RemoteDatabaseURL = %q, want empty", cfg.RemoteDatabaseURL)
	}
	if !cfg.RemoteRegisterPacks {
		t.Error("RemoteRegisterPacks = false, want true")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("STRICT_REACHABILITY", "true")
	t.Setenv("SESSION_TTL", "30m")
	t.Setenv("DEFAULT_STORY_ID", "walk")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want %v", cfg.LogLevel, slog.LevelDebug)
	}
	if !cfg.StrictReachability {
		t.Error("StrictReachability = false, want true")
	}
	if cfg.SessionTTL != 30*time.Minute {
		t.Errorf("SessionTTL = %v, want 30m", cfg.SessionTTL)
	}
	if cfg.DefaultStoryID != "walk" {
		t.Errorf("DefaultStoryID = %q, want %q", cfg.DefaultStoryID, "walk")
	}
}

func TestLoadRejectsBadTimeout(t *testing.T) {
	t.Setenv("REMOTE_TIMEOUT", "0s")
	if _, err := Load(); err == nil {
		t.Fatal("Load: want error for zero timeout")
	}

	t.Setenv("REMOTE_TIMEOUT", "soon")
	if _, err := Load(); err == nil {
		t.Fatal("Load: want error for unparsable timeout")
	}
}
