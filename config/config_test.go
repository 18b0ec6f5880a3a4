package config

import (
	"reflect"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ALLOWED_ORIGINS", "")
	t.Setenv("ROOM_ID_MAX_LEN", "")
	t.Setenv("REDIS_ENABLED", "")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.MaxRoomIDLength != 0 {
		t.Fatalf("MaxRoomIDLength = %d, want 0", cfg.MaxRoomIDLength)
	}
	if cfg.Redis.Enabled {
		t.Fatalf("redis should be disabled by default")
	}
	want := []string{"http://localhost:3000", "http://localhost:5173"}
	if !reflect.DeepEqual(cfg.AllowedOrigins, want) {
		t.Fatalf("AllowedOrigins = %v, want %v", cfg.AllowedOrigins, want)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("ROOM_ID_MAX_LEN", "64")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_DB", "3")

	cfg := Load()
	if cfg.Port != "9000" {
		t.Fatalf("Port = %q", cfg.Port)
	}
	if cfg.MaxRoomIDLength != 64 {
		t.Fatalf("MaxRoomIDLength = %d", cfg.MaxRoomIDLength)
	}
	if !cfg.Redis.Enabled || cfg.Redis.DB != 3 {
		t.Fatalf("redis = %+v", cfg.Redis)
	}
	if cfg.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("origins not trimmed: %q", cfg.AllowedOrigins[1])
	}
}

func TestLoadIgnoresInvalidNumbers(t *testing.T) {
	t.Setenv("ROOM_ID_MAX_LEN", "-5")
	if got := Load().MaxRoomIDLength; got != 0 {
		t.Fatalf("MaxRoomIDLength = %d, want 0", got)
	}
	t.Setenv("ROOM_ID_MAX_LEN", "abc")
	if got := Load().MaxRoomIDLength; got != 0 {
		t.Fatalf("MaxRoomIDLength = %d, want 0", got)
	}
}

func TestLoadClientPriority(t *testing.T) {
	t.Setenv("SIGNAL_URL", "ws://env.example/ws")
	t.Setenv("STUN_SERVER", "")
	t.Setenv("TIE_BREAK", "")

	cfg := LoadClient(ClientOptions{})
	if cfg.SignalURL != "ws://env.example/ws" {
		t.Fatalf("SignalURL = %q", cfg.SignalURL)
	}
	if cfg.STUNServer != DefaultSTUN {
		t.Fatalf("STUNServer = %q", cfg.STUNServer)
	}
	if !cfg.TieBreak {
		t.Fatalf("tie-break should default on")
	}

	cfg = LoadClient(ClientOptions{SignalURL: "ws://flag.example/ws", NoTieBreak: true})
	if cfg.SignalURL != "ws://flag.example/ws" {
		t.Fatalf("flag should win, got %q", cfg.SignalURL)
	}
	if cfg.TieBreak {
		t.Fatalf("NoTieBreak should disable tie-break")
	}
}

func TestICEServers(t *testing.T) {
	cfg := &ClientConfig{STUNServer: "none"}
	if cfg.ICEServers() != nil {
		t.Fatalf("none should disable stun")
	}
	cfg.STUNServer = "stun:example.org:3478"
	if got := cfg.ICEServers(); len(got) != 1 || got[0] != "stun:example.org:3478" {
		t.Fatalf("ICEServers = %v", got)
	}
}
