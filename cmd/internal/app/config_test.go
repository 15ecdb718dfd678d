package app

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	if cfg.HTTPAddr != "0.0.0.0:8080" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.LogFormat != "json" {
		t.Fatalf("LogFormat = %q", cfg.LogFormat)
	}
	if cfg.AskTimeout != 30*time.Second {
		t.Fatalf("AskTimeout = %v", cfg.AskTimeout)
	}
	if cfg.IdleWindow != 7*24*time.Hour {
		t.Fatalf("IdleWindow = %v", cfg.IdleWindow)
	}
	if cfg.ChunkLimit != 1900 {
		t.Fatalf("ChunkLimit = %d", cfg.ChunkLimit)
	}
	if cfg.DBSchema != "beacon" {
		t.Fatalf("DBSchema = %q", cfg.DBSchema)
	}
	if cfg.ReadinessRequireDB {
		t.Fatal("ReadinessRequireDB defaulted to true")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("BEACON_HTTP_ADDR", "127.0.0.1:9999")
	t.Setenv("BEACON_ASK_TIMEOUT", "45s")
	t.Setenv("BEACON_IDLE_WINDOW", "72h")
	t.Setenv("BEACON_DB_MAX_CONNS", "25")
	t.Setenv("BEACON_READINESS_REQUIRE_DB", "true")
	t.Setenv("BEACON_CHUNK_LIMIT", "1500")
	t.Setenv("BEACON_FALLBACK_APP_ID", "app-fallback")

	cfg := LoadConfig()

	if cfg.HTTPAddr != "127.0.0.1:9999" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.AskTimeout != 45*time.Second {
		t.Fatalf("AskTimeout = %v", cfg.AskTimeout)
	}
	if cfg.IdleWindow != 72*time.Hour {
		t.Fatalf("IdleWindow = %v", cfg.IdleWindow)
	}
	if cfg.DBMaxConns != 25 {
		t.Fatalf("DBMaxConns = %d", cfg.DBMaxConns)
	}
	if !cfg.ReadinessRequireDB {
		t.Fatal("ReadinessRequireDB override ignored")
	}
	if cfg.ChunkLimit != 1500 {
		t.Fatalf("ChunkLimit = %d", cfg.ChunkLimit)
	}
	if cfg.FallbackAppID != "app-fallback" {
		t.Fatalf("FallbackAppID = %q", cfg.FallbackAppID)
	}
}

func TestLoadConfigIgnoresGarbage(t *testing.T) {
	t.Setenv("BEACON_ASK_TIMEOUT", "not-a-duration")
	t.Setenv("BEACON_DB_MAX_CONNS", "many")

	cfg := LoadConfig()

	if cfg.AskTimeout != 30*time.Second {
		t.Fatalf("AskTimeout = %v, want the default", cfg.AskTimeout)
	}
	if cfg.DBMaxConns != 10 {
		t.Fatalf("DBMaxConns = %d, want the default", cfg.DBMaxConns)
	}
}
