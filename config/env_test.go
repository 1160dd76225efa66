package config

import (
	"reflect"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{"GO_ENV", "HTTP_PORT", "RATE_LIMIT", "AUDIT_STRICT_SNAPSHOT", "AUDIT_MAX_UPLOAD_BYTES", "EVENT_BUS", "EVENT_BUS_BUFFER", "CORS_ALLOWED_ORIGINS", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig()
	if cfg.HTTP.Port != "8080" || cfg.HTTP.RateLimit != "60-M" {
		t.Fatalf("http = %+v", cfg.HTTP)
	}
	if cfg.Audit.StrictSnapshot || cfg.Audit.MaxUploadBytes != 10<<20 {
		t.Fatalf("audit = %+v", cfg.Audit)
	}
	if cfg.EventBus.Driver != "memory" || cfg.EventBus.Buffer != 64 {
		t.Fatalf("event bus = %+v", cfg.EventBus)
	}
	if cfg.IsProduction() {
		t.Fatal("default env should not be production")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("GO_ENV", "Production")
	t.Setenv("AUDIT_STRICT_SNAPSHOT", "true")
	t.Setenv("AUDIT_MAX_UPLOAD_BYTES", "-1")
	t.Setenv("EVENT_BUS", "redis")
	t.Setenv("EVENT_BUS_BUFFER", "abc")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example.com, ,https://b.example.com ")
	t.Setenv("LOG_LEVEL", "debug")
	defer SetLogLevel("info")

	cfg := LoadConfig()
	if !cfg.IsProduction() || !cfg.Audit.StrictSnapshot {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Audit.MaxUploadBytes != 10<<20 || cfg.EventBus.Buffer != 64 {
		t.Fatalf("invalid numbers should fall back to defaults: %+v %+v", cfg.Audit, cfg.EventBus)
	}
	want := []string{"https://a.example.com", "https://b.example.com"}
	if !reflect.DeepEqual(cfg.HTTP.AllowedOrigins, want) {
		t.Fatalf("origins = %v", cfg.HTTP.AllowedOrigins)
	}
	if GetLogger().GetLevel() != logrus.DebugLevel {
		t.Fatalf("level = %s", GetLogger().GetLevel())
	}
}
