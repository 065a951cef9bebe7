package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 8090 || cfg.Metrics.Port != 9091 {
		t.Errorf("ports = %d/%d", cfg.Server.Port, cfg.Metrics.Port)
	}
	if cfg.Import.ResolveTimeout != 30*time.Second || cfg.Import.Strict {
		t.Errorf("import = %+v", cfg.Import)
	}
	if cfg.Sources.HTTPRetries != 1 || cfg.Sources.Breaker.FailureThreshold != 5 {
		t.Errorf("sources = %+v", cfg.Sources)
	}
	if cfg.Postgres.Host != "" || cfg.Redis.Addr != "" || len(cfg.Kafka.Brokers) != 0 {
		t.Error("backing services must be disabled by default")
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schemad.yaml")
	content := `
server:
  port: 7000
  writeRateLimit: 30
  corsOrigins: ["https://ui.test"]
import:
  strict: true
  cacheTTL: 2m
sources:
  baseDir: /srv/schemas
  breaker:
    resetTimeout: 45s
kafka:
  brokers: ["k1:9092", "k2:9092"]
  events:
    batchSize: 10
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 7000 || cfg.Server.WriteRateLimit != 30 || cfg.Server.CORSOrigins[0] != "https://ui.test" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if !cfg.Import.Strict || cfg.Import.CacheTTL != 2*time.Minute {
		t.Errorf("import = %+v", cfg.Import)
	}
	if cfg.Sources.BaseDir != "/srv/schemas" || cfg.Sources.Breaker.ResetTimeout != 45*time.Second {
		t.Errorf("sources = %+v", cfg.Sources)
	}
	// Unset keys keep their defaults.
	if cfg.Sources.Breaker.FailureThreshold != 5 || cfg.Kafka.Events.FlushInterval != 5*time.Second {
		t.Errorf("defaults lost: %+v %+v", cfg.Sources.Breaker, cfg.Kafka.Events)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Events.BatchSize != 10 {
		t.Errorf("kafka = %+v", cfg.Kafka)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SM_SERVER_PORT", "9999")
	t.Setenv("SM_POSTGRES_HOST", "db.internal")
	t.Setenv("SM_KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("SM_IMPORT_STRICT", "true")
	t.Setenv("SM_IMPORT_CACHE_TTL", "90s")

	cfg := Default()
	if cfg.Server.Port != 9999 || cfg.Postgres.Host != "db.internal" {
		t.Errorf("server/postgres = %d %q", cfg.Server.Port, cfg.Postgres.Host)
	}
	if strings.Join(cfg.Kafka.Brokers, ",") != "a:9092,b:9092" {
		t.Errorf("brokers = %v", cfg.Kafka.Brokers)
	}
	if !cfg.Import.Strict || cfg.Import.CacheTTL != 90*time.Second {
		t.Errorf("import = %+v", cfg.Import)
	}

	t.Setenv("SM_SERVER_PORT", "not-a-port")
	if Default().Server.Port != 8090 {
		t.Error("malformed override should keep the default")
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("server: [unclosed"), 0o644)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "parsing") {
		t.Errorf("err = %v", err)
	}
}

func TestDSN(t *testing.T) {
	p := PostgresConfig{Host: "h", Port: 5433, User: "u", Password: "p", Database: "d", SSLMode: "disable"}
	want := "host=h port=5433 user=u password=p dbname=d sslmode=disable"
	if got := p.DSN(); got != want {
		t.Errorf("DSN = %q", got)
	}
}
