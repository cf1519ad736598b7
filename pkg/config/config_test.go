package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Cache.BaseTTL != 60*time.Second {
		t.Errorf("Cache.BaseTTL = %v, want 60s", cfg.Cache.BaseTTL)
	}
	if cfg.Cache.JitterMax != 12*time.Second {
		t.Errorf("Cache.JitterMax = %v, want 12s", cfg.Cache.JitterMax)
	}
	if !cfg.Cache.Enabled {
		t.Error("cache should default to enabled")
	}
	if cfg.Alerts.PollInterval != 10*time.Second {
		t.Errorf("Alerts.PollInterval = %v, want 10s", cfg.Alerts.PollInterval)
	}
	if cfg.Rollup.RefreshDevice1m != 30*time.Second ||
		cfg.Rollup.RefreshHousehold5m != 2*time.Minute ||
		cfg.Rollup.RefreshDevice1h != 10*time.Minute {
		t.Errorf("unexpected rollup refresh defaults: %+v", cfg.Rollup)
	}
	if cfg.Rollup.ChunkInterval != 24*time.Hour {
		t.Errorf("Rollup.ChunkInterval = %v, want 24h", cfg.Rollup.ChunkInterval)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DB_PORT", "6543")
	t.Setenv("CACHE_ENABLED", "false")
	t.Setenv("CACHE_BASE_TTL", "90s")
	t.Setenv("ALERTS_POLL_INTERVAL", "30s")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Port != 6543 {
		t.Errorf("Database.Port = %d, want 6543", cfg.Database.Port)
	}
	if cfg.Cache.Enabled {
		t.Error("Cache.Enabled should be overridden to false")
	}
	if cfg.Cache.BaseTTL != 90*time.Second {
		t.Errorf("Cache.BaseTTL = %v, want 90s", cfg.Cache.BaseTTL)
	}
	if cfg.Alerts.PollInterval != 30*time.Second {
		t.Errorf("Alerts.PollInterval = %v, want 30s", cfg.Alerts.PollInterval)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("Kafka.Brokers = %v, want [k1:9092 k2:9092]", cfg.Kafka.Brokers)
	}
}

func TestDatabaseConfig_ConnectionString(t *testing.T) {
	d := DatabaseConfig{
		Host: "db", Port: 5432, User: "u", Password: "p", DBName: "energy", SSLMode: "disable",
	}
	got := d.ConnectionString()
	for _, part := range []string{"host=db", "port=5432", "user=u", "dbname=energy", "sslmode=disable"} {
		if !strings.Contains(got, part) {
			t.Errorf("ConnectionString() missing %q: %s", part, got)
		}
	}
}
