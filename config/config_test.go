package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadServerDefaults(t *testing.T) {
	cfg, err := LoadServer("")
	if err != nil {
		t.Fatalf("LoadServer failed: %v", err)
	}
	if cfg.Port != 5000 {
		t.Fatalf("unexpected default port %d", cfg.Port)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoadServerFromYAML(t *testing.T) {
	path := writeFile(t, `
host: 127.0.0.1
port: 6000
delay_seconds: 1.5
drop_rate: 0.3
at_most_once: true
dedup_size: 128
dedup_ttl_seconds: 60
codec: snappy
`)

	cfg, err := LoadServer(path)
	if err != nil {
		t.Fatalf("LoadServer failed: %v", err)
	}
	if cfg.Addr() != "127.0.0.1:6000" {
		t.Fatalf("unexpected addr %s", cfg.Addr())
	}
	if cfg.Delay() != 1500*time.Millisecond {
		t.Fatalf("unexpected delay %v", cfg.Delay())
	}
	if !cfg.AtMostOnce || cfg.DropRate != 0.3 || cfg.Codec != "snappy" {
		t.Fatalf("config not applied: %+v", cfg)
	}
	if cfg.DedupTTL() != time.Minute {
		t.Fatalf("unexpected dedup ttl %v", cfg.DedupTTL())
	}
}

func TestServerValidateRejectsBadDropRate(t *testing.T) {
	cfg := DefaultServer()
	cfg.DropRate = 1.2
	if err := cfg.Validate(); err == nil {
		t.Fatal("expect error for drop_rate > 1")
	}
	cfg.DropRate = -0.1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expect error for negative drop_rate")
	}
}

func TestServerValidateRejectsNegativeDelay(t *testing.T) {
	cfg := DefaultServer()
	cfg.DelaySeconds = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expect error for negative delay")
	}
}

func TestLoadClientFromYAML(t *testing.T) {
	path := writeFile(t, `
host: 10.0.0.5
port: 5001
timeout_seconds: 0.5
max_retries: 4
reconnect_per_attempt: true
`)

	cfg, err := LoadClient(path)
	if err != nil {
		t.Fatalf("LoadClient failed: %v", err)
	}
	if cfg.Addr() != "10.0.0.5:5001" {
		t.Fatalf("unexpected addr %s", cfg.Addr())
	}
	if cfg.Timeout() != 500*time.Millisecond {
		t.Fatalf("unexpected timeout %v", cfg.Timeout())
	}
	if cfg.MaxRetries != 4 || !cfg.ReconnectPerAttempt {
		t.Fatalf("config not applied: %+v", cfg)
	}
}

func TestClientValidate(t *testing.T) {
	cfg := DefaultClient()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}

	cfg.TimeoutSeconds = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expect error for zero timeout")
	}

	cfg = DefaultClient()
	cfg.MaxRetries = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expect error for negative max_retries")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := LoadServer("/does/not/exist.yaml"); err == nil {
		t.Fatal("expect error for missing file")
	}
}
