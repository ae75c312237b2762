package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadHTTPConfig_Defaults(t *testing.T) {
	path := writeConfig(t, `
network:
  address: "0.0.0.0:4000"
tls:
  cert_file: /tmp/cert.pem
  key_file: /tmp/key.pem
`)

	cfg, err := LoadHTTPConfig(path)
	if err != nil {
		t.Fatalf("LoadHTTPConfig: %v", err)
	}

	if cfg.SocketWorkers != 1 {
		t.Errorf("expected default socket_workers=1, got %d", cfg.SocketWorkers)
	}
	if cfg.RequestWorkers != 4 {
		t.Errorf("expected default request_workers=4, got %d", cfg.RequestWorkers)
	}
	if cfg.ResponseTimeout != 30*time.Second {
		t.Errorf("expected default response_timeout=30s, got %s", cfg.ResponseTimeout)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("expected default logging info/json, got %+v", cfg.Logging)
	}
}

func TestLoadHTTPConfig_MissingAddress(t *testing.T) {
	path := writeConfig(t, `
tls:
  cert_file: /tmp/cert.pem
  key_file: /tmp/key.pem
`)

	if _, err := LoadHTTPConfig(path); err == nil {
		t.Fatal("expected error for missing network.address")
	}
}

func TestLoadHTTPConfig_MissingTLS(t *testing.T) {
	path := writeConfig(t, `
network:
  address: "0.0.0.0:4000"
`)

	if _, err := LoadHTTPConfig(path); err == nil {
		t.Fatal("expected error for missing tls paths")
	}
}

func TestLoadWSConfig_Defaults(t *testing.T) {
	path := writeConfig(t, `
network:
  address: "0.0.0.0:4001"
tls:
  cert_file: /tmp/cert.pem
  key_file: /tmp/key.pem
request_workers: 8
`)

	cfg, err := LoadWSConfig(path)
	if err != nil {
		t.Fatalf("LoadWSConfig: %v", err)
	}

	if cfg.RequestWorkers != 8 {
		t.Errorf("expected request_workers=8, got %d", cfg.RequestWorkers)
	}
	if cfg.Network.PollEventCapacity != 1024 {
		t.Errorf("expected default poll_event_capacity=1024, got %d", cfg.Network.PollEventCapacity)
	}
	if cfg.Network.WebsocketMaxMessageSize != 64*1024 {
		t.Errorf("expected default websocket_max_message_size=64KiB, got %d", cfg.Network.WebsocketMaxMessageSize)
	}
	if cfg.Cleaning.MaxConnectionAge != 2*time.Minute {
		t.Errorf("expected default max_connection_age=2m, got %s", cfg.Cleaning.MaxConnectionAge)
	}
	if cfg.AccessList.Mode != "off" {
		t.Errorf("expected default access_list.mode=off, got %q", cfg.AccessList.Mode)
	}
}

func TestLoadWSConfig_InvalidAccessListMode(t *testing.T) {
	path := writeConfig(t, `
network:
  address: "0.0.0.0:4001"
tls:
  cert_file: /tmp/cert.pem
  key_file: /tmp/key.pem
access_list:
  mode: bogus
`)

	if _, err := LoadWSConfig(path); err == nil {
		t.Fatal("expected error for invalid access_list.mode")
	}
}

func TestLoadHTTPConfig_RateLimitDefaults(t *testing.T) {
	path := writeConfig(t, `
network:
  address: "0.0.0.0:4000"
tls:
  cert_file: /tmp/cert.pem
  key_file: /tmp/key.pem
rate_limit:
  enabled: true
`)

	cfg, err := LoadHTTPConfig(path)
	if err != nil {
		t.Fatalf("LoadHTTPConfig: %v", err)
	}

	if cfg.RateLimit.AnnouncesPerSecond != 5 {
		t.Errorf("expected default announces_per_second=5, got %v", cfg.RateLimit.AnnouncesPerSecond)
	}
	if cfg.RateLimit.Burst != 10 {
		t.Errorf("expected default burst=10, got %d", cfg.RateLimit.Burst)
	}
}
