// Package config holds the YAML-backed configuration for the server and
// client binaries. Flags in cmd/ override whatever the file provides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Server configures the RPC server binary.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Fault injection knobs, used to exercise client-side retry handling.
	DelaySeconds float64 `yaml:"delay_seconds"`
	DropRate     float64 `yaml:"drop_rate"`

	// AtMostOnce enables request_id deduplication.
	AtMostOnce      bool    `yaml:"at_most_once"`
	DedupSize       int     `yaml:"dedup_size"`
	DedupTTLSecs    float64 `yaml:"dedup_ttl_seconds"`
	Codec           string  `yaml:"codec"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"` // 0 disables rate limiting
	RateLimitBurst  int     `yaml:"rate_limit_burst"`

	EtcdEndpoints []string `yaml:"etcd_endpoints"` // empty disables registration
	AdvertiseAddr string   `yaml:"advertise_addr"`
}

// Client configures the RPC client binary.
type Client struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	TimeoutSeconds      float64 `yaml:"timeout_seconds"`
	MaxRetries          int     `yaml:"max_retries"`
	Codec               string  `yaml:"codec"`
	ReconnectPerAttempt bool    `yaml:"reconnect_per_attempt"`

	EtcdEndpoints []string `yaml:"etcd_endpoints"` // empty disables discovery
	Balancer      string   `yaml:"balancer"`       // roundrobin | weighted | hash
}

func DefaultServer() Server {
	return Server{
		Host: "0.0.0.0",
		Port: 5000,
	}
}

func DefaultClient() Client {
	return Client{
		Host:           "127.0.0.1",
		Port:           5000,
		TimeoutSeconds: 2.0,
		MaxRetries:     2,
	}
}

// LoadServer reads a server config file over the defaults. An empty path
// returns the defaults unchanged.
func LoadServer(path string) (Server, error) {
	cfg := DefaultServer()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadClient reads a client config file over the defaults.
func LoadClient(path string) (Client, error) {
	cfg := DefaultClient()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects out-of-range server settings.
func (c Server) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port out of range: %d", c.Port)
	}
	if c.DelaySeconds < 0 {
		return fmt.Errorf("delay_seconds must be >= 0, got %v", c.DelaySeconds)
	}
	if c.DropRate < 0 || c.DropRate > 1 {
		return fmt.Errorf("drop_rate must be within [0,1], got %v", c.DropRate)
	}
	if c.DedupSize < 0 {
		return fmt.Errorf("dedup_size must be >= 0, got %d", c.DedupSize)
	}
	return nil
}

// Validate rejects out-of-range client settings.
func (c Client) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port out of range: %d", c.Port)
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout_seconds must be > 0, got %v", c.TimeoutSeconds)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0, got %d", c.MaxRetries)
	}
	return nil
}

// Addr renders host:port.
func (c Server) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// Addr renders host:port.
func (c Client) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// Delay converts the configured delay to a duration.
func (c Server) Delay() time.Duration {
	return time.Duration(c.DelaySeconds * float64(time.Second))
}

// DedupTTL converts the configured TTL to a duration.
func (c Server) DedupTTL() time.Duration {
	return time.Duration(c.DedupTTLSecs * float64(time.Second))
}

// Timeout converts the configured per-attempt timeout to a duration.
func (c Client) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds * float64(time.Second))
}
