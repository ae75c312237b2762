// Package config loads and validates the YAML configuration for the
// tracker-http and tracker-ws binaries.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoggingInfo configures the shared slog-based logger.
type LoggingInfo struct {
	Level   string `yaml:"level"`    // debug|info|warn|error, default: info
	Format  string `yaml:"format"`   // json|text, default: json
	File    string `yaml:"file"`     // optional, additional log file
}

// TLSInfo points at the server certificate/key pair for the listening
// endpoint. Tracker peers are untrusted BitTorrent clients, so there is
// no client-certificate counterpart here (see internal/pki).
type TLSInfo struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// RateLimitInfo configures the per-source-IP announce throttle.
type RateLimitInfo struct {
	Enabled           bool    `yaml:"enabled"`
	AnnouncesPerSecond float64 `yaml:"announces_per_second"` // default: 5
	Burst              int     `yaml:"burst"`                 // default: 10
}

// NetworkInfo is the network surface common to both transports.
type NetworkInfo struct {
	Address   string `yaml:"address"`
	KeepAlive bool   `yaml:"keep_alive"`
}

// HTTPConfig is the configuration for cmd/tracker-http.
type HTTPConfig struct {
	Network         NetworkInfo   `yaml:"network"`
	TLS             TLSInfo       `yaml:"tls"`
	SocketWorkers   int           `yaml:"socket_workers"`
	RequestWorkers  int           `yaml:"request_workers"`
	ResponseTimeout time.Duration `yaml:"response_timeout"`
	Logging         LoggingInfo   `yaml:"logging"`
	RateLimit       RateLimitInfo `yaml:"rate_limit"`
}

// WSNetworkInfo extends NetworkInfo with the WebSocket-variant options
// named in the external interface table: poll cadence and frame caps.
// Since this implementation uses a goroutine per connection rather than
// an OS-level poll loop, PollEventCapacity is repurposed to size each
// connection's local response inbox, and WebsocketMaxMessageSize caps
// each read message. PollTimeoutMicroseconds and WebsocketMaxFrameSize
// are parsed and defaulted but not passed to internal/socketworker, so
// they have no effect on a running tracker.
type WSNetworkInfo struct {
	NetworkInfo             `yaml:",inline"`
	PollTimeoutMicroseconds uint64 `yaml:"poll_timeout_microseconds"`
	PollEventCapacity       int    `yaml:"poll_event_capacity"`
	WebsocketMaxMessageSize int64  `yaml:"websocket_max_message_size"`
	WebsocketMaxFrameSize   int64  `yaml:"websocket_max_frame_size"`
}

// CleaningInfo configures the inactive-connection sweep (WS variant).
type CleaningInfo struct {
	MaxConnectionAge time.Duration `yaml:"max_connection_age"`
}

// AccessListInfo configures the info-hash access-list predicate
// consulted on Announce (WS variant).
type AccessListInfo struct {
	Mode     string   `yaml:"mode"`      // off|allow|deny, default: off
	HashList []string `yaml:"hash_list"` // hex-encoded 20-byte info-hashes
}

// WSConfig is the configuration for cmd/tracker-ws.
type WSConfig struct {
	Network         WSNetworkInfo  `yaml:"network"`
	TLS             TLSInfo        `yaml:"tls"`
	SocketWorkers   int            `yaml:"socket_workers"`
	RequestWorkers  int            `yaml:"request_workers"`
	ResponseTimeout time.Duration  `yaml:"response_timeout"`
	Cleaning        CleaningInfo   `yaml:"cleaning"`
	AccessList      AccessListInfo `yaml:"access_list"`
	Logging         LoggingInfo    `yaml:"logging"`
	RateLimit       RateLimitInfo  `yaml:"rate_limit"`
}

// LoadHTTPConfig reads and validates the tracker-http YAML config.
func LoadHTTPConfig(path string) (*HTTPConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg HTTPConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *HTTPConfig) validate() error {
	if c.Network.Address == "" {
		return fmt.Errorf("network.address is required")
	}
	if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
		return fmt.Errorf("tls.cert_file and tls.key_file are required")
	}
	if c.SocketWorkers <= 0 {
		c.SocketWorkers = 1
	}
	if c.RequestWorkers <= 0 {
		c.RequestWorkers = 4
	}
	if c.ResponseTimeout <= 0 {
		c.ResponseTimeout = 30 * time.Second
	}
	normalizeLogging(&c.Logging)
	normalizeRateLimit(&c.RateLimit)
	return nil
}

// LoadWSConfig reads and validates the tracker-ws YAML config.
func LoadWSConfig(path string) (*WSConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg WSConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *WSConfig) validate() error {
	if c.Network.Address == "" {
		return fmt.Errorf("network.address is required")
	}
	if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
		return fmt.Errorf("tls.cert_file and tls.key_file are required")
	}
	if c.SocketWorkers <= 0 {
		c.SocketWorkers = 1
	}
	if c.RequestWorkers <= 0 {
		c.RequestWorkers = 4
	}
	if c.ResponseTimeout <= 0 {
		c.ResponseTimeout = 30 * time.Second
	}
	if c.Network.PollTimeoutMicroseconds == 0 {
		c.Network.PollTimeoutMicroseconds = 1000
	}
	if c.Network.PollEventCapacity <= 0 {
		c.Network.PollEventCapacity = 1024
	}
	if c.Network.WebsocketMaxMessageSize <= 0 {
		c.Network.WebsocketMaxMessageSize = 64 * 1024
	}
	if c.Network.WebsocketMaxFrameSize <= 0 {
		c.Network.WebsocketMaxFrameSize = 16 * 1024
	}
	if c.Cleaning.MaxConnectionAge <= 0 {
		c.Cleaning.MaxConnectionAge = 2 * time.Minute
	}
	c.AccessList.Mode = strings.ToLower(strings.TrimSpace(c.AccessList.Mode))
	switch c.AccessList.Mode {
	case "", "off", "allow", "deny":
	default:
		return fmt.Errorf("access_list.mode must be off, allow or deny, got %q", c.AccessList.Mode)
	}
	if c.AccessList.Mode == "" {
		c.AccessList.Mode = "off"
	}
	normalizeLogging(&c.Logging)
	normalizeRateLimit(&c.RateLimit)
	return nil
}

func normalizeLogging(l *LoggingInfo) {
	if l.Level == "" {
		l.Level = "info"
	}
	if l.Format == "" {
		l.Format = "json"
	}
}

func normalizeRateLimit(r *RateLimitInfo) {
	if !r.Enabled {
		return
	}
	if r.AnnouncesPerSecond <= 0 {
		r.AnnouncesPerSecond = 5
	}
	if r.Burst <= 0 {
		r.Burst = 10
	}
}
