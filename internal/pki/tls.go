// Package pki builds the TLS server configuration shared by every
// socket worker. Peers are untrusted BitTorrent clients, so unlike a
// private agent/server pair this is server-auth only — no client
// certificates are requested or verified.
package pki

import (
	"crypto/tls"
	"fmt"
)

// NewServerTLSConfig loads a TLS 1.2/1.3 server configuration from a
// certificate/key pair on disk. The returned config is read-only and
// safe to share by reference across every socket worker.
func NewServerTLSConfig(certPath, keyPath string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("loading server certificate: %w", err)
	}

	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		MaxVersion:   tls.VersionTLS13,
		Certificates: []tls.Certificate{cert},
	}, nil
}
