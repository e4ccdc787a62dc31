// Package tlsengine bridges a non-blocking socket to the standard library's
// synchronous crypto/tls stack, bringing the memory-BIO bridging technique of
// §4.B to Go: a bioConn plays the dual-BIO role, and the crypto/tls handshake
// and record read/write run on a dedicated per-connection goroutine so the
// caller — the reactor's event-loop goroutine — never blocks. Grounded on
// §4.B and on _examples/other_examples/diogin-gorox__web_http2.go's use of
// tls.Server(tcpConn, cfg) as the idiomatic Go entry point into the TLS
// stack; there is no ecosystem BIO library to adopt instead (see
// SPEC_FULL.md's DOMAIN STACK section).
package tlsengine

import (
	"crypto/tls"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"
)

// SharedContext is the process-wide, immutable-after-initialization TLS
// configuration of §4.B: one certificate/key (optionally with a chain),
// minimum protocol version, cipher list, and session cache/timeout settings.
// Safe for concurrent use by construction — every Engine gets its own
// *tls.Conn, all reading from this one *tls.Config.
type SharedContext struct {
	cfg              *tls.Config
	sessionCacheSize int
	sessionTimeout   time.Duration
}

// SharedContextOptions configures NewSharedContext.
type SharedContextOptions struct {
	CertFilePath  string
	KeyFilePath   string
	ChainFilePath string // optional

	// MinVersion is one of tls.VersionTLS10 .. tls.VersionTLS13. Zero means
	// the spec's default of TLS 1.2.
	MinVersion uint16

	// CipherList mirrors the OpenSSL-style cipher string of §4.B for
	// documentation purposes; Go's cipher suite list is independent of the
	// OpenSSL naming grammar. NewSharedContext does not read this field: it
	// always uses the "HIGH:!aNULL:!MD5"-equivalent CipherSuitesHighSecurity.
	// It is not parsed as an OpenSSL string.
	CipherList string

	// SessionCacheSize corresponds to the spec's session cache size (default
	// 20480). It is recorded on SharedContext only; it does not size any
	// crypto/tls cache.
	SessionCacheSize int
	// SessionTimeout corresponds to the spec's session timeout (default
	// 300s). It is recorded on SharedContext only; it does not set any
	// crypto/tls ticket lifetime.
	SessionTimeout time.Duration
}

const (
	defaultMinVersion       = tls.VersionTLS12
	defaultCipherList       = "HIGH:!aNULL:!MD5"
	defaultSessionCacheSize = 20480
	defaultSessionTimeout   = 300 * time.Second
)

// CipherSuitesHighSecurity approximates the OpenSSL "HIGH:!aNULL:!MD5" list:
// AEAD suites only, no anonymous or MD5-keyed suites — the strongest subset
// Go's standard library exposes for TLS 1.0-1.2 (TLS 1.3 suites are fixed
// and not configurable).
var CipherSuitesHighSecurity = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
}

// NewSharedContext validates that the key matches the certificate and that
// the files are readable, per §4.B's "initialization validates... failure
// aborts startup". Callers (the server builder) are expected to treat a
// non-nil error as fatal.
func NewSharedContext(opts SharedContextOptions) (*SharedContext, error) {
	if opts.CertFilePath == "" || opts.KeyFilePath == "" {
		return nil, errors.New("tlsengine: cert_file_path and key_file_path are required")
	}
	if _, err := os.Stat(opts.CertFilePath); err != nil {
		return nil, fmt.Errorf("tlsengine: cert file unreadable: %w", err)
	}
	if _, err := os.Stat(opts.KeyFilePath); err != nil {
		return nil, fmt.Errorf("tlsengine: key file unreadable: %w", err)
	}

	cert, err := tls.LoadX509KeyPair(opts.CertFilePath, opts.KeyFilePath)
	if err != nil {
		return nil, fmt.Errorf("tlsengine: certificate/key do not match: %w", err)
	}
	if opts.ChainFilePath != "" {
		chainPEM, err := os.ReadFile(opts.ChainFilePath)
		if err != nil {
			return nil, fmt.Errorf("tlsengine: chain file unreadable: %w", err)
		}
		for {
			var block *pem.Block
			block, chainPEM = pem.Decode(chainPEM)
			if block == nil {
				break
			}
			if block.Type == "CERTIFICATE" {
				cert.Certificate = append(cert.Certificate, block.Bytes)
			}
		}
	}

	minVersion := opts.MinVersion
	if minVersion == 0 {
		minVersion = defaultMinVersion
	}
	sessionCacheSize := opts.SessionCacheSize
	if sessionCacheSize == 0 {
		sessionCacheSize = defaultSessionCacheSize
	}
	sessionTimeout := opts.SessionTimeout
	if sessionTimeout == 0 {
		sessionTimeout = defaultSessionTimeout
	}

	// crypto/tls rotates server-side session tickets internally; unlike
	// OpenSSL's SSL_CTX_sess_set_cache_size/SSL_CTX_set_timeout, the standard
	// library exposes no tunable server-side cache size or ticket lifetime.
	// sessionCacheSize/sessionTimeout are recorded on SharedContext; they do
	// not feed into *tls.Config.
	cfg := &tls.Config{
		Certificates:           []tls.Certificate{cert},
		MinVersion:             minVersion,
		CipherSuites:           CipherSuitesHighSecurity,
		SessionTicketsDisabled: false,
	}
	return &SharedContext{cfg: cfg, sessionCacheSize: sessionCacheSize, sessionTimeout: sessionTimeout}, nil
}

// tlsConfig returns a shallow clone suitable for handing to tls.Server — the
// standard library recommends cloning per-connection to avoid accidental
// shared mutable state, even though this codebase never mutates it after
// NewSharedContext returns.
func (c *SharedContext) tlsConfig() *tls.Config {
	return c.cfg.Clone()
}
