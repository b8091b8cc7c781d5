package tlsmanager

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/migadu/hako/config"
	"github.com/migadu/hako/logger"
	"golang.org/x/crypto/acme"
	"golang.org/x/crypto/acme/autocert"
)

// ErrMissingServerName is returned when a TLS handshake is attempted without SNI
var ErrMissingServerName = errors.New("missing server name")

// ErrHostNotAllowed is returned when a TLS handshake is attempted for a domain not in the allowlist
var ErrHostNotAllowed = errors.New("host not allowed")

// ErrCertificateUnavailable is returned when a certificate cannot be retrieved (cache miss + ACME failure)
// This is often a transient error (bucket down, ACME rate limit, network issues) and should not crash the server
var ErrCertificateUnavailable = errors.New("certificate unavailable")

// Manager handles TLS certificate management for hako.
// It supports both file-based certificates and automatic Let's Encrypt certificates.
type Manager struct {
	config      config.TLSConfig
	autocertMgr *autocert.Manager
	tlsConfig   *tls.Config
}

// New creates a new TLS manager based on the provided configuration. The
// store backs the Let's Encrypt certificate cache and may be nil when
// provider is "file".
func New(cfg config.TLSConfig, store CertStore) (*Manager, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("TLS is not enabled in configuration")
	}

	m := &Manager{config: cfg}

	switch cfg.Provider {
	case "", "file":
		if err := m.initFileProvider(); err != nil {
			return nil, fmt.Errorf("failed to initialize file provider: %w", err)
		}
	case "letsencrypt":
		if err := m.initLetsEncryptProvider(store); err != nil {
			return nil, fmt.Errorf("failed to initialize Let's Encrypt provider: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown TLS provider: %s (must be 'file' or 'letsencrypt')", cfg.Provider)
	}

	logger.Info("TLS manager initialized", "provider", cfg.Provider)
	return m, nil
}

// initFileProvider initializes TLS with certificate files
func (m *Manager) initFileProvider() error {
	if m.config.CertFile == "" || m.config.KeyFile == "" {
		return fmt.Errorf("cert_file and key_file are required for provider='file'")
	}

	cert, err := tls.LoadX509KeyPair(m.config.CertFile, m.config.KeyFile)
	if err != nil {
		return fmt.Errorf("failed to load certificate: %w", err)
	}

	m.tlsConfig = &tls.Config{
		Certificates:  []tls.Certificate{cert},
		MinVersion:    tls.VersionTLS12,
		NextProtos:    []string{"h2", "http/1.1"},
		Renegotiation: tls.RenegotiateNever,
	}

	logger.Info("Loaded TLS certificate from files", "cert", m.config.CertFile, "key", m.config.KeyFile)
	return nil
}

// initLetsEncryptProvider initializes autocert with the bucket as its
// certificate cache, so certificates and ACME challenge tokens survive
// restarts without touching local disk.
func (m *Manager) initLetsEncryptProvider(store CertStore) error {
	if m.config.LetsEncrypt == nil {
		return fmt.Errorf("letsencrypt configuration is required for provider='letsencrypt'")
	}

	leCfg := m.config.LetsEncrypt

	if leCfg.Email == "" {
		return fmt.Errorf("letsencrypt.email is required")
	}

	if len(leCfg.Domains) == 0 {
		return fmt.Errorf("letsencrypt.domains is required and must not be empty")
	}

	if store == nil {
		return fmt.Errorf("a certificate store is required for provider='letsencrypt'")
	}

	cache, err := NewBucketCache(store)
	if err != nil {
		return fmt.Errorf("failed to initialize bucket cache: %w", err)
	}

	m.autocertMgr = &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		Email:      leCfg.Email,
		HostPolicy: autocert.HostWhitelist(leCfg.Domains...),
		Cache:      cache,
		Client: &acme.Client{
			DirectoryURL: "https://acme-v02.api.letsencrypt.org/directory",
		},
	}

	// SNI-less handshakes (health checks, bare IP clients) fall back to the
	// first configured domain.
	defaultDomain := leCfg.Domains[0]

	baseTLSConfig := m.autocertMgr.TLSConfig()
	m.tlsConfig = &tls.Config{
		GetCertificate: func(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
			serverName := hello.ServerName

			if serverName == "" {
				if defaultDomain == "" {
					logger.Debug("[TLS] rejected handshake - missing SNI and no default domain")
					return nil, ErrMissingServerName
				}
				logger.Debug("[TLS] missing SNI - using default domain", "domain", defaultDomain)
				serverName = defaultDomain
			}

			// RFC 4343: DNS names are case-insensitive
			serverName = strings.ToLower(serverName)

			if err := m.autocertMgr.HostPolicy(nil, serverName); err != nil {
				logger.Info("[TLS] rejected handshake for unconfigured domain", "domain", serverName, "error", err)
				return nil, fmt.Errorf("%w: %s", ErrHostNotAllowed, serverName)
			}

			modifiedHello := *hello
			modifiedHello.ServerName = serverName

			cert, err := baseTLSConfig.GetCertificate(&modifiedHello)
			if err != nil {
				// Retrieval failures are often transient (bucket down, ACME
				// rate limits, network issues). Wrap as ErrCertificateUnavailable
				// so the server logs the handshake failure but keeps running.
				logger.Error("[TLS] failed to get certificate", "server_name", serverName, "error", err)
				return nil, fmt.Errorf("%w for %s: %v", ErrCertificateUnavailable, serverName, err)
			}

			logger.Debug("[TLS] certificate provided", "domain", serverName)
			return cert, nil
		},
		MinVersion:    tls.VersionTLS12,
		NextProtos:    []string{"h2", "http/1.1"},
		Renegotiation: tls.RenegotiateNever,
	}

	logger.Info("Let's Encrypt autocert initialized", "domains", leCfg.Domains, "default_domain", defaultDomain)
	return nil
}

// GetTLSConfig returns the TLS configuration for use with servers
func (m *Manager) GetTLSConfig() *tls.Config {
	return m.tlsConfig
}

// HTTPHandler returns an HTTP handler for ACME HTTP-01 challenges.
// This should be run on port 80 for Let's Encrypt certificate issuance.
// Returns nil if not using Let's Encrypt.
func (m *Manager) HTTPHandler() http.Handler {
	if m.autocertMgr == nil {
		return nil
	}
	return m.autocertMgr.HTTPHandler(nil)
}

// GetAutocertManager returns the underlying autocert.Manager if using Let's Encrypt.
// Returns nil if using file-based certificates.
func (m *Manager) GetAutocertManager() *autocert.Manager {
	return m.autocertMgr
}
