package config

import (
	"testing"
	"time"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	if cfg.Logging.Output != "stderr" {
		t.Errorf("Expected default logging output 'stderr', got '%s'", cfg.Logging.Output)
	}
	if cfg.Logging.Format != "console" {
		t.Errorf("Expected default logging format 'console', got '%s'", cfg.Logging.Format)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Expected default logging level 'info', got '%s'", cfg.Logging.Level)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Expected default server addr ':8080', got '%s'", cfg.Server.Addr)
	}
	if cfg.Metrics.Enabled {
		t.Error("Expected metrics to be disabled by default")
	}
	if !cfg.Cleanup.Enabled {
		t.Error("Expected cleanup to be enabled by default")
	}
}

func TestServerConfig_GetMaxUploadSize(t *testing.T) {
	// Default when unset
	cfg := ServerConfig{}
	size, err := cfg.GetMaxUploadSize()
	if err != nil {
		t.Fatalf("Failed to get default max upload size: %v", err)
	}
	if size != 1<<30 {
		t.Errorf("Expected default max upload size 1GB, got %d", size)
	}

	// Custom value
	cfg = ServerConfig{MaxUploadSize: "250mb"}
	size, err = cfg.GetMaxUploadSize()
	if err != nil {
		t.Fatalf("Failed to parse max upload size: %v", err)
	}
	if size != 250*(1<<20) {
		t.Errorf("Expected 250MB, got %d", size)
	}

	// Invalid value
	cfg = ServerConfig{MaxUploadSize: "huge"}
	if _, err := cfg.GetMaxUploadSize(); err == nil {
		t.Error("Expected error for invalid max upload size, got nil")
	}
}

func TestServerConfig_GetPublicBaseURL(t *testing.T) {
	cfg := ServerConfig{}
	if got := cfg.GetPublicBaseURL(); got != "http://localhost:8080" {
		t.Errorf("Expected default base URL 'http://localhost:8080', got '%s'", got)
	}

	cfg = ServerConfig{PublicBaseURL: "https://files.example.com/"}
	if got := cfg.GetPublicBaseURL(); got != "https://files.example.com" {
		t.Errorf("Expected trailing slash to be stripped, got '%s'", got)
	}
}

func TestShareConfig_GetDefaultTTL(t *testing.T) {
	// Default when unset
	cfg := ShareConfig{}
	ttl, err := cfg.GetDefaultTTL()
	if err != nil {
		t.Fatalf("Failed to get default TTL: %v", err)
	}
	if ttl != 12*time.Hour {
		t.Errorf("Expected default TTL 12h, got %v", ttl)
	}

	// Day suffix
	cfg = ShareConfig{DefaultTTL: "7d"}
	ttl, err = cfg.GetDefaultTTL()
	if err != nil {
		t.Fatalf("Failed to parse TTL: %v", err)
	}
	if ttl != 7*24*time.Hour {
		t.Errorf("Expected TTL 7d, got %v", ttl)
	}

	// Invalid value
	cfg = ShareConfig{DefaultTTL: "forever"}
	if _, err := cfg.GetDefaultTTL(); err == nil {
		t.Error("Expected error for invalid TTL, got nil")
	}
}

func TestCleanupConfig_Defaults(t *testing.T) {
	cfg := CleanupConfig{}

	wake, err := cfg.GetWakeInterval()
	if err != nil {
		t.Fatalf("Failed to get default wake interval: %v", err)
	}
	if wake != time.Hour {
		t.Errorf("Expected default wake interval 1h, got %v", wake)
	}

	retention, err := cfg.GetTrashRetention()
	if err != nil {
		t.Fatalf("Failed to get default trash retention: %v", err)
	}
	if retention != 30*24*time.Hour {
		t.Errorf("Expected default trash retention 30d, got %v", retention)
	}
}

func TestCleanupConfig_CustomValues(t *testing.T) {
	cfg := CleanupConfig{
		WakeInterval:   "15m",
		TrashRetention: "14d",
	}

	wake, err := cfg.GetWakeInterval()
	if err != nil {
		t.Fatalf("Failed to parse wake interval: %v", err)
	}
	if wake != 15*time.Minute {
		t.Errorf("Expected wake interval 15m, got %v", wake)
	}

	retention, err := cfg.GetTrashRetention()
	if err != nil {
		t.Fatalf("Failed to parse trash retention: %v", err)
	}
	if retention != 14*24*time.Hour {
		t.Errorf("Expected trash retention 14d, got %v", retention)
	}
}

// validTestConfig returns a configuration that passes Validate.
func validTestConfig() Config {
	cfg := NewDefaultConfig()
	cfg.S3.AccessKey = "minioadmin"
	cfg.S3.SecretKey = "minioadmin"
	cfg.Server.APIKey = "test-api-key"
	cfg.Share.Secret = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	return cfg
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing s3 endpoint",
			mutate:  func(c *Config) { c.S3.Endpoint = "" },
			wantErr: true,
		},
		{
			name:    "missing s3 bucket",
			mutate:  func(c *Config) { c.S3.Bucket = "" },
			wantErr: true,
		},
		{
			name:    "encrypt without key",
			mutate:  func(c *Config) { c.S3.Encrypt = true },
			wantErr: true,
		},
		{
			name:    "missing server addr",
			mutate:  func(c *Config) { c.Server.Addr = "" },
			wantErr: true,
		},
		{
			name:    "missing api key",
			mutate:  func(c *Config) { c.Server.APIKey = "" },
			wantErr: true,
		},
		{
			name:    "missing share secret",
			mutate:  func(c *Config) { c.Share.Secret = "" },
			wantErr: true,
		},
		{
			name:    "invalid max upload size",
			mutate:  func(c *Config) { c.Server.MaxUploadSize = "a lot" },
			wantErr: true,
		},
		{
			name: "tls file provider without cert",
			mutate: func(c *Config) {
				c.TLS.Enabled = true
				c.TLS.Provider = "file"
			},
			wantErr: true,
		},
		{
			name: "tls file provider with cert and key",
			mutate: func(c *Config) {
				c.TLS.Enabled = true
				c.TLS.Provider = "file"
				c.TLS.CertFile = "/etc/hako/cert.pem"
				c.TLS.KeyFile = "/etc/hako/key.pem"
			},
			wantErr: false,
		},
		{
			name: "letsencrypt without email",
			mutate: func(c *Config) {
				c.TLS.Enabled = true
				c.TLS.Provider = "letsencrypt"
				c.TLS.LetsEncrypt = &TLSLetsEncryptConfig{Domains: []string{"files.example.com"}}
			},
			wantErr: true,
		},
		{
			name: "letsencrypt without domains",
			mutate: func(c *Config) {
				c.TLS.Enabled = true
				c.TLS.Provider = "letsencrypt"
				c.TLS.LetsEncrypt = &TLSLetsEncryptConfig{Email: "ops@example.com"}
			},
			wantErr: true,
		},
		{
			name: "letsencrypt fully configured",
			mutate: func(c *Config) {
				c.TLS.Enabled = true
				c.TLS.Provider = "letsencrypt"
				c.TLS.LetsEncrypt = &TLSLetsEncryptConfig{
					Email:   "ops@example.com",
					Domains: []string{"files.example.com"},
				}
			},
			wantErr: false,
		},
		{
			name: "unknown tls provider",
			mutate: func(c *Config) {
				c.TLS.Enabled = true
				c.TLS.Provider = "vault"
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("Expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Expected valid config, got error: %v", err)
			}
		})
	}
}
