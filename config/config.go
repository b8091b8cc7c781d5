// Package config defines the TOML configuration surface of the hako
// file-box service and its loader.
package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/migadu/hako/helpers"
)

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Output string `toml:"output"` // Log output: "stderr", "stdout", "syslog", or file path
	Format string `toml:"format"` // Log format: "json" or "console"
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", "error"
}

// S3Config holds object storage connection configuration
type S3Config struct {
	Endpoint      string `toml:"endpoint"`
	DisableTLS    bool   `toml:"disable_tls"`
	AccessKey     string `toml:"access_key"`
	SecretKey     string `toml:"secret_key"`
	Bucket        string `toml:"bucket"`
	Debug         bool   `toml:"debug"` // Enable detailed S3 request/response tracing
	Encrypt       bool   `toml:"encrypt"`
	EncryptionKey string `toml:"encryption_key"` // 64 hex characters (32 bytes) when encrypt = true
}

// GetDebug returns the debug flag
func (s *S3Config) GetDebug() bool {
	return s.Debug
}

// TLSLetsEncryptConfig holds Let's Encrypt automatic certificate management configuration.
// Issued certificates are cached in the storage bucket itself, so every instance
// pointed at the same bucket shares them.
type TLSLetsEncryptConfig struct {
	Email   string   `toml:"email"`   // Email for Let's Encrypt notifications
	Domains []string `toml:"domains"` // Domains for certificate (supports multiple)
}

// TLSConfig holds TLS/SSL configuration
type TLSConfig struct {
	Enabled     bool                  `toml:"enabled"`     // Enable HTTPS/TLS
	Provider    string                `toml:"provider"`    // TLS provider: "file" or "letsencrypt"
	CertFile    string                `toml:"cert_file"`   // Certificate file (for provider="file")
	KeyFile     string                `toml:"key_file"`    // Private key file (for provider="file")
	LetsEncrypt *TLSLetsEncryptConfig `toml:"letsencrypt"` // Let's Encrypt configuration
}

// ServerConfig holds the HTTP file API server configuration
type ServerConfig struct {
	Addr          string   `toml:"addr"`
	APIKey        string   `toml:"api_key"`
	AllowedHosts  []string `toml:"allowed_hosts"`   // If empty, all hosts are allowed
	PublicBaseURL string   `toml:"public_base_url"` // External base URL used when building share links
	MaxUploadSize string   `toml:"max_upload_size"` // Maximum accepted upload size (e.g. "1gb", "250mb")
}

// GetMaxUploadSize parses the maximum upload size
func (s *ServerConfig) GetMaxUploadSize() (int64, error) {
	if s.MaxUploadSize == "" {
		return 1 << 30, nil // Default 1GB per upload
	}
	return helpers.ParseSize(s.MaxUploadSize)
}

// GetPublicBaseURL returns the external base URL without a trailing slash
func (s *ServerConfig) GetPublicBaseURL() string {
	base := s.PublicBaseURL
	if base == "" {
		base = "http://localhost:8080"
	}
	return strings.TrimRight(base, "/")
}

// MetricsConfig holds the Prometheus metrics listener configuration
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
	Path    string `toml:"path"`
}

// ShareConfig holds share link configuration
type ShareConfig struct {
	Secret     string `toml:"secret"`      // 64 hex characters (32 bytes); tokens survive restarts as long as this does
	DefaultTTL string `toml:"default_ttl"` // Validity applied when a share request carries no TTL
}

// GetDefaultTTL parses the default share link validity duration
func (s *ShareConfig) GetDefaultTTL() (time.Duration, error) {
	if s.DefaultTTL == "" {
		return 12 * time.Hour, nil
	}
	return helpers.ParseDuration(s.DefaultTTL)
}

// CleanupConfig holds trash purge worker configuration.
type CleanupConfig struct {
	Enabled        bool   `toml:"enabled"`
	WakeInterval   string `toml:"wake_interval"`
	TrashRetention string `toml:"trash_retention"`
}

// GetWakeInterval parses the wake interval duration
func (c *CleanupConfig) GetWakeInterval() (time.Duration, error) {
	if c.WakeInterval == "" {
		c.WakeInterval = "1h"
	}
	return helpers.ParseDuration(c.WakeInterval)
}

// GetTrashRetention parses the trash retention duration
func (c *CleanupConfig) GetTrashRetention() (time.Duration, error) {
	if c.TrashRetention == "" {
		c.TrashRetention = "30d"
	}
	return helpers.ParseDuration(c.TrashRetention)
}

// Config holds all configuration for the application.
type Config struct {
	Logging LoggingConfig `toml:"logging"`
	S3      S3Config      `toml:"s3"`
	TLS     TLSConfig     `toml:"tls"`
	Server  ServerConfig  `toml:"server"`
	Metrics MetricsConfig `toml:"metrics"`
	Share   ShareConfig   `toml:"share"`
	Cleanup CleanupConfig `toml:"cleanup"`
}

// NewDefaultConfig creates a Config struct with default values.
func NewDefaultConfig() Config {
	return Config{
		Logging: LoggingConfig{
			Output: "stderr",  // Default to stderr
			Format: "console", // Default to console format
			Level:  "info",    // Default to info level
		},
		S3: S3Config{
			Endpoint: "localhost:9000",
			Bucket:   "hako",
		},
		TLS: TLSConfig{
			Enabled:  false,
			Provider: "file",
		},
		Server: ServerConfig{
			Addr:          ":8080",
			PublicBaseURL: "http://localhost:8080",
			MaxUploadSize: "1gb",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9090",
			Path:    "/metrics",
		},
		Share: ShareConfig{
			DefaultTTL: "12h",
		},
		Cleanup: CleanupConfig{
			Enabled:        true,
			WakeInterval:   "1h",
			TrashRetention: "30d",
		},
	}
}

// Validate checks the configuration for settings that would prevent startup.
// It returns the first problem found with enough context to fix it.
func (c *Config) Validate() error {
	if c.S3.Endpoint == "" {
		return fmt.Errorf("s3.endpoint is required")
	}
	if c.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required")
	}
	if c.S3.Encrypt && c.S3.EncryptionKey == "" {
		return fmt.Errorf("s3.encryption_key is required when s3.encrypt is true")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.APIKey == "" {
		return fmt.Errorf("server.api_key is required")
	}
	if c.Share.Secret == "" {
		return fmt.Errorf("share.secret is required (64 hex characters)")
	}
	if c.Server.PublicBaseURL != "" {
		if _, err := url.Parse(c.Server.PublicBaseURL); err != nil {
			return fmt.Errorf("server.public_base_url is not a valid URL: %w", err)
		}
	}
	if _, err := c.Server.GetMaxUploadSize(); err != nil {
		return fmt.Errorf("server.max_upload_size: %w", err)
	}
	if _, err := c.Share.GetDefaultTTL(); err != nil {
		return fmt.Errorf("share.default_ttl: %w", err)
	}
	if _, err := c.Cleanup.GetWakeInterval(); err != nil {
		return fmt.Errorf("cleanup.wake_interval: %w", err)
	}
	if _, err := c.Cleanup.GetTrashRetention(); err != nil {
		return fmt.Errorf("cleanup.trash_retention: %w", err)
	}
	if c.TLS.Enabled {
		switch c.TLS.Provider {
		case "", "file":
			if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
				return fmt.Errorf("tls.cert_file and tls.key_file are required when tls.provider is \"file\"")
			}
		case "letsencrypt":
			if c.TLS.LetsEncrypt == nil || c.TLS.LetsEncrypt.Email == "" {
				return fmt.Errorf("tls.letsencrypt.email is required when tls.provider is \"letsencrypt\"")
			}
			if len(c.TLS.LetsEncrypt.Domains) == 0 {
				return fmt.Errorf("tls.letsencrypt.domains is required when tls.provider is \"letsencrypt\"")
			}
		default:
			return fmt.Errorf("tls.provider must be \"file\" or \"letsencrypt\", got %q", c.TLS.Provider)
		}
	}
	return nil
}

// LoadConfigFromFile loads configuration from a TOML file and trims whitespace from all string fields
// This function is lenient with:
//   - Duplicate keys: logs warning and uses first occurrence
//   - Unknown keys: logs warning and ignores them
//
// All other syntax errors will cause the server to fail with helpful error messages
func LoadConfigFromFile(configPath string, cfg *Config) error {
	// Read the file content first
	content, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	// Try to decode - capture metadata to check for unknown keys
	metadata, err := toml.Decode(string(content), cfg)
	if err != nil {
		// Check if this is a duplicate key error
		if strings.Contains(err.Error(), "has already been defined") {
			errMsg := err.Error()
			log.Printf("WARNING: Configuration file '%s' contains duplicate keys: %s", configPath, errMsg)
			log.Printf("WARNING: Ignoring duplicate entries. Only the first occurrence of each key will be used.")
			log.Printf("WARNING: Please fix your configuration file to remove duplicates.")

			// Parse again with a lenient approach by removing duplicate keys
			cleanedContent, parseErr := removeDuplicateKeysFromTOML(string(content))
			if parseErr != nil {
				return enhanceConfigError(err)
			}

			// Try decoding the cleaned content
			metadata, err = toml.Decode(cleanedContent, cfg)
			if err != nil {
				return enhanceConfigError(err)
			}
		} else {
			// For other errors, provide enhanced error messages
			return enhanceConfigError(err)
		}
	}

	// Warn about unknown keys (might be typos or deprecated settings)
	if len(metadata.Undecoded()) > 0 {
		log.Printf("WARNING: Configuration file '%s' contains unknown keys that will be ignored:", configPath)
		for _, key := range metadata.Undecoded() {
			log.Printf("WARNING:   - %s", key)
		}
		log.Printf("WARNING: These keys may be typos or deprecated settings. Please review your configuration.")
	}

	// Trim whitespace from all string fields in the configuration
	trimStringFields(reflect.ValueOf(cfg).Elem())
	return nil
}

// removeDuplicateKeysFromTOML removes duplicate keys from TOML content
// This is a simple implementation that keeps the first occurrence of each key
// Supports nested tables ([table.subtable]) and array tables ([[array.table]])
// Note: Array tables reset key tracking per instance since each [[table]] is a new array element
func removeDuplicateKeysFromTOML(content string) (string, error) {
	lines := strings.Split(content, "\n")
	seenKeys := make(map[string]int) // Maps key path to line number
	var result []string
	var currentSection string
	var lastArrayTable string

	for lineNum, line := range lines {
		trimmed := strings.TrimSpace(line)

		// Skip empty lines and comments
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			result = append(result, line)
			continue
		}

		// Track section changes - handle both regular tables and array tables
		if strings.HasPrefix(trimmed, "[[") && strings.HasSuffix(trimmed, "]]") {
			// Array table: [[table.name]]
			currentSection = strings.TrimSpace(trimmed[2 : len(trimmed)-2])

			// Each [[table]] is a new array element, so same keys are expected
			if currentSection == lastArrayTable {
				for k := range seenKeys {
					if strings.HasPrefix(k, currentSection+".") {
						delete(seenKeys, k)
					}
				}
			}
			lastArrayTable = currentSection

			result = append(result, line)
			continue
		} else if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			// Regular table: [table.name]
			currentSection = strings.TrimSpace(trimmed[1 : len(trimmed)-1])
			lastArrayTable = "" // Not an array table
			result = append(result, line)
			continue
		}

		// Check if this is a key = value line
		if strings.Contains(trimmed, "=") {
			parts := strings.SplitN(trimmed, "=", 2)
			if len(parts) == 2 {
				key := strings.TrimSpace(parts[0])
				// Build full key path: section.key
				var fullKey string
				if currentSection != "" {
					fullKey = currentSection + "." + key
				} else {
					fullKey = key
				}

				// Check if we've seen this key before
				if prevLine, exists := seenKeys[fullKey]; exists {
					// Duplicate found - comment it out
					log.Printf("WARNING: Duplicate key '%s' found at line %d (first occurrence at line %d). Ignoring duplicate.",
						fullKey, lineNum+1, prevLine+1)
					result = append(result, "# DUPLICATE IGNORED: "+line)
					continue
				}

				// Remember this key
				seenKeys[fullKey] = lineNum
			}
		}

		result = append(result, line)
	}

	return strings.Join(result, "\n"), nil
}

// enhanceConfigError provides more helpful error messages for common TOML parsing issues
func enhanceConfigError(err error) error {
	errMsg := err.Error()

	// Check for duplicate key errors
	if strings.Contains(errMsg, "has already been defined") {
		return fmt.Errorf("%w\n\nHINT: You have a duplicate configuration key in your TOML file.\n"+
			"Please check your configuration file and remove or comment out the duplicate entry.\n"+
			"Common causes:\n"+
			"  - Same key appears twice in the same section\n"+
			"  - Copy-paste errors when editing the configuration\n"+
			"  - Uncommenting a setting that already exists elsewhere", err)
	}

	// Check for common boolean typos
	if strings.Contains(errMsg, "expected value but found \"f\"") ||
		strings.Contains(errMsg, "expected value but found \"t\"") {
		return fmt.Errorf("%w\n\nHINT: Invalid boolean value in your TOML configuration file\n"+
			"Common mistakes:\n"+
			"  - Using 'f' instead of 'false'\n"+
			"  - Using 't' instead of 'true'\n"+
			"  - Using 'yes'/'no' instead of 'true'/'false'\n"+
			"  - Using '1'/'0' instead of 'true'/'false'\n\n"+
			"In TOML, boolean values must be exactly 'true' or 'false' (lowercase, unquoted)", err)
	}

	// Check for invalid TOML syntax
	if strings.Contains(errMsg, "expected") || strings.Contains(errMsg, "invalid") {
		return fmt.Errorf("%w\n\nHINT: There is a syntax error in your TOML configuration file.\n"+
			"Please check:\n"+
			"  - All strings are properly quoted\n"+
			"  - All brackets and braces are balanced\n"+
			"  - No special characters are unescaped\n"+
			"  - Section headers use [section] format\n"+
			"  - Boolean values are 'true' or 'false' (not 'yes'/'no', '1'/'0', 'f'/'t')", err)
	}

	// Return original error if we don't have specific guidance
	return err
}

// trimStringFields recursively trims whitespace from all string fields in a struct
func trimStringFields(v reflect.Value) {
	if !v.IsValid() || !v.CanSet() {
		return
	}

	switch v.Kind() {
	case reflect.String:
		// Trim whitespace from string fields
		v.SetString(strings.TrimSpace(v.String()))

	case reflect.Slice:
		// Handle slices of strings and slices of structs
		for i := 0; i < v.Len(); i++ {
			elem := v.Index(i)
			if elem.Kind() == reflect.String {
				elem.SetString(strings.TrimSpace(elem.String()))
			} else {
				trimStringFields(elem)
			}
		}

	case reflect.Struct:
		// Recursively process struct fields
		for i := 0; i < v.NumField(); i++ {
			field := v.Field(i)
			if field.CanSet() {
				trimStringFields(field)
			}
		}

	case reflect.Ptr:
		// Handle pointers to structs
		if !v.IsNil() {
			trimStringFields(v.Elem())
		}

	case reflect.Interface:
		if !v.IsNil() {
			elem := v.Elem()
			if elem.Kind() == reflect.String {
				v.Set(reflect.ValueOf(strings.TrimSpace(elem.String())))
			}
		}
	}
}
