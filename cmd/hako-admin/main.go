package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/migadu/hako/config"
	"github.com/migadu/hako/storage"
)

// Version information, injected at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// AdminConfig holds the minimal configuration needed for admin operations.
// It decodes from the same TOML file the server reads; sections the tool does
// not use are ignored.
type AdminConfig struct {
	S3      config.S3Config      `toml:"s3"`
	Server  config.ServerConfig  `toml:"server"`
	Share   config.ShareConfig   `toml:"share"`
	Cleanup config.CleanupConfig `toml:"cleanup"`
}

func newDefaultAdminConfig() AdminConfig {
	return AdminConfig{
		S3: config.S3Config{
			Endpoint: "localhost:9000",
			Bucket:   "hako",
		},
		Server: config.ServerConfig{
			PublicBaseURL: "http://localhost:8080",
		},
		Share: config.ShareConfig{
			DefaultTTL: "12h",
		},
		Cleanup: config.CleanupConfig{
			WakeInterval:   "1h",
			TrashRetention: "30d",
		},
	}
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "list":
		handleList()
	case "upload":
		handleUpload()
	case "download":
		handleDownload()
	case "delete":
		handleDelete()
	case "restore":
		handleRestore()
	case "trash-list":
		handleTrashList()
	case "trash-purge":
		handleTrashPurge()
	case "share":
		handleShare()
	case "version", "--version", "-v":
		fmt.Printf("hako-admin version %s (commit: %s, built at: %s)\n", version, commit, date)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`HAKO Admin Tool

Usage:
  hako-admin <command> [options]

Commands:
  list         List files and folders in the bucket
  upload       Upload a local file to the bucket
  download     Download an object to a local file
  delete       Move an object to the trash
  restore      Restore an object from the trash
  trash-list   List trash entries
  trash-purge  Permanently remove trash entries past retention
  share        Create a time-limited share link for an object
  version      Show version information
  help         Show this help message

Examples:
  hako-admin list --path docs/
  hako-admin upload --file ./report.pdf --key docs/report.pdf
  hako-admin download --key docs/report.pdf --output ./report.pdf
  hako-admin delete --key docs/report.pdf
  hako-admin restore --key docs/report.pdf
  hako-admin trash-purge --older-than 7d
  hako-admin share --key docs/report.pdf --ttl 48h
  hako-admin list --config /path/to/config.toml

Use 'hako-admin <command> --help' for more information about a command.
`)
}

// s3Flags holds the per-command S3 connection overrides.
type s3Flags struct {
	endpoint  *string
	accessKey *string
	secretKey *string
	bucket    *string
	insecure  *bool
}

func registerS3Flags(fs *flag.FlagSet) *s3Flags {
	return &s3Flags{
		endpoint:  fs.String("endpoint", "", "S3 endpoint (overrides config)"),
		accessKey: fs.String("access-key", "", "S3 access key (overrides config)"),
		secretKey: fs.String("secret-key", "", "S3 secret key (overrides config)"),
		bucket:    fs.String("bucket", "", "S3 bucket (overrides config)"),
		insecure:  fs.Bool("insecure", false, "Disable TLS for the S3 connection (overrides config)"),
	}
}

func (f *s3Flags) apply(fs *flag.FlagSet, cfg *AdminConfig) {
	if isFlagSet(fs, "endpoint") {
		cfg.S3.Endpoint = *f.endpoint
	}
	if isFlagSet(fs, "access-key") {
		cfg.S3.AccessKey = *f.accessKey
	}
	if isFlagSet(fs, "secret-key") {
		cfg.S3.SecretKey = *f.secretKey
	}
	if isFlagSet(fs, "bucket") {
		cfg.S3.Bucket = *f.bucket
	}
	if isFlagSet(fs, "insecure") {
		cfg.S3.DisableTLS = *f.insecure
	}
}

const s3FlagsHelp = `
S3 Options:
  --endpoint string    S3 endpoint (overrides config)
  --access-key string  S3 access key (overrides config)
  --secret-key string  S3 secret key (overrides config)
  --bucket string      S3 bucket (overrides config)
  --insecure           Disable TLS for the S3 connection (overrides config)
`

// loadAdminConfig loads the TOML configuration, tolerating a missing default
// config file but failing hard on an explicitly requested one.
func loadAdminConfig(fs *flag.FlagSet, configPath string) AdminConfig {
	cfg := newDefaultAdminConfig()
	if _, err := toml.DecodeFile(configPath, &cfg); err != nil {
		if os.IsNotExist(err) {
			if isFlagSet(fs, "config") {
				log.Fatalf("ERROR: specified configuration file '%s' not found: %v", configPath, err)
			} else {
				log.Printf("WARNING: default configuration file '%s' not found. Using defaults and command-line flags.", configPath)
			}
		} else {
			log.Fatalf("FATAL: error parsing configuration file '%s': %v", configPath, err)
		}
	}
	return cfg
}

// openStore connects to the bucket described by the configuration.
func openStore(cfg AdminConfig) (*storage.BucketStore, error) {
	store, err := storage.New(cfg.S3.Endpoint, cfg.S3.AccessKey, cfg.S3.SecretKey, cfg.S3.Bucket, !cfg.S3.DisableTLS, cfg.S3.GetDebug())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to S3 endpoint '%s': %w", cfg.S3.Endpoint, err)
	}
	if cfg.S3.Encrypt {
		if err := store.EnableEncryption(cfg.S3.EncryptionKey); err != nil {
			return nil, fmt.Errorf("failed to enable encryption: %w", err)
		}
	}
	return store, nil
}

// Helper function to check if a flag was explicitly set
func isFlagSet(fs *flag.FlagSet, name string) bool {
	isSet := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			isSet = true
		}
	})
	return isSet
}
