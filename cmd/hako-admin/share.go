package main

// share.go - Command handler for share links

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/migadu/hako/helpers"
	"github.com/migadu/hako/sharelink"
)

func handleShare() {
	fs := flag.NewFlagSet("share", flag.ExitOnError)

	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	key := fs.String("key", "", "Object key to share (required)")
	ttl := fs.String("ttl", "", "Link lifetime, e.g. 48h or 7d (default: configured share TTL)")
	baseURL := fs.String("base-url", "", "Base URL for the link (default: configured public base URL)")
	s3 := registerS3Flags(fs)

	fs.Usage = func() {
		fmt.Printf(`Create a time-limited share link for an object

The link works without authentication until it expires. It is sealed with
the configured share secret, so the server verifying it must use the same
secret.

Usage:
  hako-admin share [options]

Options:
  --key string         Object key to share (required)
  --ttl string         Link lifetime, e.g. 48h or 7d (default: configured share TTL)
  --base-url string    Base URL for the link (default: configured public base URL)
  --config string      Path to TOML configuration file (default: config.toml)
%s
Examples:
  hako-admin share --key docs/report.pdf
  hako-admin share --key docs/report.pdf --ttl 7d
  hako-admin share --key docs/report.pdf --base-url https://files.example.com
`, s3FlagsHelp)
	}

	if err := fs.Parse(os.Args[2:]); err != nil {
		log.Fatalf("Error parsing flags: %v", err)
	}

	if *key == "" {
		fmt.Printf("Error: --key is required\n\n")
		fs.Usage()
		os.Exit(1)
	}

	cfg := loadAdminConfig(fs, *configPath)
	s3.apply(fs, &cfg)

	if err := shareFile(cfg, *key, *ttl, *baseURL); err != nil {
		log.Fatalf("Failed to create share link: %v", err)
	}
}

func shareFile(cfg AdminConfig, key, ttlStr, baseURL string) error {
	ctx := context.Background()

	if cfg.Share.Secret == "" {
		return fmt.Errorf("share.secret is not configured (64 hex characters)")
	}

	codec, err := sharelink.New(cfg.Share.Secret)
	if err != nil {
		return err
	}

	cleanKey, err := helpers.CleanObjectKey(key)
	if err != nil {
		return fmt.Errorf("invalid object key %q: %w", key, err)
	}
	if isServiceKey(cleanKey) {
		return fmt.Errorf("object key %q is under a reserved prefix", cleanKey)
	}

	ttl := time.Duration(0)
	if ttlStr != "" {
		ttl, err = helpers.ParseDuration(ttlStr)
		if err != nil {
			return fmt.Errorf("invalid --ttl value %q: %w", ttlStr, err)
		}
	} else if cfg.Share.DefaultTTL != "" {
		ttl, err = cfg.Share.GetDefaultTTL()
		if err != nil {
			return fmt.Errorf("invalid share.default_ttl in configuration: %w", err)
		}
	}
	if ttl <= 0 {
		ttl = sharelink.DefaultTTL
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	exists, err := store.Exists(ctx, cleanKey)
	if err != nil {
		return fmt.Errorf("failed to check %q: %w", cleanKey, err)
	}
	if !exists {
		return fmt.Errorf("object %q not found", cleanKey)
	}

	token, err := codec.Encode(cleanKey, ttl)
	if err != nil {
		return err
	}

	if baseURL == "" {
		baseURL = cfg.Server.GetPublicBaseURL()
	}
	baseURL = strings.TrimRight(baseURL, "/")

	expiresAt := time.Now().Add(ttl)
	fmt.Printf("Share URL: %s/d?token=%s\n", baseURL, token)
	fmt.Printf("Expires:   %s (%v from now)\n", expiresAt.Format(time.RFC3339), ttl)
	return nil
}
