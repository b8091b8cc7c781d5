package main

// trash.go - Command handlers for trash maintenance

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/migadu/hako/consts"
	"github.com/migadu/hako/helpers"
	"github.com/migadu/hako/server/cleaner"
)

func handleTrashList() {
	fs := flag.NewFlagSet("trash-list", flag.ExitOnError)

	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	s3 := registerS3Flags(fs)

	fs.Usage = func() {
		fmt.Printf(`List trash entries

Shows each soft-deleted object with its original key, size and deletion time.

Usage:
  hako-admin trash-list [options]

Options:
  --config string      Path to TOML configuration file (default: config.toml)
%s
Examples:
  hako-admin trash-list
`, s3FlagsHelp)
	}

	if err := fs.Parse(os.Args[2:]); err != nil {
		log.Fatalf("Error parsing flags: %v", err)
	}

	cfg := loadAdminConfig(fs, *configPath)
	s3.apply(fs, &cfg)

	if err := listTrash(cfg); err != nil {
		log.Fatalf("Failed to list trash: %v", err)
	}
}

func listTrash(cfg AdminConfig) error {
	ctx := context.Background()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	objects, err := store.List(ctx, consts.TrashPrefix, true)
	if err != nil {
		return err
	}

	count := 0
	var total int64
	for _, obj := range objects {
		orig, ok := helpers.OriginalKey(obj.Key)
		if !ok {
			continue
		}
		// The trash copy's modification time is the deletion time.
		fmt.Printf("%10s  %s  %s\n", humanSize(obj.Size), obj.ModifiedAt.Format("2006-01-02 15:04:05"), orig)
		count++
		total += obj.Size
	}

	fmt.Printf("\nTotal trash entries: %d (%s)\n", count, humanSize(total))
	return nil
}

func handleTrashPurge() {
	fs := flag.NewFlagSet("trash-purge", flag.ExitOnError)

	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	olderThan := fs.String("older-than", "", "Purge entries deleted at least this long ago, e.g. 7d or 36h (default: configured trash retention)")
	all := fs.Bool("all", false, "Purge every trash entry regardless of age")
	s3 := registerS3Flags(fs)

	fs.Usage = func() {
		fmt.Printf(`Permanently remove trash entries past retention

This is the same pass the background cleanup worker runs, executed once.
Purged entries cannot be restored.

Usage:
  hako-admin trash-purge [options]

Options:
  --older-than string  Purge entries deleted at least this long ago, e.g. 7d or 36h
                       (default: configured trash retention)
  --all                Purge every trash entry regardless of age
  --config string      Path to TOML configuration file (default: config.toml)
%s
Examples:
  hako-admin trash-purge
  hako-admin trash-purge --older-than 7d
  hako-admin trash-purge --all
`, s3FlagsHelp)
	}

	if err := fs.Parse(os.Args[2:]); err != nil {
		log.Fatalf("Error parsing flags: %v", err)
	}

	cfg := loadAdminConfig(fs, *configPath)
	s3.apply(fs, &cfg)

	var retention time.Duration
	switch {
	case *all:
		retention = 0
	case *olderThan != "":
		var err error
		retention, err = helpers.ParseDuration(*olderThan)
		if err != nil {
			log.Fatalf("Invalid --older-than value %q: %v", *olderThan, err)
		}
	default:
		var err error
		retention, err = cfg.Cleanup.GetTrashRetention()
		if err != nil {
			log.Fatalf("Invalid cleanup.trash_retention in configuration: %v", err)
		}
	}

	if err := purgeTrash(cfg, retention, *all); err != nil {
		log.Fatalf("Failed to purge trash: %v", err)
	}
}

func purgeTrash(cfg AdminConfig, retention time.Duration, all bool) error {
	ctx := context.Background()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	// Run the cleanup worker's purge pass once; the interval is irrelevant
	// here.
	worker := cleaner.New(store, time.Hour, retention)
	purged, err := worker.RunOnce(ctx)
	if err != nil {
		return err
	}

	if all {
		fmt.Printf("Purged %d trash entries\n", purged)
	} else {
		fmt.Printf("Purged %d trash entries older than %v\n", purged, retention)
	}
	return nil
}
