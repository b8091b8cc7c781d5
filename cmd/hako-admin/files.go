package main

// files.go - Command handlers for file operations

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/migadu/hako/consts"
	"github.com/migadu/hako/folders"
	"github.com/migadu/hako/helpers"
)

func handleList() {
	fs := flag.NewFlagSet("list", flag.ExitOnError)

	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	path := fs.String("path", "", "Folder path to list (default: bucket root)")
	recursive := fs.Bool("recursive", false, "List every object under the path, ignoring folder structure")
	s3 := registerS3Flags(fs)

	fs.Usage = func() {
		fmt.Printf(`List files and folders in the bucket

Usage:
  hako-admin list [options]

Options:
  --path string        Folder path to list (default: bucket root)
  --recursive          List every object under the path, ignoring folder structure
  --config string      Path to TOML configuration file (default: config.toml)
%s
Examples:
  hako-admin list
  hako-admin list --path docs/
  hako-admin list --recursive
`, s3FlagsHelp)
	}

	if err := fs.Parse(os.Args[2:]); err != nil {
		log.Fatalf("Error parsing flags: %v", err)
	}

	cfg := loadAdminConfig(fs, *configPath)
	s3.apply(fs, &cfg)

	if err := listObjects(cfg, *path, *recursive); err != nil {
		log.Fatalf("Failed to list: %v", err)
	}
}

func listObjects(cfg AdminConfig, path string, recursive bool) error {
	ctx := context.Background()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	folderPath, err := helpers.NormalizeFolderPath(path)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	// List the whole bucket and match the path client-side. Folder matching
	// is case-insensitive, which a server-side prefix filter cannot do.
	objects, err := store.List(ctx, "", true)
	if err != nil {
		return err
	}

	if recursive {
		count := 0
		var total int64
		for _, obj := range objects {
			if isServiceKey(obj.Key) {
				continue
			}
			if !underFolder(obj.Key, folderPath) {
				continue
			}
			fmt.Printf("%10s  %s  %s\n", humanSize(obj.Size), obj.ModifiedAt.Format("2006-01-02 15:04:05"), obj.Key)
			count++
			total += obj.Size
		}
		fmt.Printf("\nTotal objects: %d (%s)\n", count, humanSize(total))
		return nil
	}

	// Project the flat listing into one folder level, the way the file API
	// presents it.
	records := make([]folders.Record, 0, len(objects))
	for _, obj := range objects {
		if isServiceKey(obj.Key) {
			continue
		}
		records = append(records, folders.Record{Key: obj.Key, Size: obj.Size, ModifiedAt: obj.ModifiedAt})
	}

	view := folders.Project(records, folderPath)

	for _, folder := range view.Folders {
		fmt.Printf("%10s  %19s  %s\n", "-", "-", folder)
	}
	for _, file := range view.Files {
		fmt.Printf("%10s  %s  %s\n", humanSize(file.Size), file.ModifiedAt.Format("2006-01-02 15:04:05"), file.Key)
	}
	fmt.Printf("\nFolders: %d, Files: %d\n", len(view.Folders), len(view.Files))
	return nil
}

func handleUpload() {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)

	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	file := fs.String("file", "", "Local file to upload (required)")
	key := fs.String("key", "", "Object key to store the file under (default: sanitized file name)")
	contentType := fs.String("content-type", "", "Content type (default: derived from the file extension)")
	s3 := registerS3Flags(fs)

	fs.Usage = func() {
		fmt.Printf(`Upload a local file to the bucket

Usage:
  hako-admin upload [options]

Options:
  --file string          Local file to upload (required)
  --key string           Object key to store the file under (default: sanitized file name)
  --content-type string  Content type (default: derived from the file extension)
  --config string        Path to TOML configuration file (default: config.toml)
%s
Examples:
  hako-admin upload --file ./report.pdf
  hako-admin upload --file ./report.pdf --key docs/report.pdf
`, s3FlagsHelp)
	}

	if err := fs.Parse(os.Args[2:]); err != nil {
		log.Fatalf("Error parsing flags: %v", err)
	}

	if *file == "" {
		fmt.Printf("Error: --file is required\n\n")
		fs.Usage()
		os.Exit(1)
	}

	cfg := loadAdminConfig(fs, *configPath)
	s3.apply(fs, &cfg)

	if err := uploadFile(cfg, *file, *key, *contentType); err != nil {
		log.Fatalf("Failed to upload: %v", err)
	}
}

func uploadFile(cfg AdminConfig, localPath, key, contentType string) error {
	ctx := context.Background()

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", localPath, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", localPath)
	}

	if key == "" {
		key = helpers.SanitizeFileName(filepath.Base(localPath))
	}
	cleanKey, err := helpers.CleanObjectKey(key)
	if err != nil {
		return fmt.Errorf("invalid object key %q: %w", key, err)
	}
	if isServiceKey(cleanKey) {
		return fmt.Errorf("object key %q is under a reserved prefix", cleanKey)
	}

	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(localPath))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	result, err := store.Put(ctx, cleanKey, f, info.Size(), contentType)
	if err != nil {
		return err
	}

	fmt.Printf("Uploaded %s to %s (%s, blake3 %s)\n", localPath, result.Key, humanSize(result.Size), result.BLAKE3)
	return nil
}

func handleDownload() {
	fs := flag.NewFlagSet("download", flag.ExitOnError)

	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	key := fs.String("key", "", "Object key to download (required)")
	output := fs.String("output", "", "Local file to write to; '-' writes to stdout (default: object base name)")
	s3 := registerS3Flags(fs)

	fs.Usage = func() {
		fmt.Printf(`Download an object to a local file

Usage:
  hako-admin download [options]

Options:
  --key string         Object key to download (required)
  --output string      Local file to write to; '-' writes to stdout (default: object base name)
  --config string      Path to TOML configuration file (default: config.toml)
%s
Examples:
  hako-admin download --key docs/report.pdf
  hako-admin download --key docs/report.pdf --output ./report.pdf
  hako-admin download --key notes.txt --output -
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

	if err := downloadFile(cfg, *key, *output); err != nil {
		log.Fatalf("Failed to download: %v", err)
	}
}

func downloadFile(cfg AdminConfig, key, output string) error {
	ctx := context.Background()

	cleanKey, err := helpers.CleanObjectKey(key)
	if err != nil {
		return fmt.Errorf("invalid object key %q: %w", key, err)
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	reader, meta, err := store.Get(ctx, cleanKey)
	if err != nil {
		if errors.Is(err, consts.ErrObjectNotFound) {
			return fmt.Errorf("object %q not found", cleanKey)
		}
		return err
	}
	defer reader.Close()

	if output == "-" {
		if _, err := io.Copy(os.Stdout, reader); err != nil {
			return fmt.Errorf("failed to stream %q: %w", cleanKey, err)
		}
		return nil
	}

	if output == "" {
		output = helpers.BaseName(cleanKey)
	}

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", output, err)
	}
	defer f.Close()

	n, err := io.Copy(f, reader)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", output, err)
	}

	fmt.Printf("Downloaded %s to %s (%s, %s)\n", cleanKey, output, humanSize(n), meta.ContentType)
	return nil
}

func handleDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)

	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	key := fs.String("key", "", "Object key to move to the trash (required)")
	s3 := registerS3Flags(fs)

	fs.Usage = func() {
		fmt.Printf(`Move an object to the trash

The object stays recoverable with 'hako-admin restore' until the retention
window passes or the trash entry is purged.

Usage:
  hako-admin delete [options]

Options:
  --key string         Object key to move to the trash (required)
  --config string      Path to TOML configuration file (default: config.toml)
%s
Examples:
  hako-admin delete --key docs/report.pdf
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

	if err := deleteFile(cfg, *key); err != nil {
		log.Fatalf("Failed to delete: %v", err)
	}
}

func deleteFile(cfg AdminConfig, key string) error {
	ctx := context.Background()

	cleanKey, err := helpers.CleanObjectKey(key)
	if err != nil {
		return fmt.Errorf("invalid object key %q: %w", key, err)
	}
	if isServiceKey(cleanKey) {
		return fmt.Errorf("object key %q is under a reserved prefix", cleanKey)
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	// Soft delete: copy under the trash prefix, then remove the original.
	if err := store.Copy(ctx, cleanKey, helpers.TrashKey(cleanKey)); err != nil {
		if errors.Is(err, consts.ErrObjectNotFound) {
			return fmt.Errorf("object %q not found", cleanKey)
		}
		return fmt.Errorf("failed to move %q to trash: %w", cleanKey, err)
	}
	if err := store.Delete(ctx, cleanKey); err != nil {
		return fmt.Errorf("failed to remove original after trashing %q: %w", cleanKey, err)
	}

	fmt.Printf("Moved %s to trash\n", cleanKey)
	return nil
}

func handleRestore() {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)

	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	key := fs.String("key", "", "Original object key to restore (required)")
	s3 := registerS3Flags(fs)

	fs.Usage = func() {
		fmt.Printf(`Restore an object from the trash

Usage:
  hako-admin restore [options]

Options:
  --key string         Original object key to restore (required)
  --config string      Path to TOML configuration file (default: config.toml)
%s
Examples:
  hako-admin restore --key docs/report.pdf
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

	if err := restoreFile(cfg, *key); err != nil {
		log.Fatalf("Failed to restore: %v", err)
	}
}

func restoreFile(cfg AdminConfig, key string) error {
	ctx := context.Background()

	cleanKey, err := helpers.CleanObjectKey(key)
	if err != nil {
		return fmt.Errorf("invalid object key %q: %w", key, err)
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	// Refuse to clobber a key recreated since the deletion.
	exists, err := store.Exists(ctx, cleanKey)
	if err != nil {
		return fmt.Errorf("failed to check %q before restore: %w", cleanKey, err)
	}
	if exists {
		return fmt.Errorf("an object with key %q already exists; delete or move it first", cleanKey)
	}

	trashKey := helpers.TrashKey(cleanKey)
	if err := store.Copy(ctx, trashKey, cleanKey); err != nil {
		if errors.Is(err, consts.ErrObjectNotFound) {
			return fmt.Errorf("no trash entry for %q", cleanKey)
		}
		return fmt.Errorf("failed to restore %q: %w", cleanKey, err)
	}
	if err := store.Delete(ctx, trashKey); err != nil {
		return fmt.Errorf("restored %q but failed to remove its trash entry: %w", cleanKey, err)
	}

	fmt.Printf("Restored %s from trash\n", cleanKey)
	return nil
}

// isServiceKey reports whether a key belongs to a service-managed prefix that
// file commands must not touch.
func isServiceKey(key string) bool {
	return strings.HasPrefix(key, consts.TrashPrefix) || strings.HasPrefix(key, consts.AutocertPrefix)
}

// underFolder reports whether a key sits at or below the normalized folder
// path, matching the prefix case-insensitively.
func underFolder(key, folderPath string) bool {
	if folderPath == "" {
		return true
	}
	key = strings.ReplaceAll(key, "\\", "/")
	return len(key) > len(folderPath) && strings.EqualFold(key[:len(folderPath)], folderPath)
}

// humanSize renders a byte count the way an operator wants to read it.
func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
