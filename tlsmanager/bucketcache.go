// Package tlsmanager provides TLS certificate management for the hako
// service: certificates loaded from files, or issued automatically through
// Let's Encrypt with the storage bucket as the certificate cache.
package tlsmanager

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/migadu/hako/consts"
	"github.com/migadu/hako/logger"
	"github.com/migadu/hako/storage"
	"golang.org/x/crypto/acme/autocert"
)

// CertStore is the subset of bucket operations the certificate cache needs.
// *storage.BucketStore implements it.
type CertStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (storage.PutResult, error)
	Get(ctx context.Context, key string) (io.ReadCloser, storage.ObjectMeta, error)
	Delete(ctx context.Context, key string) error
}

// BucketCache implements autocert.Cache on top of the storage bucket, so
// every instance pointed at the same bucket shares issued certificates and
// ACME challenge tokens. Entries live under the reserved autocert prefix and
// are invisible to the file API.
type BucketCache struct {
	store CertStore
}

// NewBucketCache creates a bucket-backed autocert cache.
func NewBucketCache(store CertStore) (*BucketCache, error) {
	if store == nil {
		return nil, fmt.Errorf("certificate store is required")
	}
	return &BucketCache{store: store}, nil
}

// Get retrieves certificate data from the bucket. A missing entry returns
// autocert.ErrCacheMiss as the autocert contract requires.
func (c *BucketCache) Get(ctx context.Context, key string) ([]byte, error) {
	bucketKey := cacheKey(key)

	reader, _, err := c.store.Get(ctx, bucketKey)
	if err != nil {
		if errors.Is(err, consts.ErrObjectNotFound) {
			logger.Debug("[TLS] certificate not in bucket cache", "key", key)
			return nil, autocert.ErrCacheMiss
		}
		logger.Error("[TLS] bucket cache get failed", "key", key, "error", err)
		return nil, fmt.Errorf("failed to get cached certificate: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		logger.Error("[TLS] bucket cache read failed", "key", key, "error", err)
		return nil, fmt.Errorf("failed to read cached certificate: %w", err)
	}

	logger.Debug("[TLS] certificate retrieved from bucket cache", "key", key, "size", len(data))
	return data, nil
}

// Put stores certificate data in the bucket.
func (c *BucketCache) Put(ctx context.Context, key string, data []byte) error {
	bucketKey := cacheKey(key)

	_, err := c.store.Put(ctx, bucketKey, bytes.NewReader(data), int64(len(data)), "application/octet-stream")
	if err != nil {
		logger.Error("[TLS] bucket cache put failed", "key", key, "error", err)
		return fmt.Errorf("failed to store certificate: %w", err)
	}

	logger.Debug("[TLS] certificate stored in bucket cache", "key", key, "size", len(data))
	return nil
}

// Delete removes certificate data from the bucket. Deleting a missing entry
// is a success; the store's Delete is idempotent.
func (c *BucketCache) Delete(ctx context.Context, key string) error {
	bucketKey := cacheKey(key)

	if err := c.store.Delete(ctx, bucketKey); err != nil {
		logger.Error("[TLS] bucket cache delete failed", "key", key, "error", err)
		return fmt.Errorf("failed to delete cached certificate: %w", err)
	}

	logger.Debug("[TLS] certificate deleted from bucket cache", "key", key)
	return nil
}

// cacheKey maps an autocert cache key (a domain name, account key or token
// name) to its bucket location. Keys are hashed so special characters never
// leak into object keys, with a readable prefix left for debugging.
func cacheKey(key string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(key))))
	return consts.AutocertPrefix + "cert-" + hex.EncodeToString(sum[:])
}
