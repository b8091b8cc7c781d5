// Package storage provides the S3-compatible object store behind the hako
// file-box service.
//
// All file content lives in a single bucket. Keys are plain object keys with
// "/" as a path convention only; folder structure is emulated above this
// package. Features:
//   - Optional client-side AES-256-GCM encryption at rest
//   - BLAKE3 content checksums computed while uploading
//   - Operation metrics for every bucket round-trip
//
// # Encryption
//
// When encryption is enabled, objects are encrypted client-side using
// AES-256-GCM before upload. The encryption key is configured in config.toml
// and must be a 32-byte hex-encoded string.
//
// # Usage Example
//
//	store, err := storage.New(
//		"s3.amazonaws.com",
//		"access-key",
//		"secret-key",
//		"my-bucket",
//		true,  // use TLS
//		false, // debug mode
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	res, err := store.Put(ctx, "docs/report.pdf", body, size, "application/pdf")
//	rc, meta, err := store.Get(ctx, "docs/report.pdf")
package storage

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/migadu/hako/consts"
	"github.com/migadu/hako/logger"
	"github.com/migadu/hako/pkg/metrics"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"lukechampine.com/blake3"
)

// BucketStore wraps a minio client bound to a single bucket.
type BucketStore struct {
	Client        *minio.Client
	BucketName    string
	Encrypt       bool
	EncryptionKey []byte
}

// ObjectInfo describes one object in a listing.
type ObjectInfo struct {
	Key        string
	Size       int64
	ModifiedAt time.Time
	ETag       string
}

// ObjectMeta carries the metadata returned alongside a download stream.
type ObjectMeta struct {
	Size        int64
	ContentType string
	ModifiedAt  time.Time
}

// PutResult describes a completed upload.
type PutResult struct {
	Key    string
	Size   int64
	ETag   string
	BLAKE3 string
}

func New(endpoint, accessKeyID, secretAccessKey, bucketName string, useTLS bool, debug bool) (*BucketStore, error) {
	// Initialize the MinIO client
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKeyID, secretAccessKey, ""),
		Secure: useTLS,
	})
	if err != nil {
		logger.Error("STORAGE: Failed to initialize MinIO client", "error", err)
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}

	// Enable detailed tracing of requests and responses for debugging
	if debug {
		client.TraceOn(os.Stdout)
	}

	return &BucketStore{
		Client:     client,
		BucketName: bucketName,
		Encrypt:    false,
	}, nil
}

// EnableEncryption enables client-side encryption for stored objects
func (s *BucketStore) EnableEncryption(encryptionKey string) error {
	if encryptionKey == "" {
		return fmt.Errorf("encryption key is required when encryption is enabled")
	}

	// Decode the hex-encoded encryption key
	masterKey, err := hex.DecodeString(encryptionKey)
	if err != nil {
		return fmt.Errorf("failed to decode encryption key: %w", err)
	}

	// Check if the key is 32 bytes (256 bits)
	if len(masterKey) != 32 {
		return fmt.Errorf("encryption key must be 32 bytes (64 hex characters)")
	}

	s.Encrypt = true
	s.EncryptionKey = masterKey
	logger.Info("STORAGE: Client-side encryption enabled")

	return nil
}

// Ping verifies the bucket is reachable and exists.
func (s *BucketStore) Ping(ctx context.Context) error {
	exists, err := s.Client.BucketExists(ctx, s.BucketName)
	if err != nil {
		return fmt.Errorf("failed to reach bucket %s: %w", s.BucketName, err)
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", s.BucketName)
	}
	return nil
}

// Put uploads an object, hashing the content with BLAKE3 on the way through.
// With encryption enabled the body is buffered and sealed first, so the
// stored size is the sealed length while the checksum covers the plaintext.
func (s *BucketStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (PutResult, error) {
	start := time.Now()

	opts := minio.PutObjectOptions{
		ContentType:    contentType,
		SendContentMd5: true,
	}

	// If encryption is enabled, encrypt the data before uploading
	if s.Encrypt {
		data, err := io.ReadAll(body)
		if err != nil {
			metrics.S3OperationErrors.WithLabelValues("PUT", "read_error").Inc()
			return PutResult{}, fmt.Errorf("failed to read data for encryption: %w", err)
		}

		sum := blake3.Sum256(data)

		encryptedData, err := s.encryptData(data)
		if err != nil {
			metrics.S3OperationErrors.WithLabelValues("PUT", "encryption_error").Inc()
			return PutResult{}, fmt.Errorf("failed to encrypt data: %w", err)
		}

		info, err := s.Client.PutObject(
			ctx,
			s.BucketName,
			key,
			bytes.NewReader(encryptedData),
			int64(len(encryptedData)),
			opts,
		)
		if err != nil {
			metrics.S3OperationErrors.WithLabelValues("PUT", classifyS3Error(err)).Inc()
			metrics.S3OperationsTotal.WithLabelValues("PUT", "error").Inc()
			metrics.S3OperationDuration.WithLabelValues("PUT").Observe(time.Since(start).Seconds())
			return PutResult{}, err
		}
		metrics.S3OperationsTotal.WithLabelValues("PUT", "success").Inc()
		metrics.S3OperationDuration.WithLabelValues("PUT").Observe(time.Since(start).Seconds())
		return PutResult{
			Key:    key,
			Size:   info.Size,
			ETag:   info.ETag,
			BLAKE3: hex.EncodeToString(sum[:]),
		}, nil
	}

	// No encryption, stream through the hasher while uploading
	hasher := blake3.New(32, nil)
	info, err := s.Client.PutObject(
		ctx,
		s.BucketName,
		key,
		io.TeeReader(body, hasher),
		size,
		opts,
	)
	if err != nil {
		metrics.S3OperationErrors.WithLabelValues("PUT", classifyS3Error(err)).Inc()
		metrics.S3OperationsTotal.WithLabelValues("PUT", "error").Inc()
		metrics.S3OperationDuration.WithLabelValues("PUT").Observe(time.Since(start).Seconds())
		return PutResult{}, err
	}
	metrics.S3OperationsTotal.WithLabelValues("PUT", "success").Inc()
	metrics.S3OperationDuration.WithLabelValues("PUT").Observe(time.Since(start).Seconds())
	return PutResult{
		Key:    key,
		Size:   info.Size,
		ETag:   info.ETag,
		BLAKE3: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Get downloads an object together with its metadata. A missing object
// returns consts.ErrObjectNotFound.
func (s *BucketStore) Get(ctx context.Context, key string) (io.ReadCloser, ObjectMeta, error) {
	start := time.Now()

	stat, err := s.Client.StatObject(ctx, s.BucketName, key, minio.StatObjectOptions{})
	if err != nil {
		metrics.S3OperationsTotal.WithLabelValues("GET", "error").Inc()
		metrics.S3OperationDuration.WithLabelValues("GET").Observe(time.Since(start).Seconds())
		if isNotFound(err) {
			return nil, ObjectMeta{}, consts.ErrObjectNotFound
		}
		return nil, ObjectMeta{}, fmt.Errorf("failed to stat object %s: %w", key, err)
	}

	meta := ObjectMeta{
		Size:        stat.Size,
		ContentType: stat.ContentType,
		ModifiedAt:  stat.LastModified,
	}

	object, err := s.Client.GetObject(ctx, s.BucketName, key, minio.GetObjectOptions{})
	if err != nil {
		metrics.S3OperationsTotal.WithLabelValues("GET", "error").Inc()
		metrics.S3OperationDuration.WithLabelValues("GET").Observe(time.Since(start).Seconds())
		return nil, ObjectMeta{}, err
	}

	// If encryption is enabled, decrypt the data after downloading
	if s.Encrypt {
		encryptedData, err := io.ReadAll(object)
		if err != nil {
			metrics.S3OperationsTotal.WithLabelValues("GET", "error").Inc()
			metrics.S3OperationDuration.WithLabelValues("GET").Observe(time.Since(start).Seconds())
			return nil, ObjectMeta{}, fmt.Errorf("failed to read encrypted data: %w", err)
		}

		// Close the original reader since we've read all the data
		if err := object.Close(); err != nil {
			logger.Warn("STORAGE: Failed to close S3 object", "error", err)
		}

		decryptedData, err := s.decryptData(encryptedData)
		if err != nil {
			metrics.S3OperationsTotal.WithLabelValues("GET", "error").Inc()
			metrics.S3OperationDuration.WithLabelValues("GET").Observe(time.Since(start).Seconds())
			return nil, ObjectMeta{}, fmt.Errorf("failed to decrypt data: %w", err)
		}

		meta.Size = int64(len(decryptedData))
		metrics.S3OperationsTotal.WithLabelValues("GET", "success").Inc()
		metrics.S3OperationDuration.WithLabelValues("GET").Observe(time.Since(start).Seconds())
		return io.NopCloser(bytes.NewReader(decryptedData)), meta, nil
	}

	metrics.S3OperationsTotal.WithLabelValues("GET", "success").Inc()
	metrics.S3OperationDuration.WithLabelValues("GET").Observe(time.Since(start).Seconds())
	return object, meta, nil
}

// Exists checks if an object with the given key exists in the bucket.
func (s *BucketStore) Exists(ctx context.Context, key string) (bool, error) {
	start := time.Now()

	_, err := s.Client.StatObject(ctx, s.BucketName, key, minio.StatObjectOptions{})
	metrics.S3OperationDuration.WithLabelValues("STAT").Observe(time.Since(start).Seconds())
	if err == nil {
		metrics.S3OperationsTotal.WithLabelValues("STAT", "success").Inc()
		return true, nil
	}
	if isNotFound(err) {
		metrics.S3OperationsTotal.WithLabelValues("STAT", "success").Inc()
		return false, nil
	}

	metrics.S3OperationsTotal.WithLabelValues("STAT", "error").Inc()
	metrics.S3OperationErrors.WithLabelValues("STAT", classifyS3Error(err)).Inc()
	return false, fmt.Errorf("failed to stat object %s: %w", key, err)
}

// Delete removes an object. Deleting a missing object is a success, which
// makes the operation idempotent.
func (s *BucketStore) Delete(ctx context.Context, key string) error {
	start := time.Now()

	stat, err := s.Client.StatObject(ctx, s.BucketName, key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			// Object does not exist, consider it successfully "deleted"
			logger.Debug("STORAGE: Object does not exist - skipping deletion", "key", key)
			metrics.S3OperationsTotal.WithLabelValues("DELETE", "skipped").Inc()
			metrics.S3OperationDuration.WithLabelValues("DELETE").Observe(time.Since(start).Seconds())
			return nil
		}
		logger.Error("STORAGE: Error checking existence of object", "key", key, "error", err)
		metrics.S3OperationsTotal.WithLabelValues("DELETE", "error").Inc()
		metrics.S3OperationDuration.WithLabelValues("DELETE").Observe(time.Since(start).Seconds())
		return fmt.Errorf("failed to stat object %s: %w", key, err)
	}

	err = s.Client.RemoveObject(ctx, s.BucketName, key, minio.RemoveObjectOptions{VersionID: stat.VersionID})
	if err != nil {
		metrics.S3OperationErrors.WithLabelValues("DELETE", classifyS3Error(err)).Inc()
		metrics.S3OperationsTotal.WithLabelValues("DELETE", "error").Inc()
	} else {
		metrics.S3OperationsTotal.WithLabelValues("DELETE", "success").Inc()
	}
	metrics.S3OperationDuration.WithLabelValues("DELETE").Observe(time.Since(start).Seconds())
	return err
}

// Copy duplicates an object server-side. A missing source returns
// consts.ErrObjectNotFound.
func (s *BucketStore) Copy(ctx context.Context, sourceKey, destKey string) error {
	start := time.Now()

	// With encryption the sealed bytes are keyed per object nonce, so a
	// server-side copy would duplicate the nonce. Round-trip through
	// Get/Put instead.
	if s.Encrypt {
		sourceObj, meta, err := s.Get(ctx, sourceKey)
		if err != nil {
			return fmt.Errorf("failed to get source object for copy: %w", err)
		}
		defer sourceObj.Close()

		data, err := io.ReadAll(sourceObj)
		if err != nil {
			return fmt.Errorf("failed to read source object data: %w", err)
		}

		if _, err := s.Put(ctx, destKey, bytes.NewReader(data), int64(len(data)), meta.ContentType); err != nil {
			return fmt.Errorf("failed to put data to destination: %w", err)
		}

		return nil
	}

	src := minio.CopySrcOptions{
		Bucket: s.BucketName,
		Object: sourceKey,
	}
	dst := minio.CopyDestOptions{
		Bucket: s.BucketName,
		Object: destKey,
	}

	_, err := s.Client.CopyObject(ctx, dst, src)
	if err != nil {
		metrics.S3OperationErrors.WithLabelValues("COPY", classifyS3Error(err)).Inc()
		metrics.S3OperationsTotal.WithLabelValues("COPY", "error").Inc()
		metrics.S3OperationDuration.WithLabelValues("COPY").Observe(time.Since(start).Seconds())
		if isNotFound(err) {
			return consts.ErrObjectNotFound
		}
		return fmt.Errorf("failed to copy object from %s to %s: %w", sourceKey, destKey, err)
	}
	metrics.S3OperationsTotal.WithLabelValues("COPY", "success").Inc()
	metrics.S3OperationDuration.WithLabelValues("COPY").Observe(time.Since(start).Seconds())
	return nil
}

// List collects all objects under the given prefix. With recursive false the
// listing stops at the first delimiter, mirroring a single directory level.
func (s *BucketStore) List(ctx context.Context, prefix string, recursive bool) ([]ObjectInfo, error) {
	start := time.Now()

	opts := minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: recursive,
	}

	var objects []ObjectInfo
	for object := range s.Client.ListObjects(ctx, s.BucketName, opts) {
		if object.Err != nil {
			metrics.S3OperationErrors.WithLabelValues("LIST", classifyS3Error(object.Err)).Inc()
			metrics.S3OperationsTotal.WithLabelValues("LIST", "error").Inc()
			metrics.S3OperationDuration.WithLabelValues("LIST").Observe(time.Since(start).Seconds())
			return nil, fmt.Errorf("failed to list objects with prefix %q: %w", prefix, object.Err)
		}

		objects = append(objects, ObjectInfo{
			Key:        object.Key,
			Size:       object.Size,
			ModifiedAt: object.LastModified,
			ETag:       object.ETag,
		})
	}

	metrics.S3OperationsTotal.WithLabelValues("LIST", "success").Inc()
	metrics.S3OperationDuration.WithLabelValues("LIST").Observe(time.Since(start).Seconds())
	return objects, nil
}

// Stats walks the whole bucket and aggregates object counts and sizes,
// split into live objects and trashed ones.
func (s *BucketStore) Stats(ctx context.Context) (metrics.BucketStats, error) {
	objects, err := s.List(ctx, "", true)
	if err != nil {
		return metrics.BucketStats{}, err
	}

	var stats metrics.BucketStats
	for _, obj := range objects {
		if strings.HasPrefix(obj.Key, consts.TrashPrefix) {
			stats.TrashedCount++
			stats.TrashedBytes += obj.Size
			continue
		}
		stats.Objects++
		stats.SizeBytes += obj.Size
	}
	return stats, nil
}

// encryptData encrypts data using AES-256-GCM
func (s *BucketStore) encryptData(plaintext []byte) ([]byte, error) {
	// Create a new AES cipher block using the key
	block, err := aes.NewCipher(s.EncryptionKey)
	if err != nil {
		return nil, err
	}

	// Create a new GCM cipher mode
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	// Create a random nonce
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	// Encrypt the data
	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)
	return ciphertext, nil
}

// decryptData decrypts data using AES-256-GCM
func (s *BucketStore) decryptData(ciphertext []byte) ([]byte, error) {
	// Create a new AES cipher block using the key
	block, err := aes.NewCipher(s.EncryptionKey)
	if err != nil {
		return nil, err
	}

	// Create a new GCM cipher mode
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	// Extract the nonce from the ciphertext
	if len(ciphertext) < gcm.NonceSize() {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]

	// Decrypt the data
	return gcm.Open(nil, nonce, ciphertext, nil)
}

// isNotFound reports whether err is the backend's 404 response.
func isNotFound(err error) bool {
	var minioErr minio.ErrorResponse
	if errors.As(err, &minioErr) {
		return minioErr.StatusCode == 404
	}
	return false
}

// classifyS3Error classifies S3 errors for metrics tracking
func classifyS3Error(err error) string {
	if err == nil {
		return "none"
	}

	errStr := err.Error()
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case strings.Contains(errStr, "AccessDenied") || strings.Contains(errStr, "Forbidden"):
		return "access_denied"
	case strings.Contains(errStr, "NoSuchKey") || strings.Contains(errStr, "NotFound"):
		return "not_found"
	case strings.Contains(errStr, "SlowDown") || strings.Contains(errStr, "RequestLimitExceeded"):
		return "throttled"
	case strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no such host"):
		return "network_error"
	default:
		return "unknown"
	}
}
