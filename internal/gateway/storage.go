package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-reel-backend/internal/retry"
)

// ErrUnsupportedMedia is returned for uploads that are not image, video, or audio.
var ErrUnsupportedMedia = errors.New("unsupported media type")

// ErrEmptyUpload is returned for zero-byte uploads.
var ErrEmptyUpload = errors.New("empty upload")

// ObjectStore stores blobs under a key and returns their public URL.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	Remove(ctx context.Context, key string) error
}

// -----------------------------------------------------------------------------
// MinIO / S3

// MinioOptions configures MinioStore.
type MinioOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	PublicURL string // optional; defaults to scheme://endpoint/bucket
}

// MinioStore is the durable ObjectStore.
type MinioStore struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

// NewMinioStore connects and makes sure the bucket exists.
func NewMinioStore(ctx context.Context, o MinioOptions) (*MinioStore, error) {
	client, err := minio.New(o.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(o.AccessKey, o.SecretKey, ""),
		Secure: o.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, o.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, o.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	public := strings.TrimRight(o.PublicURL, "/")
	if public == "" {
		scheme := "http"
		if o.UseSSL {
			scheme = "https"
		}
		public = fmt.Sprintf("%s://%s/%s", scheme, o.Endpoint, o.Bucket)
	}
	return &MinioStore{client: client, bucket: o.Bucket, publicURL: public}, nil
}

// Put implements ObjectStore.
func (s *MinioStore) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
		UserMetadata: map[string]string{
			"uploaded-at": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return s.publicURL + "/" + key, nil
}

// Remove implements ObjectStore.
func (s *MinioStore) Remove(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Local filesystem

// FileStore keeps blobs on the local disk. Objects are reachable at
// publicBase + "/" + key when publicBase is set; they live only as long as
// this instance's disk does.
type FileStore struct {
	basePath   string
	publicBase string
}

// NewFileStore initializes a FileStore rooted at basePath.
func NewFileStore(basePath, publicBase string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &FileStore{basePath: basePath, publicBase: strings.TrimRight(publicBase, "/")}, nil
}

// BasePath returns the configured root directory.
func (s *FileStore) BasePath() string { return s.basePath }

// Write persists data at key and returns the cleaned key.
func (s *FileStore) Write(ctx context.Context, key string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	full := filepath.Join(s.basePath, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("storage: write file: %w", err)
	}
	return clean, nil
}

// Read returns the bytes stored at key.
func (s *FileStore) Read(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clean, err := sanitizeKey(key)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(filepath.Join(s.basePath, filepath.FromSlash(clean)))
}

// Put implements ObjectStore.
func (s *FileStore) Put(ctx context.Context, key, _ string, data []byte) (string, error) {
	if s.publicBase == "" {
		return "", errors.New("storage: no public base url configured")
	}
	clean, err := s.Write(ctx, key, data)
	if err != nil {
		return "", err
	}
	return s.publicBase + "/" + clean, nil
}

// Remove implements ObjectStore. Missing files are not an error.
func (s *FileStore) Remove(_ context.Context, key string) error {
	clean, err := sanitizeKey(key)
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(s.basePath, filepath.FromSlash(clean)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: remove file: %w", err)
	}
	return nil
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimLeft(strings.TrimPrefix(key, "./"), "/")
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}

// -----------------------------------------------------------------------------
// Uploader

const (
	keyDurable = "s3:"
	keyLocal   = "local:"
)

// Uploader stores uploads durably, falling back to the local FileStore when
// durable storage is missing or failing.
type Uploader struct {
	durable ObjectStore // may be nil
	local   *FileStore
	log     zerolog.Logger
	now     func() time.Time
}

// NewUploader wires an Uploader. durable may be nil.
func NewUploader(durable ObjectStore, local *FileStore, log zerolog.Logger) *Uploader {
	return &Uploader{
		durable: durable,
		local:   local,
		log:     log.With().Str("component", "uploader").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Upload sniffs the content type, writes the object, and returns its URL.
// Upload.Key is opaque and only meaningful to Delete.
func (u *Uploader) Upload(ctx context.Context, name string, data []byte) (Upload, error) {
	if len(data) == 0 {
		return Upload{}, retry.Permanent(ErrEmptyUpload)
	}
	mt := mimetype.Detect(data)
	ct := mt.String()
	if !isMedia(ct) {
		return Upload{}, retry.Permanent(fmt.Errorf("%w: %s", ErrUnsupportedMedia, ct))
	}
	ext := mt.Extension()
	if ext == "" {
		ext = strings.ToLower(filepath.Ext(name))
	}
	key := fmt.Sprintf("uploads/%s/%s%s", u.now().Format("2006/01/02"), uuid.NewString(), ext)

	if u.durable != nil {
		url, err := u.durable.Put(ctx, key, ct, data)
		if err == nil {
			return Upload{URL: url, Key: keyDurable + key, ContentType: ct, Durable: true}, nil
		}
		u.log.Warn().Err(err).Str("key", key).Msg("durable upload failed; using local storage")
	}
	if u.local == nil {
		return Upload{}, errors.New("no storage available")
	}
	url, err := u.local.Put(ctx, key, ct, data)
	if err != nil {
		return Upload{}, err
	}
	return Upload{URL: url, Key: keyLocal + key, ContentType: ct, Durable: false}, nil
}

// Delete removes an object previously returned by Upload.
func (u *Uploader) Delete(ctx context.Context, key string) error {
	switch {
	case strings.HasPrefix(key, keyDurable):
		if u.durable == nil {
			return errors.New("durable storage not configured")
		}
		return u.durable.Remove(ctx, strings.TrimPrefix(key, keyDurable))
	case strings.HasPrefix(key, keyLocal):
		if u.local == nil {
			return errors.New("local storage not configured")
		}
		return u.local.Remove(ctx, strings.TrimPrefix(key, keyLocal))
	default:
		return fmt.Errorf("unknown upload key %q", key)
	}
}

func isMedia(ct string) bool {
	return strings.HasPrefix(ct, "image/") || strings.HasPrefix(ct, "video/") || strings.HasPrefix(ct, "audio/")
}
