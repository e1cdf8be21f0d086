package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

// PathSeparatorPlaceholder replaces slashes in object keys. The store is a
// flat namespace, so repo-relative paths are flattened on write and the
// original path travels as object metadata.
const PathSeparatorPlaceholder = "__"

const (
	metaOriginalPath = "Original-Path"
	metaOriginalName = "Original-Name"
)

// Object is a stored blob together with its recovered origin metadata.
type Object struct {
	Key          string
	OriginalPath string
	OriginalName string
	Content      []byte
}

// Config contains credentials and location of the backing object store.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// Store persists harvested file sets as text blobs grouped by prefix.
type Store struct {
	client *minio.Client
	bucket string
	region string
	logger zerolog.Logger
}

// New creates a store from the Config.
func New(cfg Config, logger zerolog.Logger) (*Store, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("object store endpoint and bucket must be provided")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init object store client: %w", err)
	}

	return &Store{
		client: client,
		bucket: cfg.Bucket,
		region: cfg.Region,
		logger: logger.With().Str("component", "blobstore").Logger(),
	}, nil
}

// EnsureBucket makes sure the backing bucket exists before use.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("make bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// Put writes one file under the prefix. The repo-relative path is flattened
// into the object key; the original path and bare name are attached as user
// metadata so readers can reconstruct the tree. Re-writing a key overwrites
// the prior content.
func (s *Store) Put(ctx context.Context, prefix, originalPath, originalName string, content []byte) error {
	key := objectKey(prefix, originalPath)
	opts := minio.PutObjectOptions{
		ContentType: "text/plain; charset=utf-8",
		UserMetadata: map[string]string{
			metaOriginalPath: originalPath,
			metaOriginalName: originalName,
		},
	}

	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(content), int64(len(content)), opts)
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// List downloads every blob stored under the prefix. Objects missing origin
// metadata fall back to the unflattened object key.
func (s *Store) List(ctx context.Context, prefix string) ([]Object, error) {
	prefix = normalizePrefix(prefix)

	var objects []Object
	for info := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, WithMetadata: true}) {
		if info.Err != nil {
			return nil, fmt.Errorf("list objects under %s: %w", prefix, info.Err)
		}

		content, err := s.download(ctx, info.Key)
		if err != nil {
			return nil, err
		}

		originalPath := userMeta(info.UserMetadata, metaOriginalPath)
		originalName := userMeta(info.UserMetadata, metaOriginalName)
		if originalPath == "" {
			originalPath = unflatten(strings.TrimPrefix(info.Key, prefix))
		}
		if originalName == "" {
			if idx := strings.LastIndex(originalPath, "/"); idx >= 0 {
				originalName = originalPath[idx+1:]
			} else {
				originalName = originalPath
			}
		}

		objects = append(objects, Object{
			Key:          info.Key,
			OriginalPath: originalPath,
			OriginalName: originalName,
			Content:      content,
		})
	}

	return objects, nil
}

func (s *Store) download(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer obj.Close()

	content, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return content, nil
}

func objectKey(prefix, originalPath string) string {
	return normalizePrefix(prefix) + Flatten(originalPath)
}

// Flatten converts a repo-relative path into a flat object name.
func Flatten(path string) string {
	return strings.ReplaceAll(path, "/", PathSeparatorPlaceholder)
}

func unflatten(name string) string {
	return strings.ReplaceAll(name, PathSeparatorPlaceholder, "/")
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

func userMeta(meta minio.StringMap, key string) string {
	if meta == nil {
		return ""
	}
	if v, ok := meta[key]; ok {
		return v
	}
	// ListObjects reports user metadata with the transport header prefix.
	if v, ok := meta["X-Amz-Meta-"+key]; ok {
		return v
	}
	return ""
}
