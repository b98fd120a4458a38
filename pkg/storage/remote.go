package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStore is the subset of an S3 client used by Remote.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, opts minio.PutObjectOptions) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) error
	Remove(ctx context.Context, key string) error
}

// MinioStore adapts a minio client bound to one bucket.
type MinioStore struct {
	cl     *minio.Client
	bucket string
	region string
}

// NewMinioStore connects to the endpoint described by cfg.
func NewMinioStore(cfg *RemoteConfig) (*MinioStore, error) {
	opts := &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	}
	if cfg.PathStyle {
		opts.BucketLookup = minio.BucketLookupPath
	}

	cl, err := minio.New(cfg.Endpoint, opts)
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	return &MinioStore{cl: cl, bucket: cfg.Bucket, region: cfg.Region}, nil
}

// EnsureBucket creates the bucket when it does not exist.
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	ok, err := s.cl.BucketExists(ctx, s.bucket)
	if err != nil {
		return mapRemoteError(err)
	}
	if ok {
		return nil
	}
	if err := s.cl.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return mapRemoteError(err)
	}
	return nil
}

func (s *MinioStore) Put(ctx context.Context, key string, r io.Reader, opts minio.PutObjectOptions) error {
	_, err := s.cl.PutObject(ctx, s.bucket, key, r, -1, opts)
	return err
}

// Get opens the object and stats it so a missing key surfaces here rather
// than on the first Read.
func (s *MinioStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.cl.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, err
	}
	return obj, nil
}

func (s *MinioStore) Stat(ctx context.Context, key string) error {
	_, err := s.cl.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	return err
}

func (s *MinioStore) Remove(ctx context.Context, key string) error {
	return s.cl.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}

// Remote stores objects in an S3-compatible bucket.
type Remote struct {
	store    ObjectStore
	acl      string
	partSize uint64
	logger   *slog.Logger
}

// NewRemote creates a remote backend over store.
func NewRemote(store ObjectStore, cfg *RemoteConfig, logger *slog.Logger) *Remote {
	return &Remote{
		store:    store,
		acl:      cfg.ACL,
		partSize: uint64(cfg.PartSizeBytes()),
		logger:   logger.With("system", "storage", "backend", "remote"),
	}
}

func (s *Remote) Write(ctx context.Context, t Target, r io.Reader) error {
	key, err := objectKey(t)
	if err != nil {
		return err
	}

	opts := minio.PutObjectOptions{
		ContentType: t.ContentType,
		PartSize:    s.partSize,
	}
	if s.acl != "" {
		opts.UserMetadata = map[string]string{"x-amz-acl": s.acl}
	}

	if err := s.store.Put(ctx, key, r, opts); err != nil {
		mapped := mapRemoteError(err)
		if errors.Is(mapped, ErrConnection) {
			return fmt.Errorf("put %s: %w", key, mapped)
		}
		return fmt.Errorf("%w: put %s: %w", ErrWrite, key, mapped)
	}

	s.logger.Debug("object stored", "key", key, "content_type", t.ContentType)
	return nil
}

func (s *Remote) Read(ctx context.Context, t Target) (io.ReadCloser, error) {
	key, err := objectKey(t)
	if err != nil {
		return nil, err
	}

	rc, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, mapRemoteError(err)
	}
	return rc, nil
}

func (s *Remote) Exists(ctx context.Context, t Target) (bool, error) {
	key, err := objectKey(t)
	if err != nil {
		return false, err
	}

	if err := s.store.Stat(ctx, key); err != nil {
		mapped := mapRemoteError(err)
		if errors.Is(mapped, ErrNotFound) {
			return false, nil
		}
		return false, mapped
	}
	return true, nil
}

// Delete removes every target, continuing past failures. Keys already
// absent from the bucket are ignored.
func (s *Remote) Delete(ctx context.Context, targets ...Target) error {
	var errs []error

	for _, t := range targets {
		key, err := objectKey(t)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Key, err))
			continue
		}

		if err := s.store.Remove(ctx, key); err != nil {
			mapped := mapRemoteError(err)
			if errors.Is(mapped, ErrNotFound) {
				continue
			}
			errs = append(errs, fmt.Errorf("remove %s: %w", key, mapped))
		}
	}

	return errors.Join(errs...)
}

func objectKey(t Target) (string, error) {
	key := strings.TrimLeft(t.Key, "/")
	if key == "" {
		return "", ErrInvalidKey
	}
	return key, nil
}

func mapRemoteError(err error) error {
	if err == nil {
		return nil
	}

	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" || resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case resp.Code == "AccessDenied" || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	case resp.Code == "" && resp.StatusCode == 0:
		return fmt.Errorf("%w: %w", ErrConnection, err)
	default:
		return err
	}
}
