package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"profilephoto/internal/apperr"
	"profilephoto/internal/config"
)

// ObjectStore is a thin request/response wrapper over minio. It performs no
// retries of its own and is safe for concurrent use.
type ObjectStore struct {
	client *minio.Client
	region string
}

func NewObjectStore(cfg config.StorageConfig) (*ObjectStore, error) {
	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL

	if strings.HasPrefix(endpoint, "http") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parse endpoint: %w", err)
		}
		endpoint = u.Host
		useSSL = u.Scheme == "https"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}

	return &ObjectStore{
		client: client,
		region: cfg.Region,
	}, nil
}

func (s *ObjectStore) BucketExists(ctx context.Context, bucket string) (bool, error) {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return false, classify("storage.bucket_exists", err)
	}
	return exists, nil
}

func (s *ObjectStore) CreateBucket(ctx context.Context, bucket string) error {
	if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return classify("storage.create_bucket", err)
	}
	return nil
}

// EnsureBucket is check-then-create. It is not atomic; a concurrent creator
// winning the race surfaces as BucketAlreadyOwnedByYou, which counts as success.
func (s *ObjectStore) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := s.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("bucket exists %s: %w", bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.CreateBucket(ctx, bucket); err != nil {
		if alreadyOwned(err) {
			return nil
		}
		return fmt.Errorf("create bucket %s: %w", bucket, err)
	}
	return nil
}

// GetObject reads the whole object into memory.
func (s *ObjectStore) GetObject(ctx context.Context, bucket, name string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, classify("storage.get_object", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, classify("storage.get_object", err)
	}
	return data, nil
}

// PutObject overwrites any existing object with the same name.
func (s *ObjectStore) PutObject(ctx context.Context, bucket, name string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return classify("storage.put_object", err)
	}
	return nil
}

// DeleteObject fails with NotFound when the object is absent. S3 removal is
// silent for missing keys, so the object is stat'ed first.
func (s *ObjectStore) DeleteObject(ctx context.Context, bucket, name string) error {
	if _, err := s.client.StatObject(ctx, bucket, name, minio.StatObjectOptions{}); err != nil {
		return classify("storage.delete_object", err)
	}
	if err := s.client.RemoveObject(ctx, bucket, name, minio.RemoveObjectOptions{}); err != nil {
		return classify("storage.delete_object", err)
	}
	return nil
}

// ListObjects returns the names of every object under prefix.
func (s *ObjectStore) ListObjects(ctx context.Context, bucket, prefix string) ([]string, error) {
	objectCh := s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	var names []string
	for object := range objectCh {
		if object.Err != nil {
			return nil, classify("storage.list_objects", object.Err)
		}
		names = append(names, object.Key)
	}
	return names, nil
}

func (s *ObjectStore) Client() *minio.Client {
	return s.client
}

// alreadyOwned reports a create that lost the race to another replica of
// this service. The minio response may sit behind an apperr wrap.
func alreadyOwned(err error) bool {
	var resp minio.ErrorResponse
	return errors.As(err, &resp) && resp.Code == "BucketAlreadyOwnedByYou"
}

func classify(op string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return apperr.E(apperr.KindNotFound, op, err)
	}
	return apperr.E(apperr.KindBlobStore, op, err)
}
