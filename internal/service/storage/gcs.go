package storage

import (
	"context"
	"encoding/base64"
	"fmt"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

const gcsPublicHost = "https://storage.googleapis.com"

// GCSStore keeps artifacts in a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket *storage.BucketHandle
	name   string
}

// NewGCSStore connects to bucket. credentials is a base64 encoded service
// account JSON; when empty, application default credentials are used.
func NewGCSStore(ctx context.Context, bucket, credentials string) (*GCSStore, error) {
	var opts []option.ClientOption
	if credentials != "" {
		decoded, err := base64.StdEncoding.DecodeString(credentials)
		if err != nil {
			return nil, errors.Wrap(err, "invalid service account credentials")
		}
		opts = append(opts, option.WithCredentialsJSON(decoded))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create storage client")
	}

	return &GCSStore{
		client: client,
		bucket: client.Bucket(bucket),
		name:   bucket,
	}, nil
}

func (s *GCSStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}

	w := s.bucket.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		w.Close()
		return "", errors.Wrapf(err, "failed to upload %s", key)
	}
	if err := w.Close(); err != nil {
		return "", errors.Wrapf(err, "failed to upload %s", key)
	}

	return s.URL(key), nil
}

func (s *GCSStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.bucket.Object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "failed to stat %s", key)
	}
	return true, nil
}

func (s *GCSStore) List(ctx context.Context, prefix string) ([]Object, error) {
	var objects []Object

	it := s.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to list %s", prefix)
		}
		objects = append(objects, Object{
			Key:     attrs.Name,
			URL:     s.URL(attrs.Name),
			Size:    attrs.Size,
			Updated: attrs.Updated,
		})
	}

	return objects, nil
}

func (s *GCSStore) URL(key string) string {
	return fmt.Sprintf("%s/%s/%s", gcsPublicHost, s.name, escapeKey(key))
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}
