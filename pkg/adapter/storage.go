package adapter

import (
	"context"
	"errors"
	"io"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
)

// ErrObjectNotFound is returned by Storage.Get when the key does not exist
var ErrObjectNotFound = goerr.New("object not found")

// Storage is an object store keyed by slash-separated paths
type Storage interface {
	// Put returns a writer for the object. The object is committed on Close.
	Put(ctx context.Context, key string) (io.WriteCloser, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Close() error
}

// gcsStorage implements Storage on one Cloud Storage bucket
type gcsStorage struct {
	bucket      *storage.BucketHandle
	bucketName  string
	client      *storage.Client
	contentType string
}

// StorageOption is a functional option for Storage
type StorageOption func(*gcsStorage)

// WithContentType sets the content type of written objects (default application/json)
func WithContentType(contentType string) StorageOption {
	return func(s *gcsStorage) {
		s.contentType = contentType
	}
}

func NewStorage(ctx context.Context, bucketName string, opts ...StorageOption) (Storage, error) {
	if bucketName == "" {
		return nil, goerr.New("bucket name is required")
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client")
	}

	s := &gcsStorage{
		bucket:      client.Bucket(bucketName),
		bucketName:  bucketName,
		client:      client,
		contentType: "application/json",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *gcsStorage) Put(ctx context.Context, key string) (io.WriteCloser, error) {
	w := s.bucket.Object(key).NewWriter(ctx)
	w.ContentType = s.contentType
	return w, nil
}

func (s *gcsStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := s.bucket.Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, goerr.Wrap(ErrObjectNotFound, "no such object",
			goerr.V("bucket", s.bucketName),
			goerr.V("key", key))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read from storage",
			goerr.V("bucket", s.bucketName),
			goerr.V("key", key))
	}
	return r, nil
}

func (s *gcsStorage) Close() error {
	if err := s.client.Close(); err != nil {
		return goerr.Wrap(err, "failed to close storage client")
	}
	return nil
}
