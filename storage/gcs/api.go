package gcs

import (
	"context"
	stderrors "errors"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// objectAPI is the subset of Cloud Storage the handler uses.
type objectAPI interface {
	// Attrs returns the attributes of bucket/key. A generation of 0 selects
	// the live object.
	Attrs(ctx context.Context, bucket, key string, generation int64) (*storage.ObjectAttrs, error)

	// List calls fn for every object matching q.
	List(ctx context.Context, bucket string, q *storage.Query, fn func(*storage.ObjectAttrs) error) error

	// Read opens bucket/key at generation for reading.
	Read(ctx context.Context, bucket, key string, generation int64) (io.ReadCloser, error)
}

type clientAPI struct {
	client *storage.Client
}

func (c clientAPI) object(bucket, key string, generation int64) *storage.ObjectHandle {
	obj := c.client.Bucket(bucket).Object(key)
	if generation > 0 {
		obj = obj.Generation(generation)
	}
	return obj
}

func (c clientAPI) Attrs(ctx context.Context, bucket, key string, generation int64) (*storage.ObjectAttrs, error) {
	return c.object(bucket, key, generation).Attrs(ctx)
}

func (c clientAPI) List(ctx context.Context, bucket string, q *storage.Query, fn func(*storage.ObjectAttrs) error) error {
	it := c.client.Bucket(bucket).Objects(ctx, q)
	for {
		attrs, err := it.Next()
		if stderrors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(attrs); err != nil {
			return err
		}
	}
}

//nolint:ireturn // the storage reader is consumed as a stream
func (c clientAPI) Read(ctx context.Context, bucket, key string, generation int64) (io.ReadCloser, error) {
	return c.object(bucket, key, generation).NewReader(ctx)
}
