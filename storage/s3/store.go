package s3

import (
	"context"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/manifest"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/storage"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/storage/s3/internal/s3api"
)

// directoryContentType marks placeholder objects that stand for folders.
const directoryContentType = "x-directory"

// object is the per-object information an entry is built from.
type object struct {
	key       string
	etag      *string
	size      int64
	versionID *string
}

// StorePath implements storage.Handler.
//
// An explicit versionId pins the object. Otherwise the key is probed as a
// single object; a 404, an empty key or a directory placeholder switches to
// listing every object under the key as a prefix. Zero-byte objects are
// skipped.
//
// Errors:
//   - CAPACITY_EXCEEDED if more than the max objects qualify. No partial
//     list is returned.
//   - NETWORK_ERROR, UNAUTHORIZED or FORBIDDEN if the probe fails for any
//     reason other than a 404.
func (h *Handler) StorePath(ctx context.Context, uri string, opts ...storage.StoreOption) ([]*manifest.Entry, error) {
	cfg := storage.NewStoreConfig(opts...)
	bucket, key, version, err := parseURI(uri)
	if err != nil {
		return nil, err
	}
	ref := h.baseRef(bucket, key)

	if !cfg.Checksum {
		return []*manifest.Entry{storage.SingleEntry(ref, storage.UncheckedName(cfg.Name, bucket, key))}, nil
	}

	client, err := h.s3Client(ctx)
	if err != nil {
		return nil, err
	}

	multi := key == ""
	var objs []object
	if !multi {
		obj, isDir, found, err := h.probe(ctx, client, bucket, key, version)
		if err != nil {
			return nil, err
		}
		if !found || isDir {
			multi = true
		} else {
			objs = []object{obj}
		}
	}

	if multi {
		start := time.Now()
		h.logger.Info("generating checksums", "bucket", bucket, "key", key, "objects", cfg.MaxObjects)
		objs, err = h.list(ctx, client, bucket, key, cfg.MaxObjects, uri)
		if err != nil {
			return nil, err
		}
		h.logger.Info("checksums generated", "bucket", bucket, "key", key,
			"objects", len(objs), "duration", time.Since(start))
	}

	entries := make([]*manifest.Entry, 0, len(objs))
	for _, obj := range objs {
		if obj.size <= 0 {
			continue
		}
		entries = append(entries, h.entryFromObject(obj, bucket, key, cfg.Name, multi))
	}
	if len(entries) > cfg.MaxObjects {
		return nil, storage.CapacityError("s3.store", uri, cfg.MaxObjects)
	}
	return entries, nil
}

// probe heads bucket/key. found is false on a 404.
func (h *Handler) probe(
	ctx context.Context,
	client s3api.S3API,
	bucket, key, version string,
) (obj object, isDir, found bool, err error) {
	input := &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if version != "" {
		input.VersionId = aws.String(version)
	}
	out, err := client.HeadObject(ctx, input)
	if err != nil {
		if isNotFound(err) {
			h.logger.Debug("probe returned 404, expanding prefix", "bucket", bucket, "key", key)
			return object{}, false, false, nil
		}
		return object{}, false, false, connectivityError(err, "s3.store", bucket, key)
	}

	obj = object{
		key:       key,
		etag:      out.ETag,
		size:      aws.ToInt64(out.ContentLength),
		versionID: out.VersionId,
	}
	return obj, strings.Contains(aws.ToString(out.ContentType), directoryContentType), true, nil
}

// list returns the non-empty objects under prefix, failing as soon as more
// than maxObjects qualify. Each object is then headed for its version ID.
func (h *Handler) list(
	ctx context.Context,
	client s3api.S3API,
	bucket, prefix string,
	maxObjects int,
	uri string,
) ([]object, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(bucket)}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	var objs []object
	paginator := s3.NewListObjectsV2Paginator(client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, connectivityError(err, "s3.list", bucket, prefix)
		}
		for _, o := range page.Contents {
			if aws.ToInt64(o.Size) <= 0 {
				continue
			}
			if len(objs) == maxObjects {
				return nil, storage.CapacityError("s3.store", uri, maxObjects)
			}
			objs = append(objs, object{key: aws.ToString(o.Key), etag: o.ETag, size: aws.ToInt64(o.Size)})
		}
	}

	for i := range objs {
		out, err := client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(objs[i].key),
		})
		if err != nil {
			return nil, connectivityError(err, "s3.store", bucket, objs[i].key)
		}
		objs[i].versionID = out.VersionId
	}
	return objs, nil
}

func (h *Handler) entryFromObject(obj object, bucket, key, name string, multi bool) *manifest.Entry {
	entryPath, rel := storage.ObjectPath(name, key, obj.key, multi)
	etag := trimETag(obj.etag)

	extra := map[string]any{"etag": etag}
	if v := aws.ToString(obj.versionID); v != "" && v != "null" {
		extra["versionID"] = v
	}

	return &manifest.Entry{
		Path:   entryPath,
		Ref:    storage.ObjectRef(h.cfg.scheme, bucket, key, rel),
		Digest: etag,
		Size:   manifest.Int64(obj.size),
		Extra:  extra,
	}
}
