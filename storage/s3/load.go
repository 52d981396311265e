package s3

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/cache"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/internal/pool"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/manifest"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/storage/s3/internal/s3api"
)

// LoadPath implements storage.Handler.
//
// With local set, the object is served from the cache when possible.
// Otherwise its current ETag is compared with the entry digest. A
// version-pinned entry must match exactly; an unpinned one falls back to the
// historical version whose ETag matches the one recorded at store time.
// Fetched bytes are verified before they are committed to the cache.
//
// Errors:
//   - NOT_FOUND if the object does not exist.
//   - INTEGRITY_FAILED if a pinned version changed, no historical version
//     matches (this also satisfies NOT_FOUND), or the fetched bytes do not
//     carry the expected ETag.
func (h *Handler) LoadPath(ctx context.Context, entry *manifest.Entry, local bool) (string, error) {
	if !local {
		return entry.Ref, nil
	}

	size := int64(-1)
	if entry.Size != nil {
		size = *entry.Size
	}
	cachePath, hit, open := h.cache.CheckETag(entry.Ref, entry.Digest, size)
	if hit {
		return cachePath, nil
	}

	client, err := h.s3Client(ctx)
	if err != nil {
		return "", err
	}
	bucket, key, _, err := parseURI(entry.Ref)
	if err != nil {
		return "", err
	}
	version, pinned := entry.ExtraString("versionID")

	head := &s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)}
	if pinned {
		head.VersionId = aws.String(version)
	}
	out, err := client.HeadObject(ctx, head)
	if err != nil {
		if isNotFound(err) {
			return "", errors.Newf(errors.CodeNotFound, "s3.load",
				"unable to find %s at %s://%s/%s", entry.Path, h.cfg.scheme, bucket, key)
		}
		return "", connectivityError(err, "s3.load", bucket, key)
	}

	etag := trimETag(out.ETag)
	want := entry.Digest
	if etag != entry.Digest {
		if pinned {
			return "", errors.Newf(errors.CodeIntegrity, "s3.load",
				"digest mismatch for object %s with version %s: expected %s but found %s",
				entry.Ref, version, entry.Digest, etag).
				WithContext("uri", entry.Ref).
				WithContext("expected", entry.Digest)
		}
		want, _ = entry.ExtraString("etag")
		version, err = h.findVersion(ctx, client, bucket, key, want)
		if err != nil {
			return "", err
		}
	}

	if err := h.download(ctx, client, open, bucket, key, version, want); err != nil {
		return "", err
	}
	return cachePath, nil
}

// findVersion returns the ID of the version of bucket/key whose ETag is etag.
func (h *Handler) findVersion(ctx context.Context, client s3api.S3API, bucket, key, etag string) (string, error) {
	h.logger.Warn("object changed since it was stored, searching its versions",
		"bucket", bucket, "key", key, "digest", etag)

	input := &s3.ListObjectVersionsInput{
		Bucket: aws.String(bucket),
		Prefix: aws.String(key),
	}
	for {
		page, err := client.ListObjectVersions(ctx, input)
		if err != nil {
			return "", connectivityError(err, "s3.versions", bucket, key)
		}
		for _, v := range page.Versions {
			if aws.ToString(v.Key) == key && trimETag(v.ETag) == etag {
				return aws.ToString(v.VersionId), nil
			}
		}
		if !aws.ToBool(page.IsTruncated) {
			break
		}
		input.KeyMarker = page.NextKeyMarker
		input.VersionIdMarker = page.NextVersionIdMarker
	}

	notFound := errors.Newf(errors.CodeNotFound, "s3.versions",
		"couldn't find object version for %s/%s matching etag %s", bucket, key, etag)
	return "", errors.Wrap(notFound, errors.CodeIntegrity, "s3.load", "no version matches the recorded digest").
		WithContext("uri", fmt.Sprintf("%s/%s", bucket, key)).
		WithContext("expected", etag)
}

// download streams bucket/key into the cache, committing only if the
// returned ETag is etag.
func (h *Handler) download(
	ctx context.Context,
	client s3api.S3API,
	open cache.Opener,
	bucket, key, version, etag string,
) error {
	input := &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)}
	if version != "" {
		input.VersionId = aws.String(version)
	}
	out, err := client.GetObject(ctx, input)
	if err != nil {
		if isNotFound(err) {
			return errors.Newf(errors.CodeNotFound, "s3.get", "object %s/%s disappeared", bucket, key)
		}
		return connectivityError(err, "s3.get", bucket, key)
	}
	defer out.Body.Close()

	if got := trimETag(out.ETag); got != "" && got != etag {
		return errors.Newf(errors.CodeIntegrity, "s3.get",
			"fetched object has ETag %s, expected %s", got, etag).
			WithContext("uri", fmt.Sprintf("%s/%s", bucket, key))
	}

	w, err := open()
	if err != nil {
		return err
	}
	if _, err := pool.Copy(w, out.Body, aws.ToInt64(out.ContentLength)); err != nil {
		_ = w.Discard()
		return errors.Wrap(err, errors.CodeNetwork, "s3.get", "reading object body").
			WithContext("bucket", bucket).
			WithContext("key", key)
	}
	if err := w.Commit(); err != nil {
		return fmt.Errorf("caching %s/%s: %w", bucket, key, err)
	}
	h.logger.Debug("object cached", "bucket", bucket, "key", key, "digest", etag)
	return nil
}
