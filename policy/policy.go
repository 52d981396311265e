// Package policy implements the default storage policy: artifact-owned files
// are prepared through the backend and uploaded to the URL it returns, and
// references are delegated to the storage handler registry.
package policy

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // backend content digests are MD5
	"encoding/base64"
	stderrors "errors"
	"io"
	"log/slog"
	"maps"

	"github.com/gabriel-vasile/mimetype"

	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/cache"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/fs"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/fs/billy"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/internal/pool"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/manifest"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/storage"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/synctypes"
)

// Name identifies the default policy in serialized manifests.
const Name = "artifactsync-storage-policy"

// sniffLen is the number of leading bytes used for content type detection.
const sniffLen = 3072

// Uploader writes a body to a pre-signed upload URL, retrying as it sees fit.
type Uploader interface {
	UploadFileRetry(ctx context.Context, url string, body io.Reader, headers map[string]string) error
}

// Downloader streams the bytes of an artifact-owned entry.
type Downloader interface {
	DownloadFile(ctx context.Context, artifactID string, entry *manifest.Entry) (io.ReadCloser, error)
}

// Policy is the default storage policy.
type Policy struct {
	config     map[string]any
	registry   *storage.Registry
	preparer   synctypes.Preparer
	uploader   Uploader
	downloader Downloader
	cache      *cache.Cache
	fs         fs.Filesystem
	logger     *slog.Logger
}

var _ manifest.StoragePolicy = (*Policy)(nil)

// Option configures a Policy.
type Option func(*Policy)

// WithConfig sets the configuration serialized alongside manifests.
func WithConfig(config map[string]any) Option {
	return func(p *Policy) {
		p.config = maps.Clone(config)
	}
}

// WithRegistry sets the handler registry used for references.
func WithRegistry(r *storage.Registry) Option {
	return func(p *Policy) {
		p.registry = r
	}
}

// WithPreparer sets the preparer consulted before each upload.
func WithPreparer(pr synctypes.Preparer) Option {
	return func(p *Policy) {
		p.preparer = pr
	}
}

// WithUploader sets the upload transport.
func WithUploader(u Uploader) Option {
	return func(p *Policy) {
		p.uploader = u
	}
}

// WithDownloader sets the transport for artifact-owned files.
func WithDownloader(d Downloader) Option {
	return func(p *Policy) {
		p.downloader = d
	}
}

// WithCache sets the content cache.
func WithCache(c *cache.Cache) Option {
	return func(p *Policy) {
		p.cache = c
	}
}

// WithFilesystem sets the filesystem local entries are read from.
func WithFilesystem(f fs.Filesystem) Option {
	return func(p *Policy) {
		p.fs = f
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Policy) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates the default policy.
func New(opts ...Option) *Policy {
	p := &Policy{
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.fs == nil {
		p.fs = billy.NewOSFS("/")
	}
	if p.cache == nil {
		p.cache = cache.New("", cache.WithLogger(p.logger))
	}
	if p.registry == nil {
		p.registry = storage.NewRegistry()
	}
	return p
}

// Resolver returns a manifest.PolicyResolver that rebuilds this policy with
// the serialized config, sharing every other collaborator.
func (p *Policy) Resolver() manifest.PolicyResolver {
	return func(name string, config map[string]any) (manifest.StoragePolicy, error) {
		if name != Name {
			return nil, errors.Newf(errors.CodeInvalidConfig, "policy.resolve", "unknown storage policy %q", name)
		}
		c := *p
		c.config = maps.Clone(config)
		return &c, nil
	}
}

// WithPreparer returns a copy of the policy bound to pr.
//
//nolint:ireturn // satisfies the saver's binding contract
func (p *Policy) WithPreparer(pr synctypes.Preparer) manifest.StoragePolicy {
	c := *p
	c.preparer = pr
	return &c
}

// Name implements manifest.StoragePolicy.
func (p *Policy) Name() string {
	return Name
}

// Config implements manifest.StoragePolicy.
func (p *Policy) Config() map[string]any {
	return p.config
}

// Registry returns the handler registry used for references.
func (p *Policy) Registry() *storage.Registry {
	return p.registry
}

// StoreFile implements manifest.StoragePolicy. The backend is asked where to
// put the entry; an empty upload URL means it already has the bytes.
//
// Errors:
//   - INVALID_CONFIGURATION if no preparer or uploader is configured.
//   - NOT_FOUND if the local file is missing.
func (p *Policy) StoreFile(
	ctx context.Context,
	artifactID string,
	entry *manifest.Entry,
	progress synctypes.ProgressFunc,
) (bool, error) {
	if p.preparer == nil {
		return false, errors.New(errors.CodeInvalidConfig, "policy.store", "no preparer configured")
	}
	resp, err := p.preparer.Prepare(ctx, synctypes.PrepareRequest{
		ArtifactID:      artifactID,
		Name:            entry.Path,
		MD5:             entry.Digest,
		BirthArtifactID: entry.BirthArtifactID,
	})
	if err != nil {
		return false, err
	}
	if resp.BirthArtifactID != "" {
		entry.BirthArtifactID = resp.BirthArtifactID
	}
	if resp.UploadURL == "" {
		p.logger.Debug("file already stored", "artifact_id", artifactID, "path", entry.Path)
		return true, nil
	}
	if p.uploader == nil {
		return false, errors.New(errors.CodeInvalidConfig, "policy.store", "no uploader configured")
	}

	f, err := p.fs.Open(entry.LocalPath)
	if err != nil {
		return false, errors.Wrap(err, errors.CodeNotFound, "policy.store", "opening local file").
			WithContext("path", entry.LocalPath)
	}
	defer f.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !stderrors.Is(err, io.EOF) && !stderrors.Is(err, io.ErrUnexpectedEOF) {
		return false, errors.Wrap(err, errors.CodeInternal, "policy.store", "reading local file").
			WithContext("path", entry.LocalPath)
	}
	head = head[:n]

	target := &synctypes.UploadTarget{URL: resp.UploadURL, Headers: resp.UploadHeaders}
	headers := target.HeaderMap()
	if headers == nil {
		headers = make(map[string]string)
	}
	if _, ok := headers["Content-Type"]; !ok {
		headers["Content-Type"] = mimetype.Detect(head).String()
	}

	body := &progressReader{
		r:        io.MultiReader(bytes.NewReader(head), f),
		total:    entry.SizeOrZero(),
		progress: progress,
	}
	if err := p.uploader.UploadFileRetry(ctx, resp.UploadURL, body, headers); err != nil {
		return false, err
	}
	return false, nil
}

// LoadFile implements manifest.StoragePolicy. Files are cached by MD5.
//
// Errors:
//   - INVALID_CONFIGURATION if no downloader is configured.
//   - INTEGRITY_FAILED if the downloaded bytes do not match the entry digest.
func (p *Policy) LoadFile(ctx context.Context, artifactID string, entry *manifest.Entry) (string, error) {
	size := int64(-1)
	if entry.Size != nil {
		size = *entry.Size
	}
	cachePath, hit, open, err := p.cache.CheckMD5(entry.Digest, size)
	if err != nil {
		return "", err
	}
	if hit {
		return cachePath, nil
	}
	if p.downloader == nil {
		return "", errors.New(errors.CodeInvalidConfig, "policy.load", "no downloader configured")
	}

	rc, err := p.downloader.DownloadFile(ctx, artifactID, entry)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	w, err := open()
	if err != nil {
		return "", err
	}
	h := md5.New() //nolint:gosec // backend content digests are MD5
	if _, err := pool.Copy(io.MultiWriter(w, h), rc, size); err != nil {
		_ = w.Discard()
		return "", errors.Wrap(err, errors.CodeNetwork, "policy.load", "downloading file").WithContext("path", entry.Path)
	}
	if got := base64.StdEncoding.EncodeToString(h.Sum(nil)); got != entry.Digest {
		_ = w.Discard()
		return "", errors.Newf(errors.CodeIntegrity, "policy.load",
			"digest mismatch for %s: expected %s but found %s", entry.Path, entry.Digest, got).
			WithContext("artifact_id", artifactID)
	}
	if err := w.Commit(); err != nil {
		return "", err
	}
	return cachePath, nil
}

// LoadReference implements manifest.StoragePolicy.
func (p *Policy) LoadReference(ctx context.Context, entry *manifest.Entry, local bool) (string, error) {
	return p.registry.LoadPath(ctx, entry, local)
}

// StoreReference expands uri into manifest entries through the registry.
func (p *Policy) StoreReference(ctx context.Context, uri string, opts ...storage.StoreOption) ([]*manifest.Entry, error) {
	return p.registry.StorePath(ctx, uri, opts...)
}

// AddReference expands uri and adds every resulting entry to m.
func (p *Policy) AddReference(ctx context.Context, m *manifest.Manifest, uri string, opts ...storage.StoreOption) error {
	entries, err := p.StoreReference(ctx, uri, opts...)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := m.AddEntry(e); err != nil {
			return err
		}
	}
	p.logger.Debug("added reference", "uri", uri, "objects", len(entries))
	return nil
}

// AddFile adds a local file to m, digesting it with MD5.
func (p *Policy) AddFile(m *manifest.Manifest, name, localPath string) (*manifest.Entry, error) {
	f, err := p.fs.Open(localPath)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeNotFound, "policy.add_file", "opening local file").
			WithContext("path", localPath)
	}
	defer f.Close()

	digest, size, err := manifest.B64MD5(f)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "policy.add_file", "digesting local file").
			WithContext("path", localPath)
	}
	e := &manifest.Entry{Path: name, Digest: digest, Size: manifest.Int64(size), LocalPath: localPath}
	if err := m.AddEntry(e); err != nil {
		return nil, err
	}
	return e, nil
}

type progressReader struct {
	r           io.Reader
	transferred int64
	total       int64
	progress    synctypes.ProgressFunc
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	r.transferred += int64(n)
	if n > 0 && r.progress != nil {
		r.progress(r.transferred, r.total)
	}
	return n, err //nolint:wrapcheck // io.Reader contract
}
