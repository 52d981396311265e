package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/artifactsync/synctypes"
)

const (
	// DefaultBatchTime bounds how long a batch stays open.
	DefaultBatchTime = 100 * time.Millisecond

	// DefaultInterEventTime closes a batch when no request arrives for this long.
	DefaultInterEventTime = 10 * time.Millisecond

	// DefaultMaxBatchSize bounds the number of requests in one batch.
	DefaultMaxBatchSize = 1000
)

// FileCreator prepares a batch of artifact files on the backend. Responses
// are returned in request order.
type FileCreator interface {
	CreateArtifactFiles(ctx context.Context, reqs []synctypes.PrepareRequest) ([]synctypes.PrepareResponse, error)
}

// Batcher coalesces concurrent Prepare calls into batched backend requests.
// It must be started before use and shut down exactly once.
type Batcher struct {
	api    FileCreator
	logger *slog.Logger

	batchTime      time.Duration
	interEventTime time.Duration
	maxBatchSize   int
	limiter        *rate.Limiter

	requests  chan *prepareCall
	done      chan struct{}
	started   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup

	batches atomic.Int64
}

var _ synctypes.Preparer = (*Batcher)(nil)

type prepareCall struct {
	ctx  context.Context //nolint:containedctx // checked when the batch is flushed
	req  synctypes.PrepareRequest
	resp chan prepareResult
}

type prepareResult struct {
	resp synctypes.PrepareResponse
	err  error
}

// BatcherOption configures a Batcher.
type BatcherOption func(*Batcher)

// WithBatchTime sets the maximum time a batch stays open.
func WithBatchTime(d time.Duration) BatcherOption {
	return func(b *Batcher) {
		if d > 0 {
			b.batchTime = d
		}
	}
}

// WithInterEventTime sets the idle time that closes a batch early.
func WithInterEventTime(d time.Duration) BatcherOption {
	return func(b *Batcher) {
		if d > 0 {
			b.interEventTime = d
		}
	}
}

// WithMaxBatchSize sets the maximum number of requests per batch.
func WithMaxBatchSize(n int) BatcherOption {
	return func(b *Batcher) {
		if n > 0 {
			b.maxBatchSize = n
		}
	}
}

// WithRateLimit throttles batched backend calls.
func WithRateLimit(limit rate.Limit, burst int) BatcherOption {
	return func(b *Batcher) {
		b.limiter = rate.NewLimiter(limit, burst)
	}
}

// WithBatcherLogger sets the logger.
func WithBatcherLogger(logger *slog.Logger) BatcherOption {
	return func(b *Batcher) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBatcher creates a batcher that prepares files through api.
func NewBatcher(api FileCreator, opts ...BatcherOption) *Batcher {
	b := &Batcher{
		api:            api,
		logger:         slog.New(slog.DiscardHandler),
		batchTime:      DefaultBatchTime,
		interEventTime: DefaultInterEventTime,
		maxBatchSize:   DefaultMaxBatchSize,
		limiter:        rate.NewLimiter(rate.Inf, 0),
		requests:       make(chan *prepareCall),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start launches the batching loop. Calls after the first are no-ops.
func (b *Batcher) Start() {
	b.startOnce.Do(func() {
		b.started.Store(true)
		b.wg.Add(1)
		go b.loop()
	})
}

// Shutdown stops the batching loop after flushing the open batch. Calls
// after the first are no-ops.
func (b *Batcher) Shutdown() {
	b.stopOnce.Do(func() {
		close(b.done)
		b.wg.Wait()
		b.logger.Debug("prepare batcher stopped", "batches", b.batches.Load())
	})
}

// Batches returns the number of backend calls made so far.
func (b *Batcher) Batches() int64 {
	return b.batches.Load()
}

// Prepare implements synctypes.Preparer.
//
// Errors:
//   - SERVICE_UNAVAILABLE if the batcher is not running.
func (b *Batcher) Prepare(ctx context.Context, req synctypes.PrepareRequest) (synctypes.PrepareResponse, error) {
	if !b.started.Load() {
		return synctypes.PrepareResponse{}, errors.New(errors.CodeUnavailable, "batcher.prepare", "batcher not started")
	}

	call := &prepareCall{ctx: ctx, req: req, resp: make(chan prepareResult, 1)}
	select {
	case b.requests <- call:
	case <-b.done:
		return synctypes.PrepareResponse{}, errors.New(errors.CodeUnavailable, "batcher.prepare", "batcher shut down")
	case <-ctx.Done():
		return synctypes.PrepareResponse{}, errors.Wrap(ctx.Err(), errors.CodeTimeout, "batcher.prepare", "context done")
	}

	select {
	case r := <-call.resp:
		return r.resp, r.err
	case <-ctx.Done():
		return synctypes.PrepareResponse{}, errors.Wrap(ctx.Err(), errors.CodeTimeout, "batcher.prepare", "context done")
	}
}

func (b *Batcher) loop() {
	defer b.wg.Done()
	for {
		select {
		case first := <-b.requests:
			b.flush(b.collect(first))
		case <-b.done:
			return
		}
	}
}

func (b *Batcher) collect(first *prepareCall) []*prepareCall {
	batch := []*prepareCall{first}
	deadline := time.NewTimer(b.batchTime)
	defer deadline.Stop()
	idle := time.NewTimer(b.interEventTime)
	defer idle.Stop()

	for len(batch) < b.maxBatchSize {
		select {
		case c := <-b.requests:
			batch = append(batch, c)
			idle.Reset(b.interEventTime)
		case <-idle.C:
			return batch
		case <-deadline.C:
			return batch
		case <-b.done:
			return batch
		}
	}
	return batch
}

func (b *Batcher) flush(batch []*prepareCall) {
	live := batch[:0]
	for _, c := range batch {
		if err := c.ctx.Err(); err != nil {
			c.resp <- prepareResult{err: errors.Wrap(err, errors.CodeTimeout, "batcher.prepare", "context done")}
			continue
		}
		live = append(live, c)
	}
	if len(live) == 0 {
		return
	}

	ctx := context.WithoutCancel(live[0].ctx)
	if err := b.limiter.Wait(ctx); err != nil {
		b.fail(live, errors.Wrap(err, errors.CodeRateLimit, "batcher.prepare", "rate limiter"))
		return
	}

	reqs := make([]synctypes.PrepareRequest, len(live))
	for i, c := range live {
		reqs[i] = c.req
	}
	b.batches.Add(1)
	resps, err := b.api.CreateArtifactFiles(ctx, reqs)
	if err != nil {
		b.fail(live, err)
		return
	}
	if len(resps) != len(live) {
		b.fail(live, errors.Newf(errors.CodeProtocol, "batcher.prepare",
			"backend returned %d responses for %d requests", len(resps), len(live)))
		return
	}
	b.logger.Debug("prepared batch", "files", len(live))
	for i, c := range live {
		c.resp <- prepareResult{resp: resps[i]}
	}
}

func (b *Batcher) fail(batch []*prepareCall, err error) {
	b.logger.Error("prepare batch failed", "files", len(batch), "error", err)
	for _, c := range batch {
		c.resp <- prepareResult{err: err}
	}
}
