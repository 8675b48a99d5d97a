// Package worker drains queued observations into the ingestion service.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/pitwall/internal/domain/model"
	"github.com/okian/pitwall/pkg/logger"
	"github.com/okian/pitwall/pkg/metrics"
)

const (
	metricsUpdateInterval = 5 * time.Second
	poolShutdownTimeout   = 30 * time.Second
)

// Ingester applies one observation to the roster.
type Ingester interface {
	Ingest(ctx context.Context, obs model.Observation) error
}

// Queue defines how workers receive observations.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Observation
}

// Worker processes observations until its channel closes or ctx is done.
type Worker interface {
	Run(ctx context.Context, in <-chan model.Observation)
	Done() <-chan struct{}
}

var _ Worker = (*InMemoryWorker)(nil)

// InMemoryWorker ingests observations one at a time.
type InMemoryWorker struct {
	ingester  Ingester
	name      string
	logger    logger.Logger
	done      chan struct{}
	processed *atomic.Int64
}

// NewInMemoryWorker creates a worker.
func NewInMemoryWorker(ingester Ingester, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		ingester:  ingester,
		name:      "worker",
		logger:    logger.NewNop(),
		done:      make(chan struct{}),
		processed: new(atomic.Int64),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run consumes in until it is closed or ctx is done.
func (w *InMemoryWorker) Run(ctx context.Context, in <-chan model.Observation) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case obs, ok := <-in:
			if !ok {
				return
			}
			if err := w.process(ctx, obs); err != nil {
				w.logger.Error(ctx, "error ingesting observation",
					logger.String("observation_id", obs.ID),
					logger.String("competitor", obs.Competitor),
					logger.Error(err),
				)
			}
		}
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

func (w *InMemoryWorker) process(ctx context.Context, obs model.Observation) error { //nolint:gocritic // hugeParam: passed by value for channel semantics
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	if err := w.ingester.Ingest(ctx, obs); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "ingest_error")
		return fmt.Errorf("ingest observation %s: %w", obs.ID, err)
	}
	w.processed.Add(1)
	return nil
}

// Pool runs a fixed number of workers over one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger

	processed atomic.Int64
	started   atomic.Bool
	startOnce sync.Once
	stop      chan struct{}
	stopOnce  sync.Once
}

// NewPool creates a pool. A non-positive count uses the number of CPUs. A nil
// logger discards output.
func NewPool(workerCount int, queue Queue, ingester Ingester, log logger.Logger) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}
	if log == nil {
		log = logger.NewNop()
	}
	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
		logger:  log.Named("worker-pool"),
		stop:    make(chan struct{}),
	}
	for i := range p.workers {
		w := NewInMemoryWorker(ingester, WithLogger(log), WithName("worker-"+strconv.Itoa(i)))
		w.processed = &p.processed
		p.workers[i] = w
	}
	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Processed returns how many observations were ingested successfully.
func (p *Pool) Processed() int64 { return p.processed.Load() }

// Start launches the workers on a shared dequeue channel.
func (p *Pool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		p.started.Store(true)
		in := p.queue.Dequeue(ctx)
		for _, w := range p.workers {
			go w.Run(ctx, in)
		}
		go p.reportThroughput(ctx)
		p.logger.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
	})
}

func (p *Pool) reportThroughput(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case <-ticker.C:
			p.logger.Debug(ctx, "worker pool throughput", logger.Any("processed", p.processed.Load()))
		}
	}
}

// Shutdown closes the queue when it supports closing and waits for the
// workers to drain it.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.stopOnce.Do(func() { close(p.stop) })
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	if !p.started.Load() {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.Done():
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
		}
	}
	metrics.UpdateWorkerCount(0)
	return nil
}
