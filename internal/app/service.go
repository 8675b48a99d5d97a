// Package service wires the roster, the merge and threshold engines, the
// ingestion pipeline and the snapshot store behind one API used by the HTTP
// server and the CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	eventqueue "github.com/okian/pitwall/internal/adapters/mq/queue"
	workerpool "github.com/okian/pitwall/internal/adapters/mq/worker"
	repository "github.com/okian/pitwall/internal/adapters/repository"
	"github.com/okian/pitwall/internal/adapters/snapshot"
	"github.com/okian/pitwall/internal/domain/dedupe"
	"github.com/okian/pitwall/internal/domain/merge"
	"github.com/okian/pitwall/internal/domain/model"
	"github.com/okian/pitwall/internal/domain/profile"
	"github.com/okian/pitwall/internal/domain/report"
	"github.com/okian/pitwall/internal/domain/threshold"
	"github.com/okian/pitwall/internal/domain/types"
	"github.com/okian/pitwall/pkg/logger"
	"github.com/okian/pitwall/pkg/metrics"
)

// Sentinel kinds for service errors.
var (
	ErrNotStarted = errors.New("service not started")
	ErrNoSnapshot = errors.New("no snapshot store configured")
)

// Outcome describes what one ingested observation changed.
type Outcome struct {
	Competitor string       `json:"competitor"`
	Created    bool         `json:"created"`
	Merge      merge.Result `json:"merge"`
}

// SubmitResult is returned by Submit.
type SubmitResult struct {
	ID        string `json:"id"`
	Duplicate bool   `json:"duplicate"`
}

// Summary reports a roster-wide threshold recomputation.
type Summary struct {
	Computed int               `json:"computed"`
	Failed   int               `json:"failed"`
	Errors   map[string]string `json:"errors,omitempty"`
}

// Service implements the dependencies of the HTTP API and the CLI.
type Service struct {
	mu sync.RWMutex

	roster    *repository.InMemoryRoster
	merger    *merge.Merger
	predictor *threshold.Predictor
	deduper   dedupe.Deduper
	queue     *eventqueue.InMemoryQueue
	pool      *workerpool.Pool
	store     *snapshot.FileStore

	workerCount      int
	queueSize        int
	dedupeSize       int
	snapshotPath     string
	snapshotInterval time.Duration
	tierA            float64
	tiers            [3]float64
	searchStart      int
	searchMaxSteps   int

	started   bool
	runCancel context.CancelFunc
	loopDone  chan struct{}
	ingested  atomic.Int64

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of ingestion workers and the fan-out of
// Recompute.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the observation queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many observation IDs are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithSnapshot enables persistence at path. A positive interval also saves
// periodically while the service runs.
func WithSnapshot(path string, interval time.Duration) Option {
	return func(s *Service) {
		s.snapshotPath = path
		s.snapshotInterval = interval
	}
}

// WithTiers sets the poor, good and excellent averages.
func WithTiers(poor, good, excellent float64) Option {
	return func(s *Service) {
		s.tiers = [3]float64{poor, good, excellent}
	}
}

// WithSearch sets the threshold search start and step budget.
func WithSearch(start, maxSteps int) Option {
	return func(s *Service) {
		s.searchStart = start
		if maxSteps > 0 {
			s.searchMaxSteps = maxSteps
		}
	}
}

// WithTierAValue sets the tier "A" cut used by reports.
func WithTierAValue(v float64) Option {
	return func(s *Service) {
		s.tierA = v
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New constructs a Service. Its synchronous operations are usable right
// away; Start is only needed for queued ingestion and periodic snapshots.
func New(ctx context.Context, opts ...Option) (*Service, error) {
	s := &Service{
		workerCount:    runtime.NumCPU(),
		queueSize:      1024,
		dedupeSize:     dedupe.DefaultMaxSize,
		tierA:          report.DefaultTierA,
		tiers:          [3]float64{threshold.DefaultPoor, threshold.DefaultGood, threshold.DefaultExcellent},
		searchStart:    threshold.DefaultSearchStart,
		searchMaxSteps: threshold.DefaultMaxSteps,
		logger:         logger.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	predictor, err := threshold.New(
		threshold.WithTiers(s.tiers[0], s.tiers[1], s.tiers[2]),
		threshold.WithSearchStart(s.searchStart),
		threshold.WithMaxSteps(s.searchMaxSteps),
		threshold.WithLogger(s.logger.Named("threshold")),
	)
	if err != nil {
		return nil, err
	}
	s.predictor = predictor
	s.merger = merge.New(merge.WithLogger(s.logger.Named("merge")))
	s.roster = repository.NewInMemoryRoster(ctx)
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	if s.snapshotPath != "" {
		s.store = snapshot.NewFileStore(s.snapshotPath, snapshot.WithLogger(s.logger.Named("snapshot")))
	}
	return s, nil
}

// Start launches the worker pool and, when configured, the snapshot loop.
// Every Start gets a fresh queue and pool, so a stopped service can be
// started again.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting pitwall service...")

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.runCancel = cancel
	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.pool = workerpool.NewPool(s.workerCount, s.queue, s, s.logger)
	s.pool.Start(runCtx)

	s.loopDone = make(chan struct{})
	if s.store != nil && s.snapshotInterval > 0 {
		go s.snapshotLoop(runCtx)
	} else {
		close(s.loopDone)
	}

	s.started = true
	s.logger.Info(ctx, "pitwall service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

// Stop drains queued observations, writes a final snapshot and releases
// background goroutines.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		_ = s.roster.Close()
		return nil
	}
	s.logger.Info(ctx, "stopping pitwall service...")

	var errs []error
	if err := s.pool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	s.runCancel()
	<-s.loopDone

	if s.store != nil {
		if err := s.save(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	_ = s.roster.Close()

	s.started = false
	s.logger.Info(ctx, "pitwall service stopped")
	return errors.Join(errs...)
}

func (s *Service) snapshotLoop(ctx context.Context) {
	defer close(s.loopDone)
	ticker := time.NewTicker(s.snapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.save(ctx); err != nil {
				s.logger.Error(ctx, "periodic snapshot failed", logger.Error(err))
			}
		}
	}
}

// Submit validates obs and queues it for asynchronous ingestion. An empty ID
// is replaced by a random one. A previously seen ID is reported as a
// duplicate and not queued again.
func (s *Service) Submit(ctx context.Context, obs model.Observation) (SubmitResult, error) { //nolint:gocritic // hugeParam: observation is copied before queuing
	s.mu.RLock()
	started, queue := s.started, s.queue
	s.mu.RUnlock()
	if !started {
		return SubmitResult{}, ErrNotStarted
	}

	if err := obs.Validate(); err != nil {
		metrics.RecordObservationRejected("invalid")
		return SubmitResult{}, err
	}
	if obs.ID == "" {
		obs.ID = uuid.NewString()
	}
	if obs.ObservedAt.IsZero() {
		obs.ObservedAt = time.Now().UTC()
	}

	if s.deduper.SeenAndRecord(ctx, obs.ID) {
		metrics.RecordObservationDuplicate()
		s.logger.Debug(ctx, "duplicate observation, skipping",
			logger.String("observation_id", obs.ID),
			logger.String("competitor", obs.Competitor),
		)
		return SubmitResult{ID: obs.ID, Duplicate: true}, nil
	}

	if err := queue.Enqueue(ctx, obs); err != nil {
		s.deduper.Unrecord(ctx, obs.ID)
		metrics.RecordObservationRejected("queue")
		return SubmitResult{ID: obs.ID}, err
	}
	return SubmitResult{ID: obs.ID}, nil
}

// Ingest applies obs synchronously. It satisfies the worker Ingester.
func (s *Service) Ingest(ctx context.Context, obs model.Observation) error { //nolint:gocritic // hugeParam: matches the Ingester contract
	_, err := s.Apply(ctx, obs)
	return err
}

// Apply seeds a new competitor or merges obs into the existing profile. An
// observation without ObservedAt is stamped with the current time; one older
// than the profile's newest observation only contributes Sparse events.
func (s *Service) Apply(ctx context.Context, obs model.Observation) (Outcome, error) { //nolint:gocritic // hugeParam: observation is read only
	if err := obs.Validate(); err != nil {
		metrics.RecordObservationRejected("invalid")
		return Outcome{}, err
	}
	if obs.ObservedAt.IsZero() {
		obs.ObservedAt = time.Now().UTC()
	}

	out := Outcome{Competitor: obs.Competitor}
	created, err := s.roster.UpdateOrCreate(ctx, obs.Competitor,
		func() *profile.Profile { return s.merger.Seed(ctx, obs) },
		func(p *profile.Profile) error {
			out.Merge = s.merger.Merge(ctx, p, obs)
			return nil
		},
	)
	if err != nil {
		metrics.RecordObservationRejected("roster")
		return Outcome{}, fmt.Errorf("apply observation for %q: %w", obs.Competitor, err)
	}
	out.Created = created

	s.ingested.Add(1)
	metrics.RecordObservationProcessed()
	metrics.UpdateRosterSize(s.roster.Count(ctx))
	return out, nil
}

// Recompute refreshes the cached thresholds of every competitor in parallel.
// A competitor that cannot be computed is listed in the summary and keeps
// its previous thresholds. The error is non-nil only when ctx ends first.
func (s *Service) Recompute(ctx context.Context) (Summary, error) {
	profiles := s.roster.List(ctx)
	sum := Summary{Errors: make(map[string]string)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workerCount)
	for _, p := range profiles {
		name := p.Name
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			err := s.roster.Update(gctx, name, func(p *profile.Profile) error {
				_, err := s.predictor.Compute(gctx, p)
				return err
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				sum.Failed++
				sum.Errors[name] = err.Error()
				return nil
			}
			sum.Computed++
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return sum, err
	}

	s.logger.Info(ctx, "thresholds recomputed",
		logger.Int("computed", sum.Computed),
		logger.Int("failed", sum.Failed),
	)
	return sum, nil
}

// Competitor returns the full view of one competitor.
func (s *Service) Competitor(ctx context.Context, name string) (types.Competitor, error) {
	p, err := s.roster.Get(ctx, name)
	if err != nil {
		return types.Competitor{}, err
	}
	return types.NewCompetitor(p, report.TierWithCut(p.Value, s.tierA), true), nil
}

// Profile returns a copy of the named profile.
func (s *Service) Profile(ctx context.Context, name string) (*profile.Profile, error) {
	return s.roster.Get(ctx, name)
}

// Competitors returns summary views ordered by name.
func (s *Service) Competitors(ctx context.Context) []types.Competitor {
	profiles := s.roster.List(ctx)
	out := make([]types.Competitor, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, types.NewCompetitor(p, report.TierWithCut(p.Value, s.tierA), false))
	}
	return out
}

// Report ranks the roster. A non-positive limit returns every row.
func (s *Service) Report(ctx context.Context, limit int) []report.Row {
	return report.Build(s.roster.List(ctx), report.WithTierA(s.tierA), report.WithLimit(limit))
}

// Save writes the roster snapshot.
func (s *Service) Save(ctx context.Context) error {
	if s.store == nil {
		return ErrNoSnapshot
	}
	return s.save(ctx)
}

func (s *Service) save(ctx context.Context) error {
	return s.store.Save(ctx, s.roster.List(ctx))
}

// Load replaces the roster with the snapshot content.
func (s *Service) Load(ctx context.Context) error {
	if s.store == nil {
		return ErrNoSnapshot
	}
	profiles, err := s.store.Load(ctx)
	if err != nil {
		return err
	}
	if err := s.roster.Replace(ctx, profiles); err != nil {
		return err
	}
	s.logger.Info(ctx, "roster loaded",
		logger.String("path", s.store.Path()),
		logger.Int("competitors", len(profiles)),
	)
	return nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
		"competitors": s.roster.Count(ctx),
		"ingested":    s.ingested.Load(),
		"dedupeIDs":   s.deduper.Size(),
	}
	if s.started {
		stats["queueLength"] = s.queue.Len(ctx)
		stats["processed"] = s.pool.Processed()
	}
	return stats
}
