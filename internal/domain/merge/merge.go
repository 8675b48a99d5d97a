// Package merge folds newly observed events into a competitor's history and
// decides, by recency, how much detail each new event keeps.
package merge

import (
	"context"
	"time"

	"github.com/okian/pitwall/internal/domain/model"
	"github.com/okian/pitwall/internal/domain/profile"
	"github.com/okian/pitwall/internal/domain/record"
	"github.com/okian/pitwall/pkg/logger"
	"github.com/okian/pitwall/pkg/metrics"
)

// Decision is the outcome for one event of a batch.
type Decision string

const (
	DecisionRich     Decision = "rich"
	DecisionSparse   Decision = "sparse"
	DecisionExisting Decision = "existing"
	DecisionDropped  Decision = "dropped"
)

// richWindow is how many of the most recent events of a fresh batch keep
// value and trend.
const richWindow = 2

// Classify returns the record kind for the event at index in a batch of size
// events ordered oldest first: the last two are Rich, the rest Sparse.
func Classify(index, size int) record.Kind {
	remaining := size - 1 - index
	if remaining >= 0 && remaining < richWindow {
		return record.Rich
	}
	return record.Sparse
}

// Result summarises one Merge call.
type Result struct {
	Added    bool     `json:"added"`
	Inserted []string `json:"inserted,omitempty"`
	Dropped  []string `json:"dropped,omitempty"`
	Existing int      `json:"existing"`
	// Stale is set when the observation predates the profile's newest one.
	Stale bool `json:"stale,omitempty"`
}

// Option applies a configuration option to the Merger.
type Option func(*Merger)

// WithLogger sets the logger that receives one entry per decision.
func WithLogger(l logger.Logger) Option {
	return func(m *Merger) {
		if l != nil {
			m.logger = l
		}
	}
}

// Merger seeds new profiles and merges batches into existing ones. It keeps
// no state between calls.
type Merger struct {
	logger logger.Logger
}

// New creates a Merger.
func New(opts ...Option) *Merger {
	m := &Merger{logger: logger.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Seed creates the profile of a competitor seen for the first time. The last
// two events of the batch are recorded Rich with the observed value and
// trend; older ones are recorded Sparse.
func (m *Merger) Seed(ctx context.Context, obs model.Observation) *profile.Profile {
	p := profile.New(obs.Competitor, obs.Value, obs.Trend)
	p.Observe(obs.ObservedAt)
	events := normalize(obs.Events)
	for i, e := range events {
		kind := Classify(i, len(events))
		rec := record.NewSparse(e.Points)
		decision := DecisionSparse
		if kind == record.Rich {
			rec = record.NewRich(e.Points, obs.Value, obs.Trend)
			decision = DecisionRich
		}
		p.Add(e.Name, rec)
		m.decide(ctx, obs.Competitor, e, decision, len(events)-1-i)
	}
	metrics.RecordCompetitorSeeded()
	m.logger.Info(ctx, "seeded competitor",
		logger.String("competitor", obs.Competitor),
		logger.Int("events", p.Len()),
		logger.Float64("value", obs.Value),
	)
	return p
}

// Merge refreshes p's value and trend, then walks the batch with a countdown
// of remaining events. Events already in the history are left untouched.
// A new event is inserted Rich while the countdown is not zero; the new
// event processed at countdown zero is not inserted.
//
// An observation older than the newest one applied to p leaves value and
// trend alone, and its new events are inserted Sparse.
func (m *Merger) Merge(ctx context.Context, p *profile.Profile, obs model.Observation) Result {
	var res Result
	if p.Stale(obs.ObservedAt) {
		res.Stale = true
		m.logger.Warn(ctx, "stale observation, value kept",
			logger.String("competitor", p.Name),
			logger.String("observed_at", obs.ObservedAt.Format(time.RFC3339Nano)),
			logger.String("newest", p.ObservedAt.Format(time.RFC3339Nano)),
		)
	} else {
		p.Refresh(obs.Value, obs.Trend)
		p.Observe(obs.ObservedAt)
	}

	events := normalize(obs.Events)
	remaining := len(events) - 1
	for _, e := range events {
		switch {
		case p.Has(e.Name):
			res.Existing++
			m.decide(ctx, p.Name, e, DecisionExisting, remaining)
		case remaining != 0 && res.Stale:
			p.Add(e.Name, record.NewSparse(e.Points))
			res.Inserted = append(res.Inserted, e.Name)
			m.decide(ctx, p.Name, e, DecisionSparse, remaining)
		case remaining != 0:
			p.Add(e.Name, record.NewRich(e.Points, obs.Value, obs.Trend))
			res.Inserted = append(res.Inserted, e.Name)
			m.decide(ctx, p.Name, e, DecisionRich, remaining)
		default:
			// Newest new event of the batch: not recorded.
			res.Dropped = append(res.Dropped, e.Name)
			m.decide(ctx, p.Name, e, DecisionDropped, remaining)
		}
		remaining--
	}
	res.Added = len(res.Inserted) > 0

	if res.Added {
		metrics.RecordMergeWithNewEvents()
		m.logger.Info(ctx, "merged new events",
			logger.String("competitor", p.Name),
			logger.Int("inserted", len(res.Inserted)),
			logger.Int("dropped", len(res.Dropped)),
		)
	} else {
		m.logger.Debug(ctx, "no new events",
			logger.String("competitor", p.Name),
			logger.Int("existing", res.Existing),
		)
	}
	return res
}

func (m *Merger) decide(ctx context.Context, competitor string, e model.EventPoints, d Decision, remaining int) {
	metrics.RecordMergeDecision(string(d))
	m.logger.Debug(ctx, "merge decision",
		logger.String("competitor", competitor),
		logger.String("event", e.Name),
		logger.Int("points", e.Points),
		logger.String("decision", string(d)),
		logger.Int("remaining", remaining),
	)
}

// normalize collapses repeated event names: the first position is kept and
// the last points value wins.
func normalize(events []model.EventPoints) []model.EventPoints {
	out := make([]model.EventPoints, 0, len(events))
	pos := make(map[string]int, len(events))
	for _, e := range events {
		if i, ok := pos[e.Name]; ok {
			out[i].Points = e.Points
			continue
		}
		pos[e.Name] = len(out)
		out = append(out, e)
	}
	return out
}
