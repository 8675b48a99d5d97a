// Package threshold predicts the points a competitor needs at the next event
// to reach each performance tier.
package threshold

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/okian/pitwall/internal/domain/profile"
	"github.com/okian/pitwall/pkg/logger"
	"github.com/okian/pitwall/pkg/metrics"
)

// Default tier averages and search parameters.
const (
	DefaultPoor        = 0.6
	DefaultGood        = 0.9
	DefaultExcellent   = 1.2
	DefaultSearchStart = -1000
	DefaultMaxSteps    = 1_000_000
)

// window is the number of recent events averaged with the candidate.
const window = 2

var (
	ErrNonPositiveValue    = errors.New("non-positive value")
	ErrInsufficientHistory = errors.New("insufficient history")
	ErrSearchExhausted     = errors.New("threshold search exhausted")
	ErrInvalidTiers        = errors.New("tiers must be finite and non-decreasing")
)

// DomainError is returned for a competitor whose thresholds cannot be
// computed. Event is set when a specific history entry is at fault.
type DomainError struct {
	Competitor string
	Event      string
	Err        error
}

func (e *DomainError) Error() string {
	if e.Event != "" {
		return fmt.Sprintf("competitor %q event %q: %v", e.Competitor, e.Event, e.Err)
	}
	return fmt.Sprintf("competitor %q: %v", e.Competitor, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// Tier is a named average points-per-value target.
type Tier struct {
	Name   string
	Target float64
}

// Option configures a Predictor.
type Option func(*Predictor)

// WithTiers overrides the poor, good and excellent targets.
func WithTiers(poor, good, excellent float64) Option {
	return func(p *Predictor) {
		p.tiers = [3]Tier{{"poor", poor}, {"good", good}, {"excellent", excellent}}
	}
}

// WithSearchStart sets the first candidate tried.
func WithSearchStart(start int) Option {
	return func(p *Predictor) { p.start = start }
}

// WithMaxSteps bounds the number of increments across all tiers.
func WithMaxSteps(n int) Option {
	return func(p *Predictor) {
		if n > 0 {
			p.maxSteps = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Predictor) {
		if l != nil {
			p.logger = l
		}
	}
}

// Predictor computes tier thresholds. It is stateless between calls and safe
// for concurrent use on distinct profiles.
type Predictor struct {
	tiers    [3]Tier
	start    int
	maxSteps int
	logger   logger.Logger
}

// New creates a Predictor with the default tiers unless overridden.
func New(opts ...Option) (*Predictor, error) {
	p := &Predictor{
		tiers:    [3]Tier{{"poor", DefaultPoor}, {"good", DefaultGood}, {"excellent", DefaultExcellent}},
		start:    DefaultSearchStart,
		maxSteps: DefaultMaxSteps,
		logger:   logger.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	for i, t := range p.tiers {
		if math.IsNaN(t.Target) || math.IsInf(t.Target, 0) {
			return nil, fmt.Errorf("%w: %s is %v", ErrInvalidTiers, t.Name, t.Target)
		}
		if i > 0 && t.Target < p.tiers[i-1].Target {
			return nil, fmt.Errorf("%w: %s %.2f below %s %.2f", ErrInvalidTiers,
				t.Name, t.Target, p.tiers[i-1].Name, p.tiers[i-1].Target)
		}
	}
	return p, nil
}

// Tiers returns the configured tiers in search order.
func (p *Predictor) Tiers() []Tier {
	return p.tiers[:]
}

// Compute finds, for each tier in order, the smallest integer candidate c
// such that the mean of the two most recent race PPMs and c/value reaches the
// tier. Each search resumes where the previous one stopped. On success the
// result is cached on prof.
func (p *Predictor) Compute(ctx context.Context, prof *profile.Profile) (profile.Thresholds, error) {
	th, steps, err := p.compute(ctx, prof)
	if err != nil {
		metrics.RecordThresholdComputation(outcome(err))
		p.logger.Warn(ctx, "threshold computation failed",
			logger.String("competitor", prof.Name),
			logger.Error(err),
		)
		return profile.Thresholds{}, err
	}
	metrics.RecordThresholdComputation("ok")
	metrics.RecordThresholdSearchSteps(steps)
	prof.SetThresholds(th)
	return prof.Thresholds, nil
}

func (p *Predictor) compute(ctx context.Context, prof *profile.Profile) (profile.Thresholds, int, error) {
	value := prof.Value
	if value <= 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		return profile.Thresholds{}, 0, &DomainError{
			Competitor: prof.Name,
			Err:        fmt.Errorf("%w: value %v", ErrNonPositiveValue, value),
		}
	}

	recent := prof.Recent(window)
	if len(recent) < window {
		return profile.Thresholds{}, 0, &DomainError{
			Competitor: prof.Name,
			Err:        fmt.Errorf("%w: %d of %d events", ErrInsufficientHistory, len(recent), window),
		}
	}

	var sum float64
	for _, e := range recent {
		ppm, err := e.Record.RacePPM()
		if err != nil {
			return profile.Thresholds{}, 0, &DomainError{
				Competitor: prof.Name,
				Event:      e.Event,
				Err:        fmt.Errorf("%w: %w", ErrNonPositiveValue, err),
			}
		}
		sum += ppm
	}

	var found [3]int
	candidate := p.start
	steps := 0
	for i, tier := range p.tiers {
		for (sum+float64(candidate)/value)/float64(window+1) < tier.Target {
			if steps >= p.maxSteps {
				return profile.Thresholds{}, steps, &DomainError{
					Competitor: prof.Name,
					Err:        fmt.Errorf("%w: %s not reached after %d steps", ErrSearchExhausted, tier.Name, steps),
				}
			}
			candidate++
			steps++
		}
		found[i] = candidate
		p.logger.Info(ctx, "threshold found",
			logger.String("competitor", prof.Name),
			logger.String("tier", tier.Name),
			logger.Float64("target", tier.Target),
			logger.Int("points", candidate),
		)
	}

	return profile.Thresholds{ToPoor: found[0], ToGood: found[1], ToExcellent: found[2]}, steps, nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrNonPositiveValue):
		return "non_positive_value"
	case errors.Is(err, ErrInsufficientHistory):
		return "insufficient_history"
	case errors.Is(err, ErrSearchExhausted):
		return "search_exhausted"
	default:
		return "error"
	}
}
