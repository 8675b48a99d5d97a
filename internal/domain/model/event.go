// Package model contains domain models passed between layers.
package model

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Sentinel kinds for observation validation.
var (
	ErrInvalidObservation = errors.New("invalid observation")
	ErrOutOfOrder         = errors.New("events not ordered oldest first")
)

// EventPoints is the score a competitor obtained at one event.
// Round is an optional ordinal (1-based). When every event in a batch carries
// one, the batch must be strictly ascending.
type EventPoints struct {
	Name   string `json:"name" yaml:"name"`
	Points int    `json:"points" yaml:"points"`
	Round  int    `json:"round,omitempty" yaml:"round,omitempty"`
}

// Observation is what the acquisition side reports for one competitor:
// current value, latest value movement, and the events seen so far ordered
// oldest first.
type Observation struct {
	ID         string        `json:"id,omitempty" yaml:"id,omitempty"`
	Competitor string        `json:"competitor" yaml:"competitor"`
	Value      float64       `json:"value" yaml:"value"`
	Trend      float64       `json:"trend" yaml:"trend"`
	Events     []EventPoints `json:"events" yaml:"events"`
	ObservedAt time.Time     `json:"observed_at,omitempty" yaml:"observed_at,omitempty"`
}

// Validate checks the fields the merge relies on and the ordering contract.
func (o *Observation) Validate() error {
	switch {
	case strings.TrimSpace(o.Competitor) == "":
		return fmt.Errorf("%w: missing competitor", ErrInvalidObservation)
	case !finite(o.Value):
		return fmt.Errorf("%w: value is not a finite number", ErrInvalidObservation)
	case !finite(o.Trend):
		return fmt.Errorf("%w: trend is not a finite number", ErrInvalidObservation)
	}

	withRound := 0
	for i, e := range o.Events {
		if strings.TrimSpace(e.Name) == "" {
			return fmt.Errorf("%w: event %d has no name", ErrInvalidObservation, i)
		}
		if e.Round != 0 {
			withRound++
		}
	}
	if withRound == 0 || withRound != len(o.Events) {
		return nil
	}
	for i := 1; i < len(o.Events); i++ {
		if o.Events[i].Round <= o.Events[i-1].Round {
			return fmt.Errorf("%w: %q (round %d) after %q (round %d)", ErrOutOfOrder,
				o.Events[i].Name, o.Events[i].Round, o.Events[i-1].Name, o.Events[i-1].Round)
		}
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
