// Package profile holds a competitor's identity, current value and ordered
// event history.
package profile

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/okian/pitwall/internal/domain/record"
)

// Entry pairs an event name with the record stored for it.
type Entry struct {
	Event  string        `json:"event"`
	Record record.Record `json:"record"`
}

// Thresholds caches the minimal next-event points needed to reach each
// performance tier. Computed is false until a prediction succeeded.
type Thresholds struct {
	ToPoor      int  `json:"to_poor"`
	ToGood      int  `json:"to_good"`
	ToExcellent int  `json:"to_excellent"`
	Computed    bool `json:"computed"`
}

// Profile is a single competitor. History order is insertion order and the
// last entry is the most recent event.
//
// A Profile is not safe for concurrent use; the roster hands out exclusive
// access for mutations.
type Profile struct {
	Name       string
	Value      float64
	Trend      float64
	Thresholds Thresholds
	// ObservedAt is the time of the newest observation applied. Zero when
	// unknown.
	ObservedAt time.Time

	history []Entry
	index   map[string]struct{}
}

// New creates a profile with an empty history.
func New(name string, value, trend float64) *Profile {
	return &Profile{
		Name:  name,
		Value: value,
		Trend: trend,
		index: make(map[string]struct{}),
	}
}

// Add appends event with rec unless the event is already present. It
// reports whether the history changed.
func (p *Profile) Add(event string, rec record.Record) bool {
	if p.index == nil {
		p.index = make(map[string]struct{})
	}
	if _, ok := p.index[event]; ok {
		return false
	}
	p.index[event] = struct{}{}
	p.history = append(p.history, Entry{Event: event, Record: rec})
	return true
}

// Has reports whether event is in the history.
func (p *Profile) Has(event string) bool {
	_, ok := p.index[event]
	return ok
}

// Len returns the number of events recorded.
func (p *Profile) Len() int { return len(p.history) }

// History returns a copy of the full history, oldest first.
func (p *Profile) History() []Entry {
	out := make([]Entry, len(p.history))
	copy(out, p.history)
	return out
}

// Recent returns up to n most recent entries, oldest first.
func (p *Profile) Recent(n int) []Entry {
	if n <= 0 {
		return nil
	}
	start := len(p.history) - n
	if start < 0 {
		start = 0
	}
	out := make([]Entry, len(p.history)-start)
	copy(out, p.history[start:])
	return out
}

// Refresh overwrites the current value and trend.
func (p *Profile) Refresh(value, trend float64) {
	p.Value = value
	p.Trend = trend
}

// Stale reports whether an observation made at at predates the newest one
// already applied. A zero time is never stale.
func (p *Profile) Stale(at time.Time) bool {
	return !at.IsZero() && at.Before(p.ObservedAt)
}

// Observe advances ObservedAt to at when at is newer.
func (p *Profile) Observe(at time.Time) {
	if at.After(p.ObservedAt) {
		p.ObservedAt = at
	}
}

// SetThresholds stores a computed result.
func (p *Profile) SetThresholds(t Thresholds) {
	t.Computed = true
	p.Thresholds = t
}

// Clone returns a deep copy.
func (p *Profile) Clone() *Profile {
	c := New(p.Name, p.Value, p.Trend)
	c.Thresholds = p.Thresholds
	c.ObservedAt = p.ObservedAt
	c.history = p.History()
	for _, e := range c.history {
		c.index[e.Event] = struct{}{}
	}
	return c
}

// String renders the profile with its last three events.
func (p *Profile) String() string {
	s := fmt.Sprintf("%s ($%.1fM)\n", p.Name, p.Value)
	for _, e := range p.Recent(3) {
		s += fmt.Sprintf("  %s: %s\n", e.Event, e.Record)
	}
	return s
}

type profileJSON struct {
	Name       string     `json:"name"`
	Value      float64    `json:"value"`
	Trend      float64    `json:"trend"`
	History    []Entry    `json:"history"`
	Thresholds Thresholds `json:"thresholds"`
	ObservedAt *time.Time `json:"observed_at,omitempty"`
}

// MarshalJSON writes the history as an ordered array.
func (p *Profile) MarshalJSON() ([]byte, error) {
	h := p.history
	if h == nil {
		h = []Entry{}
	}
	raw := profileJSON{
		Name:       p.Name,
		Value:      p.Value,
		Trend:      p.Trend,
		History:    h,
		Thresholds: p.Thresholds,
	}
	if !p.ObservedAt.IsZero() {
		at := p.ObservedAt
		raw.ObservedAt = &at
	}
	return json.Marshal(raw)
}

// UnmarshalJSON restores a profile. Duplicate event names are rejected.
func (p *Profile) UnmarshalJSON(b []byte) error {
	var raw profileJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	restored := New(raw.Name, raw.Value, raw.Trend)
	restored.Thresholds = raw.Thresholds
	if raw.ObservedAt != nil {
		restored.ObservedAt = *raw.ObservedAt
	}
	for _, e := range raw.History {
		if !restored.Add(e.Event, e.Record) {
			return fmt.Errorf("profile %q: duplicate event %q", raw.Name, e.Event)
		}
	}
	*p = *restored
	return nil
}
