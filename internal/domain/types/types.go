// Package types contains view types shared by the HTTP API and the CLI.
package types

import "github.com/okian/pitwall/internal/domain/profile"

// HistoryLine is one event rendered in the record text form.
type HistoryLine struct {
	Event  string `json:"event"`
	Kind   string `json:"kind"`
	Record string `json:"record"`
}

// Competitor is the public view of a profile.
type Competitor struct {
	Name       string             `json:"name"`
	Tier       string             `json:"tier"`
	Value      float64            `json:"value"`
	Trend      float64            `json:"trend"`
	Events     int                `json:"events"`
	History    []HistoryLine      `json:"history,omitempty"`
	Thresholds profile.Thresholds `json:"thresholds"`
}

// NewCompetitor builds the view of p. When withHistory is false only the
// event count is filled.
func NewCompetitor(p *profile.Profile, tier string, withHistory bool) Competitor {
	c := Competitor{
		Name:       p.Name,
		Tier:       tier,
		Value:      p.Value,
		Trend:      p.Trend,
		Events:     p.Len(),
		Thresholds: p.Thresholds,
	}
	if !withHistory {
		return c
	}
	for _, e := range p.History() {
		c.History = append(c.History, HistoryLine{
			Event:  e.Event,
			Kind:   string(e.Record.Kind),
			Record: e.Record.String(),
		})
	}
	return c
}
