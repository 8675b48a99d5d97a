// Package record encodes a competitor's result at a single event into the
// one-line text form used across the roster, and decodes it back.
//
// Two shapes exist. A rich line keeps the points scored together with the
// competitor's value and value trend when the event was recorded:
//
//	12 pts | $4.5M | +0.1M
//
// A sparse line keeps only the points:
//
//	12 pts
package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Kind tags the shape of a Record.
type Kind string

const (
	Rich   Kind = "rich"
	Sparse Kind = "sparse"
)

// decimalPlaces is the precision of value and trend in the text form.
const decimalPlaces = 1

var (
	richPattern   = regexp.MustCompile(`([-+]?\d+)\s+pts\s+\|\s+\$(\d+[,.]\d+)M\s+\|\s+([-+]?\d+[,.]\d+)M`)
	sparsePattern = regexp.MustCompile(`([-+]?\d+)\s+pts`)
)

var (
	// ErrParse is matched by every *ParseError.
	ErrParse = errors.New("unrecognised record")
	// ErrZeroRaceValue is returned by RacePPM when value minus trend is zero.
	ErrZeroRaceValue = errors.New("race value is zero")
)

// ParseError reports text that matches neither the rich nor the sparse form.
type ParseError struct {
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse record %q: %v", e.Text, e.Err)
	}
	return fmt.Sprintf("parse record %q: %v", e.Text, ErrParse)
}

// Is lets errors.Is(err, ErrParse) match.
func (e *ParseError) Is(target error) bool { return target == ErrParse }

func (e *ParseError) Unwrap() error { return e.Err }

// Record is one event's result for one competitor.
type Record struct {
	Kind   Kind    `json:"kind"`
	Points int     `json:"points"`
	Value  float64 `json:"value,omitempty"`
	Trend  float64 `json:"trend,omitempty"`
}

// NewRich builds a rich record. Value and trend are kept at the precision of
// the text form, so a record computes the same PPM before and after a trip
// through Encode and Decode.
func NewRich(points int, value, trend float64) Record {
	return Record{Kind: Rich, Points: points, Value: round(value), Trend: round(trend)}
}

// NewSparse builds a points-only record.
func NewSparse(points int) Record {
	return Record{Kind: Sparse, Points: points}
}

// IsRich reports whether r kept value and trend.
func (r Record) IsRich() bool { return r.Kind == Rich }

// RaceValue is the value the competitor had going into the event: the
// recorded value with the latest movement taken back out.
func (r Record) RaceValue() float64 {
	return r.Value - r.Trend
}

// RacePPM returns points per unit of race value.
func (r Record) RacePPM() (float64, error) {
	rv := r.RaceValue()
	if rv == 0 || math.IsNaN(rv) || math.IsInf(rv, 0) {
		return 0, ErrZeroRaceValue
	}
	return float64(r.Points) / rv, nil
}

// String returns the text form.
func (r Record) String() string { return Encode(r) }

// UnmarshalJSON accepts the object form written by encoding/json and also a
// bare string in the text form.
func (r *Record) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		dec, err := Decode(s)
		if err != nil {
			return err
		}
		*r = dec
		return nil
	}
	type plain Record
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	if p.Kind != Rich && p.Kind != Sparse {
		return &ParseError{Text: string(b), Err: fmt.Errorf("unknown kind %q", p.Kind)}
	}
	if p.Kind == Rich {
		*r = NewRich(p.Points, p.Value, p.Trend)
		return nil
	}
	*r = Record(p)
	return nil
}

// Encode renders r in its text form. Value and trend are rounded half away
// from zero to one decimal place.
func Encode(r Record) string {
	if r.Kind != Rich {
		return fmt.Sprintf("%d pts", r.Points)
	}
	sign := "+"
	if r.Trend < 0 {
		sign = "-"
	}
	value := decimal.NewFromFloat(r.Value).StringFixed(decimalPlaces)
	trend := decimal.NewFromFloat(math.Abs(r.Trend)).StringFixed(decimalPlaces)
	return fmt.Sprintf("%d pts | $%sM | %s%sM", r.Points, value, sign, trend)
}

// Decode parses the text form. The rich form is tried first; a decimal comma
// is accepted in value and trend. When only the points are recognised a
// Sparse record with zero value and trend is returned.
func Decode(text string) (Record, error) {
	if m := richPattern.FindStringSubmatch(text); m != nil {
		points, err := strconv.Atoi(m[1])
		if err != nil {
			return Record{}, &ParseError{Text: text, Err: err}
		}
		value, err := parseDecimal(m[2])
		if err != nil {
			return Record{}, &ParseError{Text: text, Err: err}
		}
		trend, err := parseDecimal(m[3])
		if err != nil {
			return Record{}, &ParseError{Text: text, Err: err}
		}
		return NewRich(points, value, trend), nil
	}

	if m := sparsePattern.FindStringSubmatch(text); m != nil {
		points, err := strconv.Atoi(m[1])
		if err != nil {
			return Record{}, &ParseError{Text: text, Err: err}
		}
		return NewSparse(points), nil
	}

	return Record{}, &ParseError{Text: text}
}

// round rounds half away from zero to decimalPlaces. Non-finite input is
// returned unchanged.
func round(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	f, _ := decimal.NewFromFloat(v).Round(decimalPlaces).Float64()
	return f
}

func parseDecimal(s string) (float64, error) {
	d, err := decimal.NewFromString(strings.Replace(s, ",", ".", 1))
	if err != nil {
		return 0, err
	}
	f, _ := d.Float64()
	return f, nil
}
