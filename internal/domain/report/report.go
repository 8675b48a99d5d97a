// Package report ranks competitors by their cached thresholds and renders
// the result as a table.
package report

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/okian/pitwall/internal/domain/profile"
)

// DefaultTierA is the value from which a competitor is tier "A".
const DefaultTierA = 19.0

// TierOf classifies a value with the default cut.
func TierOf(value float64) string {
	return TierWithCut(value, DefaultTierA)
}

// TierWithCut returns "A" when value >= cut, else "B".
func TierWithCut(value, cut float64) string {
	if value >= cut {
		return "A"
	}
	return "B"
}

// Row is one line of the report.
type Row struct {
	Rank        int     `json:"rank"`
	Tier        string  `json:"tier"`
	Name        string  `json:"name"`
	Value       float64 `json:"value"`
	ToPoor      int     `json:"to_poor"`
	ToGood      int     `json:"to_good"`
	ToExcellent int     `json:"to_excellent"`
	Computed    bool    `json:"computed"`
}

// Option configures Build.
type Option func(*options)

type options struct {
	tierA float64
	limit int
}

// WithTierA sets the tier "A" cut.
func WithTierA(cut float64) Option {
	return func(o *options) { o.tierA = cut }
}

// WithLimit keeps only the first n rows. Zero or negative means no limit.
func WithLimit(n int) Option {
	return func(o *options) { o.limit = n }
}

// Build ranks profiles by points to excellent, ascending, with the name as
// tiebreak. Profiles without computed thresholds follow the ranked ones in
// name order and get rank 0.
func Build(profiles []*profile.Profile, opts ...Option) []Row {
	o := options{tierA: DefaultTierA}
	for _, opt := range opts {
		opt(&o)
	}

	rows := make([]Row, 0, len(profiles))
	for _, p := range profiles {
		rows = append(rows, Row{
			Tier:        TierWithCut(p.Value, o.tierA),
			Name:        p.Name,
			Value:       p.Value,
			ToPoor:      p.Thresholds.ToPoor,
			ToGood:      p.Thresholds.ToGood,
			ToExcellent: p.Thresholds.ToExcellent,
			Computed:    p.Thresholds.Computed,
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Computed != b.Computed {
			return a.Computed
		}
		if a.Computed && a.ToExcellent != b.ToExcellent {
			return a.ToExcellent < b.ToExcellent
		}
		return a.Name < b.Name
	})

	for i := range rows {
		if rows[i].Computed {
			rows[i].Rank = i + 1
		}
	}
	if o.limit > 0 && len(rows) > o.limit {
		rows = rows[:o.limit]
	}
	return rows
}

// Render writes rows as an aligned table.
func Render(w io.Writer, rows []Row) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tTIER\tNAME\tVALUE\tPOOR\tGOOD\tEXCELLENT")
	for _, r := range rows {
		rank, poor, good, exc := "-", "-", "-", "-"
		if r.Computed {
			rank = fmt.Sprint(r.Rank)
			poor = fmt.Sprint(r.ToPoor)
			good = fmt.Sprint(r.ToGood)
			exc = fmt.Sprint(r.ToExcellent)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t$%.1fM\t%s\t%s\t%s\n", rank, r.Tier, r.Name, r.Value, poor, good, exc)
	}
	return tw.Flush()
}
