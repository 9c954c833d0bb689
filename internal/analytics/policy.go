package analytics

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/leapstack-labs/roadlens/internal/catalog"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NormalizeState turns a raw state name into a join key: lower case,
// punctuation removed, whitespace collapsed.
func NormalizeState(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

var titleCaser = cases.Title(language.English)

// DisplayState renders a join key as a label.
func DisplayState(key string) string {
	if key == "" {
		return "Unknown"
	}
	return titleCaser.String(key)
}

// Record is one long-format observation.
type Record struct {
	State  string
	Year   int
	Metric string
	Value  float64
}

// LatestYear returns the largest year in records, or 0.
func LatestYear(records []Record) int {
	latest := 0
	for _, r := range records {
		if r.Year > latest {
			latest = r.Year
		}
	}
	return latest
}

// FilterLatestYear keeps the records of the latest year. Records without a
// year are kept only when no record has one.
func FilterLatestYear(records []Record) []Record {
	latest := LatestYear(records)
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if r.Year == latest {
			out = append(out, r)
		}
	}
	return out
}

// StateMetric is the average of one (state, metric) group.
type StateMetric struct {
	State  string
	Metric string
	Value  float64
	Count  int
}

// AverageByKey averages values per normalized (state, metric). The result
// is sorted by state, then metric.
func AverageByKey(records []Record) []StateMetric {
	type key struct{ state, metric string }
	sums := make(map[key]*StateMetric)
	for _, r := range records {
		k := key{NormalizeState(r.State), r.Metric}
		sm, ok := sums[k]
		if !ok {
			sm = &StateMetric{State: k.state, Metric: k.metric}
			sums[k] = sm
		}
		sm.Value += r.Value
		sm.Count++
	}

	out := make([]StateMetric, 0, len(sums))
	for _, sm := range sums {
		sm.Value /= float64(sm.Count)
		out = append(out, *sm)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].State != out[j].State {
			return out[i].State < out[j].State
		}
		return out[i].Metric < out[j].Metric
	})
	return out
}

// ToBars groups averaged values into one bar row per state.
func ToBars(groups []StateMetric) []Bar {
	var bars []Bar
	index := make(map[string]int)
	for _, g := range groups {
		i, ok := index[g.State]
		if !ok {
			i = len(bars)
			index[g.State] = i
			bars = append(bars, Bar{Key: g.State, Label: DisplayState(g.State), Values: map[string]float64{}})
		}
		bars[i].Values[g.Metric] = g.Value
	}
	return bars
}

// ConfidenceFloor returns the lowest badge among entries and the union of
// their reasons. When no entry states a reason one is synthesized.
func ConfidenceFloor(entries []*catalog.Entry) (catalog.Confidence, []string) {
	if len(entries) == 0 {
		return catalog.ConfidenceLow, []string{"No contributing datasets"}
	}

	floor := catalog.ConfidenceHigh
	var reasons []string
	seen := make(map[string]bool)
	for _, e := range entries {
		if e.Confidence.Rank() < floor.Rank() {
			floor = e.Confidence.Normalize()
		}
		for _, r := range e.ConfidenceReasons {
			r = strings.TrimSpace(r)
			if r == "" || seen[r] {
				continue
			}
			seen[r] = true
			reasons = append(reasons, r)
		}
	}
	if len(reasons) == 0 {
		reasons = []string{fmt.Sprintf("Lowest contributing confidence is %s", floor)}
	}
	return floor, reasons
}
