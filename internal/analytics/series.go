// Package analytics turns registered datasets into the dashboard's
// chart series.
package analytics

import "github.com/leapstack-labs/roadlens/internal/catalog"

// Point is one (x, y) sample.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Line is one named layer of a multi-line chart.
type Line struct {
	Name   string  `json:"name"`
	Points []Point `json:"points"`
}

// Bar is one category row of a bar chart.
type Bar struct {
	Key    string             `json:"key"`
	Label  string             `json:"label"`
	Values map[string]float64 `json:"values"`
}

// ScatterPoint is one bubble of a scatter chart.
type ScatterPoint struct {
	Label string  `json:"label"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Size  float64 `json:"size"`
}

// TableRow is one appendix row.
type TableRow map[string]any

// Theme is the output of one analysis.
type Theme struct {
	ID                string             `json:"id"`
	Title             string             `json:"title"`
	Sources           []string           `json:"sources"`
	Confidence        catalog.Confidence `json:"confidence"`
	ConfidenceReasons []string           `json:"confidence_reasons"`

	Points  []Point        `json:"points,omitempty"`
	Lines   []Line         `json:"lines,omitempty"`
	Bars    []Bar          `json:"bars,omitempty"`
	Scatter []ScatterPoint `json:"scatter,omitempty"`
	Table   []TableRow     `json:"table,omitempty"`

	// Error is set when the theme could not be computed.
	Error string `json:"error,omitempty"`
}

// Empty reports whether the theme carries no series.
func (t *Theme) Empty() bool {
	return len(t.Points) == 0 && len(t.Lines) == 0 && len(t.Bars) == 0 &&
		len(t.Scatter) == 0 && len(t.Table) == 0
}

// Dashboard holds every theme in display order.
type Dashboard struct {
	Themes []Theme `json:"themes"`
}

// Theme returns the theme with id.
func (d *Dashboard) Theme(id string) (*Theme, bool) {
	for i := range d.Themes {
		if d.Themes[i].ID == id {
			return &d.Themes[i], true
		}
	}
	return nil, false
}
