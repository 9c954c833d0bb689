// Package catalog loads the dataset catalog published next to the dashboard.
package catalog

import (
	"sort"
	"strings"
)

// DefaultPath is the logical path of the published catalog.
const DefaultPath = "data/manifests/catalog.json"

// Confidence is an ordinal confidence badge.
type Confidence string

// Badge values, lowest first.
const (
	ConfidenceLow  Confidence = "Low"
	ConfidenceMed  Confidence = "Med"
	ConfidenceHigh Confidence = "High"
)

// Rank orders badges Low < Med < High. Unknown badges rank as Low.
func (c Confidence) Rank() int {
	switch Confidence(strings.TrimSpace(string(c))) {
	case ConfidenceHigh:
		return 2
	case ConfidenceMed, "Medium":
		return 1
	default:
		return 0
	}
}

// Normalize maps a badge onto one of the three known values.
func (c Confidence) Normalize() Confidence {
	switch c.Rank() {
	case 2:
		return ConfidenceHigh
	case 1:
		return ConfidenceMed
	default:
		return ConfidenceLow
	}
}

// Source describes where a dataset came from.
type Source struct {
	Publisher    string `json:"publisher,omitempty"`
	Title        string `json:"title,omitempty"`
	URL          string `json:"url,omitempty"`
	RetrievedAt  string `json:"retrieved_at,omitempty"`
	LicenseTerms string `json:"license_terms,omitempty"`
	OfficialFlag bool   `json:"official_flag"`
}

// Citations carries the permanent identifier hint for a dataset.
type Citations struct {
	PermanentIdentifier string `json:"permanent_identifier,omitempty"`
	Anchor              string `json:"anchor,omitempty"`
	Note                string `json:"note,omitempty"`
}

// OutputFile is one artifact written by ingestion.
type OutputFile struct {
	Path   string `json:"path"`
	Format string `json:"format,omitempty"`
	SHA256 string `json:"sha256,omitempty"`
}

// Manifest summarises ingestion output for an entry.
type Manifest struct {
	OutputFiles []OutputFile `json:"output_files,omitempty"`
	RowCount    *int64       `json:"row_count,omitempty"`
	Columns     []string     `json:"columns,omitempty"`
}

// Entry describes one dataset.
type Entry struct {
	SourceID          string     `json:"source_id"`
	Status            string     `json:"status,omitempty"`
	MetricCategory    string     `json:"metric_category,omitempty"`
	SkipReason        string     `json:"skip_reason,omitempty"`
	Source            Source     `json:"source"`
	Citations         Citations  `json:"citations"`
	Manifest          Manifest   `json:"manifest"`
	Confidence        Confidence `json:"overall_confidence_badge,omitempty"`
	ConfidenceReasons []string   `json:"overall_confidence_reason,omitempty"`
	OutputTablePath   string     `json:"output_table_path,omitempty"`
}

// TablePath returns the logical path of the entry's columnar file.
func (e *Entry) TablePath() string {
	if p := strings.TrimSpace(e.OutputTablePath); p != "" {
		return p
	}
	return "data/processed/" + e.SourceID + ".parquet"
}

// FallbackRowCount is the row count declared by ingestion, or zero.
func (e *Entry) FallbackRowCount() int64 {
	if e.Manifest.RowCount == nil {
		return 0
	}
	return *e.Manifest.RowCount
}

// Disabled reports whether ingestion skipped the source on purpose or
// produced no usable table for it. Disabled entries are listed but never
// queried.
func (e *Entry) Disabled() bool {
	status := strings.ToLower(strings.TrimSpace(e.Status))
	if strings.HasPrefix(status, "disabled") {
		return true
	}
	switch status {
	case "stubs_disabled", "skipped", "not_mapped", "failed":
		return true
	}
	return false
}

// Catalog maps source ids to entries.
type Catalog struct {
	GeneratedAt string
	// Source is the candidate the catalog was loaded from.
	Source  string
	entries map[string]*Entry
	order   []string
}

// New builds a catalog from entries. Entries without a source id are
// skipped; a repeated id replaces the earlier entry but keeps its position.
func New(entries []Entry) *Catalog {
	c := &Catalog{entries: make(map[string]*Entry, len(entries))}
	for i := range entries {
		c.put(entries[i])
	}
	return c
}

// put inserts e and reports whether it replaced an existing entry.
func (c *Catalog) put(e Entry) bool {
	if c.entries == nil {
		c.entries = make(map[string]*Entry)
	}
	e.SourceID = strings.TrimSpace(e.SourceID)
	if e.SourceID == "" {
		return false
	}
	_, exists := c.entries[e.SourceID]
	if !exists {
		c.order = append(c.order, e.SourceID)
	}
	entry := e
	c.entries[e.SourceID] = &entry
	return exists
}

// Get returns the entry for id.
func (c *Catalog) Get(id string) (*Entry, bool) {
	if c == nil {
		return nil, false
	}
	e, ok := c.entries[id]
	return e, ok
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

// IDs returns source ids in document order of first appearance.
func (c *Catalog) IDs() []string {
	if c == nil {
		return nil
	}
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// SortedIDs returns source ids in lexical order.
func (c *Catalog) SortedIDs() []string {
	ids := c.IDs()
	sort.Strings(ids)
	return ids
}

// Entries returns entries in document order.
func (c *Catalog) Entries() []*Entry {
	if c == nil {
		return nil
	}
	out := make([]*Entry, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.entries[id])
	}
	return out
}
