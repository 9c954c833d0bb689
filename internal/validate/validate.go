// Package validate checks published dashboard artifacts: the catalog, the
// per-source manifests and the columnar files they point at, plus an
// optional cross-check against the source inventory.
package validate

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/leapstack-labs/roadlens/internal/catalog"
	"github.com/leapstack-labs/roadlens/internal/fetch"
	"github.com/leapstack-labs/roadlens/internal/location"
	"gopkg.in/yaml.v3"
)

// DefaultManifestDir holds the per-source manifests.
const DefaultManifestDir = "data/manifests"

// inventoryExempt lists catalog ids that never appear in the inventory.
var inventoryExempt = map[string]bool{"correlation_matrix": true}

// requiredFields must be present on every catalog entry.
var requiredFields = []string{
	"source_id",
	"status",
	"metric_category",
	"source",
	"citations",
	"overall_confidence_badge",
	"output_table_path",
}

var standardCategories = map[string]bool{
	"official_measured": true,
	"proxy_derived":     true,
	"model_output":      true,
}

// Severity classifies a finding.
type Severity string

// Severities.
const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Finding is one validation result.
type Finding struct {
	Severity Severity `json:"severity"`
	SourceID string   `json:"source_id,omitempty"`
	Message  string   `json:"message"`
}

func (f Finding) String() string {
	if f.SourceID == "" {
		return f.Message
	}
	return f.SourceID + ": " + f.Message
}

// Report is the outcome of one validation run.
type Report struct {
	Catalog  string    `json:"catalog,omitempty"`
	Datasets int       `json:"datasets"`
	Findings []Finding `json:"findings"`
}

func (r *Report) add(sev Severity, id, format string, args ...any) {
	r.Findings = append(r.Findings, Finding{Severity: sev, SourceID: id, Message: fmt.Sprintf(format, args...)})
}

func (r *Report) filter(sev Severity) []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Severity == sev {
			out = append(out, f)
		}
	}
	return out
}

// Errors returns the error findings.
func (r *Report) Errors() []Finding { return r.filter(SeverityError) }

// Warnings returns the warning findings.
func (r *Report) Warnings() []Finding { return r.filter(SeverityWarning) }

// Failed reports whether the run should exit non-zero.
func (r *Report) Failed(failOnWarning bool) bool {
	if len(r.Errors()) > 0 {
		return true
	}
	return failOnWarning && len(r.Warnings()) > 0
}

// Options controls a validation run.
type Options struct {
	// CatalogPath defaults to catalog.DefaultPath.
	CatalogPath string
	// ManifestDir defaults to DefaultManifestDir.
	ManifestDir string
	// Inventory is a local YAML file listing sources. Empty skips the
	// cross-check.
	Inventory string
}

// Validator runs artifact checks against a site origin.
type Validator struct {
	resolver *location.Resolver
	fetcher  fetch.Fetcher
	logger   *slog.Logger
}

// New creates a validator.
func New(resolver *location.Resolver, fetcher fetch.Fetcher, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Validator{resolver: resolver, fetcher: fetcher, logger: logger}
}

// artifact is a fetched file reduced to what the checks need.
type artifact struct {
	candidate string
	size      int
	sha256    string
	body      []byte
	err       error
}

// run holds the state of one Validate call.
type run struct {
	*Validator
	report *Report
	seen   map[string]*artifact
}

// Validate runs every check. The returned error is non-nil only when ctx
// is cancelled; problems with the artifacts are findings in the report.
func (v *Validator) Validate(ctx context.Context, opts Options) (*Report, error) {
	if opts.CatalogPath == "" {
		opts.CatalogPath = catalog.DefaultPath
	}
	if opts.ManifestDir == "" {
		opts.ManifestDir = DefaultManifestDir
	}

	r := &run{Validator: v, report: &Report{}, seen: make(map[string]*artifact)}

	var inventory map[string]bool
	if opts.Inventory != "" {
		ids, err := LoadInventory(opts.Inventory)
		if err != nil {
			r.report.add(SeverityError, "", "source inventory could not be loaded: %v", err)
			return r.report, nil
		}
		inventory = ids
	}

	cat := r.fetch(ctx, opts.CatalogPath, false)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cat.err != nil {
		r.report.add(SeverityError, "", "catalog is missing: %v", cat.err)
		return r.report, nil
	}
	r.report.Catalog = cat.candidate

	entries, err := decodeEntries(cat.body)
	if err != nil {
		r.report.add(SeverityError, "", "catalog is invalid: %v", err)
		return r.report, nil
	}
	if len(entries) == 0 {
		r.report.add(SeverityError, "", "catalog is empty")
		return r.report, nil
	}

	catalogIDs := make(map[string]bool, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.entry.SourceID == "" {
			r.report.add(SeverityError, "", "catalog entry missing source_id")
			continue
		}
		catalogIDs[e.entry.SourceID] = true
		r.checkEntry(ctx, e, opts.ManifestDir)
	}
	r.report.Datasets = len(catalogIDs)

	if inventory != nil {
		for _, id := range sortedKeys(inventory) {
			if !catalogIDs[id] {
				r.report.add(SeverityWarning, id, "inventory source missing from catalog")
			}
		}
		for _, id := range sortedKeys(catalogIDs) {
			if !inventory[id] && !inventoryExempt[id] {
				r.report.add(SeverityWarning, id, "catalog has non-inventory source")
			}
		}
	}

	v.logger.Info("artifact validation finished",
		"catalog", r.report.Catalog,
		"errors", len(r.report.Errors()),
		"warnings", len(r.report.Warnings()))
	return r.report, nil
}

// rawEntry keeps the decoded entry with its raw fields for presence checks.
type rawEntry struct {
	entry  catalog.Entry
	fields map[string]json.RawMessage
	source map[string]json.RawMessage
}

func decodeEntries(body []byte) ([]rawEntry, error) {
	var doc struct {
		Datasets []json.RawMessage `json:"datasets"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, err
	}

	out := make([]rawEntry, 0, len(doc.Datasets))
	for i, raw := range doc.Datasets {
		var e rawEntry
		if err := json.Unmarshal(raw, &e.fields); err != nil {
			return nil, fmt.Errorf("dataset %d: %w", i, err)
		}
		if err := json.Unmarshal(raw, &e.entry); err != nil {
			return nil, fmt.Errorf("dataset %d: %w", i, err)
		}
		if src, ok := e.fields["source"]; ok {
			_ = json.Unmarshal(src, &e.source)
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *run) checkEntry(ctx context.Context, e rawEntry, manifestDir string) {
	entry := e.entry
	id := entry.SourceID

	for _, field := range requiredFields {
		if _, ok := e.fields[field]; !ok {
			r.report.add(SeverityError, id, "missing required catalog field: %s", field)
		}
	}

	if entry.Source.Publisher == "" {
		r.report.add(SeverityWarning, id, "missing source.publisher")
	}
	if entry.Source.LicenseTerms == "" {
		r.report.add(SeverityWarning, id, "missing source.license_terms")
	}
	if entry.Source.RetrievedAt == "" {
		r.report.add(SeverityWarning, id, "missing source.retrieved_at")
	}
	if entry.Citations.PermanentIdentifier == "" {
		r.report.add(SeverityError, id, "missing citations.permanent_identifier")
	}
	if entry.Citations.Anchor == "" {
		r.report.add(SeverityError, id, "missing citations.anchor")
	}

	category := entry.MetricCategory
	unofficial := !bytes.Equal(bytes.TrimSpace(e.source["official_flag"]), []byte("false"))
	switch {
	case category == "model_output" && unofficial:
		r.report.add(SeverityWarning, id, "model output should keep source.official_flag=false")
	case strings.HasPrefix(category, "proxy") && unofficial:
		r.report.add(SeverityWarning, id, "proxy source should keep source.official_flag=false")
	}
	if !standardCategories[category] {
		r.report.add(SeverityWarning, id, "non-standard metric_category: %q", category)
	}

	table := r.fetch(ctx, entry.TablePath(), true)
	switch {
	case table.err != nil:
		r.report.add(SeverityError, id, "missing output table %s: %v", entry.TablePath(), table.err)
	case table.size == 0:
		r.report.add(SeverityWarning, id, "output table is empty (%s)", entry.TablePath())
	}

	r.checkOutputFiles(ctx, entry, manifestDir)
}

// checkOutputFiles verifies the per-source manifest, or the manifest
// embedded in the catalog entry when the per-source file is absent.
func (r *run) checkOutputFiles(ctx context.Context, entry catalog.Entry, manifestDir string) {
	id := entry.SourceID
	files := entry.Manifest.OutputFiles

	perSource := r.fetch(ctx, path.Join(manifestDir, id+".json"), false)
	if perSource.err != nil {
		r.report.add(SeverityWarning, id, "missing per-source manifest")
	} else {
		var doc struct {
			Manifest catalog.Manifest `json:"manifest"`
		}
		if err := json.Unmarshal(perSource.body, &doc); err != nil {
			r.report.add(SeverityError, id, "per-source manifest is invalid: %v", err)
			return
		}
		if len(doc.Manifest.OutputFiles) == 0 {
			r.report.add(SeverityError, id, "manifest has no output_files")
			return
		}
		files = doc.Manifest.OutputFiles
	}

	for _, f := range files {
		if f.Path == "" {
			continue
		}
		a := r.fetch(ctx, f.Path, true)
		if a.err != nil {
			r.report.add(SeverityError, id, "manifest output file missing: %s", f.Path)
			continue
		}
		if f.SHA256 != "" && !strings.EqualFold(f.SHA256, a.sha256) {
			r.report.add(SeverityError, id, "manifest sha mismatch: %s", f.Path)
		}
	}
}

// fetch returns the first candidate of logical that can be fetched. Large
// files are reduced to size and digest.
func (r *run) fetch(ctx context.Context, logical string, digestOnly bool) *artifact {
	if a, ok := r.seen[logical]; ok {
		return a
	}

	a := &artifact{}
	for _, c := range r.resolver.Resolve(logical) {
		body, err := r.fetcher.Fetch(ctx, c)
		if err != nil {
			a.err = err
			if ctx.Err() != nil {
				return a
			}
			continue
		}
		sum := sha256.Sum256(body)
		a = &artifact{candidate: c, size: len(body), sha256: hex.EncodeToString(sum[:])}
		if !digestOnly {
			a.body = body
		}
		break
	}
	r.logger.Debug("fetched artifact", "path", logical, "candidate", a.candidate, "error", a.err)
	r.seen[logical] = a
	return a
}

// inventoryDoc is the source inventory layout.
type inventoryDoc struct {
	Sources []struct {
		SourceID string `yaml:"source_id"`
	} `yaml:"sources"`
}

// LoadInventory reads the source ids from an inventory YAML file.
func LoadInventory(file string) (map[string]bool, error) {
	data, err := os.ReadFile(file) //nolint:gosec // path from user flag
	if err != nil {
		return nil, err
	}
	var doc inventoryDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse inventory: %w", err)
	}
	if len(doc.Sources) == 0 {
		return nil, fmt.Errorf("inventory %s lists no sources", file)
	}
	ids := make(map[string]bool, len(doc.Sources))
	for _, s := range doc.Sources {
		if id := strings.TrimSpace(s.SourceID); id != "" {
			ids[id] = true
		}
	}
	return ids, nil
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
