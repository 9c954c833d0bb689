package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"

	"github.com/leapstack-labs/roadlens/internal/diag"
	"github.com/leapstack-labs/roadlens/internal/fetch"
	"github.com/leapstack-labs/roadlens/internal/location"
)

// errMissingDatasets rejects a document without a datasets array.
var errMissingDatasets = errors.New("catalog document has no datasets field")

// Loader fetches and decodes the catalog.
type Loader struct {
	resolver *location.Resolver
	fetcher  fetch.Fetcher
	sink     diag.Sink
	logger   *slog.Logger
}

// NewLoader creates a loader. A nil sink or logger discards.
func NewLoader(resolver *location.Resolver, fetcher fetch.Fetcher, sink diag.Sink, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loader{
		resolver: resolver,
		fetcher:  fetcher,
		sink:     diag.OrNop(sink),
		logger:   logger,
	}
}

// Load tries each candidate for logicalPath in order and returns the first
// catalog that parses. It returns a *location.ResolutionError when every
// candidate fails.
func (l *Loader) Load(ctx context.Context, logicalPath string) (*Catalog, error) {
	if logicalPath == "" {
		logicalPath = DefaultPath
	}
	candidates := l.resolver.Resolve(logicalPath)
	l.logger.Debug("loading catalog", "path", logicalPath, "candidates", candidates)

	var attempts []location.Attempt
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		cat, err := l.tryCandidate(ctx, candidate)
		if err != nil {
			l.sink.Record(diag.NewEvent(diag.KindResolution, logicalPath, candidate, err))
			attempts = append(attempts, location.Attempt{Candidate: candidate, Err: err})
			continue
		}

		l.logger.Info("catalog loaded", "candidate", candidate, "datasets", cat.Len())
		return cat, nil
	}

	return nil, &location.ResolutionError{
		Kind:     "catalog unavailable",
		Resource: logicalPath,
		Attempts: attempts,
	}
}

func (l *Loader) tryCandidate(ctx context.Context, candidate string) (*Catalog, error) {
	body, err := l.fetcher.Fetch(ctx, candidate)
	if err != nil {
		return nil, err
	}
	cat, err := l.Parse(body)
	if err != nil {
		return nil, err
	}
	cat.Source = candidate
	return cat, nil
}

type document struct {
	GeneratedAt string             `json:"generated_at"`
	Datasets    *[]json.RawMessage `json:"datasets"`
}

// Parse decodes a catalog document. An element whose fields do not all
// decode keeps the fields that do; the rest are reported to the sink.
// Elements that are not objects or carry no source id are skipped.
func (l *Loader) Parse(body []byte) (*Catalog, error) {
	var doc document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}
	if doc.Datasets == nil {
		return nil, errMissingDatasets
	}

	cat := &Catalog{GeneratedAt: doc.GeneratedAt, entries: make(map[string]*Entry, len(*doc.Datasets))}
	for i, raw := range *doc.Datasets {
		resource := fmt.Sprintf("%s#datasets[%d]", DefaultPath, i)
		e, bad, err := decodeEntry(raw)
		if err != nil {
			l.logger.Warn("skipping undecodable catalog entry", "index", i, "error", err)
			l.sink.Record(diag.NewEvent(diag.KindCatalog, resource, "", err))
			continue
		}
		if e.SourceID == "" {
			l.logger.Debug("skipping catalog entry without source_id", "index", i)
			continue
		}
		if len(bad) > 0 {
			err := fmt.Errorf("ignored malformed fields %v of %s", bad, e.SourceID)
			l.logger.Warn("catalog entry partially decoded", "source_id", e.SourceID, "fields", bad)
			l.sink.Record(diag.NewEvent(diag.KindCatalog, resource, "", err))
		}
		if replaced := cat.put(e); replaced {
			l.logger.Debug("duplicate source_id, keeping last", "source_id", e.SourceID)
		}
	}
	return cat, nil
}

// decodeEntry decodes one catalog element. When the element does not
// decode as a whole it is decoded field by field and the names of the
// fields that failed are returned. A numeric source_id is kept in its
// decimal form.
func decodeEntry(raw json.RawMessage) (Entry, []string, error) {
	var e Entry
	if err := json.Unmarshal(raw, &e); err == nil {
		return e, nil, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Entry{}, nil, fmt.Errorf("catalog entry is not an object: %w", err)
	}

	e = Entry{}
	var bad []string
	for _, name := range slices.Sorted(maps.Keys(fields)) {
		one, err := json.Marshal(map[string]json.RawMessage{name: fields[name]})
		if err != nil {
			bad = append(bad, name)
			continue
		}
		var field Entry
		if err := json.Unmarshal(one, &field); err != nil {
			if name == "source_id" {
				e.SourceID = scalarString(fields[name])
			}
			bad = append(bad, name)
			continue
		}
		if err := json.Unmarshal(one, &e); err != nil {
			bad = append(bad, name)
		}
	}
	return e, bad, nil
}

// scalarString renders a JSON number or boolean as text.
func scalarString(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case string:
		return x
	}
	return ""
}
