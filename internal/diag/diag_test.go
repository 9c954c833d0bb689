package diag

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_PreservesOrder(t *testing.T) {
	m := NewMemory()
	m.Record(NewEvent(KindResolution, "catalog.json", "/a/catalog.json", errors.New("status 404")))
	m.Record(NewEvent(KindBootstrap, "duckdb", "full#0", errors.New("boom")))
	m.Record(NewEvent(KindResolution, "catalog.json", "/catalog.json", errors.New("missing datasets")))

	events := m.Snapshot()
	require.Len(t, events, 3)
	assert.Equal(t, "/a/catalog.json", events[0].Candidate)
	assert.Equal(t, "full#0", events[1].Candidate)
	assert.Equal(t, "/catalog.json", events[2].Candidate)

	assert.Equal(t, []string{
		"/a/catalog.json: status 404",
		"/catalog.json: missing datasets",
	}, m.ByKind(KindResolution))
	assert.Equal(t, 3, m.Len())

	// Snapshot is a copy.
	events[0].Candidate = "changed"
	assert.Equal(t, "/a/catalog.json", m.Snapshot()[0].Candidate)
}

func TestEvent_String(t *testing.T) {
	assert.Equal(t, "x: oops", Event{Resource: "x", Error: "oops"}.String())
	assert.Equal(t, "/c: oops", Event{Resource: "x", Candidate: "/c", Error: "oops"}.String())
}

func TestNewEvent_NilError(t *testing.T) {
	e := NewEvent(KindQuery, "r", "c", nil)
	assert.Empty(t, e.Error)
	assert.False(t, e.Time.IsZero())
}

func TestMulti_FansOut(t *testing.T) {
	a, b := NewMemory(), NewMemory()
	sink := Multi{a, nil, b}
	sink.Record(NewEvent(KindQuery, "r", "c", errors.New("e")))

	assert.Equal(t, 1, a.Len())
	assert.Equal(t, 1, b.Len())
}

func TestOrNop(t *testing.T) {
	assert.Equal(t, Nop{}, OrNop(nil))

	m := NewMemory()
	assert.Same(t, m, OrNop(m))
}

func TestLog_WritesWarning(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	NewLog(logger).Record(NewEvent(KindResolution, "catalog.json", "/x", errors.New("status 500")))

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "candidate=/x")
	assert.Contains(t, out, `error="status 500"`)

	// nil logger must not panic
	NewLog(nil).Record(Event{})
}

func TestMetrics_CountsPerKind(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	m.Record(NewEvent(KindResolution, "catalog.json", "/a", errors.New("x")))
	m.Record(NewEvent(KindResolution, "catalog.json", "/b", errors.New("x")))
	m.Record(NewEvent(KindBootstrap, "duckdb", "full#0", errors.New("x")))

	assert.InDelta(t, 2, testutil.ToFloat64(m.Collector().WithLabelValues("resolution", "catalog.json")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Collector().WithLabelValues("bootstrap", "duckdb")), 0)

	// Registering twice against the same registry reuses the collector.
	again, err := NewMetrics(reg)
	require.NoError(t, err)
	assert.InDelta(t, 2, testutil.ToFloat64(again.Collector().WithLabelValues("resolution", "catalog.json")), 0)
}
