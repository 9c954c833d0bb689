package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leapstack-labs/roadlens/internal/dashboard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBundle(source string) *dashboard.Bundle {
	return &dashboard.Bundle{
		BuiltAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		Catalog: dashboard.CatalogSummary{Source: source, Datasets: 1},
		Datasets: []dashboard.Card{
			{SourceID: "morth_rts", RowCount: 12},
		},
	}
}

func newTestServer(t *testing.T, build BuildFunc) *Server {
	t.Helper()
	s, err := New(Config{SiteDir: t.TempDir(), Build: build, Debounce: 20 * time.Millisecond})
	require.NoError(t, err)
	return s
}

func getJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	resp, err := http.Get(url) //nolint:noctx // test helper
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	return resp
}

func TestNew_RequiresBuild(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestDashboard_BeforeFirstBuild(t *testing.T) {
	s := newTestServer(t, func(context.Context) (*dashboard.Bundle, error) {
		return testBundle("a"), nil
	})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	var body ErrorResponse
	resp := getJSON(t, ts.URL+"/api/dashboard", &body)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "building", body.Status)
}

func TestDashboard_AfterBuild(t *testing.T) {
	s := newTestServer(t, func(context.Context) (*dashboard.Bundle, error) {
		return testBundle("catalog.json"), nil
	})
	require.True(t, s.Rebuild(context.Background()))

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	var got dashboard.Bundle
	resp := getJSON(t, ts.URL+"/api/dashboard", &got)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get(GenerationHeader))
	assert.Equal(t, "catalog.json", got.Catalog.Source)
	require.Len(t, got.Datasets, 1)
	assert.Equal(t, int64(12), got.Datasets[0].RowCount)
}

func TestDashboard_BuildError(t *testing.T) {
	s := newTestServer(t, func(context.Context) (*dashboard.Bundle, error) {
		return nil, &dashboard.Error{
			Stage:       dashboard.StageCatalog,
			Message:     "Could not load the dataset catalog",
			Remediation: "Re-run ingestion.",
			Err:         errors.New("404"),
		}
	})
	require.True(t, s.Rebuild(context.Background()))

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	var body ErrorResponse
	resp := getJSON(t, ts.URL+"/api/dashboard", &body)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "error", body.Status)
	assert.Equal(t, "catalog", body.Stage)
	assert.Equal(t, "Re-run ingestion.", body.Remediation)
	assert.Contains(t, body.Error, "404")
}

func TestRebuild_StaleResultDiscarded(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	s := newTestServer(t, func(context.Context) (*dashboard.Bundle, error) {
		if calls.Add(1) == 1 {
			<-release
			return testBundle("first"), nil
		}
		return testBundle("second"), nil
	})

	firstDone := make(chan bool)
	go func() { firstDone <- s.Rebuild(context.Background()) }()

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.True(t, s.Rebuild(context.Background()))

	close(release)
	assert.False(t, <-firstDone, "older generation must not commit")

	snap := s.Snapshot()
	assert.Equal(t, uint64(2), snap.Generation)
	assert.Equal(t, "second", snap.Bundle.Catalog.Source)
}

func TestRebuild_CancelledContextDoesNotCommit(t *testing.T) {
	s := newTestServer(t, func(ctx context.Context) (*dashboard.Bundle, error) {
		return nil, ctx.Err()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, s.Rebuild(ctx))
	assert.Nil(t, s.Snapshot().Err)
}

func TestEvents_StreamsCommittedGenerations(t *testing.T) {
	s := newTestServer(t, func(context.Context) (*dashboard.Bundle, error) {
		return testBundle("a"), nil
	})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	readEvent := func() (string, string) {
		var event, data string
		for lines.Scan() {
			line := lines.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			case line == "":
				return event, data
			}
		}
		return event, data
	}

	event, data := readEvent()
	assert.Equal(t, "ready", event)
	assert.Equal(t, "0", data)

	require.Eventually(t, func() bool { return s.Notifier().Len() == 1 }, time.Second, 5*time.Millisecond)
	require.True(t, s.Rebuild(context.Background()))

	event, data = readEvent()
	assert.Equal(t, "update", event)
	assert.Equal(t, "1", data)
}

func TestRebuildEndpoint(t *testing.T) {
	s := newTestServer(t, func(context.Context) (*dashboard.Bundle, error) {
		return testBundle("a"), nil
	})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/rebuild", "application/json", nil) //nolint:noctx // test
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, true, body["committed"])
	assert.EqualValues(t, 1, body["generation"])
}

func TestMetricsAndHealth(t *testing.T) {
	s := newTestServer(t, func(context.Context) (*dashboard.Bundle, error) {
		return nil, errors.New("boom")
	})
	s.Rebuild(context.Background())

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics") //nolint:noctx // test
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `roadlens_builds_total{result="error"} 1`)

	resp, err = http.Get(ts.URL + "/healthz") //nolint:noctx // test
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStaticFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "apps", "web"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "apps", "web", "index.html"), []byte("<h1>roadlens</h1>"), 0o600))

	s, err := New(Config{SiteDir: dir, Build: func(context.Context) (*dashboard.Bundle, error) {
		return testBundle("a"), nil
	}})
	require.NoError(t, err)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/apps/web/") //nolint:noctx // test
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "roadlens")
}

func TestRelevant(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"data/manifests/catalog.json", true},
		{"data/processed/morth_rts.parquet", true},
		{"data/raw/x.CSV", true},
		{"inventory.yaml", true},
		{"apps/web/index.html", false},
		{"data/.catalog.json.swp", false},
		{"data/catalog.json~", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, relevant(tt.name))
		})
	}
}

func TestWatch_RebuildsOnDataChange(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "data", "manifests"), 0o755))

	var builds atomic.Int32
	s, err := New(Config{
		SiteDir:  dir,
		Watch:    true,
		Debounce: 20 * time.Millisecond,
		Build: func(context.Context) (*dashboard.Bundle, error) {
			builds.Add(1)
			return testBundle("a"), nil
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.watchFiles(ctx) }()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	// Give the watcher time to register the tree.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data", "manifests", "catalog.json"), []byte(`{}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))

	require.Eventually(t, func() bool { return s.Snapshot().Bundle != nil }, 5*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, builds.Load(), int32(1))
}
