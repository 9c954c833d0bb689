//go:build e2e

package smoke

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const healthyPage = `<!doctype html>
<html><body>
<h1>Road Safety Console</h1>
<div class="metric-card">a</div>
<div class="metric-card">b</div>
<div class="metric-card">c</div>
<script>fetch("/data/manifests/missing.json").catch(() => {});</script>
</body></html>`

const brokenPage = `<!doctype html>
<html><body>
<h1>Road Safety Console</h1>
<div class="banner">Could not start the analytics engine. Hard refresh the page.</div>
<script>console.error("engine exploded");</script>
</body></html>`

func TestRun_Browser(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthy/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(healthyPage))
	})
	mux.HandleFunc("/broken/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(brokenPage))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	t.Run("healthy page passes", func(t *testing.T) {
		res, err := Run(ctx, Options{URL: ts.URL + "/healthy/", Heading: "Road Safety", Settle: 500 * time.Millisecond})
		require.NoError(t, err)
		assert.True(t, res.Passed(), "problems: %v", res.Problems)
		assert.Equal(t, 3, res.Cards)
	})

	t.Run("banner and console error fail", func(t *testing.T) {
		res, err := Run(ctx, Options{URL: ts.URL + "/broken/", Settle: 500 * time.Millisecond})
		require.NoError(t, err)
		assert.False(t, res.Passed())
		assert.Contains(t, res.Banners, "Could not start the analytics engine")
		assert.Contains(t, res.ConsoleErrors, "engine exploded")
	})
}
