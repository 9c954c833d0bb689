package output

import (
	"bytes"
	"testing"

	"github.com/leapstack-labs/roadlens/internal/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTest(mode Mode, tty bool) (*Renderer, *bytes.Buffer, *bytes.Buffer) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	return NewRendererWithTTY(out, errOut, tty, mode), out, errOut
}

func TestEffectiveMode(t *testing.T) {
	tests := []struct {
		mode Mode
		tty  bool
		want Mode
	}{
		{ModeAuto, true, ModeText},
		{ModeAuto, false, ModeMarkdown},
		{"", false, ModeMarkdown},
		{ModeJSON, true, ModeJSON},
		{ModeText, false, ModeText},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			r, _, _ := newTest(tt.mode, tt.tty)
			assert.Equal(t, tt.want, r.EffectiveMode())
		})
	}
}

func TestTable(t *testing.T) {
	headers := []string{"source_id", "rows"}
	rows := [][]string{{"demo", "42"}}

	r, out, _ := newTest(ModeMarkdown, false)
	r.Table(headers, rows)
	assert.Contains(t, out.String(), "| source_id | rows |")
	assert.Contains(t, out.String(), "| demo | 42 |")

	r, out, _ = newTest(ModeText, false)
	r.Table(headers, rows)
	assert.Contains(t, out.String(), "SOURCE_ID")
	assert.Contains(t, out.String(), "│ demo")

	r, out, _ = newTest(ModeText, false)
	r.Table(headers, nil)
	assert.Equal(t, "(0 rows)\n", out.String())
}

func TestJSON(t *testing.T) {
	r, out, _ := newTest(ModeJSON, false)
	require.NoError(t, r.JSON(map[string]int{"n": 1}))
	assert.JSONEq(t, `{"n":1}`, out.String())
}

func TestMessages(t *testing.T) {
	r, out, errOut := newTest(ModeText, false)
	r.Success("done")
	r.StatusLine("catalog", "error", "missing")
	r.Warning("careful")
	r.Banner("Could not load the dataset catalog", "Hard refresh")

	assert.Contains(t, out.String(), "[ok] done")
	assert.Contains(t, out.String(), "[fail] catalog missing")
	assert.Contains(t, errOut.String(), "Warning: careful")
	assert.Contains(t, errOut.String(), "Could not load the dataset catalog\nHard refresh")
}

func TestHeader(t *testing.T) {
	r, out, _ := newTest(ModeMarkdown, false)
	r.Header(2, "Datasets")
	assert.Equal(t, "## Datasets\n\n", out.String())

	r, out, _ = newTest(ModeText, false)
	r.Header(1, "Datasets")
	assert.Equal(t, "Datasets\n========\n", out.String())
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "# Title", FormatHeader(0, "Title"))
	assert.Equal(t, "### Title", FormatHeader(3, "Title"))
	assert.Equal(t, "- **Rows:** 42", FormatKeyValue("Rows", "42"))
}

func TestBadge(t *testing.T) {
	s := NewStyles(false)
	assert.Equal(t, "High", s.Badge(catalog.ConfidenceHigh))
	assert.Equal(t, "Med", s.Badge("Medium"))
	assert.Equal(t, "Low", s.Badge("??"))
}
