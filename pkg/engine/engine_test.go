package engine

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectVariant(t *testing.T) {
	tests := []struct {
		platform Platform
		want     Variant
	}{
		{Platform{SIMD: true, Exceptions: true}, VariantFull},
		{Platform{SIMD: true}, VariantCompat},
		{Platform{Exceptions: true}, VariantCompat},
		{Platform{}, VariantCompat},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SelectVariant(tt.platform), "%+v", tt.platform)
	}
}

func TestVariantAssets_Pairs(t *testing.T) {
	tests := []struct {
		name   string
		assets VariantAssets
		want   []Bundle
	}{
		{
			name: "nothing configured yields one empty bundle",
			want: []Bundle{{Variant: VariantCompat}},
		},
		{
			name: "external only",
			assets: VariantAssets{
				ExternalModule: "https://cdn/m",
				ExternalWorker: "https://cdn/w",
			},
			want: []Bundle{{Variant: VariantCompat, ModuleURL: "https://cdn/m", WorkerURL: "https://cdn/w"}},
		},
		{
			name: "more workers than modules",
			assets: VariantAssets{
				ModuleURLs:     []string{"/m"},
				WorkerURLs:     []string{"/w1", "/w2", "/w1"},
				ExternalModule: "https://cdn/m",
				ExternalWorker: "https://cdn/w",
			},
			want: []Bundle{
				{Variant: VariantCompat, ModuleURL: "/m", WorkerURL: "/w1"},
				{Variant: VariantCompat, ModuleURL: "https://cdn/m", WorkerURL: "/w2"},
				{Variant: VariantCompat, ModuleURL: "https://cdn/m", WorkerURL: "https://cdn/w"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.assets.Pairs(VariantCompat))
		})
	}
}

func TestModule_Missing(t *testing.T) {
	var nilModule *Module
	assert.Equal(t, []string{"DetectPlatform", "Logger", "NewDatabase"}, nilModule.Missing())

	m := &Module{Logger: func(l *slog.Logger) *slog.Logger { return l }}
	assert.Equal(t, []string{"DetectPlatform", "NewDatabase"}, m.Missing())
}

func TestRegistry(t *testing.T) {
	Register("test_module_registry", func() (*Module, error) { return nil, nil })

	assert.True(t, IsRegistered("test_module_registry"))
	loader, ok := Get("test_module_registry")
	require.True(t, ok)
	assert.NotNil(t, loader)
	assert.Contains(t, ListModules(), "test_module_registry")

	err := &UnknownModuleError{Name: "nope", Available: []string{"duckdb"}}
	assert.Contains(t, err.Error(), `"nope"`)
	assert.Contains(t, err.Error(), "duckdb")
}

func TestRows(t *testing.T) {
	tests := []struct {
		name   string
		result Result
		want   []Row
	}{
		{
			name:   "object rows",
			result: ObjectRows{{"state": "kerala", "n": int64(2)}, nil},
			want:   []Row{{"state": "kerala", "n": int64(2)}},
		},
		{
			name: "array rows",
			result: ArrayRows{
				Columns: []string{"state", "n"},
				Values:  [][]any{{"kerala", int64(2)}, {"goa"}},
			},
			want: []Row{
				{"state": "kerala", "n": int64(2)},
				{"state": "goa", "n": nil},
			},
		},
		{
			name:   "opaque json records",
			result: OpaqueJSON(`[{"n": 42}]`),
			want:   []Row{{"n": float64(42)}},
		},
		{
			name:   "opaque json table",
			result: OpaqueJSON(`{"columns": ["n"], "rows": [[1], [2]]}`),
			want:   []Row{{"n": float64(1)}, {"n": float64(2)}},
		},
		{
			name:   "opaque json garbage",
			result: OpaqueJSON(`{{{`),
			want:   []Row{},
		},
		{
			name:   "opaque json scalar",
			result: OpaqueJSON(`42`),
			want:   []Row{},
		},
		{
			name:   "nil result",
			result: nil,
			want:   []Row{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Rows(tt.result))
		})
	}
}

func TestColumns(t *testing.T) {
	tests := []struct {
		name   string
		result Result
		want   []string
	}{
		{
			name:   "array rows keep select order",
			result: ArrayRows{Columns: []string{"year", "state", "killed"}, Values: [][]any{{2022, "kerala", 10}}},
			want:   []string{"year", "state", "killed"},
		},
		{
			name:   "array rows without values",
			result: ArrayRows{Columns: []string{"n"}},
			want:   []string{"n"},
		},
		{
			name:   "opaque json table",
			result: OpaqueJSON(`{"columns": ["z", "a"], "rows": [[1, 2]]}`),
			want:   []string{"z", "a"},
		},
		{
			name:   "object rows sorted union",
			result: ObjectRows{{"state": "goa"}, {"n": 1, "state": "kerala"}},
			want:   []string{"n", "state"},
		},
		{
			name:   "opaque json records",
			result: OpaqueJSON(`[{"b": 1, "a": 2}]`),
			want:   []string{"a", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Columns(tt.result))
		})
	}
}
