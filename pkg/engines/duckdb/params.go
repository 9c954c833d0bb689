package duckdb

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// Params holds DuckDB-specific engine configuration.
// Parsed from the engine config section using mapstructure.
type Params struct {
	// Database is the DuckDB path; empty means in-memory.
	Database string `mapstructure:"database"`

	// ScratchDir receives registered file buffers. A temporary directory is
	// created per database when empty.
	ScratchDir string `mapstructure:"scratch_dir"`

	// Threads for the full variant; 0 lets DuckDB decide.
	Threads int `mapstructure:"threads"`

	// Extensions to install and load in the full variant (e.g. "httpfs", "json")
	Extensions []string `mapstructure:"extensions"`

	// Settings to apply at session level (e.g. memory_limit)
	Settings map[string]string `mapstructure:"settings"`
}

// ParseParams decodes a generic parameter map.
func ParseParams(raw map[string]any) (*Params, error) {
	p := &Params{}
	if len(raw) == 0 {
		return p, nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           p,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create params decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("invalid duckdb params: %w", err)
	}
	return p, nil
}
