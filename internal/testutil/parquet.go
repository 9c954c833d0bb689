package testutil

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leapstack-labs/roadlens/pkg/engine"
	"github.com/leapstack-labs/roadlens/pkg/engines/duckdb"
)

// WriteParquet writes the result of selectSQL to dst as a parquet file,
// creating parent directories as needed.
func WriteParquet(t testing.TB, dst, selectSQL string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		t.Fatalf("failed to create %s: %v", filepath.Dir(dst), err)
	}

	ctx := context.Background()
	db, err := duckdb.Open(ctx, duckdb.Params{}, engine.Bundle{Variant: engine.VariantCompat}, nil)
	if err != nil {
		t.Fatalf("failed to open engine: %v", err)
	}
	defer func() { _ = db.Close() }()

	conn, err := db.Connect(ctx)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer func() { _ = conn.Close() }()

	path := strings.ReplaceAll(filepath.ToSlash(dst), "'", "''")
	if _, err := conn.Query(ctx, "COPY ("+selectSQL+") TO '"+path+"' (FORMAT parquet)"); err != nil {
		t.Fatalf("failed to write %s: %v", dst, err)
	}
}
