package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"regexp"

	"github.com/leapstack-labs/roadlens/pkg/engine"
	"github.com/marcboeker/go-duckdb"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validIdent(s string) bool {
	return identPattern.MatchString(s)
}

// Conn wraps the single session connection.
type Conn struct {
	conn       *sql.Conn
	scratchDir string
	logger     *slog.Logger
}

// NewConn wraps c. Registered buffers are written under scratchDir.
func NewConn(c *sql.Conn, scratchDir string, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Conn{conn: c, scratchDir: scratchDir, logger: logger}
}

// RegisterFileBuffer stores data as a parquet file and exposes it as a view
// named alias.
func (c *Conn) RegisterFileBuffer(ctx context.Context, alias string, data []byte) error {
	if c.conn == nil {
		return engine.ErrNotConnected
	}
	if !validIdent(alias) {
		return fmt.Errorf("invalid alias %q", alias)
	}
	if len(data) == 0 {
		return fmt.Errorf("empty buffer for %s", alias)
	}

	path := filepath.Join(c.scratchDir, alias+".parquet")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write buffer: %w", err)
	}

	stmt := fmt.Sprintf("CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet(%s)", alias, quoteLiteral(filepath.ToSlash(path)))
	if _, err := c.conn.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to register %s: %w", alias, err)
	}
	c.logger.Debug("registered file buffer", "alias", alias, "bytes", len(data))
	return nil
}

// Query runs sqlStr and returns the rows as engine.ArrayRows.
func (c *Conn) Query(ctx context.Context, sqlStr string) (engine.Result, error) {
	if c.conn == nil {
		return nil, engine.ErrNotConnected
	}
	rows, err := c.conn.QueryContext(ctx, sqlStr)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	result := engine.ArrayRows{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range values {
			values[i] = normalizeValue(v)
		}
		result.Values = append(result.Values, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return result, nil
}

// Close closes the connection.
func (c *Conn) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// normalizeValue maps driver-specific values onto plain Go types.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case duckdb.Decimal:
		return x.Float64()
	case *big.Int:
		if x == nil {
			return nil
		}
		f, _ := new(big.Float).SetInt(x).Float64()
		return f
	default:
		return v
	}
}

var _ engine.Conn = (*Conn)(nil)
var _ engine.Database = (*Database)(nil)
