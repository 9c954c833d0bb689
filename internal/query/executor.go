package query

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/leapstack-labs/roadlens/internal/catalog"
	"github.com/leapstack-labs/roadlens/internal/diag"
	"github.com/leapstack-labs/roadlens/internal/fetch"
	"github.com/leapstack-labs/roadlens/internal/location"
	"github.com/leapstack-labs/roadlens/pkg/engine"
)

// Executor registers dataset files on a connection and queries them. One
// executor belongs to one engine session.
type Executor struct {
	resolver *location.Resolver
	fetcher  fetch.Fetcher
	sink     diag.Sink
	logger   *slog.Logger
	aliases  *AliasCache

	// serializes registration so a path is fetched at most once
	regMu sync.Mutex
}

// NewExecutor creates an executor with an empty alias cache.
func NewExecutor(resolver *location.Resolver, fetcher fetch.Fetcher, sink diag.Sink, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Executor{
		resolver: resolver,
		fetcher:  fetcher,
		sink:     diag.OrNop(sink),
		logger:   logger,
		aliases:  NewAliasCache(),
	}
}

// Aliases returns the session alias cache.
func (e *Executor) Aliases() *AliasCache {
	return e.aliases
}

// Register makes logicalPath available on conn and returns its alias. A
// path already registered in this session is not fetched again.
func (e *Executor) Register(ctx context.Context, conn engine.Conn, logicalPath string) (string, error) {
	if conn == nil {
		return "", engine.ErrNotConnected
	}

	e.regMu.Lock()
	defer e.regMu.Unlock()

	alias, registered := e.aliases.Alias(logicalPath)
	if registered {
		return alias, nil
	}

	var attempts []location.Attempt
	for _, candidate := range e.resolver.Resolve(logicalPath) {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		err := e.tryRegister(ctx, conn, alias, candidate)
		if err != nil {
			e.sink.Record(diag.NewEvent(diag.KindResolution, logicalPath, candidate, err))
			attempts = append(attempts, location.Attempt{Candidate: candidate, Err: err})
			continue
		}

		e.aliases.MarkRegistered(logicalPath)
		e.logger.Debug("dataset registered", "path", logicalPath, "alias", alias, "candidate", candidate)
		return alias, nil
	}

	return "", &location.ResolutionError{
		Kind:     "dataset unavailable",
		Resource: logicalPath,
		Attempts: attempts,
	}
}

func (e *Executor) tryRegister(ctx context.Context, conn engine.Conn, alias, candidate string) error {
	data, err := e.fetcher.Fetch(ctx, candidate)
	if err != nil {
		return err
	}
	return conn.RegisterFileBuffer(ctx, alias, data)
}

// Query registers logicalPath and runs q against its alias, returning the
// result in the shape the engine produced it.
func (e *Executor) Query(ctx context.Context, conn engine.Conn, logicalPath string, q Query) (engine.Result, error) {
	alias, err := e.Register(ctx, conn, logicalPath)
	if err != nil {
		return nil, err
	}

	sqlStr, err := Render(q, alias)
	if err != nil {
		return nil, err
	}

	res, err := conn.Query(ctx, sqlStr)
	if err != nil {
		e.sink.Record(diag.NewEvent(diag.KindQuery, logicalPath, alias, err))
		return nil, fmt.Errorf("failed to query %s: %w", logicalPath, err)
	}
	return res, nil
}

// RegisterAndQuery registers logicalPath and runs q against its alias.
func (e *Executor) RegisterAndQuery(ctx context.Context, conn engine.Conn, logicalPath string, q Query) ([]engine.Row, error) {
	res, err := e.Query(ctx, conn, logicalPath, q)
	if err != nil {
		return nil, err
	}
	return engine.Rows(res), nil
}

// CountRows returns the number of rows in the dataset at logicalPath.
func (e *Executor) CountRows(ctx context.Context, conn engine.Conn, logicalPath string) (int64, error) {
	rows, err := e.RegisterAndQuery(ctx, conn, logicalPath, CountSQL)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	n, ok := Int64(rows[0]["n"])
	if !ok {
		return 0, fmt.Errorf("unexpected count value %v", rows[0]["n"])
	}
	return n, nil
}

// CountRowsOrFallback counts the entry's table and falls back to the row
// count declared in its manifest on any failure.
func (e *Executor) CountRowsOrFallback(ctx context.Context, conn engine.Conn, entry *catalog.Entry) int64 {
	n, err := e.CountRows(ctx, conn, entry.TablePath())
	if err != nil {
		fallback := entry.FallbackRowCount()
		e.logger.Warn("row count failed, using catalog value",
			"source_id", entry.SourceID,
			"path", entry.TablePath(),
			"fallback", fallback,
			"error", err)
		return fallback
	}
	return n
}
