package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// DefaultSlowThreshold is the duration above which a statement is logged at
// warn level instead of debug.
const DefaultSlowThreshold = 200 * time.Millisecond

// loggingConnector opens sqlite3 connections whose statements are timed and
// logged. Use it with sql.OpenDB.
type loggingConnector struct {
	dsn    string
	driver driver.Driver
	logger *slog.Logger
	slow   time.Duration
}

type ConnectorOption func(*loggingConnector)

func WithSlowThreshold(d time.Duration) ConnectorOption {
	return func(c *loggingConnector) {
		if d > 0 {
			c.slow = d
		}
	}
}

// NewLoggingConnector returns a connector for dsn. A nil logger means
// slog.Default().
func NewLoggingConnector(dsn string, logger *slog.Logger, opts ...ConnectorOption) (driver.Connector, error) {
	if dsn == "" {
		return nil, errors.New("sql logger: empty dsn")
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &loggingConnector{
		dsn:    dsn,
		driver: &sqlite3.SQLiteDriver{},
		logger: logger,
		slow:   DefaultSlowThreshold,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *loggingConnector) Driver() driver.Driver { return c.driver }

func (c *loggingConnector) Connect(ctx context.Context) (driver.Conn, error) {
	conn, err := c.driver.Open(c.dsn)
	if err != nil {
		return nil, err
	}
	return &loggingConn{Conn: conn, c: c}, nil
}

// observe logs one statement. Slow or failed statements are raised above
// debug so they show up with the default log level.
func (c *loggingConnector) observe(ctx context.Context, op, query string, args []driver.NamedValue, start time.Time, err error) {
	elapsed := time.Since(start)
	level := slog.LevelDebug
	msg := "sql"
	switch {
	case err != nil && !errors.Is(err, driver.ErrSkip):
		level, msg = slog.LevelError, "sql failed"
	case elapsed >= c.slow:
		level, msg = slog.LevelWarn, "sql slow"
	}
	if !c.logger.Enabled(ctx, level) {
		return
	}
	attrs := []any{
		"op", op,
		"sql", query,
		"args", formatArgs(args),
		"duration_ms", elapsed.Milliseconds(),
	}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	c.logger.Log(ctx, level, msg, attrs...)
}

type loggingConn struct {
	driver.Conn
	c *loggingConnector
}

func (lc *loggingConn) Prepare(query string) (driver.Stmt, error) {
	return lc.PrepareContext(context.Background(), query)
}

func (lc *loggingConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	var (
		stmt driver.Stmt
		err  error
	)
	if prep, ok := lc.Conn.(driver.ConnPrepareContext); ok {
		stmt, err = prep.PrepareContext(ctx, query)
	} else {
		stmt, err = lc.Conn.Prepare(query)
	}
	if err != nil {
		return nil, err
	}
	return &loggingStmt{Stmt: stmt, query: query, c: lc.c}, nil
}

func (lc *loggingConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if beginTx, ok := lc.Conn.(driver.ConnBeginTx); ok {
		return beginTx.BeginTx(ctx, opts)
	}
	//nolint:staticcheck // SA1019: fallback for drivers without ConnBeginTx
	return lc.Conn.Begin()
}

// ExecContext runs multi-statement scripts such as migrations directly on
// the sqlite connection; a prepared statement would only run the first one.
func (lc *loggingConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (res driver.Result, err error) {
	execer, ok := lc.Conn.(driver.ExecerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	defer func(start time.Time) { lc.c.observe(ctx, "exec", query, args, start, err) }(time.Now())
	return execer.ExecContext(ctx, query, args)
}

func (lc *loggingConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (rows driver.Rows, err error) {
	queryer, ok := lc.Conn.(driver.QueryerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	defer func(start time.Time) { lc.c.observe(ctx, "query", query, args, start, err) }(time.Now())
	return queryer.QueryContext(ctx, query, args)
}

type loggingStmt struct {
	driver.Stmt
	query string
	c     *loggingConnector
}

func (s *loggingStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (res driver.Result, err error) {
	defer func(start time.Time) { s.c.observe(ctx, "exec", s.query, args, start, err) }(time.Now())
	if execCtx, ok := s.Stmt.(driver.StmtExecContext); ok {
		return execCtx.ExecContext(ctx, args)
	}
	//nolint:staticcheck // SA1019: fallback for statements without StmtExecContext
	return s.Stmt.Exec(values(args))
}

func (s *loggingStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (rows driver.Rows, err error) {
	defer func(start time.Time) { s.c.observe(ctx, "query", s.query, args, start, err) }(time.Now())
	if queryCtx, ok := s.Stmt.(driver.StmtQueryContext); ok {
		return queryCtx.QueryContext(ctx, args)
	}
	//nolint:staticcheck // SA1019: fallback for statements without StmtQueryContext
	return s.Stmt.Query(values(args))
}

func values(args []driver.NamedValue) []driver.Value {
	out := make([]driver.Value, len(args))
	for i := range args {
		out[i] = args[i].Value
	}
	return out
}

func formatArgs(args []driver.NamedValue) []string {
	out := make([]string, len(args))
	for i, a := range args {
		v := "NULL"
		switch t := a.Value.(type) {
		case nil:
		case []byte:
			v = string(t)
		case time.Time:
			v = t.Format(time.RFC3339)
		default:
			v = fmt.Sprint(t)
		}
		if a.Name != "" {
			v = a.Name + "=" + v
		}
		out[i] = v
	}
	return out
}
