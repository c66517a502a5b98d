package db

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// captureHandler records log records for assertion in tests.
type captureHandler struct {
	mu      sync.Mutex
	records []captured
}

type captured struct {
	level slog.Level
	msg   string
	attrs map[string]slog.Value
}

func (h *captureHandler) Enabled(_ context.Context, _ slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := captured{level: r.Level, msg: r.Message, attrs: make(map[string]slog.Value)}
	r.Attrs(func(a slog.Attr) bool {
		c.attrs[a.Key] = a.Value
		return true
	})
	h.records = append(h.records, c)
	return nil
}

func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *captureHandler) WithGroup(string) slog.Handler      { return h }

func (h *captureHandler) last(t *testing.T) captured {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.records) == 0 {
		t.Fatal("no log records captured")
	}
	return h.records[len(h.records)-1]
}

func (h *captureHandler) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = nil
}

func openLogged(t *testing.T, opts ...ConnectorOption) (*sql.DB, *captureHandler) {
	t.Helper()
	handler := &captureHandler{}
	connector, err := NewLoggingConnector(":memory:", slog.New(handler), opts...)
	if err != nil {
		t.Fatalf("NewLoggingConnector: %v", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db, handler
}

func TestNewLoggingConnector_Defaults(t *testing.T) {
	conn, err := NewLoggingConnector(":memory:", nil)
	if err != nil {
		t.Fatalf("NewLoggingConnector: %v", err)
	}
	lc := conn.(*loggingConnector)
	if lc.logger == nil || lc.slow != DefaultSlowThreshold {
		t.Errorf("defaults not applied: logger=%v slow=%v", lc.logger, lc.slow)
	}
	if _, err := NewLoggingConnector("", nil); err == nil {
		t.Error("empty dsn should fail")
	}
}

func TestLoggingConnector_MultiStatementExec(t *testing.T) {
	db, handler := openLogged(t)

	script := `CREATE TABLE a (id INTEGER); CREATE TABLE b (id INTEGER);`
	if _, err := db.Exec(script); err != nil {
		t.Fatalf("exec script: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO b (id) VALUES (1)`); err != nil {
		t.Fatalf("second table missing, script was truncated: %v", err)
	}

	handler.reset()
	if _, err := db.Exec(`INSERT INTO a (id) VALUES (?)`, 7); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got := handler.last(t)
	if got.msg != "sql" || got.level != slog.LevelDebug {
		t.Errorf("record = %s/%v; want sql/DEBUG", got.msg, got.level)
	}
	if got.attrs["op"].String() != "exec" {
		t.Errorf("op = %q; want exec", got.attrs["op"].String())
	}
	if got.attrs["sql"].String() != `INSERT INTO a (id) VALUES (?)` {
		t.Errorf("sql = %q", got.attrs["sql"].String())
	}
	if _, ok := got.attrs["duration_ms"]; !ok {
		t.Error("expected duration_ms attribute")
	}
}

func TestLoggingConnector_QueryLogged(t *testing.T) {
	db, handler := openLogged(t)

	var one int
	if err := db.QueryRow(`SELECT ?`, 1).Scan(&one); err != nil {
		t.Fatalf("query row: %v", err)
	}
	got := handler.last(t)
	if got.attrs["op"].String() != "query" {
		t.Errorf("op = %q; want query", got.attrs["op"].String())
	}
	args, ok := got.attrs["args"].Any().([]string)
	if !ok || len(args) != 1 || args[0] != "1" {
		t.Errorf("args = %v; want [1]", got.attrs["args"].Any())
	}
}

func TestLoggingConnector_PreparedStatement(t *testing.T) {
	db, handler := openLogged(t)
	if _, err := db.Exec(`CREATE TABLE t (d TEXT)`); err != nil {
		t.Fatalf("create: %v", err)
	}
	stmt, err := db.Prepare(`INSERT INTO t (d) VALUES (?)`)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	defer stmt.Close()

	handler.reset()
	if _, err := stmt.Exec(time.Date(2023, 7, 1, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("stmt exec: %v", err)
	}
	got := handler.last(t)
	args, _ := got.attrs["args"].Any().([]string)
	if len(args) != 1 || args[0] != "2023-07-01T00:00:00Z" {
		t.Errorf("args = %v; want [2023-07-01T00:00:00Z]", args)
	}
}

func TestLoggingConnector_SlowAndFailed(t *testing.T) {
	db, handler := openLogged(t, WithSlowThreshold(time.Nanosecond))

	if err := db.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if _, err := db.Exec(`CREATE TABLE t (id INTEGER)`); err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := handler.last(t); got.msg != "sql slow" || got.level != slog.LevelWarn {
		t.Errorf("record = %s/%v; want sql slow/WARN", got.msg, got.level)
	}

	if _, err := db.Exec(`INSERT INTO missing (id) VALUES (1)`); err == nil {
		t.Fatal("insert into missing table should fail")
	}
	got := handler.last(t)
	if got.msg != "sql failed" || got.level != slog.LevelError {
		t.Errorf("record = %s/%v; want sql failed/ERROR", got.msg, got.level)
	}
	if _, ok := got.attrs["error"]; !ok {
		t.Error("expected error attribute")
	}
}
