package httpapi

import (
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"climatemap-server/internal/config"

	_ "github.com/mattn/go-sqlite3"
)

func openMemory(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestHealthz(t *testing.T) {
	db := openMemory(t)
	srv := httptest.NewServer(NewServer(config.Config{}, NewMux(db, "")).Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d; want 200", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %q; want ok", body["status"])
	}
}

func TestHealthz_DatabaseDown(t *testing.T) {
	db := openMemory(t)
	_ = db.Close()

	rec := httptest.NewRecorder()
	NewMux(db, "").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d; want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "database connectivity") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestMetricsAndStatic(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "app.css"), []byte("svg{}"), 0o600); err != nil {
		t.Fatal(err)
	}
	mux := NewMux(openMemory(t), dir)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("GET /metrics status = %d; want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("GET /metrics should expose the default Go collectors")
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/app.css", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /static/app.css status = %d; want 200", rec.Code)
	}
	if body, _ := io.ReadAll(rec.Body); string(body) != "svg{}" {
		t.Errorf("static body = %q", body)
	}
}

func TestRequestLogger_RecordsStatus(t *testing.T) {
	var seen *statusRecorder
	h := requestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = w.(*statusRecorder)
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	if rec.Code != http.StatusTeapot || seen.status != http.StatusTeapot {
		t.Errorf("status = %d / %d; want 418", rec.Code, seen.status)
	}
	if seen.Unwrap() != http.ResponseWriter(rec) {
		t.Error("Unwrap should return the wrapped writer")
	}
	if _, _, err := seen.Hijack(); err == nil {
		t.Error("Hijack on a recorder should fail")
	}
}
