package repository

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"climatemap-server/internal/migrate"
	"climatemap-server/internal/modules/climate/types"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("close db: %v", err)
		}
	})
	if err := migrate.Run(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sample() []types.Observation {
	return []types.Observation{
		{RegionID: "3000", Date: day(2023, 7, 2), AvgTemp: 11.5},
		{RegionID: "3000", Date: day(2023, 7, 1), AvgTemp: 10},
		{RegionID: "2000", Date: day(2023, 7, 1), AvgTemp: 0},
		{RegionID: "0800", Date: day(2023, 7, 3), AvgTemp: -1.25},
	}
}

func TestNewRepository(t *testing.T) {
	if repo := NewRepository(setupTestDB(t)); repo == nil {
		t.Fatal("NewRepository returned nil")
	}
}

func TestListObservations_Empty(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	got, err := repo.ListObservations()
	if err != nil {
		t.Fatalf("ListObservations: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("ListObservations = %v; want empty", got)
	}
	n, err := repo.CountObservations()
	if err != nil {
		t.Fatalf("CountObservations: %v", err)
	}
	if n != 0 {
		t.Errorf("CountObservations = %d; want 0", n)
	}
}

func TestInsertObservations_ListOrderedByDate(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	n, err := repo.InsertObservations(sample())
	if err != nil {
		t.Fatalf("InsertObservations: %v", err)
	}
	if n != 4 {
		t.Errorf("inserted = %d; want 4", n)
	}

	got, err := repo.ListObservations()
	if err != nil {
		t.Fatalf("ListObservations: %v", err)
	}
	want := []types.Observation{
		{RegionID: "3000", Date: day(2023, 7, 1), AvgTemp: 10},
		{RegionID: "2000", Date: day(2023, 7, 1), AvgTemp: 0},
		{RegionID: "3000", Date: day(2023, 7, 2), AvgTemp: 11.5},
		{RegionID: "0800", Date: day(2023, 7, 3), AvgTemp: -1.25},
	}
	if len(got) != len(want) {
		t.Fatalf("len = %d; want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].RegionID != want[i].RegionID || !got[i].Date.Equal(want[i].Date) || got[i].AvgTemp != want[i].AvgTemp {
			t.Errorf("[%d] = %+v; want %+v", i, got[i], want[i])
		}
	}
}

func TestInsertObservations_Appends(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	for i := 0; i < 2; i++ {
		if _, err := repo.InsertObservations(sample()); err != nil {
			t.Fatalf("InsertObservations #%d: %v", i+1, err)
		}
	}
	n, err := repo.CountObservations()
	if err != nil {
		t.Fatalf("CountObservations: %v", err)
	}
	if n != 8 {
		t.Errorf("CountObservations = %d; want 8", n)
	}
}

func TestReplaceObservations(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	if _, err := repo.InsertObservations(sample()); err != nil {
		t.Fatalf("InsertObservations: %v", err)
	}
	replacement := []types.Observation{{RegionID: "4000", Date: day(2024, 1, 1), AvgTemp: 30}}
	n, err := repo.ReplaceObservations(replacement)
	if err != nil {
		t.Fatalf("ReplaceObservations: %v", err)
	}
	if n != 1 {
		t.Errorf("replaced = %d; want 1", n)
	}
	got, err := repo.ListObservations()
	if err != nil {
		t.Fatalf("ListObservations: %v", err)
	}
	if len(got) != 1 || got[0].RegionID != "4000" {
		t.Errorf("ListObservations = %+v; want only 4000", got)
	}
}

func TestListObservationsBetween(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	if _, err := repo.InsertObservations(sample()); err != nil {
		t.Fatalf("InsertObservations: %v", err)
	}
	got, err := repo.ListObservationsBetween(day(2023, 7, 2), day(2023, 7, 3))
	if err != nil {
		t.Fatalf("ListObservationsBetween: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d; want 2", len(got))
	}
	if got[0].RegionID != "3000" || got[1].RegionID != "0800" {
		t.Errorf("regions = %s,%s; want 3000,0800", got[0].RegionID, got[1].RegionID)
	}
}

func TestImportRecords(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	_, ok, err := repo.LatestImport()
	if err != nil {
		t.Fatalf("LatestImport: %v", err)
	}
	if ok {
		t.Fatal("LatestImport ok = true on empty table")
	}

	for _, rec := range []types.ImportRecord{
		{Source: "a.csv", Mode: "append-if-empty", RowsLoaded: 10, RowsSkipped: 1},
		{Source: "b.csv", Mode: "replace", RowsLoaded: 20, RowsSkipped: 0},
	} {
		if err := repo.RecordImport(rec); err != nil {
			t.Fatalf("RecordImport: %v", err)
		}
	}

	got, ok, err := repo.LatestImport()
	if err != nil {
		t.Fatalf("LatestImport: %v", err)
	}
	if !ok {
		t.Fatal("LatestImport ok = false; want true")
	}
	if got.Source != "b.csv" || got.Mode != "replace" || got.RowsLoaded != 20 {
		t.Errorf("LatestImport = %+v; want b.csv/replace/20", got)
	}
	if got.ImportedAt.IsZero() {
		t.Error("ImportedAt is zero")
	}
}
