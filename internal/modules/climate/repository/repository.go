package repository

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"climatemap-server/internal/modules/climate/domain"
	"climatemap-server/internal/modules/climate/types"
)

//go:embed sql/insert-observation.sql
var insertObservationSQL string

//go:embed sql/list-observations.sql
var listObservationsSQL string

//go:embed sql/list-observations-between.sql
var listObservationsBetweenSQL string

//go:embed sql/count-observations.sql
var countObservationsSQL string

//go:embed sql/delete-observations.sql
var deleteObservationsSQL string

//go:embed sql/insert-import.sql
var insertImportSQL string

//go:embed sql/get-latest-import.sql
var getLatestImportSQL string

const importedAtLayout = "2006-01-02T15:04:05.999Z"

type ClimateRepository interface {
	ListObservations() ([]types.Observation, error)
	ListObservationsBetween(from, to time.Time) ([]types.Observation, error)
	CountObservations() (int, error)
	InsertObservations(observations []types.Observation) (int, error)
	ReplaceObservations(observations []types.Observation) (int, error)
	RecordImport(rec types.ImportRecord) error
	LatestImport() (types.ImportRecord, bool, error)
}

type repositoryImpl struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) ClimateRepository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) ListObservations() ([]types.Observation, error) {
	rows, err := r.db.Query(listObservationsSQL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close observations rows", "error", err)
		}
	}()
	return scanObservations(rows)
}

// ListObservationsBetween returns the observations dated within [from, to],
// compared by calendar day.
func (r *repositoryImpl) ListObservationsBetween(from, to time.Time) ([]types.Observation, error) {
	rows, err := r.db.Query(listObservationsBetweenSQL,
		from.UTC().Format(domain.InputLayout),
		to.UTC().Format(domain.InputLayout),
	)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close observations rows", "error", err)
		}
	}()
	return scanObservations(rows)
}

func (r *repositoryImpl) CountObservations() (int, error) {
	var n int
	err := r.db.QueryRow(countObservationsSQL).Scan(&n)
	return n, err
}

// InsertObservations appends observations in a single transaction and
// returns the number of rows written.
func (r *repositoryImpl) InsertObservations(observations []types.Observation) (int, error) {
	return r.inTx(func(tx *sql.Tx) (int, error) {
		return insertAll(tx, observations)
	})
}

// ReplaceObservations deletes the stored observations and writes the given
// set atomically.
func (r *repositoryImpl) ReplaceObservations(observations []types.Observation) (int, error) {
	return r.inTx(func(tx *sql.Tx) (int, error) {
		if _, err := tx.Exec(deleteObservationsSQL); err != nil {
			return 0, fmt.Errorf("delete observations: %w", err)
		}
		return insertAll(tx, observations)
	})
}

func (r *repositoryImpl) RecordImport(rec types.ImportRecord) error {
	if _, err := r.db.Exec(insertImportSQL, rec.Source, rec.Mode, rec.RowsLoaded, rec.RowsSkipped); err != nil {
		return fmt.Errorf("insert import: %w", err)
	}
	return nil
}

func (r *repositoryImpl) LatestImport() (types.ImportRecord, bool, error) {
	var rec types.ImportRecord
	var ts string
	err := r.db.QueryRow(getLatestImportSQL).Scan(&rec.Source, &rec.Mode, &rec.RowsLoaded, &rec.RowsSkipped, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return types.ImportRecord{}, false, nil
	}
	if err != nil {
		return types.ImportRecord{}, false, err
	}
	t, err := time.Parse(importedAtLayout, ts)
	if err != nil {
		return types.ImportRecord{}, false, fmt.Errorf("parse imported_at %q: %w", ts, err)
	}
	rec.ImportedAt = t
	return rec, true, nil
}

func (r *repositoryImpl) inTx(fn func(tx *sql.Tx) (int, error)) (int, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	n, err := fn(tx)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Error("rollback observations", "error", rbErr)
		}
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

func insertAll(tx *sql.Tx, observations []types.Observation) (int, error) {
	stmt, err := tx.Prepare(insertObservationSQL)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer func() {
		if err := stmt.Close(); err != nil {
			slog.Error("close insert statement", "error", err)
		}
	}()
	for i, o := range observations {
		if _, err := stmt.Exec(o.RegionID, o.Date.UTC().Format(domain.InputLayout), o.AvgTemp); err != nil {
			return 0, fmt.Errorf("insert observation %d (%s): %w", i, o.RegionID, err)
		}
	}
	return len(observations), nil
}

func scanObservations(rows *sql.Rows) ([]types.Observation, error) {
	var out []types.Observation
	for rows.Next() {
		var o types.Observation
		var day string
		if err := rows.Scan(&o.RegionID, &day, &o.AvgTemp); err != nil {
			return nil, err
		}
		d, err := domain.ParseDate(day)
		if err != nil {
			return nil, fmt.Errorf("parse obs_date %q: %w", day, err)
		}
		o.Date = d
		out = append(out, o)
	}
	return out, rows.Err()
}
