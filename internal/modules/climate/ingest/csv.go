// Package ingest parses the per-region temperature CSV into observations.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"climatemap-server/internal/modules/climate/domain"
	"climatemap-server/internal/modules/climate/types"
)

const (
	ColumnRegion = "Postcode"
	ColumnDate   = "Date"
	ColumnTemp   = "Avg_temp"
)

var ErrMissingColumn = errors.New("missing column")

// row is a raw CSV record before conversion.
type row struct {
	RegionID string `validate:"required,max=16"`
	Date     string `validate:"required,datetime=2006-01-02"`
	AvgTemp  string `validate:"required,numeric"`
}

// RowError describes a skipped record.
type RowError struct {
	Line int
	Err  error
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

// Result holds the parsed observations and the records that were skipped.
type Result struct {
	Observations []types.Observation
	Skipped      []RowError
}

type Reader struct {
	validate *validator.Validate
	logger   *slog.Logger
}

func NewReader(logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{validate: validator.New(), logger: logger}
}

// ReadFile parses the CSV at path.
func (r *Reader) ReadFile(path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open observations: %w", err)
	}
	defer f.Close()
	return r.Read(f)
}

// Read parses observations from src. The header must name the region, date
// and temperature columns; other columns are ignored. Invalid records are
// skipped and reported in Result.Skipped.
func (r *Reader) Read(src io.Reader) (Result, error) {
	cr := csv.NewReader(src)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Result{}, fmt.Errorf("%w: empty file", ErrMissingColumn)
		}
		return Result{}, fmt.Errorf("read header: %w", err)
	}
	cols, err := columnIndex(header)
	if err != nil {
		return Result{}, err
	}

	var res Result
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				res.Skipped = append(res.Skipped, RowError{Line: line, Err: err})
				continue
			}
			return res, fmt.Errorf("read line %d: %w", line, err)
		}
		obs, err := r.parse(rec, cols)
		if err != nil {
			res.Skipped = append(res.Skipped, RowError{Line: line, Err: err})
			continue
		}
		res.Observations = append(res.Observations, obs)
	}

	if len(res.Skipped) > 0 {
		r.logger.Warn("skipped invalid observation rows",
			"skipped", len(res.Skipped),
			"first", res.Skipped[0].Error(),
		)
	}
	return res, nil
}

type columns struct {
	region, date, temp int
}

func columnIndex(header []string) (columns, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	var c columns
	for name, dst := range map[string]*int{
		ColumnRegion: &c.region,
		ColumnDate:   &c.date,
		ColumnTemp:   &c.temp,
	} {
		i, ok := idx[name]
		if !ok {
			return columns{}, fmt.Errorf("%w: %q", ErrMissingColumn, name)
		}
		*dst = i
	}
	return c, nil
}

func (r *Reader) parse(rec []string, c columns) (types.Observation, error) {
	field := func(i int) string {
		if i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}
	raw := row{RegionID: field(c.region), Date: field(c.date), AvgTemp: field(c.temp)}
	if err := r.validate.Struct(raw); err != nil {
		return types.Observation{}, err
	}
	d, err := domain.ParseDate(raw.Date)
	if err != nil {
		return types.Observation{}, fmt.Errorf("parse date: %w", err)
	}
	temp, err := strconv.ParseFloat(raw.AvgTemp, 64)
	if err != nil {
		return types.Observation{}, fmt.Errorf("parse temperature: %w", err)
	}
	return types.Observation{RegionID: raw.RegionID, Date: d, AvgTemp: temp}, nil
}
