package climate

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"climatemap-server/internal/config"
	"climatemap-server/internal/modules/climate/ingest"
	"climatemap-server/internal/modules/climate/repository"
	"climatemap-server/internal/modules/climate/types"
	"climatemap-server/internal/observability"

	"github.com/jonboulle/clockwork"
)

// Importer loads the observation CSV into the store.
type Importer struct {
	repo    repository.ClimateRepository
	reader  *ingest.Reader
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
}

func NewImporter(repo repository.ClimateRepository, logger *slog.Logger, metrics *observability.Metrics) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NewMetricsForTesting()
	}
	return &Importer{
		repo:    repo,
		reader:  ingest.NewReader(logger),
		clock:   clockwork.NewRealClock(),
		logger:  logger,
		metrics: metrics,
	}
}

// Import reads path and stores it according to mode. With
// config.ImportAppendIfEmpty a non-empty store is left untouched and the
// returned bool is false.
func (im *Importer) Import(path, mode string) (types.ImportRecord, bool, error) {
	switch mode {
	case config.ImportAppendIfEmpty:
		n, err := im.repo.CountObservations()
		if err != nil {
			return types.ImportRecord{}, false, fmt.Errorf("count observations: %w", err)
		}
		if n > 0 {
			im.logger.Info("observations already stored, skipping import", "stored", n, "source", path)
			return types.ImportRecord{}, false, nil
		}
	case config.ImportReplace:
	default:
		return types.ImportRecord{}, false, fmt.Errorf("unknown import mode %q", mode)
	}

	res, err := im.reader.ReadFile(path)
	if err != nil {
		return types.ImportRecord{}, false, err
	}

	var loaded int
	if mode == config.ImportReplace {
		loaded, err = im.repo.ReplaceObservations(res.Observations)
	} else {
		loaded, err = im.repo.InsertObservations(res.Observations)
	}
	if err != nil {
		return types.ImportRecord{}, false, fmt.Errorf("store observations: %w", err)
	}

	rec := types.ImportRecord{
		Source:      filepath.Base(path),
		Mode:        mode,
		RowsLoaded:  loaded,
		RowsSkipped: len(res.Skipped),
		ImportedAt:  im.clock.Now().UTC(),
	}
	if err := im.repo.RecordImport(rec); err != nil {
		return rec, true, fmt.Errorf("record import: %w", err)
	}
	im.metrics.ImportRowsSkipped.Add(float64(rec.RowsSkipped))
	im.logger.Info("observations imported",
		"source", path,
		"mode", mode,
		"loaded", rec.RowsLoaded,
		"skipped", rec.RowsSkipped,
	)
	return rec, true, nil
}
