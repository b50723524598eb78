// Package report imports grid search result logs into a sqlite database and
// renders summary charts from the accumulated runs.
package report

import (
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/blasks/barnacle-gridsearch/internal/search"
)

// DB wraps the results database.
type DB struct {
	*sql.DB
}

// Open opens (or creates) the results database at path and ensures the
// schema exists.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS import_runs (
			run_id            TEXT PRIMARY KEY,
			source_dir        TEXT,
			fit_rows          BIGINT,
			cv_rows           BIGINT,
			created_at        BIGINT
		);
		CREATE TABLE IF NOT EXISTS fit_results (
			run_id                  TEXT,
			datetime                TEXT,
			bootstrap_id            BIGINT,
			replicate               TEXT,
			rank                    BIGINT,
			lambda                  DOUBLE,
			best_init               BIGINT,
			loss                    DOUBLE,
			convergence_iterations  BIGINT,
			sse                     DOUBLE,
			degeneracy              DOUBLE,
			core_consistency        DOUBLE
		);
		CREATE TABLE IF NOT EXISTS cv_results (
			run_id                  TEXT,
			bootstrap_id            BIGINT,
			rank                    BIGINT,
			lambda                  DOUBLE,
			modeled_replicate       TEXT,
			comparison_replicate    TEXT,
			n_components            BIGINT,
			mode0_factor_sparsity   DOUBLE,
			sse                     DOUBLE,
			fms                     DOUBLE
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &DB{DB: db}, nil
}

// ImportRun records one import of a search output directory: both result
// tables are inserted under a fresh run id so repeated imports stay
// distinguishable.
type ImportRun struct {
	RunID     string
	SourceDir string
	FitRows   int
	CVRows    int
	CreatedAt int64
}

// Import loads both result tables under a new run id and returns the run
// summary. The insert happens in one transaction, so a failed import leaves
// no partial run behind.
func (db *DB) Import(sourceDir string, fits *search.FitTable, cv *search.CVTable) (*ImportRun, error) {
	run := &ImportRun{
		RunID:     uuid.New().String(),
		SourceDir: sourceDir,
		FitRows:   len(fits.Records),
		CVRows:    len(cv.Records),
		CreatedAt: time.Now().UnixNano(),
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO import_runs (run_id, source_dir, fit_rows, cv_rows, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		run.RunID, run.SourceDir, run.FitRows, run.CVRows, run.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert import run: %w", err)
	}

	for _, rec := range fits.Records {
		_, err := tx.Exec(`
			INSERT INTO fit_results (
				run_id, datetime, bootstrap_id, replicate, rank, lambda,
				best_init, loss, convergence_iterations, sse, degeneracy, core_consistency
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, rec.Timestamp.Format(time.RFC3339), rec.Bootstrap, rec.Replicate,
			rec.Rank, rec.Lambda, rec.BestInit, nullIfNaN(rec.Loss), rec.Iterations,
			nullIfNaN(rec.SSE), nullIfNaN(rec.Degeneracy), nullIfNaN(rec.CoreConsistency))
		if err != nil {
			return nil, fmt.Errorf("insert fit row: %w", err)
		}
	}

	for _, rec := range cv.Records {
		_, err := tx.Exec(`
			INSERT INTO cv_results (
				run_id, bootstrap_id, rank, lambda, modeled_replicate, comparison_replicate,
				n_components, mode0_factor_sparsity, sse, fms
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, rec.Bootstrap, rec.Rank, rec.Lambda,
			rec.ModeledReplicate, rec.ComparisonReplicate,
			rec.NumComponents, nullIfNaN(rec.Mode0Sparsity),
			nullIfNaN(rec.SSE), nullIfNaN(rec.FMS))
		if err != nil {
			return nil, fmt.Errorf("insert cv row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return run, nil
}

// CVPoint is one aggregated cross-validation cell: the mean metrics over all
// bootstraps and replicate pairs sharing a rank and lambda.
type CVPoint struct {
	Rank    int
	Lambda  float64
	MeanSSE float64
	MeanFMS float64 // NaN when no pair carried a score
	Pairs   int
}

// CVSummary aggregates the cross-replicate rows of a run into one point per
// grid cell. Self pairs are excluded: they measure training error, not
// generalization.
func (db *DB) CVSummary(runID string) ([]CVPoint, error) {
	rows, err := db.Query(`
		SELECT rank, lambda, AVG(sse), AVG(fms), COUNT(*)
		FROM cv_results
		WHERE run_id = ? AND modeled_replicate != comparison_replicate
		GROUP BY rank, lambda
		ORDER BY lambda, rank`, runID)
	if err != nil {
		return nil, fmt.Errorf("query cv summary: %w", err)
	}
	defer rows.Close()

	var points []CVPoint
	for rows.Next() {
		var p CVPoint
		var sse, fms sql.NullFloat64
		if err := rows.Scan(&p.Rank, &p.Lambda, &sse, &fms, &p.Pairs); err != nil {
			return nil, fmt.Errorf("scan cv summary row: %w", err)
		}
		p.MeanSSE = floatOrNaN(sse)
		p.MeanFMS = floatOrNaN(fms)
		points = append(points, p)
	}
	return points, rows.Err()
}

// LatestRun returns the most recently created import run.
func (db *DB) LatestRun() (*ImportRun, error) {
	row := db.QueryRow(`
		SELECT run_id, source_dir, fit_rows, cv_rows, created_at
		FROM import_runs
		ORDER BY created_at DESC
		LIMIT 1`)
	var run ImportRun
	err := row.Scan(&run.RunID, &run.SourceDir, &run.FitRows, &run.CVRows, &run.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no import runs recorded")
	}
	if err != nil {
		return nil, fmt.Errorf("scan import run: %w", err)
	}
	return &run, nil
}

// Runs lists all import runs, newest first.
func (db *DB) Runs() ([]*ImportRun, error) {
	rows, err := db.Query(`
		SELECT run_id, source_dir, fit_rows, cv_rows, created_at
		FROM import_runs
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query import runs: %w", err)
	}
	defer rows.Close()

	var runs []*ImportRun
	for rows.Next() {
		var run ImportRun
		if err := rows.Scan(&run.RunID, &run.SourceDir, &run.FitRows, &run.CVRows, &run.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan import run: %w", err)
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

// DescribeRun renders a one-line human summary of a run.
func DescribeRun(run *ImportRun) string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s: %d fit rows, %d cv rows from %s (%s)",
		run.RunID, run.FitRows, run.CVRows, run.SourceDir,
		time.Unix(0, run.CreatedAt).Format(time.RFC3339))
	return b.String()
}

// nullIfNaN maps NaN metrics to SQL NULL.
func nullIfNaN(v float64) interface{} {
	if math.IsNaN(v) {
		return nil
	}
	return v
}

func floatOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
