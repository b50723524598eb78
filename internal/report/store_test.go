package report

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/blasks/barnacle-gridsearch/internal/search"
)

func testTables() (*search.FitTable, *search.CVTable) {
	fits := &search.FitTable{}
	fits.Append(search.FitRecord{
		Timestamp: time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC),
		Bootstrap: 0, Replicate: "A", Rank: 2, Lambda: 0.1,
		BestInit: 1, Loss: 3.5, Iterations: 12,
		SSE: 0.2, Degeneracy: 0.9, CoreConsistency: 95,
	})

	cv := &search.CVTable{}
	// Self pair, excluded from the summary.
	cv.Append(search.CVRecord{Bootstrap: 0, Rank: 2, Lambda: 0.1,
		ModeledReplicate: "A", ComparisonReplicate: "A",
		NumComponents: 2, Mode0Sparsity: 0.1, SSE: 0.05, FMS: math.NaN()})
	// Cross pairs across two bootstraps.
	cv.Append(search.CVRecord{Bootstrap: 0, Rank: 2, Lambda: 0.1,
		ModeledReplicate: "A", ComparisonReplicate: "B",
		NumComponents: 2, Mode0Sparsity: 0.1, SSE: 0.3, FMS: 0.9})
	cv.Append(search.CVRecord{Bootstrap: 1, Rank: 2, Lambda: 0.1,
		ModeledReplicate: "A", ComparisonReplicate: "B",
		NumComponents: 2, Mode0Sparsity: 0.1, SSE: 0.5, FMS: 0.7})
	// The mirrored pair carries no score.
	cv.Append(search.CVRecord{Bootstrap: 0, Rank: 2, Lambda: 0.1,
		ModeledReplicate: "B", ComparisonReplicate: "A",
		NumComponents: 2, Mode0Sparsity: 0.1, SSE: 0.4, FMS: math.NaN()})
	return fits, cv
}

func TestImportAndSummary(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	fits, cv := testTables()
	run, err := db.Import("/tmp/out", fits, cv)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if run.RunID == "" {
		t.Fatal("import run has empty id")
	}
	if run.FitRows != 1 || run.CVRows != 4 {
		t.Fatalf("run counts = %d/%d, want 1/4", run.FitRows, run.CVRows)
	}

	points, err := db.CVSummary(run.RunID)
	if err != nil {
		t.Fatalf("CVSummary: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("got %d summary points, want 1", len(points))
	}
	p := points[0]
	if p.Rank != 2 || p.Lambda != 0.1 {
		t.Fatalf("unexpected grid cell: %+v", p)
	}
	if p.Pairs != 3 {
		t.Fatalf("summary covers %d pairs, want 3 cross pairs", p.Pairs)
	}
	// Mean over the three cross-pair sse values.
	if math.Abs(p.MeanSSE-0.4) > 1e-12 {
		t.Fatalf("mean sse = %g, want 0.4", p.MeanSSE)
	}
	// NULL fms rows drop out of the average.
	if math.Abs(p.MeanFMS-0.8) > 1e-12 {
		t.Fatalf("mean fms = %g, want 0.8", p.MeanFMS)
	}
}

func TestLatestRunAndRuns(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if _, err := db.LatestRun(); err == nil {
		t.Fatal("expected error with no runs recorded")
	}

	fits, cv := testTables()
	first, err := db.Import("/tmp/a", fits, cv)
	if err != nil {
		t.Fatalf("first import: %v", err)
	}
	second, err := db.Import("/tmp/b", fits, cv)
	if err != nil {
		t.Fatalf("second import: %v", err)
	}

	latest, err := db.LatestRun()
	if err != nil {
		t.Fatalf("LatestRun: %v", err)
	}
	if latest.RunID != second.RunID {
		t.Fatalf("latest run = %s, want %s", latest.RunID, second.RunID)
	}

	runs, err := db.Runs()
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].RunID != second.RunID || runs[1].RunID != first.RunID {
		t.Fatal("runs not ordered newest first")
	}
}

func TestSummaryIsolatesRuns(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	fits, cv := testTables()
	a, err := db.Import("/tmp/a", fits, cv)
	if err != nil {
		t.Fatalf("import a: %v", err)
	}
	if _, err := db.Import("/tmp/b", fits, cv); err != nil {
		t.Fatalf("import b: %v", err)
	}

	points, err := db.CVSummary(a.RunID)
	if err != nil {
		t.Fatalf("CVSummary: %v", err)
	}
	if len(points) != 1 || points[0].Pairs != 3 {
		t.Fatalf("summary leaked rows across runs: %+v", points)
	}
}
