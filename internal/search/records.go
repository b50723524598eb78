package search

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/blasks/barnacle-gridsearch/internal/fsutil"
)

// FitRecord is one row of the cumulative fitting log: convergence and quality
// metrics for a single fitted grid cell.
type FitRecord struct {
	Timestamp       time.Time
	Bootstrap       int
	Replicate       string
	Rank            int
	Lambda          float64
	BestInit        int
	Loss            float64
	Iterations      int
	SSE             float64
	Degeneracy      float64
	CoreConsistency float64
	CandidateFMS    []float64 // best-vs-candidate similarity, one per extra init
	CandidateSSE    []float64
}

var fitHeader = []string{
	"datetime", "bootstrap_id", "replicate", "rank", "lambda",
	"best_init", "loss", "convergence_iterations",
	"sse", "degeneracy", "core_consistency",
	"candidate_fms", "candidate_sse",
}

// CVRecord is one row of the cumulative cross-validation log: one fitted
// model evaluated against one replicate's data.
type CVRecord struct {
	Bootstrap           int
	Rank                int
	Lambda              float64
	ModeledReplicate    string
	ComparisonReplicate string
	NumComponents       int
	Mode0Sparsity       float64
	SSE                 float64
	FMS                 float64 // NaN when the pair carries no similarity score
}

var cvHeader = []string{
	"bootstrap_id", "rank", "lambda",
	"modeled_replicate", "comparison_replicate",
	"n_components", "mode0_factor_sparsity", "sse", "fms",
}

// FitTable is the in-memory fitting log backed by a CSV file. Mutations
// accumulate in memory; Save rewrites the whole file atomically so a crash
// never leaves a half-written log.
type FitTable struct {
	Path    string
	Records []FitRecord
}

// LoadFitTable reads the fitting log at path. A missing file yields an empty
// table, which is how a fresh run starts.
func LoadFitTable(path string) (*FitTable, error) {
	t := &FitTable{Path: path}
	rows, err := readCSV(path, fitHeader)
	if err != nil {
		return nil, err
	}
	for i, row := range rows {
		rec, err := parseFitRow(row)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", path, i+2, err)
		}
		t.Records = append(t.Records, rec)
	}
	return t, nil
}

// Append adds a record to the in-memory table.
func (t *FitTable) Append(rec FitRecord) { t.Records = append(t.Records, rec) }

// Save atomically rewrites the backing CSV with all records.
func (t *FitTable) Save() error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(fitHeader); err != nil {
		return err
	}
	for _, rec := range t.Records {
		candFMS, err := json.Marshal(jsonSafe(rec.CandidateFMS))
		if err != nil {
			return err
		}
		candSSE, err := json.Marshal(jsonSafe(rec.CandidateSSE))
		if err != nil {
			return err
		}
		row := []string{
			rec.Timestamp.Format(time.RFC3339),
			strconv.Itoa(rec.Bootstrap),
			rec.Replicate,
			strconv.Itoa(rec.Rank),
			FormatLambda(rec.Lambda),
			strconv.Itoa(rec.BestInit),
			formatFloat(rec.Loss),
			strconv.Itoa(rec.Iterations),
			formatFloat(rec.SSE),
			formatFloat(rec.Degeneracy),
			formatFloat(rec.CoreConsistency),
			string(candFMS),
			string(candSSE),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(t.Path, buf.Bytes(), 0644)
}

// CVTable is the in-memory cross-validation log backed by a CSV file.
type CVTable struct {
	Path    string
	Records []CVRecord
}

// LoadCVTable reads the cross-validation log at path. A missing file yields
// an empty table.
func LoadCVTable(path string) (*CVTable, error) {
	t := &CVTable{Path: path}
	rows, err := readCSV(path, cvHeader)
	if err != nil {
		return nil, err
	}
	for i, row := range rows {
		rec, err := parseCVRow(row)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", path, i+2, err)
		}
		t.Records = append(t.Records, rec)
	}
	return t, nil
}

// Append adds a record to the in-memory table.
func (t *CVTable) Append(rec CVRecord) { t.Records = append(t.Records, rec) }

// Has reports whether a row for the given experiment coordinates already
// exists. Lambda matching goes through FormatLambda on both sides, so a value
// parsed back from CSV text always matches the value it was written from.
func (t *CVTable) Has(bootstrap, rank int, lambda float64, modeled, comparison string) bool {
	want := FormatLambda(lambda)
	for _, rec := range t.Records {
		if rec.Bootstrap == bootstrap &&
			rec.Rank == rank &&
			FormatLambda(rec.Lambda) == want &&
			rec.ModeledReplicate == modeled &&
			rec.ComparisonReplicate == comparison {
			return true
		}
	}
	return false
}

// Save atomically rewrites the backing CSV with all records.
func (t *CVTable) Save() error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(cvHeader); err != nil {
		return err
	}
	for _, rec := range t.Records {
		row := []string{
			strconv.Itoa(rec.Bootstrap),
			strconv.Itoa(rec.Rank),
			FormatLambda(rec.Lambda),
			rec.ModeledReplicate,
			rec.ComparisonReplicate,
			strconv.Itoa(rec.NumComponents),
			formatFloat(rec.Mode0Sparsity),
			formatFloat(rec.SSE),
			formatFloat(rec.FMS),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(t.Path, buf.Bytes(), 0644)
}

// readCSV loads a header-checked CSV, returning its data rows. A missing file
// returns no rows and no error.
func readCSV(path string, header []string) ([][]string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open log %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse log %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	if len(rows[0]) != len(header) {
		return nil, fmt.Errorf("log %s: %d columns, expected %d", path, len(rows[0]), len(header))
	}
	for i, col := range header {
		if rows[0][i] != col {
			return nil, fmt.Errorf("log %s: column %d is %q, expected %q", path, i, rows[0][i], col)
		}
	}
	return rows[1:], nil
}

func parseFitRow(row []string) (FitRecord, error) {
	var rec FitRecord
	var err error
	if rec.Timestamp, err = time.Parse(time.RFC3339, row[0]); err != nil {
		return rec, fmt.Errorf("datetime: %w", err)
	}
	if rec.Bootstrap, err = strconv.Atoi(row[1]); err != nil {
		return rec, fmt.Errorf("bootstrap_id: %w", err)
	}
	rec.Replicate = row[2]
	if rec.Rank, err = strconv.Atoi(row[3]); err != nil {
		return rec, fmt.Errorf("rank: %w", err)
	}
	if rec.Lambda, err = strconv.ParseFloat(row[4], 64); err != nil {
		return rec, fmt.Errorf("lambda: %w", err)
	}
	if rec.BestInit, err = strconv.Atoi(row[5]); err != nil {
		return rec, fmt.Errorf("best_init: %w", err)
	}
	if rec.Loss, err = parseFloat(row[6]); err != nil {
		return rec, fmt.Errorf("loss: %w", err)
	}
	if rec.Iterations, err = strconv.Atoi(row[7]); err != nil {
		return rec, fmt.Errorf("convergence_iterations: %w", err)
	}
	if rec.SSE, err = parseFloat(row[8]); err != nil {
		return rec, fmt.Errorf("sse: %w", err)
	}
	if rec.Degeneracy, err = parseFloat(row[9]); err != nil {
		return rec, fmt.Errorf("degeneracy: %w", err)
	}
	if rec.CoreConsistency, err = parseFloat(row[10]); err != nil {
		return rec, fmt.Errorf("core_consistency: %w", err)
	}
	if rec.CandidateFMS, err = parseFloatList(row[11]); err != nil {
		return rec, fmt.Errorf("candidate_fms: %w", err)
	}
	if rec.CandidateSSE, err = parseFloatList(row[12]); err != nil {
		return rec, fmt.Errorf("candidate_sse: %w", err)
	}
	return rec, nil
}

func parseCVRow(row []string) (CVRecord, error) {
	var rec CVRecord
	var err error
	if rec.Bootstrap, err = strconv.Atoi(row[0]); err != nil {
		return rec, fmt.Errorf("bootstrap_id: %w", err)
	}
	if rec.Rank, err = strconv.Atoi(row[1]); err != nil {
		return rec, fmt.Errorf("rank: %w", err)
	}
	if rec.Lambda, err = strconv.ParseFloat(row[2], 64); err != nil {
		return rec, fmt.Errorf("lambda: %w", err)
	}
	rec.ModeledReplicate = row[3]
	rec.ComparisonReplicate = row[4]
	if rec.NumComponents, err = strconv.Atoi(row[5]); err != nil {
		return rec, fmt.Errorf("n_components: %w", err)
	}
	if rec.Mode0Sparsity, err = parseFloat(row[6]); err != nil {
		return rec, fmt.Errorf("mode0_factor_sparsity: %w", err)
	}
	if rec.SSE, err = parseFloat(row[7]); err != nil {
		return rec, fmt.Errorf("sse: %w", err)
	}
	if rec.FMS, err = parseFloat(row[8]); err != nil {
		return rec, fmt.Errorf("fms: %w", err)
	}
	return rec, nil
}

// formatFloat renders a metric value, mapping NaN to the empty field.
func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// parseFloat reads a metric value, mapping the empty field back to NaN.
func parseFloat(s string) (float64, error) {
	if s == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// jsonSafe drops NaN entries, which have no JSON number representation.
func jsonSafe(vs []float64) []float64 {
	out := make([]float64, 0, len(vs))
	for _, v := range vs {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// parseFloatList decodes a JSON array of numbers; the empty field is an empty
// list.
func parseFloatList(s string) ([]float64, error) {
	if s == "" || s == "[]" {
		return nil, nil
	}
	var out []float64
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return out, nil
}
