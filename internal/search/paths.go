package search

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/blasks/barnacle-gridsearch/internal/cp"
)

// FormatLambda renders a sparsity weight as its shortest exact decimal
// representation. The same formatter is used when writing directory names,
// CSV fields and when matching checkpoint rows, so a value always round-trips
// to the identical string regardless of how it was parsed.
func FormatLambda(l float64) string {
	return strconv.FormatFloat(l, 'g', -1, 64)
}

// Layout maps the experiment structure onto the output directory tree:
//
//	outdir/
//	  fitting_data.csv
//	  cv_data.csv
//	  bootstrap{b}/
//	    dataset-bootstrap{b}.json
//	    replicate{R}/
//	      shuffled-replicate-{R}.json
//	      rank{K}/
//	        lambda{L}/
//	          fitted-model.json
//	          model-parameters.json
type Layout struct {
	BaseDir string
}

// FitLogPath is the cumulative fitting results CSV.
func (l Layout) FitLogPath() string { return filepath.Join(l.BaseDir, "fitting_data.csv") }

// CVLogPath is the cumulative cross-validation results CSV.
func (l Layout) CVLogPath() string { return filepath.Join(l.BaseDir, "cv_data.csv") }

// BootstrapDir is the root of one bootstrap's artifacts.
func (l Layout) BootstrapDir(b int) string {
	return filepath.Join(l.BaseDir, fmt.Sprintf("bootstrap%d", b))
}

// DatasetPath is the resampled dataset checkpoint for one bootstrap.
func (l Layout) DatasetPath(b int) string {
	return filepath.Join(l.BootstrapDir(b), fmt.Sprintf("dataset-bootstrap%d.json", b))
}

// ReplicateDir is the root of one replicate's artifacts within a bootstrap.
func (l Layout) ReplicateDir(b int, rep string) string {
	return filepath.Join(l.BootstrapDir(b), "replicate"+rep)
}

// ReplicateArrayPath is the split replicate tensor checkpoint.
func (l Layout) ReplicateArrayPath(b int, rep string) string {
	return filepath.Join(l.ReplicateDir(b, rep), fmt.Sprintf("shuffled-replicate-%s.json", rep))
}

// ModelDir is the directory of one grid cell's fitted model.
func (l Layout) ModelDir(b int, rep string, params cp.Params) string {
	return filepath.Join(l.ReplicateDir(b, rep),
		fmt.Sprintf("rank%d", params.Rank),
		"lambda"+FormatLambda(params.Lambdas[0]))
}

// ModelArtifactPath is the fitted decomposition file whose existence marks
// the grid cell complete.
func (l Layout) ModelArtifactPath(b int, rep string, params cp.Params) string {
	return filepath.Join(l.ModelDir(b, rep, params), cp.ModelFileName)
}
