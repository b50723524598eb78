package search

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/blasks/barnacle-gridsearch/internal/cp"
	"github.com/blasks/barnacle-gridsearch/internal/tensor"
)

// arrayFromCP materializes a decomposition into a labeled array with the
// given sample labels.
func arrayFromCP(t *testing.T, c *cp.CPTensor, samples []string) *tensor.Array {
	t.Helper()
	shape := c.Shape()
	if shape[len(shape)-1] != len(samples) {
		t.Fatalf("cp has %d samples, %d labels given", shape[len(shape)-1], len(samples))
	}
	features := make([]string, shape[0])
	for i := range features {
		features[i] = "f" + string(rune('0'+i))
	}
	return &tensor.Array{
		Name:  "data",
		Dims:  []string{"feature", "sample_id"},
		Shape: shape,
		Coords: map[string][]string{
			"feature":   features,
			"sample_id": samples,
		},
		Data: c.Reconstruct(),
	}
}

func TestComparePairSelf(t *testing.T) {
	c := &cp.CPTensor{
		Weights: []float64{1},
		Factors: []*mat.Dense{
			mat.NewDense(2, 1, []float64{1, 2}),
			mat.NewDense(3, 1, []float64{3, 4, 5}),
		},
	}
	arr := arrayFromCP(t, c, []string{"s1", "s2", "s3"})
	params := cp.Params{Rank: 1, Lambdas: []float64{0, 0}, Tol: 1e-6, MaxIter: 10, NumInits: 1}

	rec, err := ComparePair(0, "A", "A", c, c, arr, arr, params)
	if err != nil {
		t.Fatalf("ComparePair: %v", err)
	}
	if rec.SSE != 0 {
		t.Fatalf("self pair against exact data: sse = %g, want 0", rec.SSE)
	}
	if !math.IsNaN(rec.FMS) {
		t.Fatalf("self pair fms = %g, want NaN", rec.FMS)
	}
	if rec.NumComponents != 1 {
		t.Fatalf("n_components = %d, want 1", rec.NumComponents)
	}
}

func TestComparePairCrossAlignsCommonSamples(t *testing.T) {
	// Replicate A: samples s1,s2,s3. Replicate B: samples s2,s3,s4.
	// Same underlying component, so on the shared samples the models agree.
	featA := mat.NewDense(2, 1, []float64{1, 2})
	cpA := &cp.CPTensor{
		Weights: []float64{1},
		Factors: []*mat.Dense{featA, mat.NewDense(3, 1, []float64{3, 4, 5})},
	}
	cpB := &cp.CPTensor{
		Weights: []float64{1},
		Factors: []*mat.Dense{mat.DenseCopyOf(featA), mat.NewDense(3, 1, []float64{4, 5, 6})},
	}
	arrA := arrayFromCP(t, cpA, []string{"s1", "s2", "s3"})
	arrB := arrayFromCP(t, cpB, []string{"s2", "s3", "s4"})
	params := cp.Params{Rank: 1, Lambdas: []float64{0, 0}, Tol: 1e-6, MaxIter: 10, NumInits: 1}

	rec, err := ComparePair(0, "A", "B", cpA, cpB, arrA, arrB, params)
	if err != nil {
		t.Fatalf("ComparePair: %v", err)
	}
	// Shared samples s2,s3 carry identical values in both models.
	if rec.SSE > 1e-12 {
		t.Fatalf("cross pair sse = %g, want ~0 on shared samples", rec.SSE)
	}
	if math.Abs(rec.FMS-1) > 1e-12 {
		t.Fatalf("cross pair fms = %g, want 1 for identical components", rec.FMS)
	}

	// The mirrored ordered pair carries no score.
	mirror, err := ComparePair(0, "B", "A", cpB, cpA, arrB, arrA, params)
	if err != nil {
		t.Fatalf("ComparePair mirror: %v", err)
	}
	if !math.IsNaN(mirror.FMS) {
		t.Fatalf("mirrored pair fms = %g, want NaN", mirror.FMS)
	}
	if mirror.SSE > 1e-12 {
		t.Fatalf("mirrored pair sse = %g, want ~0", mirror.SSE)
	}
}

func TestComparePairDisjointSamples(t *testing.T) {
	// Small sample groups can leave a replicate pair with no shared samples;
	// the pair must record NaN metrics rather than fail.
	cpA := &cp.CPTensor{
		Weights: []float64{1},
		Factors: []*mat.Dense{
			mat.NewDense(2, 1, []float64{1, 2}),
			mat.NewDense(2, 1, []float64{3, 4}),
		},
	}
	cpB := &cp.CPTensor{
		Weights: []float64{1},
		Factors: []*mat.Dense{
			mat.NewDense(2, 1, []float64{1, 2}),
			mat.NewDense(2, 1, []float64{5, 6}),
		},
	}
	arrA := arrayFromCP(t, cpA, []string{"s1", "s2"})
	arrB := arrayFromCP(t, cpB, []string{"s3", "s4"})
	params := cp.Params{Rank: 1, Lambdas: []float64{0, 0}, Tol: 1e-6, MaxIter: 10, NumInits: 1}

	rec, err := ComparePair(0, "A", "B", cpA, cpB, arrA, arrB, params)
	if err != nil {
		t.Fatalf("ComparePair: %v", err)
	}
	if !math.IsNaN(rec.SSE) {
		t.Fatalf("disjoint pair sse = %g, want NaN", rec.SSE)
	}
	if !math.IsNaN(rec.FMS) {
		t.Fatalf("disjoint pair fms = %g, want NaN", rec.FMS)
	}
	if rec.ModeledReplicate != "A" || rec.ComparisonReplicate != "B" {
		t.Fatalf("pair coordinates not carried: %+v", rec)
	}
	if rec.NumComponents != 1 {
		t.Fatalf("n_components = %d, want 1 from the full model", rec.NumComponents)
	}
}

func TestComparePairRecordsModelShape(t *testing.T) {
	// A factor with zeroed entries shows up in sparsity and component count.
	c := &cp.CPTensor{
		Weights: []float64{1, 1},
		Factors: []*mat.Dense{
			mat.NewDense(2, 2, []float64{1, 0, 2, 0}),
			mat.NewDense(2, 2, []float64{3, 1, 4, -1}),
		},
	}
	arr := arrayFromCP(t, c, []string{"s1", "s2"})
	params := cp.Params{Rank: 2, Lambdas: []float64{0.1, 0}, Tol: 1e-6, MaxIter: 10, NumInits: 1}

	rec, err := ComparePair(3, "A", "A", c, c, arr, arr, params)
	if err != nil {
		t.Fatalf("ComparePair: %v", err)
	}
	// Second component's first-mode column is all zero, and the second
	// sample-mode column sums to zero; both kill that component.
	if rec.NumComponents != 1 {
		t.Fatalf("n_components = %d, want 1", rec.NumComponents)
	}
	if rec.Mode0Sparsity != 0.5 {
		t.Fatalf("mode0 sparsity = %g, want 0.5", rec.Mode0Sparsity)
	}
	if rec.Bootstrap != 3 || rec.Rank != 2 || rec.Lambda != 0.1 {
		t.Fatalf("experiment coordinates not carried: %+v", rec)
	}
}
