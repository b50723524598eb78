// Package cp implements the sparse CP (canonical polyadic) decomposition
// model fitted by the grid search, together with the evaluation metrics used
// to score fitted models. The search core treats everything here as a
// collaborator with a fixed contract.
package cp

import (
	"encoding/json"
	"fmt"
	"slices"

	"gonum.org/v1/gonum/mat"
)

// CPTensor is a rank-R decomposition: a weight per component and one factor
// matrix per mode. Factor m has one row per index along mode m and one
// column per component.
type CPTensor struct {
	Weights []float64
	Factors []*mat.Dense
}

// Rank returns the number of components.
func (t *CPTensor) Rank() int { return len(t.Weights) }

// NumModes returns the number of factor matrices.
func (t *CPTensor) NumModes() int { return len(t.Factors) }

// Shape returns the tensor shape implied by the factor row counts.
func (t *CPTensor) Shape() []int {
	shape := make([]int, len(t.Factors))
	for m, f := range t.Factors {
		r, _ := f.Dims()
		shape[m] = r
	}
	return shape
}

// Validate checks that all factors share the weight vector's rank.
func (t *CPTensor) Validate() error {
	if len(t.Weights) == 0 {
		return fmt.Errorf("cp tensor has no components")
	}
	if len(t.Factors) == 0 {
		return fmt.Errorf("cp tensor has no factor matrices")
	}
	for m, f := range t.Factors {
		rows, cols := f.Dims()
		if cols != len(t.Weights) {
			return fmt.Errorf("factor %d has %d columns for rank %d", m, cols, len(t.Weights))
		}
		if rows == 0 {
			return fmt.Errorf("factor %d has no rows", m)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (t *CPTensor) Clone() *CPTensor {
	out := &CPTensor{
		Weights: slices.Clone(t.Weights),
		Factors: make([]*mat.Dense, len(t.Factors)),
	}
	for m, f := range t.Factors {
		out.Factors[m] = mat.DenseCopyOf(f)
	}
	return out
}

// Subset returns a copy with the factor of the given mode restricted to the
// listed rows, in list order. All other modes are copied unchanged.
func (t *CPTensor) Subset(mode int, rows []int) (*CPTensor, error) {
	if mode < 0 || mode >= len(t.Factors) {
		return nil, fmt.Errorf("mode %d out of range (%d modes)", mode, len(t.Factors))
	}
	nRows, rank := t.Factors[mode].Dims()
	sub := mat.NewDense(len(rows), rank, nil)
	for j, ix := range rows {
		if ix < 0 || ix >= nRows {
			return nil, fmt.Errorf("row %d out of range for mode %d (%d rows)", ix, mode, nRows)
		}
		sub.SetRow(j, t.Factors[mode].RawRowView(ix))
	}
	out := t.Clone()
	out.Factors[mode] = sub
	return out, nil
}

// NonzeroComponents counts components whose contribution does not collapse
// to zero: a component is zero if in any mode its factor column sums to
// exactly zero, mirroring the accumulated column-sum product going to zero.
func (t *CPTensor) NonzeroComponents() int {
	rank := t.Rank()
	acc := make([]float64, rank)
	copy(acc, t.Weights)
	for _, f := range t.Factors {
		rows, _ := f.Dims()
		for r := 0; r < rank; r++ {
			var colSum float64
			for i := 0; i < rows; i++ {
				colSum += f.At(i, r)
			}
			acc[r] *= colSum
		}
	}
	n := 0
	for _, v := range acc {
		if v != 0.0 {
			n++
		}
	}
	return n
}

// FactorSparsity returns the fraction of exactly-zero entries in the factor
// of the given mode.
func (t *CPTensor) FactorSparsity(mode int) float64 {
	f := t.Factors[mode]
	rows, cols := f.Dims()
	if rows*cols == 0 {
		return 0
	}
	zeros := 0
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if f.At(i, j) == 0.0 {
				zeros++
			}
		}
	}
	return float64(zeros) / float64(rows*cols)
}

// Reconstruct evaluates the decomposition into a dense row-major tensor of
// the factor-implied shape.
func (t *CPTensor) Reconstruct() []float64 {
	shape := t.Shape()
	total := 1
	for _, s := range shape {
		total *= s
	}
	out := make([]float64, total)
	idx := make([]int, len(shape))
	for flat := 0; flat < total; flat++ {
		var v float64
		for r := 0; r < t.Rank(); r++ {
			term := t.Weights[r]
			for m, f := range t.Factors {
				term *= f.At(idx[m], r)
			}
			v += term
		}
		out[flat] = v

		// Advance the row-major odometer.
		for m := len(idx) - 1; m >= 0; m-- {
			idx[m]++
			if idx[m] < shape[m] {
				break
			}
			idx[m] = 0
		}
	}
	return out
}

// cpTensorJSON is the serialized form of a CPTensor.
type cpTensorJSON struct {
	Weights []float64   `json:"weights"`
	Shapes  [][2]int    `json:"factor_shapes"`
	Factors [][]float64 `json:"factors"`
}

// MarshalJSON encodes the decomposition with explicit factor shapes so the
// artifact is self-describing.
func (t *CPTensor) MarshalJSON() ([]byte, error) {
	enc := cpTensorJSON{
		Weights: t.Weights,
		Shapes:  make([][2]int, len(t.Factors)),
		Factors: make([][]float64, len(t.Factors)),
	}
	for m, f := range t.Factors {
		rows, cols := f.Dims()
		enc.Shapes[m] = [2]int{rows, cols}
		raw := make([]float64, 0, rows*cols)
		for i := 0; i < rows; i++ {
			raw = append(raw, f.RawRowView(i)...)
		}
		enc.Factors[m] = raw
	}
	return json.Marshal(enc)
}

// UnmarshalJSON decodes the serialized form produced by MarshalJSON.
func (t *CPTensor) UnmarshalJSON(data []byte) error {
	var enc cpTensorJSON
	if err := json.Unmarshal(data, &enc); err != nil {
		return err
	}
	if len(enc.Shapes) != len(enc.Factors) {
		return fmt.Errorf("cp tensor: %d factor shapes for %d factors", len(enc.Shapes), len(enc.Factors))
	}
	t.Weights = enc.Weights
	t.Factors = make([]*mat.Dense, len(enc.Factors))
	for m, raw := range enc.Factors {
		rows, cols := enc.Shapes[m][0], enc.Shapes[m][1]
		if rows*cols != len(raw) {
			return fmt.Errorf("cp tensor: factor %d has %d values for shape %dx%d", m, len(raw), rows, cols)
		}
		t.Factors[m] = mat.NewDense(rows, cols, raw)
	}
	return t.Validate()
}
