package cp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/blasks/barnacle-gridsearch/internal/tensor"
)

// RelativeSSE returns the squared reconstruction residual of the
// decomposition against data, normalized by the squared norm of data.
func RelativeSSE(t *CPTensor, data *tensor.Array) (float64, error) {
	if err := checkShape(t, data); err != nil {
		return 0, err
	}
	rec := t.Reconstruct()
	var sse, norm float64
	for i, v := range data.Data {
		d := v - rec[i]
		sse += d * d
		norm += v * v
	}
	if norm == 0 {
		return math.NaN(), nil
	}
	return sse / norm, nil
}

// CoreConsistency computes the core consistency diagnostic: the optimal
// Tucker core for the decomposition's factors is estimated by least squares
// and compared against the superdiagonal ideal. 100 means perfectly
// trilinear structure; values drop (possibly below zero) as the model
// overfactors the data.
func CoreConsistency(t *CPTensor, data *tensor.Array) (float64, error) {
	if err := checkShape(t, data); err != nil {
		return 0, err
	}
	rank := t.Rank()
	numModes := t.NumModes()

	// Design matrix mapping vec(core) to vec(data): successive Kronecker
	// product of the factors in mode order matches row-major flattening.
	design := mat.DenseCopyOf(t.Factors[0])
	for _, f := range t.Factors[1:] {
		design = kronecker(design, f)
	}

	rhs := mat.NewVecDense(len(data.Data), data.Data)
	var core mat.VecDense
	if err := core.SolveVec(design, rhs); err != nil {
		return math.NaN(), nil
	}

	// Superdiagonal target carries the component weights.
	coreSize := 1
	for i := 0; i < numModes; i++ {
		coreSize *= rank
	}
	var num float64
	for flat := 0; flat < coreSize; flat++ {
		target := 0.0
		if onSuperdiagonal(flat, rank, numModes) {
			target = t.Weights[flat%rank]
		}
		d := core.AtVec(flat) - target
		num += d * d
	}
	return 100 * (1 - num/float64(rank)), nil
}

// onSuperdiagonal reports whether the flat row-major core index has all mode
// indices equal.
func onSuperdiagonal(flat, rank, numModes int) bool {
	first := -1
	for m := 0; m < numModes; m++ {
		ix := flat % rank
		flat /= rank
		if first < 0 {
			first = ix
		} else if ix != first {
			return false
		}
	}
	return true
}

// DegeneracyScore returns the minimum over component pairs of the product
// across modes of factor-column cosines. Values near -1 indicate two
// components cancelling each other, the classic CP degeneracy.
func DegeneracyScore(t *CPTensor) float64 {
	rank := t.Rank()
	if rank < 2 {
		return 1
	}
	minScore := math.Inf(1)
	for i := 0; i < rank; i++ {
		for j := i + 1; j < rank; j++ {
			prod := 1.0
			for _, f := range t.Factors {
				prod *= columnCosine(f, i, j, f)
			}
			if prod < minScore {
				minScore = prod
			}
		}
	}
	return minScore
}

// FMSOptions controls FactorMatchScore behaviour.
type FMSOptions struct {
	// ConsiderWeights multiplies each pair score by the weight agreement of
	// the matched components.
	ConsiderWeights bool
	// AllowSmallerRank permits comparing decompositions of different ranks;
	// the score averages over the smaller rank.
	AllowSmallerRank bool
}

// FactorMatchScore measures the similarity of two decompositions as the mean
// over matched components of the product across modes of factor-column
// cosines. Components are matched greedily by descending pair score. The
// score is symmetric in its arguments and lies in [-1, 1].
func FactorMatchScore(a, b *CPTensor, opts FMSOptions) (float64, error) {
	if a.NumModes() != b.NumModes() {
		return 0, fmt.Errorf("mode count mismatch: %d vs %d", a.NumModes(), b.NumModes())
	}
	for m := range a.Factors {
		ar, _ := a.Factors[m].Dims()
		br, _ := b.Factors[m].Dims()
		if ar != br {
			return 0, fmt.Errorf("mode %d size mismatch: %d vs %d", m, ar, br)
		}
	}
	ra, rb := a.Rank(), b.Rank()
	if ra != rb && !opts.AllowSmallerRank {
		return 0, fmt.Errorf("rank mismatch: %d vs %d", ra, rb)
	}

	scores := make([][]float64, ra)
	for i := 0; i < ra; i++ {
		scores[i] = make([]float64, rb)
		for j := 0; j < rb; j++ {
			prod := 1.0
			for m := range a.Factors {
				prod *= columnCosine(a.Factors[m], i, j, b.Factors[m])
			}
			if opts.ConsiderWeights {
				wa, wb := math.Abs(a.Weights[i]), math.Abs(b.Weights[j])
				if wa == 0 && wb == 0 {
					prod *= 1
				} else {
					prod *= 1 - math.Abs(wa-wb)/math.Max(wa, wb)
				}
			}
			scores[i][j] = prod
		}
	}

	// Greedy matching: repeatedly take the best remaining pair.
	n := min(ra, rb)
	usedA := make([]bool, ra)
	usedB := make([]bool, rb)
	var total float64
	for k := 0; k < n; k++ {
		bestI, bestJ := -1, -1
		best := math.Inf(-1)
		for i := 0; i < ra; i++ {
			if usedA[i] {
				continue
			}
			for j := 0; j < rb; j++ {
				if usedB[j] {
					continue
				}
				if scores[i][j] > best {
					best = scores[i][j]
					bestI, bestJ = i, j
				}
			}
		}
		usedA[bestI] = true
		usedB[bestJ] = true
		total += best
	}
	return total / float64(n), nil
}

// columnCosine computes the cosine of column i of fa against column j of fb.
// A zero-norm column yields 0.
func columnCosine(fa *mat.Dense, i, j int, fb *mat.Dense) float64 {
	rows, _ := fa.Dims()
	var dot, na, nb float64
	for k := 0; k < rows; k++ {
		va, vb := fa.At(k, i), fb.At(k, j)
		dot += va * vb
		na += va * va
		nb += vb * vb
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// kronecker computes the Kronecker product of a and b.
func kronecker(a, b *mat.Dense) *mat.Dense {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	out := mat.NewDense(ar*br, ac*bc, nil)
	for i := 0; i < ar; i++ {
		for j := 0; j < ac; j++ {
			v := a.At(i, j)
			for k := 0; k < br; k++ {
				for l := 0; l < bc; l++ {
					out.Set(i*br+k, j*bc+l, v*b.At(k, l))
				}
			}
		}
	}
	return out
}

// checkShape verifies that the decomposition's implied shape matches data.
func checkShape(t *CPTensor, data *tensor.Array) error {
	shape := t.Shape()
	if len(shape) != len(data.Shape) {
		return fmt.Errorf("decomposition has %d modes, data has %d", len(shape), len(data.Shape))
	}
	for m := range shape {
		if shape[m] != data.Shape[m] {
			return fmt.Errorf("mode %d size mismatch: decomposition %d, data %d", m, shape[m], data.Shape[m])
		}
	}
	return nil
}
