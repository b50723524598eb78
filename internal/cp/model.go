package cp

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/blasks/barnacle-gridsearch/internal/tensor"
)

// Params is one immutable hyperparameter point of the grid search.
type Params struct {
	Rank        int       `json:"rank"`
	Lambdas     []float64 `json:"lambdas"`      // per-mode sparsity weights
	NonnegModes []int     `json:"nonneg_modes"` // modes constrained to be non-negative
	Tol         float64   `json:"tol"`
	MaxIter     int       `json:"n_iter_max"`
	NumInits    int       `json:"n_initializations"`
}

// Validate checks the parameter point against the number of tensor modes.
func (p Params) Validate(numModes int) error {
	if p.Rank <= 0 {
		return fmt.Errorf("rank must be positive, got %d", p.Rank)
	}
	if len(p.Lambdas) != numModes {
		return fmt.Errorf("%d lambdas for %d modes", len(p.Lambdas), numModes)
	}
	for m, l := range p.Lambdas {
		if l < 0 {
			return fmt.Errorf("lambda for mode %d must be non-negative, got %g", m, l)
		}
	}
	for _, m := range p.NonnegModes {
		if m < 0 || m >= numModes {
			return fmt.Errorf("nonneg mode %d out of range (%d modes)", m, numModes)
		}
	}
	if p.Tol <= 0 {
		return fmt.Errorf("tol must be positive, got %g", p.Tol)
	}
	if p.MaxIter <= 0 {
		return fmt.Errorf("n_iter_max must be positive, got %d", p.MaxIter)
	}
	if p.NumInits <= 0 {
		return fmt.Errorf("n_initializations must be positive, got %d", p.NumInits)
	}
	return nil
}

// FittedModel is the immutable result of one Fit call. Fit consumes a
// parameter point and returns a fresh value, so "re-fitting an already fit
// model" cannot be expressed.
type FittedModel struct {
	Params        Params
	Seed          int64
	Decomposition *CPTensor
	Loss          []float64   // loss trajectory of the chosen initialization
	BestInit      int         // index of the chosen initialization
	Candidates    []*CPTensor // decompositions from the other initializations
}

// Iterations returns the number of iterations the chosen initialization ran.
func (f *FittedModel) Iterations() int { return len(f.Loss) }

// FinalLoss returns the last loss value of the chosen initialization.
func (f *FittedModel) FinalLoss() float64 {
	if len(f.Loss) == 0 {
		return math.NaN()
	}
	return f.Loss[len(f.Loss)-1]
}

// Fit runs a multi-initialization sparse CP decomposition of data. Each
// initialization performs alternating least squares with an L1
// soft-threshold per mode and a non-negativity projection on the configured
// modes; the initialization with the lowest final loss is chosen. The result
// is a pure function of (params, seed, data).
func Fit(params Params, seed int64, data *tensor.Array) (*FittedModel, error) {
	if err := data.Validate(); err != nil {
		return nil, err
	}
	if err := params.Validate(len(data.Shape)); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(seed))

	var (
		decomps = make([]*CPTensor, params.NumInits)
		losses  = make([][]float64, params.NumInits)
		best    = -1
	)
	for init := 0; init < params.NumInits; init++ {
		t, trajectory := fitOnce(params, rng, data)
		decomps[init] = t
		losses[init] = trajectory
		if best < 0 || trajectory[len(trajectory)-1] < losses[best][len(losses[best])-1] {
			best = init
		}
	}

	candidates := make([]*CPTensor, 0, params.NumInits-1)
	for init, d := range decomps {
		if init != best {
			candidates = append(candidates, d)
		}
	}
	return &FittedModel{
		Params:        params,
		Seed:          seed,
		Decomposition: decomps[best],
		Loss:          losses[best],
		BestInit:      best,
		Candidates:    candidates,
	}, nil
}

// fitOnce runs one random initialization to convergence.
func fitOnce(params Params, rng *rand.Rand, data *tensor.Array) (*CPTensor, []float64) {
	shape := data.Shape
	numModes := len(shape)
	rank := params.Rank

	t := &CPTensor{
		Weights: make([]float64, rank),
		Factors: make([]*mat.Dense, numModes),
	}
	for r := range t.Weights {
		t.Weights[r] = 1
	}
	for m := range t.Factors {
		vals := make([]float64, shape[m]*rank)
		for i := range vals {
			vals[i] = rng.Float64()
		}
		t.Factors[m] = mat.NewDense(shape[m], rank, vals)
	}

	nonneg := make(map[int]bool, len(params.NonnegModes))
	for _, m := range params.NonnegModes {
		nonneg[m] = true
	}

	var trajectory []float64
	prev := math.Inf(1)
	for iter := 0; iter < params.MaxIter; iter++ {
		for m := 0; m < numModes; m++ {
			updateFactor(t, m, data, params.Lambdas[m], nonneg[m])
		}
		loss := penalizedLoss(t, data, params.Lambdas)
		trajectory = append(trajectory, loss)
		if math.Abs(prev-loss) <= params.Tol*math.Max(math.Abs(prev), 1) {
			break
		}
		prev = loss
	}
	return t, trajectory
}

// updateFactor solves the mode-m least squares subproblem via ridge-damped
// normal equations, then applies the sparsity/non-negativity proximal step.
func updateFactor(t *CPTensor, mode int, data *tensor.Array, lambda float64, nonneg bool) {
	const ridge = 1e-12

	kr := khatriRaoExcept(t.Factors, mode) // (prod other dims) x rank
	xm := unfold(data.Data, data.Shape, mode)

	rank := t.Rank()
	var gram mat.Dense // rank x rank
	gram.Mul(kr.T(), kr)
	for r := 0; r < rank; r++ {
		gram.Set(r, r, gram.At(r, r)+ridge)
	}
	var rhs mat.Dense // rank x shape[mode]
	rhs.Mul(kr.T(), xm.T())

	var factorT mat.Dense
	if err := factorT.Solve(&gram, &rhs); err != nil {
		// Singular subproblem: keep the previous factor for this sweep.
		return
	}

	rows := data.Shape[mode]
	f := mat.NewDense(rows, rank, nil)
	for i := 0; i < rows; i++ {
		for r := 0; r < rank; r++ {
			v := factorT.At(r, i)
			if lambda > 0 {
				v = softThreshold(v, lambda)
			}
			if nonneg && v < 0 {
				v = 0
			}
			f.Set(i, r, v)
		}
	}
	t.Factors[mode] = f
}

// softThreshold is the L1 proximal operator.
func softThreshold(v, lambda float64) float64 {
	switch {
	case v > lambda:
		return v - lambda
	case v < -lambda:
		return v + lambda
	default:
		return 0
	}
}

// penalizedLoss is 0.5*||X - reconstruction||^2 plus the per-mode L1
// penalties.
func penalizedLoss(t *CPTensor, data *tensor.Array, lambdas []float64) float64 {
	rec := t.Reconstruct()
	var sse float64
	for i, v := range data.Data {
		d := v - rec[i]
		sse += d * d
	}
	loss := 0.5 * sse
	for m, f := range t.Factors {
		if lambdas[m] == 0 {
			continue
		}
		rows, cols := f.Dims()
		var l1 float64
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				l1 += math.Abs(f.At(i, j))
			}
		}
		loss += lambdas[m] * l1
	}
	return loss
}

// unfold matricizes a row-major tensor along the given mode: one row per
// index of that mode, columns flattened row-major over the remaining modes
// in their original order.
func unfold(data []float64, shape []int, mode int) *mat.Dense {
	rows := shape[mode]
	cols := len(data) / rows
	out := mat.NewDense(rows, cols, nil)

	idx := make([]int, len(shape))
	for _, v := range data {
		col := 0
		for m, ix := range idx {
			if m == mode {
				continue
			}
			col = col*shape[m] + ix
		}
		out.Set(idx[mode], col, v)

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

// khatriRaoExcept computes the column-wise Khatri-Rao product of all factors
// except the given mode, in original mode order, so its row ordering matches
// the column ordering produced by unfold.
func khatriRaoExcept(factors []*mat.Dense, mode int) *mat.Dense {
	var kept []*mat.Dense
	for m, f := range factors {
		if m != mode {
			kept = append(kept, f)
		}
	}
	out := kept[0]
	for _, f := range kept[1:] {
		out = khatriRao(out, f)
	}
	if len(kept) == 1 {
		out = mat.DenseCopyOf(out)
	}
	return out
}

// khatriRao computes the column-wise Khatri-Rao product of a (I x R) and
// b (J x R), giving (I*J x R) with row i*J+j = a[i,:] .* b[j,:].
func khatriRao(a, b *mat.Dense) *mat.Dense {
	ar, rank := a.Dims()
	br, _ := b.Dims()
	out := mat.NewDense(ar*br, rank, nil)
	for i := 0; i < ar; i++ {
		for j := 0; j < br; j++ {
			row := i*br + j
			for r := 0; r < rank; r++ {
				out.Set(row, r, a.At(i, r)*b.At(j, r))
			}
		}
	}
	return out
}
