package search

import (
	"sort"

	"github.com/blasks/barnacle-gridsearch/internal/config"
	"github.com/blasks/barnacle-gridsearch/internal/cp"
)

// BuildGrid expands the rank and lambda axes into the full Cartesian product
// of parameter points, carrying the constant model parameters into each
// point. The grid is ordered by ascending first-mode lambda (stable in the
// enumeration order otherwise), so unregularized points are fit first and
// their artifacts appear early in a resumed run.
func BuildGrid(grid config.GridConfig, params config.ParamsConfig) []cp.Params {
	points := make([]cp.Params, 0, len(grid.Ranks)*len(grid.Lambdas))
	for _, rank := range grid.Ranks {
		for _, lambdas := range grid.Lambdas {
			ls := make([]float64, len(lambdas))
			copy(ls, lambdas)
			points = append(points, cp.Params{
				Rank:        rank,
				Lambdas:     ls,
				NonnegModes: params.NonnegModes,
				Tol:         params.Tol,
				MaxIter:     params.MaxIter,
				NumInits:    params.NumInits,
			})
		}
	}
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Lambdas[0] < points[j].Lambdas[0]
	})
	return points
}
