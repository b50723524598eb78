package search

import (
	"fmt"
	"math"

	"github.com/blasks/barnacle-gridsearch/internal/cp"
	"github.com/blasks/barnacle-gridsearch/internal/tensor"
)

// ComparePair evaluates the model fitted on the modeled replicate against the
// comparison replicate's data for one grid cell of one bootstrap. The sample
// rows of each decomposition correspond positionally to the sample labels of
// the replicate array it was fitted on.
//
// For a cross pair both decompositions are restricted to the samples the two
// replicates share (aligned by sample identifier, ascending) and the
// comparison data is subset the same way. A self pair (modeled == comparison)
// uses the full model and data unchanged.
//
// A factor match score is computed only for ordered cross pairs with
// modeled < comparison; the mirrored pair and self pairs carry NaN, since the
// score is symmetric and a self comparison is trivially 1.
func ComparePair(bootstrap int, modeled, comparison string,
	modeledCP, comparisonCP *cp.CPTensor,
	modeledData, comparisonData *tensor.Array, params cp.Params) (CVRecord, error) {

	rec := CVRecord{
		Bootstrap:           bootstrap,
		Rank:                params.Rank,
		Lambda:              params.Lambdas[0],
		ModeledReplicate:    modeled,
		ComparisonReplicate: comparison,
		FMS:                 math.NaN(),
	}
	rec.NumComponents = modeledCP.NonzeroComponents()
	rec.Mode0Sparsity = modeledCP.FactorSparsity(0)

	sampleMode := len(comparisonData.Shape) - 1
	evalCP := modeledCP
	evalData := comparisonData

	if modeled != comparison {
		labels, idxM, idxC, err := CommonSamples(modeledData, comparisonData)
		if err != nil {
			return rec, fmt.Errorf("bootstrap %d pair %s/%s: %w", bootstrap, modeled, comparison, err)
		}
		if len(labels) == 0 {
			// The replicates share no samples, so there is nothing to score
			// the model against; the row keeps its coordinates with NaN
			// metrics.
			rec.SSE = math.NaN()
			return rec, nil
		}
		evalCP, err = modeledCP.Subset(sampleMode, idxM)
		if err != nil {
			return rec, fmt.Errorf("subset modeled %s: %w", modeled, err)
		}
		evalData, err = comparisonData.SelectSampleLabels(labels)
		if err != nil {
			return rec, fmt.Errorf("subset comparison data %s: %w", comparison, err)
		}
		if modeled < comparison {
			comparisonSub, err := comparisonCP.Subset(sampleMode, idxC)
			if err != nil {
				return rec, fmt.Errorf("subset comparison %s: %w", comparison, err)
			}
			fms, err := cp.FactorMatchScore(evalCP, comparisonSub, cp.FMSOptions{AllowSmallerRank: true})
			if err != nil {
				return rec, fmt.Errorf("factor match %s/%s: %w", modeled, comparison, err)
			}
			rec.FMS = fms
		}
	}

	sse, err := cp.RelativeSSE(evalCP, evalData)
	if err != nil {
		return rec, fmt.Errorf("sse %s/%s: %w", modeled, comparison, err)
	}
	rec.SSE = sse
	return rec, nil
}
