package search

import (
	"fmt"
	"sort"

	"github.com/blasks/barnacle-gridsearch/internal/tensor"
)

// DataVar is the dataset variable holding the tensor values to decompose.
const DataVar = "data"

// SeparateReplicates splits a resampled dataset into one independent Array
// per replicate label. Each array keeps the feature modes intact and
// re-indexes the sample mode by sample identifier, so arrays from different
// replicates can later be aligned by identifier during cross-validation.
func SeparateReplicates(ds *tensor.Dataset) (map[string]*tensor.Array, error) {
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	out := make(map[string]*tensor.Array)
	for _, rep := range ds.ReplicateLabels() {
		var idx []int
		for i, r := range ds.ReplicateID {
			if r == rep {
				idx = append(idx, i)
			}
		}
		arr, err := ds.ExtractArray(DataVar, idx, "sample_id")
		if err != nil {
			return nil, fmt.Errorf("split replicate %q: %w", rep, err)
		}
		out[rep] = arr
	}
	return out, nil
}

// CommonSamples returns the sorted intersection of the two arrays' sample
// labels together with each label's positional index in a and in b. Labels
// must be unique within each array.
func CommonSamples(a, b *tensor.Array) (labels []string, idxA, idxB []int, err error) {
	posA, err := uniqueSamplePositions(a)
	if err != nil {
		return nil, nil, nil, err
	}
	posB, err := uniqueSamplePositions(b)
	if err != nil {
		return nil, nil, nil, err
	}
	for l := range posA {
		if _, ok := posB[l]; ok {
			labels = append(labels, l)
		}
	}
	sort.Strings(labels)
	idxA = make([]int, len(labels))
	idxB = make([]int, len(labels))
	for j, l := range labels {
		idxA[j] = posA[l]
		idxB[j] = posB[l]
	}
	return labels, idxA, idxB, nil
}

func uniqueSamplePositions(a *tensor.Array) (map[string]int, error) {
	pos := make(map[string]int, a.NumSamples())
	for i, l := range a.SampleLabels() {
		if _, dup := pos[l]; dup {
			return nil, fmt.Errorf("array %q: duplicate sample label %q", a.Name, l)
		}
		pos[l] = i
	}
	return pos, nil
}
