// Package search implements the grid search core: bootstrap resampling,
// replicate splitting, grid expansion, checkpointed job scheduling, pairwise
// cross-validation and result recording.
package search

import (
	"fmt"
	"math/rand"
)

// ReplicateLabels assigns a randomized integer replicate label to every
// sample. Samples sharing an identifier form a group; within each group
// labels are drawn without replacement from [0, maxGroupSize), so no two
// samples of one group receive the same label. The assignment is a pure
// function of (sampleIDs, seed), which is what makes resampling resumable:
// re-running with the same seed reproduces the same labeling.
//
// sampleIDs must be non-empty and sorted ascending; a validation error is
// returned otherwise.
func ReplicateLabels(sampleIDs []string, seed int64) ([]int, error) {
	if len(sampleIDs) == 0 {
		return nil, fmt.Errorf("sample ids must not be empty")
	}
	for i := 1; i < len(sampleIDs); i++ {
		if sampleIDs[i-1] > sampleIDs[i] {
			return nil, fmt.Errorf("sample ids must be sorted in ascending order (position %d: %q > %q)", i, sampleIDs[i-1], sampleIDs[i])
		}
	}

	// Group sizes in first-appearance order; input is sorted so groups are
	// contiguous runs.
	var sizes []int
	for i := 0; i < len(sampleIDs); {
		j := i
		for j < len(sampleIDs) && sampleIDs[j] == sampleIDs[i] {
			j++
		}
		sizes = append(sizes, j-i)
		i = j
	}
	maxSize := 0
	for _, c := range sizes {
		if c > maxSize {
			maxSize = c
		}
	}

	rng := rand.New(rand.NewSource(seed))
	labels := make([]int, 0, len(sampleIDs))
	for _, c := range sizes {
		draw := rng.Perm(maxSize)[:c]
		labels = append(labels, draw...)
	}
	return labels, nil
}

// MapLabels remaps integer labels to symbolic replicate names. Every label
// must index into names.
func MapLabels(labels []int, names []string) ([]string, error) {
	out := make([]string, len(labels))
	for i, l := range labels {
		if l < 0 || l >= len(names) {
			return nil, fmt.Errorf("label %d at position %d has no name (only %d names given)", l, i, len(names))
		}
		out[i] = names[l]
	}
	return out, nil
}
