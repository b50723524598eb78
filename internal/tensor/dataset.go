package tensor

import (
	"fmt"
	"slices"
	"sort"
)

// Dataset is a labeled tensor with replicate structure on its sample mode
// (the last mode). Coordinate labels on the sample mode uniquely identify
// each physical sample; SampleID may repeat across replicates (the same
// biological sample measured more than once) and ReplicateID assigns each
// sample to exactly one replicate group.
type Dataset struct {
	Name        string               `json:"name"`
	Dims        []string             `json:"dims"`
	Shape       []int                `json:"shape"`
	Coords      map[string][]string  `json:"coords"`
	Vars        map[string][]float64 `json:"vars"`
	SampleID    []string             `json:"sample_id"`
	ReplicateID []string             `json:"replicate_id"`
	Attrs       map[string]string    `json:"attrs,omitempty"`
}

// Validate checks structural consistency and the replicate-partition
// invariant: every sample carries a non-empty replicate label.
func (ds *Dataset) Validate() error {
	if len(ds.Dims) == 0 {
		return fmt.Errorf("dataset %q has no dims", ds.Name)
	}
	if len(ds.Dims) != len(ds.Shape) {
		return fmt.Errorf("dataset %q: %d dims but %d shape entries", ds.Name, len(ds.Dims), len(ds.Shape))
	}
	n := 1
	for i, d := range ds.Dims {
		if ds.Shape[i] <= 0 {
			return fmt.Errorf("dataset %q: dim %q has non-positive size %d", ds.Name, d, ds.Shape[i])
		}
		labels, ok := ds.Coords[d]
		if !ok {
			return fmt.Errorf("dataset %q: missing coords for dim %q", ds.Name, d)
		}
		if len(labels) != ds.Shape[i] {
			return fmt.Errorf("dataset %q: dim %q has %d coords for size %d", ds.Name, d, len(labels), ds.Shape[i])
		}
		n *= ds.Shape[i]
	}
	if len(ds.Vars) == 0 {
		return fmt.Errorf("dataset %q has no data variables", ds.Name)
	}
	for name, data := range ds.Vars {
		if len(data) != n {
			return fmt.Errorf("dataset %q: var %q has %d values for shape product %d", ds.Name, name, len(data), n)
		}
	}
	ns := ds.NumSamples()
	if len(ds.SampleID) != ns {
		return fmt.Errorf("dataset %q: %d sample ids for %d samples", ds.Name, len(ds.SampleID), ns)
	}
	if len(ds.ReplicateID) != ns {
		return fmt.Errorf("dataset %q: %d replicate ids for %d samples", ds.Name, len(ds.ReplicateID), ns)
	}
	for i, rep := range ds.ReplicateID {
		if rep == "" {
			return fmt.Errorf("dataset %q: sample %d has empty replicate label", ds.Name, i)
		}
	}
	return nil
}

// SampleDim returns the name of the sample mode (the last dim).
func (ds *Dataset) SampleDim() string { return ds.Dims[len(ds.Dims)-1] }

// NumSamples returns the size of the sample mode.
func (ds *Dataset) NumSamples() int { return ds.Shape[len(ds.Shape)-1] }

// ReplicateLabels returns the sorted set of distinct replicate labels.
func (ds *Dataset) ReplicateLabels() []string {
	seen := make(map[string]bool)
	var labels []string
	for _, rep := range ds.ReplicateID {
		if !seen[rep] {
			seen[rep] = true
			labels = append(labels, rep)
		}
	}
	sort.Strings(labels)
	return labels
}

// Clone returns a deep copy sharing no storage with the receiver.
func (ds *Dataset) Clone() *Dataset {
	out := &Dataset{
		Name:        ds.Name,
		Dims:        slices.Clone(ds.Dims),
		Shape:       slices.Clone(ds.Shape),
		Coords:      make(map[string][]string, len(ds.Coords)),
		Vars:        make(map[string][]float64, len(ds.Vars)),
		SampleID:    slices.Clone(ds.SampleID),
		ReplicateID: slices.Clone(ds.ReplicateID),
	}
	for d, labels := range ds.Coords {
		out.Coords[d] = slices.Clone(labels)
	}
	for name, data := range ds.Vars {
		out.Vars[name] = slices.Clone(data)
	}
	if ds.Attrs != nil {
		out.Attrs = make(map[string]string, len(ds.Attrs))
		for k, v := range ds.Attrs {
			out.Attrs[k] = v
		}
	}
	return out
}

// ExtractArray builds an independent Array from one data variable restricted
// to the given sample positions. The sample mode is re-indexed by SampleID
// under the name sampleDim (e.g. "sample_id"); feature-mode coordinates are
// carried over unchanged.
func (ds *Dataset) ExtractArray(dataVar string, sampleIdx []int, sampleDim string) (*Array, error) {
	data, ok := ds.Vars[dataVar]
	if !ok {
		return nil, fmt.Errorf("dataset %q: no data variable %q", ds.Name, dataVar)
	}
	ns := ds.NumSamples()
	for _, ix := range sampleIdx {
		if ix < 0 || ix >= ns {
			return nil, fmt.Errorf("dataset %q: sample index %d out of range (%d samples)", ds.Name, ix, ns)
		}
	}

	out := &Array{
		Name:   dataVar,
		Dims:   slices.Clone(ds.Dims),
		Shape:  slices.Clone(ds.Shape),
		Coords: make(map[string][]string, len(ds.Coords)),
		Data:   make([]float64, len(data)/ns*len(sampleIdx)),
	}
	out.Dims[len(out.Dims)-1] = sampleDim
	out.Shape[len(out.Shape)-1] = len(sampleIdx)
	for _, d := range ds.Dims[:len(ds.Dims)-1] {
		out.Coords[d] = slices.Clone(ds.Coords[d])
	}
	labels := make([]string, len(sampleIdx))
	for j, ix := range sampleIdx {
		labels[j] = ds.SampleID[ix]
	}
	out.Coords[sampleDim] = labels

	lead := len(data) / ns
	for i := 0; i < lead; i++ {
		src := data[i*ns : (i+1)*ns]
		dst := out.Data[i*len(sampleIdx) : (i+1)*len(sampleIdx)]
		for j, ix := range sampleIdx {
			dst[j] = src[ix]
		}
	}
	return out, nil
}
