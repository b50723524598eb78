// Package tensor provides labeled multi-dimensional arrays for the grid
// search pipeline. A Dataset carries per-sample replicate structure; an Array
// is a plain labeled tensor, typically one replicate's subset. The sample
// mode is always the last mode.
package tensor

import (
	"fmt"
	"slices"
)

// Array is a dense, row-major labeled tensor. Coords holds one label slice
// per dim, aligned with Shape.
type Array struct {
	Name   string              `json:"name"`
	Dims   []string            `json:"dims"`
	Shape  []int               `json:"shape"`
	Coords map[string][]string `json:"coords"`
	Data   []float64           `json:"data"`
}

// Validate checks structural consistency: dims/shape/coords alignment and
// data length equal to the shape product.
func (a *Array) Validate() error {
	if len(a.Dims) == 0 {
		return fmt.Errorf("array %q has no dims", a.Name)
	}
	if len(a.Dims) != len(a.Shape) {
		return fmt.Errorf("array %q: %d dims but %d shape entries", a.Name, len(a.Dims), len(a.Shape))
	}
	n := 1
	for i, d := range a.Dims {
		if a.Shape[i] <= 0 {
			return fmt.Errorf("array %q: dim %q has non-positive size %d", a.Name, d, a.Shape[i])
		}
		labels, ok := a.Coords[d]
		if !ok {
			return fmt.Errorf("array %q: missing coords for dim %q", a.Name, d)
		}
		if len(labels) != a.Shape[i] {
			return fmt.Errorf("array %q: dim %q has %d coords for size %d", a.Name, d, len(labels), a.Shape[i])
		}
		n *= a.Shape[i]
	}
	if len(a.Data) != n {
		return fmt.Errorf("array %q: %d data values for shape product %d", a.Name, len(a.Data), n)
	}
	return nil
}

// SampleDim returns the name of the sample mode (the last dim).
func (a *Array) SampleDim() string { return a.Dims[len(a.Dims)-1] }

// NumSamples returns the size of the sample mode.
func (a *Array) NumSamples() int { return a.Shape[len(a.Shape)-1] }

// SampleLabels returns the coordinate labels of the sample mode.
func (a *Array) SampleLabels() []string { return a.Coords[a.SampleDim()] }

// At returns the value at the given multi-index.
func (a *Array) At(idx ...int) float64 {
	if len(idx) != len(a.Shape) {
		panic(fmt.Sprintf("tensor: At called with %d indices for %d dims", len(idx), len(a.Shape)))
	}
	flat := 0
	for i, ix := range idx {
		if ix < 0 || ix >= a.Shape[i] {
			panic(fmt.Sprintf("tensor: index %d out of range for dim %q (size %d)", ix, a.Dims[i], a.Shape[i]))
		}
		flat = flat*a.Shape[i] + ix
	}
	return a.Data[flat]
}

// Clone returns a deep copy sharing no storage with the receiver.
func (a *Array) Clone() *Array {
	out := &Array{
		Name:   a.Name,
		Dims:   slices.Clone(a.Dims),
		Shape:  slices.Clone(a.Shape),
		Coords: make(map[string][]string, len(a.Coords)),
		Data:   slices.Clone(a.Data),
	}
	for d, labels := range a.Coords {
		out.Coords[d] = slices.Clone(labels)
	}
	return out
}

// SelectSamples returns a new Array restricted to the given positional
// indices along the sample mode, in the given order. The result shares no
// storage with the receiver.
func (a *Array) SelectSamples(indices []int) (*Array, error) {
	ns := a.NumSamples()
	for _, ix := range indices {
		if ix < 0 || ix >= ns {
			return nil, fmt.Errorf("array %q: sample index %d out of range (%d samples)", a.Name, ix, ns)
		}
	}

	lead := len(a.Data) / ns
	out := &Array{
		Name:   a.Name,
		Dims:   slices.Clone(a.Dims),
		Shape:  slices.Clone(a.Shape),
		Coords: make(map[string][]string, len(a.Coords)),
		Data:   make([]float64, lead*len(indices)),
	}
	out.Shape[len(out.Shape)-1] = len(indices)
	for d, labels := range a.Coords {
		out.Coords[d] = slices.Clone(labels)
	}

	oldLabels := a.SampleLabels()
	newLabels := make([]string, len(indices))
	for j, ix := range indices {
		newLabels[j] = oldLabels[ix]
	}
	out.Coords[a.SampleDim()] = newLabels

	for i := 0; i < lead; i++ {
		src := a.Data[i*ns : (i+1)*ns]
		dst := out.Data[i*len(indices) : (i+1)*len(indices)]
		for j, ix := range indices {
			dst[j] = src[ix]
		}
	}
	return out, nil
}

// SelectSampleLabels returns a new Array restricted to the samples whose
// labels match the given list, in list order. Alignment is by identifier,
// not by position. It is an error if any label is absent or duplicated.
func (a *Array) SelectSampleLabels(labels []string) (*Array, error) {
	pos := make(map[string]int, a.NumSamples())
	for i, l := range a.SampleLabels() {
		if _, dup := pos[l]; dup {
			return nil, fmt.Errorf("array %q: duplicate sample label %q", a.Name, l)
		}
		pos[l] = i
	}
	indices := make([]int, len(labels))
	for j, l := range labels {
		i, ok := pos[l]
		if !ok {
			return nil, fmt.Errorf("array %q: sample label %q not present", a.Name, l)
		}
		indices[j] = i
	}
	return a.SelectSamples(indices)
}

// SampleIndexOf returns a map from sample label to its position along the
// sample mode.
func (a *Array) SampleIndexOf() map[string]int {
	pos := make(map[string]int, a.NumSamples())
	for i, l := range a.SampleLabels() {
		pos[l] = i
	}
	return pos
}
