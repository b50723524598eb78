package search

import (
	"testing"

	"github.com/blasks/barnacle-gridsearch/internal/tensor"
)

// testDataset builds a 2-feature x 6-sample dataset with three sample groups
// split across replicates A and B.
func testDataset() *tensor.Dataset {
	return &tensor.Dataset{
		Name:  "demo",
		Dims:  []string{"feature", "sample"},
		Shape: []int{2, 6},
		Coords: map[string][]string{
			"feature": {"f0", "f1"},
			"sample":  {"p0", "p1", "p2", "p3", "p4", "p5"},
		},
		Vars: map[string][]float64{
			DataVar: {
				1, 2, 3, 4, 5, 6,
				7, 8, 9, 10, 11, 12,
			},
		},
		SampleID:    []string{"s1", "s1", "s2", "s2", "s3", "s3"},
		ReplicateID: []string{"A", "B", "B", "A", "A", "B"},
	}
}

func TestSeparateReplicates(t *testing.T) {
	ds := testDataset()
	arrays, err := SeparateReplicates(ds)
	if err != nil {
		t.Fatalf("SeparateReplicates: %v", err)
	}
	if len(arrays) != 2 {
		t.Fatalf("got %d replicate arrays, want 2", len(arrays))
	}

	a := arrays["A"]
	if a == nil {
		t.Fatal("missing replicate A")
	}
	if a.NumSamples() != 3 {
		t.Fatalf("replicate A has %d samples, want 3", a.NumSamples())
	}
	wantLabels := []string{"s1", "s2", "s3"}
	for i, l := range a.SampleLabels() {
		if l != wantLabels[i] {
			t.Fatalf("replicate A label %d: got %q, want %q", i, l, wantLabels[i])
		}
	}
	// Replicate A holds sample positions 0, 3, 4 of the original.
	want := []float64{1, 4, 5, 7, 10, 11}
	for i, v := range a.Data {
		if v != want[i] {
			t.Fatalf("replicate A data[%d]: got %g, want %g", i, v, want[i])
		}
	}

	// Together the two replicates partition all samples.
	total := arrays["A"].NumSamples() + arrays["B"].NumSamples()
	if total != ds.NumSamples() {
		t.Fatalf("replicates cover %d samples, dataset has %d", total, ds.NumSamples())
	}
}

func TestCommonSamples(t *testing.T) {
	ds := testDataset()
	arrays, err := SeparateReplicates(ds)
	if err != nil {
		t.Fatalf("SeparateReplicates: %v", err)
	}

	labels, idxA, idxB, err := CommonSamples(arrays["A"], arrays["B"])
	if err != nil {
		t.Fatalf("CommonSamples: %v", err)
	}
	want := []string{"s1", "s2", "s3"}
	if len(labels) != len(want) {
		t.Fatalf("got %d common labels, want %d", len(labels), len(want))
	}
	for j, l := range labels {
		if l != want[j] {
			t.Fatalf("label %d: got %q, want %q", j, l, want[j])
		}
		if arrays["A"].SampleLabels()[idxA[j]] != l {
			t.Fatalf("idxA[%d] does not point at %q", j, l)
		}
		if arrays["B"].SampleLabels()[idxB[j]] != l {
			t.Fatalf("idxB[%d] does not point at %q", j, l)
		}
	}
}

func TestCommonSamplesPartialOverlap(t *testing.T) {
	a := &tensor.Array{
		Name: "a", Dims: []string{"feature", "sample_id"}, Shape: []int{1, 3},
		Coords: map[string][]string{"feature": {"f"}, "sample_id": {"s1", "s2", "s4"}},
		Data:   []float64{1, 2, 3},
	}
	b := &tensor.Array{
		Name: "b", Dims: []string{"feature", "sample_id"}, Shape: []int{1, 3},
		Coords: map[string][]string{"feature": {"f"}, "sample_id": {"s2", "s3", "s4"}},
		Data:   []float64{4, 5, 6},
	}
	labels, idxA, idxB, err := CommonSamples(a, b)
	if err != nil {
		t.Fatalf("CommonSamples: %v", err)
	}
	if len(labels) != 2 || labels[0] != "s2" || labels[1] != "s4" {
		t.Fatalf("got common labels %v, want [s2 s4]", labels)
	}
	if idxA[0] != 1 || idxA[1] != 2 || idxB[0] != 0 || idxB[1] != 2 {
		t.Fatalf("got idxA=%v idxB=%v", idxA, idxB)
	}
}
