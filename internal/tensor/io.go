package tensor

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/blasks/barnacle-gridsearch/internal/fsutil"
)

// SaveDataset writes a dataset to path as JSON. The write is atomic because
// file existence is the pipeline's checkpoint signal: a visible file is
// always a complete one.
func SaveDataset(ds *Dataset, path string) error {
	if err := ds.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(ds)
	if err != nil {
		return fmt.Errorf("marshal dataset %q: %w", ds.Name, err)
	}
	if err := fsutil.WriteFileAtomic(path, data, 0644); err != nil {
		return fmt.Errorf("save dataset %q: %w", ds.Name, err)
	}
	return nil
}

// LoadDataset reads a dataset from a JSON file and validates it.
func LoadDataset(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset file: %w", err)
	}
	var ds Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("parse dataset file %s: %w", path, err)
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return &ds, nil
}

// SaveArray writes an array to path as JSON, atomically.
func SaveArray(a *Array, path string) error {
	if err := a.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal array %q: %w", a.Name, err)
	}
	if err := fsutil.WriteFileAtomic(path, data, 0644); err != nil {
		return fmt.Errorf("save array %q: %w", a.Name, err)
	}
	return nil
}

// LoadArray reads an array from a JSON file and validates it.
func LoadArray(path string) (*Array, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read array file: %w", err)
	}
	var a Array
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parse array file %s: %w", path, err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}
