package cp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/blasks/barnacle-gridsearch/internal/fsutil"
)

// ModelFileName is the fitted decomposition artifact within a model
// directory. Its existence marks the fit job complete.
const ModelFileName = "fitted-model.json"

// ParamsFileName is the sidecar recording the parameter point, seed and
// convergence metadata alongside the artifact.
const ParamsFileName = "model-parameters.json"

// modelMeta is the sidecar schema.
type modelMeta struct {
	Params     Params    `json:"params"`
	Seed       int64     `json:"seed"`
	BestInit   int       `json:"best_init"`
	Iterations int       `json:"iterations"`
	Loss       []float64 `json:"loss"`
}

// StoreFitted persists a fitted model under dir: the best decomposition as
// the artifact plus a metadata sidecar. It fails if the artifact already
// exists, since the scheduler only dispatches jobs whose artifact is absent;
// an existing file signals a coordination bug.
func StoreFitted(dir string, model *FittedModel) error {
	artifact := filepath.Join(dir, ModelFileName)
	if fsutil.Exists(artifact) {
		return fmt.Errorf("artifact %s already exists: refusing to overwrite a completed fit", artifact)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create model dir %s: %w", dir, err)
	}

	meta := modelMeta{
		Params:     model.Params,
		Seed:       model.Seed,
		BestInit:   model.BestInit,
		Iterations: model.Iterations(),
		Loss:       model.Loss,
	}
	metaData, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal model metadata: %w", err)
	}
	if err := fsutil.WriteFileAtomic(filepath.Join(dir, ParamsFileName), metaData, 0644); err != nil {
		return err
	}

	decompData, err := json.Marshal(model.Decomposition)
	if err != nil {
		return fmt.Errorf("marshal decomposition: %w", err)
	}
	if err := fsutil.WriteFileAtomic(artifact, decompData, 0644); err != nil {
		return err
	}
	return nil
}

// LoadCPTensor reads a persisted decomposition artifact.
func LoadCPTensor(path string) (*CPTensor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model artifact: %w", err)
	}
	var t CPTensor
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse model artifact %s: %w", path, err)
	}
	return &t, nil
}
