package search

import (
	"fmt"
	"log"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/blasks/barnacle-gridsearch/internal/config"
	"github.com/blasks/barnacle-gridsearch/internal/cp"
	"github.com/blasks/barnacle-gridsearch/internal/fsutil"
	"github.com/blasks/barnacle-gridsearch/internal/tensor"
)

// Runner executes the full grid search pipeline: bootstrap resampling,
// replicate splitting, parallel model fitting and pairwise cross-validation,
// all checkpointed through the output directory so an interrupted run resumes
// where it stopped.
type Runner struct {
	cfg    *config.Config
	layout Layout
}

// New builds a Runner for the given configuration.
func New(cfg *config.Config) *Runner {
	return &Runner{cfg: cfg, layout: Layout{BaseDir: cfg.Script.OutDir}}
}

// Run executes the pipeline end to end. Seeds are drawn from one sequence in
// a fixed order, for every grid cell whether or not its work is skipped, so a
// resumed run hands each remaining job the same seed the original run would
// have.
func (r *Runner) Run() error {
	ds, err := tensor.LoadDataset(r.cfg.Script.Input)
	if err != nil {
		return fmt.Errorf("load input dataset: %w", err)
	}
	if n := len(r.cfg.Grid.Lambdas[0]); n != len(ds.Dims) {
		return fmt.Errorf("grid lambdas have %d weights but dataset %q has %d modes", n, ds.Name, len(ds.Dims))
	}
	if err := os.MkdirAll(r.cfg.Script.OutDir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	grid := BuildGrid(r.cfg.Grid, r.cfg.Params)
	rng := rand.New(rand.NewSource(r.cfg.Script.Seed))
	log.Printf("[search] dataset %q: %d samples, %d modes; grid of %d parameter points x %d replicates x %d bootstraps",
		ds.Name, ds.NumSamples(), len(ds.Dims), len(grid), len(r.cfg.Script.Replicates), r.cfg.Script.Bootstraps)

	var jobs []Job
	for b := 0; b < r.cfg.Script.Bootstraps; b++ {
		bootJobs, err := r.prepareBootstrap(b, ds, grid, rng)
		if err != nil {
			return err
		}
		jobs = append(jobs, bootJobs...)
	}

	if err := r.runFits(jobs); err != nil {
		return err
	}
	return r.crossValidate(grid)
}

// prepareBootstrap resamples one bootstrap (or imports its checkpoint),
// splits it into replicate arrays and assembles the fit jobs whose artifacts
// are still missing.
func (r *Runner) prepareBootstrap(b int, ds *tensor.Dataset, grid []cp.Params, rng *rand.Rand) ([]Job, error) {
	// Drawn unconditionally to keep the seed sequence stable across resumes.
	shuffleSeed := rng.Int63()

	dsPath := r.layout.DatasetPath(b)
	var shuffled *tensor.Dataset
	if fsutil.IsFile(dsPath) {
		log.Printf("[search] bootstrap %d: importing dataset discovered at %s", b, dsPath)
		var err error
		shuffled, err = tensor.LoadDataset(dsPath)
		if err != nil {
			return nil, fmt.Errorf("bootstrap %d: %w", b, err)
		}
	} else {
		labels, err := ReplicateLabels(ds.SampleID, shuffleSeed)
		if err != nil {
			return nil, fmt.Errorf("bootstrap %d resample: %w", b, err)
		}
		named, err := MapLabels(labels, r.cfg.Script.Replicates)
		if err != nil {
			return nil, fmt.Errorf("bootstrap %d resample: %w", b, err)
		}
		shuffled = ds.Clone()
		shuffled.ReplicateID = named
		if shuffled.Attrs == nil {
			shuffled.Attrs = make(map[string]string)
		}
		shuffled.Attrs["shuffle_seed"] = strconv.FormatInt(shuffleSeed, 10)
		if err := os.MkdirAll(r.layout.BootstrapDir(b), 0755); err != nil {
			return nil, fmt.Errorf("bootstrap %d: %w", b, err)
		}
		if err := tensor.SaveDataset(shuffled, dsPath); err != nil {
			return nil, fmt.Errorf("bootstrap %d: %w", b, err)
		}
		log.Printf("[search] bootstrap %d: resampled dataset saved to %s", b, dsPath)
	}

	arrays, err := r.replicateArrays(b, shuffled)
	if err != nil {
		return nil, err
	}

	var jobs []Job
	for _, rep := range r.cfg.Script.Replicates {
		for _, params := range grid {
			// Also drawn unconditionally, one seed per grid cell.
			jobSeed := rng.Int63()
			artifact := r.layout.ModelArtifactPath(b, rep, params)
			if fsutil.IsFile(artifact) {
				log.Printf("[search] bootstrap %d replicate %s rank %d lambda %s: fitted model discovered at %s, skipping",
					b, rep, params.Rank, FormatLambda(params.Lambdas[0]), artifact)
				continue
			}
			jobs = append(jobs, Job{
				ID:        uuid.NewString(),
				Bootstrap: b,
				Replicate: rep,
				Params:    params,
				Seed:      jobSeed,
				Data:      arrays[rep],
				DataPath:  r.layout.ReplicateArrayPath(b, rep),
				OutDir:    r.layout.ModelDir(b, rep, params),
			})
		}
	}
	return jobs, nil
}

// replicateArrays loads each replicate's tensor checkpoint, splitting the
// resampled dataset to create any that are missing.
func (r *Runner) replicateArrays(b int, shuffled *tensor.Dataset) (map[string]*tensor.Array, error) {
	arrays := make(map[string]*tensor.Array, len(r.cfg.Script.Replicates))
	var split map[string]*tensor.Array
	for _, rep := range r.cfg.Script.Replicates {
		path := r.layout.ReplicateArrayPath(b, rep)
		if fsutil.IsFile(path) {
			arr, err := tensor.LoadArray(path)
			if err != nil {
				return nil, fmt.Errorf("bootstrap %d replicate %s: %w", b, rep, err)
			}
			log.Printf("[search] bootstrap %d: importing replicate %s tensor discovered at %s", b, rep, path)
			arrays[rep] = arr
			continue
		}
		if split == nil {
			var err error
			split, err = SeparateReplicates(shuffled)
			if err != nil {
				return nil, fmt.Errorf("bootstrap %d split: %w", b, err)
			}
		}
		arr, ok := split[rep]
		if !ok {
			return nil, fmt.Errorf("bootstrap %d: resampled dataset has no samples for replicate %q", b, rep)
		}
		if err := os.MkdirAll(r.layout.ReplicateDir(b, rep), 0755); err != nil {
			return nil, fmt.Errorf("bootstrap %d replicate %s: %w", b, rep, err)
		}
		if err := tensor.SaveArray(arr, path); err != nil {
			return nil, fmt.Errorf("bootstrap %d replicate %s: %w", b, rep, err)
		}
		log.Printf("[search] bootstrap %d: replicate %s tensor saved to %s", b, rep, path)
		arrays[rep] = arr
	}
	return arrays, nil
}

// runFits dispatches the pending jobs to the worker pool and records each
// result as it completes. The fitting log is rewritten after every result so
// an interruption loses at most the fit in flight.
func (r *Runner) runFits(jobs []Job) error {
	fits, err := LoadFitTable(r.layout.FitLogPath())
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		log.Printf("[search] all fitted models present, nothing to fit")
		return nil
	}
	log.Printf("[search] fitting %d models on %d workers", len(jobs), r.cfg.Script.MaxWorkers)

	pool := &Pool{Workers: r.cfg.Script.MaxWorkers}
	done := 0
	// The result channel is drained to completion even after a failure, so
	// the workers are never left blocked on an abandoned channel.
	var firstErr error
	for res := range pool.Run(jobs) {
		if firstErr != nil {
			continue
		}
		if res.Err != nil {
			firstErr = res.Err
			continue
		}
		rec, err := fitRecord(res)
		if err != nil {
			firstErr = err
			continue
		}
		fits.Append(rec)
		if err := fits.Save(); err != nil {
			firstErr = err
			continue
		}
		done++
		log.Printf("[search] fit %d/%d: bootstrap %d replicate %s rank %d lambda %s sse %.5g (%d iterations)",
			done, len(jobs), res.Job.Bootstrap, res.Job.Replicate, res.Job.Params.Rank,
			FormatLambda(res.Job.Params.Lambdas[0]), rec.SSE, rec.Iterations)
	}
	return firstErr
}

// fitRecord scores a completed fit against its training tensor.
func fitRecord(res FitResult) (FitRecord, error) {
	job := res.Job
	data, err := tensor.LoadArray(job.DataPath)
	if err != nil {
		return FitRecord{}, fmt.Errorf("job %s metrics: %w", job.ID, err)
	}
	best := res.Model.Decomposition

	sse, err := cp.RelativeSSE(best, data)
	if err != nil {
		return FitRecord{}, fmt.Errorf("job %s sse: %w", job.ID, err)
	}
	cc, err := cp.CoreConsistency(best, data)
	if err != nil {
		return FitRecord{}, fmt.Errorf("job %s core consistency: %w", job.ID, err)
	}

	candFMS := make([]float64, 0, len(res.Model.Candidates))
	candSSE := make([]float64, 0, len(res.Model.Candidates))
	for _, cand := range res.Model.Candidates {
		fms, err := cp.FactorMatchScore(best, cand, cp.FMSOptions{})
		if err != nil {
			return FitRecord{}, fmt.Errorf("job %s candidate fms: %w", job.ID, err)
		}
		cSSE, err := cp.RelativeSSE(cand, data)
		if err != nil {
			return FitRecord{}, fmt.Errorf("job %s candidate sse: %w", job.ID, err)
		}
		candFMS = append(candFMS, fms)
		candSSE = append(candSSE, cSSE)
	}

	return FitRecord{
		Timestamp:       time.Now().UTC(),
		Bootstrap:       job.Bootstrap,
		Replicate:       job.Replicate,
		Rank:            job.Params.Rank,
		Lambda:          job.Params.Lambdas[0],
		BestInit:        res.Model.BestInit,
		Loss:            res.Model.FinalLoss(),
		Iterations:      res.Model.Iterations(),
		SSE:             sse,
		Degeneracy:      cp.DegeneracyScore(best),
		CoreConsistency: cc,
		CandidateFMS:    candFMS,
		CandidateSSE:    candSSE,
	}, nil
}

// crossValidate evaluates every fitted model against every replicate of its
// bootstrap, skipping pairs already present in the cross-validation log. The
// log is rewritten once per bootstrap.
func (r *Runner) crossValidate(grid []cp.Params) error {
	cv, err := LoadCVTable(r.layout.CVLogPath())
	if err != nil {
		return err
	}
	reps := r.cfg.Script.Replicates

	for b := 0; b < r.cfg.Script.Bootstraps; b++ {
		arrays := make(map[string]*tensor.Array, len(reps))
		for _, rep := range reps {
			arr, err := tensor.LoadArray(r.layout.ReplicateArrayPath(b, rep))
			if err != nil {
				return fmt.Errorf("bootstrap %d cross-validation: %w", b, err)
			}
			arrays[rep] = arr
		}

		appended := 0
		for _, params := range grid {
			models := make(map[string]*cp.CPTensor, len(reps))
			for _, rep := range reps {
				m, err := cp.LoadCPTensor(r.layout.ModelArtifactPath(b, rep, params))
				if err != nil {
					return fmt.Errorf("bootstrap %d cross-validation: %w", b, err)
				}
				models[rep] = m
			}
			for _, modeled := range reps {
				for _, comparison := range reps {
					if cv.Has(b, params.Rank, params.Lambdas[0], modeled, comparison) {
						log.Printf("[search] bootstrap %d rank %d lambda %s pair %s/%s: cross-validation row exists, skipping",
							b, params.Rank, FormatLambda(params.Lambdas[0]), modeled, comparison)
						continue
					}
					rec, err := ComparePair(b, modeled, comparison,
						models[modeled], models[comparison],
						arrays[modeled], arrays[comparison], params)
					if err != nil {
						return err
					}
					cv.Append(rec)
					appended++
				}
			}
		}
		if appended > 0 {
			if err := cv.Save(); err != nil {
				return err
			}
		}
		log.Printf("[search] bootstrap %d: cross-validation complete (%d new rows)", b, appended)
	}
	log.Printf("[search] grid search complete: results in %s and %s", r.layout.FitLogPath(), r.layout.CVLogPath())
	return nil
}
