package search

import (
	"fmt"
	"sync"

	"github.com/blasks/barnacle-gridsearch/internal/cp"
	"github.com/blasks/barnacle-gridsearch/internal/tensor"
)

// Job is one unit of fitting work: a parameter point applied to one
// replicate's tensor of one bootstrap. The identity fields travel with the
// job into its result, so the consumer never has to infer which experiment a
// result belongs to.
type Job struct {
	ID        string // uuid, for log correlation
	Bootstrap int
	Replicate string
	Params    cp.Params
	Seed      int64
	Data      *tensor.Array
	DataPath  string // persisted copy of Data, re-read for metrics
	OutDir    string // model directory receiving the artifacts
}

// FitResult pairs a completed (or failed) fit with the Job that produced it.
type FitResult struct {
	Job   Job
	Model *cp.FittedModel
	Err   error
}

// Pool runs fit jobs on a bounded set of workers. Results arrive on the
// returned channel in completion order, not submission order.
type Pool struct {
	Workers int
}

// Run dispatches all jobs and returns the result channel. The channel is
// closed once every job has completed. Each worker fits and persists its
// model; persistence failures (including an unexpectedly pre-existing
// artifact) surface as the result's Err. The caller must consume the channel
// to completion: abandoning it mid-stream leaves workers blocked on the send.
func (p *Pool) Run(jobs []Job) <-chan FitResult {
	out := make(chan FitResult)
	jobCh := make(chan Job)

	workers := p.Workers
	if workers < 1 {
		workers = 1
	}
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobCh {
				out <- runJob(job)
			}
		}()
	}

	go func() {
		for _, job := range jobs {
			jobCh <- job
		}
		close(jobCh)
		wg.Wait()
		close(out)
	}()
	return out
}

// runJob fits one grid cell and stores the resulting model.
func runJob(job Job) FitResult {
	model, err := cp.Fit(job.Params, job.Seed, job.Data)
	if err != nil {
		return FitResult{Job: job, Err: fmt.Errorf("fit job %s: %w", job.ID, err)}
	}
	if err := cp.StoreFitted(job.OutDir, model); err != nil {
		return FitResult{Job: job, Err: fmt.Errorf("store job %s: %w", job.ID, err)}
	}
	return FitResult{Job: job, Model: model}
}
