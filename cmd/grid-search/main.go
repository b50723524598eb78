// Command grid-search runs a resumable hyperparameter grid search for sparse
// CP tensor decomposition: it resamples the input dataset into bootstraps,
// splits each bootstrap into replicates, fits a model per grid cell on a
// worker pool and cross-validates every fitted model against every replicate.
// All progress is checkpointed under the output directory, so re-running the
// command picks up where the previous run stopped.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/blasks/barnacle-gridsearch/internal/config"
	"github.com/blasks/barnacle-gridsearch/internal/search"
	"github.com/blasks/barnacle-gridsearch/internal/version"
)

func main() {
	configPath := flag.String("config", "", "Path to the grid search JSON configuration (required)")
	input := flag.String("input", "", "Input dataset path (overrides the config value)")
	outDir := flag.String("outdir", "", "Output directory (overrides the config value)")
	workers := flag.Int("workers", 0, "Worker pool size (overrides the config value)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("grid-search %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}
	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "usage: grid-search -config <config.json> [-input path] [-outdir path] [-workers n]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *input != "" {
		cfg.Script.Input = *input
	}
	if *outDir != "" {
		cfg.Script.OutDir = *outDir
	}
	if *workers > 0 {
		cfg.Script.MaxWorkers = *workers
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	if err := search.New(cfg).Run(); err != nil {
		log.Fatalf("grid search failed: %v", err)
	}
}
