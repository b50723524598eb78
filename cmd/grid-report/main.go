// Command grid-report imports a grid search output directory into a sqlite
// results database and renders rank-selection charts from the imported
// cross-validation rows.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/blasks/barnacle-gridsearch/internal/report"
	"github.com/blasks/barnacle-gridsearch/internal/search"
	"github.com/blasks/barnacle-gridsearch/internal/version"
)

func main() {
	resultsDir := flag.String("results", "", "Grid search output directory to import (required unless -list or -run)")
	dbPath := flag.String("db", "gridsearch.db", "Path to the results database")
	plotsDir := flag.String("plots", "", "Directory for generated charts (defaults to <results>/plots)")
	runID := flag.String("run", "", "Plot an already-imported run instead of importing")
	list := flag.Bool("list", false, "List imported runs and exit")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("grid-report %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	db, err := report.Open(*dbPath)
	if err != nil {
		log.Fatalf("open results database: %v", err)
	}
	defer db.Close()

	if *list {
		runs, err := db.Runs()
		if err != nil {
			log.Fatalf("list runs: %v", err)
		}
		if len(runs) == 0 {
			fmt.Println("no runs imported")
			return
		}
		for _, run := range runs {
			fmt.Println(report.DescribeRun(run))
		}
		return
	}

	id := *runID
	outDir := *plotsDir
	if id == "" {
		if *resultsDir == "" {
			fmt.Fprintln(os.Stderr, "usage: grid-report -results <dir> [-db path] [-plots dir]")
			flag.PrintDefaults()
			os.Exit(2)
		}
		layout := search.Layout{BaseDir: *resultsDir}
		fits, err := search.LoadFitTable(layout.FitLogPath())
		if err != nil {
			log.Fatalf("load fitting log: %v", err)
		}
		cv, err := search.LoadCVTable(layout.CVLogPath())
		if err != nil {
			log.Fatalf("load cross-validation log: %v", err)
		}
		run, err := db.Import(*resultsDir, fits, cv)
		if err != nil {
			log.Fatalf("import results: %v", err)
		}
		log.Printf("[report] imported %s", report.DescribeRun(run))
		id = run.RunID
		if outDir == "" {
			outDir = filepath.Join(*resultsDir, "plots")
		}
	} else if outDir == "" {
		outDir = "plots"
	}

	points, err := db.CVSummary(id)
	if err != nil {
		log.Fatalf("summarize run %s: %v", id, err)
	}
	fmt.Println("rank\tlambda\tmean_sse\tmean_fms\tpairs")
	for _, p := range points {
		fmt.Printf("%d\t%g\t%.5g\t%.5g\t%d\n", p.Rank, p.Lambda, p.MeanSSE, p.MeanFMS, p.Pairs)
	}
	n, err := report.GeneratePlots(points, outDir)
	if err != nil {
		log.Fatalf("generate plots: %v", err)
	}
	log.Printf("[report] wrote %d plots to %s", n, outDir)
}
