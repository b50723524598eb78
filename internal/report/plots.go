package report

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// GeneratePlots renders the rank-selection charts for a set of aggregated
// cross-validation points into outputDir: cross-validation error against rank
// and factor match score against rank, one line per lambda. It returns the
// number of plots written.
func GeneratePlots(points []CVPoint, outputDir string) (int, error) {
	if len(points) == 0 {
		return 0, fmt.Errorf("no cross-validation points to plot")
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create output dir: %w", err)
	}

	byLambda := make(map[float64][]CVPoint)
	for _, p := range points {
		byLambda[p.Lambda] = append(byLambda[p.Lambda], p)
	}
	var lambdas []float64
	for l := range byLambda {
		lambdas = append(lambdas, l)
	}
	sort.Float64s(lambdas)
	colors := generateColors(len(lambdas))

	pErr := plot.New()
	pErr.Title.Text = "Cross-Validation Error by Rank"
	pErr.X.Label.Text = "Rank"
	pErr.Y.Label.Text = "Mean Relative SSE"

	pFMS := plot.New()
	pFMS.Title.Text = "Factor Match Score by Rank"
	pFMS.X.Label.Text = "Rank"
	pFMS.Y.Label.Text = "Mean FMS"

	for i, lambda := range lambdas {
		series := byLambda[lambda]
		sort.Slice(series, func(a, b int) bool { return series[a].Rank < series[b].Rank })

		ssePts := make(plotter.XYs, 0, len(series))
		fmsPts := make(plotter.XYs, 0, len(series))
		for _, p := range series {
			if !math.IsNaN(p.MeanSSE) {
				ssePts = append(ssePts, plotter.XY{X: float64(p.Rank), Y: p.MeanSSE})
			}
			if !math.IsNaN(p.MeanFMS) {
				fmsPts = append(fmsPts, plotter.XY{X: float64(p.Rank), Y: p.MeanFMS})
			}
		}
		label := fmt.Sprintf("lambda %g", lambda)

		if len(ssePts) > 0 {
			line, err := plotter.NewLine(ssePts)
			if err != nil {
				return 0, err
			}
			line.Color = colors[i]
			line.Width = vg.Points(1)
			pErr.Add(line)
			pErr.Legend.Add(label, line)
		}
		if len(fmsPts) > 0 {
			line, err := plotter.NewLine(fmsPts)
			if err != nil {
				return 0, err
			}
			line.Color = colors[i]
			line.Width = vg.Points(1)
			pFMS.Add(line)
			pFMS.Legend.Add(label, line)
		}
	}

	pErr.Legend.Top = true
	pFMS.Legend.Top = true

	written := 0
	errFile := filepath.Join(outputDir, "cv_error_by_rank.png")
	if err := pErr.Save(8*vg.Inch, 5*vg.Inch, errFile); err != nil {
		return written, fmt.Errorf("save %s: %w", errFile, err)
	}
	written++
	fmsFile := filepath.Join(outputDir, "fms_by_rank.png")
	if err := pFMS.Save(8*vg.Inch, 5*vg.Inch, fmsFile); err != nil {
		return written, fmt.Errorf("save %s: %w", fmsFile, err)
	}
	written++
	return written, nil
}

// generateColors produces a palette of visually distinct colors.
func generateColors(n int) []color.Color {
	base := []color.Color{
		color.RGBA{R: 31, G: 119, B: 180, A: 255},
		color.RGBA{R: 255, G: 127, B: 14, A: 255},
		color.RGBA{R: 44, G: 160, B: 44, A: 255},
		color.RGBA{R: 214, G: 39, B: 40, A: 255},
		color.RGBA{R: 148, G: 103, B: 189, A: 255},
		color.RGBA{R: 140, G: 86, B: 75, A: 255},
		color.RGBA{R: 227, G: 119, B: 194, A: 255},
		color.RGBA{R: 127, G: 127, B: 127, A: 255},
	}
	out := make([]color.Color, n)
	for i := range out {
		out[i] = base[i%len(base)]
	}
	return out
}
