package monitor

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/baldhumanity/neat-medoids/neat"
)

// Plotter records a run and renders it to PNG charts with Render.
type Plotter struct {
	mu         sync.Mutex
	history    []neat.HistoryRecord
	topScores  plotter.XYs
	distances  mat.Symmetric
	order      []int
	boundaries []int
}

var _ neat.Monitor = (*Plotter)(nil)

func NewPlotter() *Plotter {
	return &Plotter{}
}

func (p *Plotter) OnBest(neat.BestEvent) {}

func (p *Plotter) OnTrain(neat.TrainEvent) {}

func (p *Plotter) OnSpeciation(e neat.SpeciationEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.distances = e.Distances
	p.order = e.Order
	p.boundaries = e.Boundaries
	p.history = e.History
}

func (p *Plotter) OnGeneration(e neat.GenerationEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topScores = append(p.topScores, plotter.XY{X: float64(e.Generation), Y: e.TopScore})
	if len(p.history) > 0 {
		p.history[len(p.history)-1] = e.Record
	}
}

// Render writes species.png, scores.png and, after the first clustering,
// distances.png into dir.
func (p *Plotter) Render(dir string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := SpeciesChart(p.history, filepath.Join(dir, "species.png")); err != nil {
		return err
	}
	if len(p.topScores) > 0 {
		if err := TopScoreChart(p.topScores, filepath.Join(dir, "scores.png")); err != nil {
			return err
		}
	}
	if p.distances != nil {
		if err := DistanceHeatMap(p.distances, p.order, p.boundaries, filepath.Join(dir, "distances.png")); err != nil {
			return err
		}
	}
	return nil
}

// SpeciesChart draws the size of every species over the recorded generations.
func SpeciesChart(history []neat.HistoryRecord, outPath string) error {
	if len(history) == 0 {
		return errors.New("no history to plot")
	}
	pl := plot.New()
	pl.Title.Text = "Species over generations"
	pl.X.Label.Text = "Generation"
	pl.Y.Label.Text = "Members"

	sizes := make(map[int]plotter.XYs)
	for gen, rec := range history {
		for id, sr := range rec {
			sizes[id] = append(sizes[id], plotter.XY{X: float64(gen + 1), Y: float64(sr.Size)})
		}
	}
	ids := make([]int, 0, len(sizes))
	for id := range sizes {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for i, id := range ids {
		line, points, err := plotter.NewLinePoints(sizes[id])
		if err != nil {
			return err
		}
		line.Color = plotutil.Color(i)
		points.Color = plotutil.Color(i)
		pl.Add(line, points)
		pl.Legend.Add("species "+strconv.Itoa(id), line)
	}
	pl.Legend.Top = true
	return pl.Save(6*vg.Inch, 4*vg.Inch, outPath)
}

// TopScoreChart draws the best score per generation.
func TopScoreChart(points plotter.XYs, outPath string) error {
	pl := plot.New()
	pl.Title.Text = "Top score"
	pl.X.Label.Text = "Generation"
	pl.Y.Label.Text = "Score"

	line, err := plotter.NewLine(points)
	if err != nil {
		return err
	}
	pl.Add(line)
	return pl.Save(6*vg.Inch, 4*vg.Inch, outPath)
}

// DistanceHeatMap draws the distance matrix with rows and columns permuted by order
// and the species blocks outlined.
func DistanceHeatMap(d mat.Symmetric, order, boundaries []int, outPath string) error {
	grid := distanceGrid{d: d, order: order}
	pl := plot.New()
	pl.Title.Text = "Genome distances"
	hm := plotter.NewHeatMap(grid, palette.Heat(32, 1))
	if hm.Max == hm.Min {
		// Identical genomes; widen the range so the palette scale stays finite.
		hm.Max = hm.Min + 1
	}
	pl.Add(hm)

	for i := 0; i+1 < len(boundaries); i++ {
		s, e := float64(boundaries[i])-0.5, float64(boundaries[i+1])-0.5
		box, err := plotter.NewLine(plotter.XYs{{X: s, Y: s}, {X: s, Y: e}, {X: e, Y: e}, {X: e, Y: s}, {X: s, Y: s}})
		if err != nil {
			return err
		}
		box.Color = plotutil.Color(0)
		box.Width = vg.Points(1.5)
		pl.Add(box)
	}
	return pl.Save(6*vg.Inch, 6*vg.Inch, outPath)
}

// distanceGrid adapts a permuted symmetric matrix to plotter.GridXYZ.
type distanceGrid struct {
	d     mat.Symmetric
	order []int
}

func (g distanceGrid) Dims() (c, r int) {
	n := g.d.SymmetricDim()
	return n, n
}

func (g distanceGrid) Z(c, r int) float64 {
	return g.d.At(g.index(r), g.index(c))
}

func (g distanceGrid) X(c int) float64 { return float64(c) }

func (g distanceGrid) Y(r int) float64 { return float64(r) }

func (g distanceGrid) index(i int) int {
	if len(g.order) == 0 {
		return i
	}
	return g.order[i]
}
