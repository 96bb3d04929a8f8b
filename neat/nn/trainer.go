package nn

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"strconv"

	"github.com/baldhumanity/neat-medoids/neat"
)

// Dataset is a supervised task: Targets[i] is the expected output for Inputs[i].
type Dataset struct {
	Inputs  [][]float64
	Targets [][]float64
}

// XOR returns the two-input exclusive-or truth table.
func XOR() Dataset {
	return Dataset{
		Inputs:  [][]float64{{0, 0}, {0, 1}, {1, 0}, {1, 1}},
		Targets: [][]float64{{0}, {1}, {1}, {0}},
	}
}

// LoadCSV reads a dataset from a headerless CSV file. The first numInputs columns
// are inputs, the remaining columns targets.
func LoadCSV(path string, numInputs int) (Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return Dataset{}, err
	}
	defer f.Close()
	return ReadCSV(f, numInputs)
}

// ReadCSV is LoadCSV on an open reader.
func ReadCSV(r io.Reader, numInputs int) (Dataset, error) {
	rows, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return Dataset{}, fmt.Errorf("failed to read csv: %w", err)
	}
	var ds Dataset
	for i, row := range rows {
		if len(row) <= numInputs {
			return Dataset{}, fmt.Errorf("row %d has %d columns, need more than %d", i+1, len(row), numInputs)
		}
		values := make([]float64, len(row))
		for j, cell := range row {
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return Dataset{}, fmt.Errorf("row %d column %d: %w", i+1, j+1, err)
			}
			values[j] = v
		}
		ds.Inputs = append(ds.Inputs, values[:numInputs])
		ds.Targets = append(ds.Targets, values[numInputs:])
	}
	if len(ds.Inputs) == 0 {
		return Dataset{}, errors.New("csv holds no rows")
	}
	return ds, nil
}

// MSE is the mean squared error of net over the dataset.
func (d Dataset) MSE(net *FeedForwardNetwork) (float64, error) {
	if len(d.Inputs) == 0 {
		return 0, errors.New("empty dataset")
	}
	total, count := 0.0, 0
	for i, in := range d.Inputs {
		out, err := net.Activate(in)
		if err != nil {
			return 0, err
		}
		if len(out) != len(d.Targets[i]) {
			return 0, fmt.Errorf("network has %d outputs, sample %d has %d targets", len(out), i, len(d.Targets[i]))
		}
		for j, o := range out {
			diff := o - d.Targets[i][j]
			total += diff * diff
			count++
		}
	}
	return total / float64(count), nil
}

// HillClimber is a neat.Trainer that tunes connection weights by per-weight
// perturbation: a step is kept when it lowers the dataset error. Trained weights
// are written back into the genome. Fitness is 1/(1+MSE).
type HillClimber struct {
	Data Dataset
	Step float64 // Standard deviation of a weight perturbation
	Seed int64
}

// NewHillClimber returns a trainer for data with a step of 0.5.
func NewHillClimber(data Dataset, seed int64) *HillClimber {
	return &HillClimber{Data: data, Step: 0.5, Seed: seed}
}

// Build creates the feed-forward network of a *neat.NetworkGenome.
func (h *HillClimber) Build(g neat.Genome, inputSize, outputSize int) (neat.Network, error) {
	ng, ok := g.(*neat.NetworkGenome)
	if !ok {
		return nil, fmt.Errorf("unsupported genome kind %s", g.Kind())
	}
	if len(ng.Config.InputKeys) != inputSize || len(ng.Config.OutputKeys) != outputSize {
		return nil, fmt.Errorf("genome is %d->%d, network must be %d->%d",
			len(ng.Config.InputKeys), len(ng.Config.OutputKeys), inputSize, outputSize)
	}
	return CreateFeedForwardNetwork(ng)
}

// Train runs epochs passes over the weights.
func (h *HillClimber) Train(ctx context.Context, g neat.Genome, net neat.Network, epochs int) (neat.Network, error) {
	ff, ok := net.(*FeedForwardNetwork)
	if !ok {
		return nil, fmt.Errorf("unsupported network %T", net)
	}
	ng, ok := g.(*neat.NetworkGenome)
	if !ok {
		return nil, fmt.Errorf("unsupported genome kind %s", g.Kind())
	}
	cfg := ng.Config
	rng := rand.New(rand.NewSource(h.Seed))

	best, err := h.Data.MSE(ff)
	if err != nil {
		return nil, err
	}
	keys := ff.ConnectionKeys()
	for epoch := 0; epoch < epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, key := range keys {
			old := ff.Weights[key]
			ff.Weights[key] = math.Max(cfg.WeightMinValue, math.Min(cfg.WeightMaxValue, old+rng.NormFloat64()*h.Step))
			mse, err := h.Data.MSE(ff)
			if err != nil {
				return nil, err
			}
			if mse < best {
				best = mse
			} else {
				ff.Weights[key] = old
			}
		}
	}
	ff.ApplyWeights(ng)
	return ff, nil
}

// Evaluate returns 1/(1+MSE), in (0, 1].
func (h *HillClimber) Evaluate(ctx context.Context, net neat.Network) (float64, error) {
	ff, ok := net.(*FeedForwardNetwork)
	if !ok {
		return 0, fmt.Errorf("unsupported network %T", net)
	}
	mse, err := h.Data.MSE(ff)
	if err != nil {
		return 0, err
	}
	return 1 / (1 + mse), nil
}
