package nn

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baldhumanity/neat-medoids/neat"
)

func TestReadCSV(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader("0,0,0\n0,1,1\n1,0,1\n1,1,0\n"), 2)
	require.NoError(t, err)
	assert.Equal(t, XOR(), ds)
}

func TestReadCSVErrors(t *testing.T) {
	tests := map[string]string{
		"not a number":    "0,x,1\n",
		"missing targets": "0,1\n",
		"empty":           "",
		"ragged":          "0,0,0\n0,1\n",
	}
	for name, content := range tests {
		content := content
		t.Run(name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(content), 2)
			require.Error(t, err)
		})
	}
}

func TestLoadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "and.csv")
	require.NoError(t, os.WriteFile(path, []byte("0,0,0\n1,1,1\n"), 0o644))

	ds, err := LoadCSV(path, 2)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0, 0}, {1, 1}}, ds.Inputs)
	assert.Equal(t, [][]float64{{0}, {1}}, ds.Targets)

	_, err = LoadCSV(filepath.Join(t.TempDir(), "absent.csv"), 2)
	require.Error(t, err)
}

func TestMSE(t *testing.T) {
	net, err := CreateFeedForwardNetwork(linearGenome(t))
	require.NoError(t, err)

	// 2*x1 + 3*x2 against the XOR table: errors 0, 2, 1, 5.
	mse, err := XOR().MSE(net)
	require.NoError(t, err)
	assert.InDelta(t, 7.5, mse, 1e-12)

	_, err = Dataset{}.MSE(net)
	require.Error(t, err)
}

func TestHillClimber(t *testing.T) {
	ctx := context.Background()
	g := linearGenome(t)
	h := NewHillClimber(XOR(), 3)

	net, err := h.Build(g, 2, 1)
	require.NoError(t, err)
	before, err := h.Evaluate(ctx, net)
	require.NoError(t, err)

	net, err = h.Train(ctx, g, net, 30)
	require.NoError(t, err)
	after, err := h.Evaluate(ctx, net)
	require.NoError(t, err)

	assert.Greater(t, after, before)
	assert.LessOrEqual(t, after, 1.0)
	for key, w := range net.(*FeedForwardNetwork).Weights {
		assert.Equal(t, w, g.Connections[key].Weight, "trained weights are written back")
	}
}

func TestHillClimberIsSeeded(t *testing.T) {
	train := func() float64 {
		g := linearGenome(t)
		h := NewHillClimber(XOR(), 11)
		net, err := h.Build(g, 2, 1)
		require.NoError(t, err)
		net, err = h.Train(context.Background(), g, net, 5)
		require.NoError(t, err)
		score, err := h.Evaluate(context.Background(), net)
		require.NoError(t, err)
		return score
	}
	assert.Equal(t, train(), train())
}

func TestHillClimberErrors(t *testing.T) {
	h := NewHillClimber(XOR(), 1)
	_, err := h.Build(linearGenome(t), 3, 1)
	require.Error(t, err)

	_, err = h.Evaluate(context.Background(), "not a network")
	require.Error(t, err)

	g := linearGenome(t)
	net, err := h.Build(g, 2, 1)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = h.Train(ctx, g, net, 1)
	require.ErrorIs(t, err, context.Canceled)
}

// The trainer drives a small population end to end.
func TestHillClimberWithPopulation(t *testing.T) {
	config := identityConfig(t)
	config.Genome.ActivationDefault = "sigmoid"
	config.Genome.ActivationOptions = []string{"sigmoid"}
	config.Neat.PopSize = 12
	require.NoError(t, config.Validate())

	p, err := neat.NewPopulation(config, nil, neat.Options{Trainer: NewHillClimber(XOR(), 1)})
	require.NoError(t, err)
	require.NoError(t, p.Run(context.Background(), 2, nil))

	assert.Equal(t, 3, p.Generation)
	assert.Equal(t, 12, p.Size())
	assert.Greater(t, p.TopScore, 0.0)
	assert.LessOrEqual(t, p.TopScore, 1.0)
}
