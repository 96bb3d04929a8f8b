package neat

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "neat-config")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
[NEAT]
pop_size    = 30
num_inputs  = 2
num_outputs = 1
run_name    = demo   # inline comment
workers     = 4

[DefaultGenome]
activation_options = sigmoid tanh

[DefaultSpeciesSet]
min_species_size = 3
clustering_mode  = Relative
`)

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 30, config.Neat.PopSize)
	assert.Equal(t, "demo", config.Neat.RunName)
	assert.Equal(t, 4, config.Neat.Workers)
	assert.Equal(t, 3, config.SpeciesSet.MinSpeciesSize)
	assert.Equal(t, ClusterRelative, config.SpeciesSet.ClusteringMode)
	assert.Equal(t, []string{"sigmoid", "tanh"}, config.Genome.ActivationOptions)
	assert.Equal(t, []int{-1, -2}, config.Genome.InputKeys)
	assert.Equal(t, []int{0}, config.Genome.OutputKeys)

	// Untouched keys keep their defaults.
	assert.Equal(t, 0.1, config.Reproduction.ElitismRate)
	assert.Equal(t, 1500.0, config.SpeciesSet.AbsoluteThreshold)
	assert.Equal(t, "checkpoints", config.Neat.CheckpointDir)
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"clustering mode", "[NEAT]\npop_size = 10\nnum_inputs = 1\nnum_outputs = 1\n[DefaultSpeciesSet]\nclustering_mode = sideways\n"},
		{"population below floor", "[NEAT]\npop_size = 4\nnum_inputs = 1\nnum_outputs = 1\n"},
		{"missing sizes", "[NEAT]\npop_size = 10\n"},
		{"unknown activation", "[NEAT]\npop_size = 10\nnum_inputs = 1\nnum_outputs = 1\n[DefaultGenome]\nactivation_options = sigmoid swish\n"},
		{"elitism", "[NEAT]\npop_size = 10\nnum_inputs = 1\nnum_outputs = 1\n[DefaultReproduction]\nelitism_rate = 1.5\n"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			require.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
}

func TestValidateFillsDefaults(t *testing.T) {
	config := DefaultConfig()
	config.Neat.PopSize = 10
	config.Neat.NumInputs = 1
	config.Neat.NumOutputs = 1
	config.Neat.Workers = 0
	config.SpeciesSet.ClusteringMode = ""

	require.NoError(t, config.Validate())
	assert.NotEmpty(t, config.Neat.RunName)
	assert.Equal(t, 1, config.Neat.Workers)
	assert.Equal(t, ClusterAbsolute, config.SpeciesSet.ClusteringMode)
}
