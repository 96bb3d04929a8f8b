package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/baldhumanity/neat-medoids/neat"
	"github.com/baldhumanity/neat-medoids/neat/storage"
)

const testConfig = `
[NEAT]
pop_size    = 10
num_inputs  = 2
num_outputs = 1
run_name    = cli
epochs      = 1
`

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--log-level", "warn"))
	require.NoError(t, root.ExecuteContext(context.Background()), out.String())
	return out.String()
}

func writeTestConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "neat-config")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o644))
	return path
}

func TestRunInspectPlot(t *testing.T) {
	config := writeTestConfig(t)
	dir := t.TempDir()
	common := []string{"--config", config, "--checkpoint-dir", dir}

	execute(t, append([]string{"run", "--generations", "2"}, common...)...)
	assert.FileExists(t, filepath.Join(dir, "cli", "01.cp"))
	assert.FileExists(t, filepath.Join(dir, "cli", "02.cp"))

	out := execute(t, append([]string{"inspect", "--history"}, common...)...)
	var summary checkpointSummary
	require.NoError(t, yaml.Unmarshal([]byte(out), &summary))
	assert.Equal(t, "cli", summary.Run)
	assert.Equal(t, 2, summary.Generation)
	assert.Equal(t, 10, summary.PopulationSize)
	assert.Len(t, summary.History, 2)
	total := 0
	for _, s := range summary.Species {
		total += s.Size
	}
	assert.Equal(t, 10, total)

	plots := t.TempDir()
	out = execute(t, append([]string{"plot", "--out", plots}, common...)...)
	assert.Contains(t, out, "species.png")
	assert.FileExists(t, filepath.Join(plots, "species.png"))

	// Resuming replays the newest saved generation, then moves on.
	execute(t, append([]string{"run", "--generations", "2", "--resume", "-1"}, common...)...)
	assert.FileExists(t, filepath.Join(dir, "cli", "03.cp"))
}

func TestRunWithSQLiteStore(t *testing.T) {
	config := writeTestConfig(t)
	db := filepath.Join(t.TempDir(), "neat.db")

	execute(t, "run", "--config", config, "--store", "sqlite", "--sqlite", db, "--generations", "1", "--run", "lite")

	store := storage.NewSQLiteStore(db)
	require.NoError(t, store.Init(context.Background()))
	defer store.Close()
	gens, err := store.Generations(context.Background(), "lite")
	require.NoError(t, err)
	assert.Equal(t, []int{1}, gens)
}

func TestResolveGeneration(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	gen, err := resolveGeneration(ctx, store, "run", 4, "generation")
	require.NoError(t, err)
	assert.Equal(t, 4, gen)

	_, err = resolveGeneration(ctx, store, "run", -1, "generation")
	require.ErrorIs(t, err, neat.ErrCheckpointNotFound)

	for _, g := range []int{1, 7, 3} {
		require.NoError(t, store.Save(ctx, &neat.Checkpoint{Name: "run", Generation: g}))
	}
	gen, err = resolveGeneration(ctx, store, "run", -1, "generation")
	require.NoError(t, err)
	assert.Equal(t, 7, gen)

	_, err = resolveGeneration(ctx, saveOnly{store}, "run", -1, "resume")
	require.ErrorContains(t, err, "--resume")
}

// saveOnly hides the generation listing of a store.
type saveOnly struct{ neat.CheckpointStore }

func TestSummarize(t *testing.T) {
	score := 0.5
	cp := &neat.Checkpoint{
		Name:            "run",
		Generation:      3,
		N:               4,
		NumberOfSpecies: 2,
		History:         []neat.HistoryRecord{{0: {Size: 4, Score: &score}}, {0: {Size: 1}, 2: {Size: 3}}},
	}
	pop := &neat.Population{Species: map[int][]neat.Genome{2: make([]neat.Genome, 3), 0: make([]neat.Genome, 1)}}

	s := summarize(cp, pop)
	assert.Equal(t, []speciesSummary{{ID: 0, Size: 1}, {ID: 2, Size: 3}}, s.Species)
	require.Len(t, s.History, 2)
	assert.Equal(t, []speciesSummary{{ID: 0, Size: 4, Score: &score}}, s.History[0])
	assert.Equal(t, []speciesSummary{{ID: 2, Size: 3}, {ID: 0, Size: 1}}, s.History[1])
	assert.Empty(t, s.BestGenome)
}
