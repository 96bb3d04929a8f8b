package neat

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAllocPopulation(t *testing.T, n, minSize int) *Population {
	t.Helper()
	config := DefaultConfig()
	config.Neat.PopSize = n
	config.Neat.NumInputs = 2
	config.Neat.NumOutputs = 1
	config.Neat.RunName = "alloc"
	config.SpeciesSet.MinSpeciesSize = minSize
	require.NoError(t, config.Validate())
	p, _ := newFakePopulation(t, config, Options{Rand: rand.New(rand.NewSource(3))})
	return p
}

func TestNewSpeciesSizesProportional(t *testing.T) {
	p := newAllocPopulation(t, 20, 5)

	sizes, err := p.NewSpeciesSizes(map[int]float64{0: 10, 1: 30})
	require.NoError(t, err)
	assert.Equal(t, map[int]int{0: 5, 1: 15}, sizes)
}

func TestNewSpeciesSizesFloor(t *testing.T) {
	p := newAllocPopulation(t, 20, 5)

	sizes, err := p.NewSpeciesSizes(map[int]float64{3: 1, 7: 99})
	require.NoError(t, err)
	assert.Equal(t, map[int]int{3: 5, 7: 15}, sizes)
}

func TestNewSpeciesSizesTotals(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 200; trial++ {
		minSize := 1 + rng.Intn(6)
		k := 1 + rng.Intn(6)
		n := k*minSize + rng.Intn(50)
		p := newAllocPopulation(t, n, minSize)

		scores := make(map[int]float64, k)
		for i := 0; i < k; i++ {
			scores[i*3+1] = 0.01 + rng.Float64()*100
		}
		sizes, err := p.NewSpeciesSizes(scores)
		require.NoError(t, err, "trial %d", trial)

		total := 0
		require.Len(t, sizes, k)
		for id, size := range sizes {
			_, ok := scores[id]
			require.True(t, ok, "unexpected species %d", id)
			require.GreaterOrEqual(t, size, minSize, "trial %d species %d", trial, id)
			total += size
		}
		require.Equal(t, p.N, total, "trial %d", trial)
	}
}

func TestNewSpeciesSizesMonotonic(t *testing.T) {
	base := map[int]float64{1: 10, 2: 20, 3: 30}
	p := newAllocPopulation(t, 100, 5)
	baseline, err := p.NewSpeciesSizes(base)
	require.NoError(t, err)

	for _, boost := range []float64{1, 5, 10, 40, 200} {
		scores := map[int]float64{1: base[1] + boost, 2: base[2], 3: base[3]}
		sizes, err := p.NewSpeciesSizes(scores)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, sizes[1], baseline[1], "boost %v", boost)
	}
}

func TestNewSpeciesSizesErrors(t *testing.T) {
	tests := []struct {
		name   string
		n      int
		scores map[int]float64
	}{
		{"zero total", 20, map[int]float64{0: 0, 1: 0}},
		{"cancelling total", 20, map[int]float64{0: 1, 1: -1}},
		{"nan", 20, map[int]float64{0: math.NaN(), 1: 1}},
		{"infinite", 20, map[int]float64{0: math.Inf(1), 1: 1}},
		{"infeasible", 9, map[int]float64{0: 1, 1: 1}},
		{"empty", 20, map[int]float64{}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			p := newAllocPopulation(t, tt.n, 5)
			_, err := p.NewSpeciesSizes(tt.scores)
			require.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestNewSpeciesSizesDeterministicWithSeed(t *testing.T) {
	scores := map[int]float64{0: 1, 1: 1, 2: 1}

	a := newAllocPopulation(t, 20, 5)
	b := newAllocPopulation(t, 20, 5)
	sa, err := a.NewSpeciesSizes(scores)
	require.NoError(t, err)
	sb, err := b.NewSpeciesSizes(scores)
	require.NoError(t, err)
	assert.Equal(t, sa, sb)
}
