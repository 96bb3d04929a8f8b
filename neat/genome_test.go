package neat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterFrom(start int) func() int {
	next := start
	return func() int {
		id := next
		next++
		return id
	}
}

func newTestGenome(t *testing.T) *NetworkGenome {
	t.Helper()
	config := testConfig(t, 10)
	return NewNetworkGenome(&config.Genome)
}

func TestNewNetworkGenome(t *testing.T) {
	g := newTestGenome(t)

	assert.Len(t, g.Nodes, 1)
	assert.Contains(t, g.Nodes, 0)
	assert.Len(t, g.Connections, 2)
	assert.Contains(t, g.Connections, ConnectionKey{InNodeID: -1, OutNodeID: 0})
	assert.Contains(t, g.Connections, ConnectionKey{InNodeID: -2, OutNodeID: 0})
}

func TestSplitConnectionSharesMarkerWithinGeneration(t *testing.T) {
	a := newTestGenome(t)
	b := a.Copy().(*NetworkGenome)
	key := ConnectionKey{InNodeID: -1, OutNodeID: 0}

	innov := NewInnovations(counterFrom(10))
	require.True(t, a.SplitConnection(key, innov))
	require.True(t, b.SplitConnection(key, innov))
	assert.Equal(t, 1, innov.Len())

	for _, g := range []*NetworkGenome{a, b} {
		assert.Contains(t, g.Nodes, 10)
		assert.False(t, g.Connections[key].Enabled)
		assert.Equal(t, 1.0, g.Connections[ConnectionKey{InNodeID: -1, OutNodeID: 10}].Weight)
		assert.Equal(t, g.Connections[key].Weight, g.Connections[ConnectionKey{InNodeID: 10, OutNodeID: 0}].Weight)
	}
	assert.Zero(t, a.Distance(b), "identical splits produce homologous genes")

	// Splitting the same connection again in the same generation is a no-op.
	assert.False(t, a.SplitConnection(key, innov))
	assert.False(t, a.SplitConnection(ConnectionKey{InNodeID: -7, OutNodeID: 0}, innov))

	// A later generation gets a fresh marker for the same split.
	c := newTestGenome(t)
	require.True(t, c.SplitConnection(key, NewInnovations(counterFrom(20))))
	assert.Contains(t, c.Nodes, 20)
	assert.NotContains(t, c.Nodes, 10)
}

func TestCreatesCycle(t *testing.T) {
	g := newTestGenome(t)
	require.True(t, g.SplitConnection(ConnectionKey{InNodeID: -1, OutNodeID: 0}, NewInnovations(counterFrom(10))))

	assert.True(t, g.createsCycle(0, 0))
	assert.True(t, g.createsCycle(0, 10), "10 already feeds 0")
	assert.False(t, g.createsCycle(10, 0))
	assert.False(t, g.createsCycle(-2, 10))
}

func TestNetworkGenomeDistance(t *testing.T) {
	a := newTestGenome(t)
	b := a.Copy().(*NetworkGenome)
	assert.Zero(t, a.Distance(b))

	require.True(t, b.SplitConnection(ConnectionKey{InNodeID: -2, OutNodeID: 0}, NewInnovations(counterFrom(10))))
	d := a.Distance(b)
	assert.Greater(t, d, 0.0)
	assert.InDelta(t, d, b.Distance(a), 1e-12)

	assert.Equal(t, 2*a.Config.CompatibilityDisjointCoefficient, a.Distance(&fakeGenome{}))
}

func TestNetworkGenomeCrossover(t *testing.T) {
	a := newTestGenome(t)
	b := a.Copy().(*NetworkGenome)
	require.True(t, a.SplitConnection(ConnectionKey{InNodeID: -1, OutNodeID: 0}, NewInnovations(counterFrom(10))))
	a.Score, b.Score = 2, 1

	child, err := b.Crossover(a)
	require.NoError(t, err)
	c := child.(*NetworkGenome)
	assert.Len(t, c.Nodes, len(a.Nodes), "genes come from the fitter parent")
	assert.Len(t, c.Connections, len(a.Connections))
	assert.Zero(t, c.Fitness())

	_, err = a.Crossover(&fakeGenome{})
	require.Error(t, err)
}

func TestNetworkGenomeMutateRequiresInnovations(t *testing.T) {
	require.Error(t, newTestGenome(t).Mutate(nil))
}

func TestNetworkGenomeCopyIsDeep(t *testing.T) {
	a := newTestGenome(t)
	b := a.Copy().(*NetworkGenome)
	b.Connections[ConnectionKey{InNodeID: -1, OutNodeID: 0}].Weight = 99
	b.Nodes[0].Bias = 99

	assert.NotEqual(t, 99.0, a.Connections[ConnectionKey{InNodeID: -1, OutNodeID: 0}].Weight)
	assert.NotEqual(t, 99.0, a.Nodes[0].Bias)
}

func TestNetworkGenomeCodec(t *testing.T) {
	p, err := NewPopulation(testConfig(t, 10), nil, Options{Trainer: &fakeTrainer{}, Logger: testLogger()})
	require.NoError(t, err)
	g := p.Species[0][0].(*NetworkGenome)
	require.True(t, g.SplitConnection(ConnectionKey{InNodeID: -2, OutNodeID: 0}, NewInnovations(p.NextInnovationID)))
	g.SetFitness(0.75)

	rec, err := p.codecs.Encode(g)
	require.NoError(t, err)
	assert.Equal(t, NetworkGenomeKind, rec.Kind)

	decoded, err := p.codecs.Decode(rec, p)
	require.NoError(t, err)
	assert.Equal(t, g.String(), decoded.String())
	assert.Equal(t, 0.75, decoded.Fitness())
	assert.Zero(t, g.Distance(decoded))

	_, err = DecodeNetworkGenome(rec.Payload, nil)
	require.Error(t, err)
	_, err = p.codecs.Decode(GenomeRecord{Kind: NetworkGenomeKind, Payload: []byte("junk")}, p)
	require.ErrorIs(t, err, ErrCheckpointCorrupt)
	_, err = p.codecs.Encode(&fakeGenome{})
	require.Error(t, err, "fake kind is not registered by default")
}
