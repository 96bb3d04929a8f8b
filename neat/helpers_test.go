package neat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

const fakeKind = "test.fake"

// mutationLog records every marker handed to fake genomes.
type mutationLog struct {
	mu      sync.Mutex
	entries []mutationEntry
}

type mutationEntry struct {
	key InnovationKey
	id  int
}

func (l *mutationLog) add(key InnovationKey, id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, mutationEntry{key, id})
}

func (l *mutationLog) take() []mutationEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.entries
	l.entries = nil
	return out
}

// fakeGenome lives on a line; distance is the gap between positions and every
// mutation moves it one step right.
type fakeGenome struct {
	Pos   float64
	Score float64

	log *mutationLog
}

func (g *fakeGenome) String() string { return fmt.Sprintf("fake(pos=%.2f)", g.Pos) }

func (g *fakeGenome) MarshalBinary() ([]byte, error) { return json.Marshal(g) }

func (g *fakeGenome) Kind() string { return fakeKind }

func (g *fakeGenome) Fitness() float64 { return g.Score }

func (g *fakeGenome) SetFitness(score float64) { g.Score = score }

func (g *fakeGenome) Copy() Genome {
	c := *g
	return &c
}

func (g *fakeGenome) Distance(other Genome) float64 {
	o, ok := other.(*fakeGenome)
	if !ok {
		return 1
	}
	return math.Abs(g.Pos - o.Pos)
}

func (g *fakeGenome) Crossover(other Genome) (Genome, error) {
	o, ok := other.(*fakeGenome)
	if !ok {
		return nil, errors.New("kind mismatch")
	}
	return &fakeGenome{Pos: math.Floor((g.Pos + o.Pos) / 2), log: g.log}, nil
}

func (g *fakeGenome) Mutate(innov *Innovations) error {
	g.Pos++
	key := InnovationKey{Mutation: "shift", In: int(g.Pos)}
	id := innov.ID(key)
	if g.log != nil {
		g.log.add(key, id)
	}
	return nil
}

func decodeFake(payload []byte, _ *Population) (Genome, error) {
	g := &fakeGenome{}
	if err := json.Unmarshal(payload, g); err != nil {
		return nil, err
	}
	return g, nil
}

func fakeCodecs() GenomeCodecs {
	codecs := DefaultCodecs()
	codecs.Register(fakeKind, decodeFake)
	return codecs
}

// fakeFactory places the i-th genome at position positions[i%len(positions)].
func fakeFactory(log *mutationLog, positions ...float64) GenomeFactory {
	i := 0
	return func(*Population) (Genome, error) {
		g := &fakeGenome{Pos: positions[i%len(positions)], log: log}
		i++
		return g, nil
	}
}

// fakeTrainer scores fake genomes by position and network genomes by connection count.
type fakeTrainer struct {
	failAt int // Fail the Evaluate call with this 1-based number; 0 never fails

	mu    sync.Mutex
	calls int
}

func (t *fakeTrainer) Build(g Genome, _, _ int) (Network, error) { return g, nil }

func (t *fakeTrainer) Train(_ context.Context, _ Genome, net Network, _ int) (Network, error) {
	return net, nil
}

func (t *fakeTrainer) Evaluate(_ context.Context, net Network) (float64, error) {
	t.mu.Lock()
	t.calls++
	call := t.calls
	t.mu.Unlock()
	if t.failAt > 0 && call == t.failAt {
		return 0, errors.New("boom")
	}
	switch g := net.(type) {
	case *fakeGenome:
		return 1 + g.Pos, nil
	case *NetworkGenome:
		return 1 + float64(len(g.Connections)), nil
	}
	return 0, fmt.Errorf("unexpected network %T", net)
}

// scriptedClusterer cuts the items into k contiguous blocks and reports a fixed score per k.
type scriptedClusterer struct {
	scores    map[int]float64
	err       error
	badLabels bool

	requested []int
}

func (c *scriptedClusterer) Fit(_ context.Context, d mat.Symmetric, k int, _ []int) ([]int, float64, error) {
	c.requested = append(c.requested, k)
	if c.err != nil {
		return nil, 0, c.err
	}
	n := d.SymmetricDim()
	if c.badLabels {
		n--
	}
	labels := make([]int, n)
	for i := range labels {
		labels[i] = i * k / d.SymmetricDim()
	}
	return labels, c.scores[k], nil
}

func testConfig(t *testing.T, popSize int) *Config {
	t.Helper()
	config := DefaultConfig()
	config.Neat.PopSize = popSize
	config.Neat.NumInputs = 2
	config.Neat.NumOutputs = 1
	config.Neat.RunName = "test"
	require.NoError(t, config.Validate())
	return config
}

func testLogger() logrus.FieldLogger {
	logger, _ := test.NewNullLogger()
	return logger
}

func newFakePopulation(t *testing.T, config *Config, opts Options, positions ...float64) (*Population, *mutationLog) {
	t.Helper()
	log := &mutationLog{}
	if opts.Trainer == nil {
		opts.Trainer = &fakeTrainer{}
	}
	if opts.Codecs == nil {
		opts.Codecs = fakeCodecs()
	}
	if opts.Logger == nil {
		opts.Logger = testLogger()
	}
	if len(positions) == 0 {
		positions = []float64{0}
	}
	p, err := NewPopulation(config, fakeFactory(log, positions...), opts)
	require.NoError(t, err)
	return p, log
}

// members returns the set of genomes across all species.
func members(p *Population) map[Genome]bool {
	set := make(map[Genome]bool)
	for _, genomes := range p.Species {
		for _, g := range genomes {
			set[g] = true
		}
	}
	return set
}
