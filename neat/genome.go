package neat

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// NetworkGenomeKind is the kind tag of NetworkGenome in checkpoints.
const NetworkGenomeKind = "neat.network"

// NetworkGenome is the built-in genome: node genes plus connection genes, where a
// hidden node key is the historical marker of the connection split that created it.
type NetworkGenome struct {
	Nodes       map[int]*NodeGene                 // Output and hidden nodes; inputs are implicit
	Connections map[ConnectionKey]*ConnectionGene // Keyed by endpoints
	Score       float64
	Config      *GenomeConfig
}

// NewNetworkGenome creates a genome with output nodes and the configured initial connections.
func NewNetworkGenome(config *GenomeConfig) *NetworkGenome {
	g := &NetworkGenome{
		Nodes:       make(map[int]*NodeGene),
		Connections: make(map[ConnectionKey]*ConnectionGene),
		Config:      config,
	}
	for _, key := range config.OutputKeys {
		g.Nodes[key] = NewNodeGene(key, config)
	}
	if config.InitialConnection == "full" {
		for _, ik := range config.InputKeys {
			for _, ok := range config.OutputKeys {
				key := ConnectionKey{InNodeID: ik, OutNodeID: ok}
				g.Connections[key] = NewConnectionGene(key, config)
			}
		}
	}
	return g
}

// NewDefaultGenome is the GenomeFactory producing NetworkGenomes.
func NewDefaultGenome(p *Population) (Genome, error) {
	return NewNetworkGenome(&p.Config.Genome), nil
}

func (g *NetworkGenome) Kind() string { return NetworkGenomeKind }

func (g *NetworkGenome) Fitness() float64 { return g.Score }

func (g *NetworkGenome) SetFitness(score float64) { g.Score = score }

// Copy returns a deep copy sharing only the config reference.
func (g *NetworkGenome) Copy() Genome {
	c := &NetworkGenome{
		Nodes:       make(map[int]*NodeGene, len(g.Nodes)),
		Connections: make(map[ConnectionKey]*ConnectionGene, len(g.Connections)),
		Score:       g.Score,
		Config:      g.Config,
	}
	for k, n := range g.Nodes {
		c.Nodes[k] = n.Copy()
	}
	for k, cg := range g.Connections {
		c.Connections[k] = cg.Copy()
	}
	return c
}

// Distance calculates the compatibility distance
// c1*D/N + c2*W, where D counts non-matching connections, N is the size of the larger
// genome and W is the mean attribute distance of matching connections.
func (g *NetworkGenome) Distance(other Genome) float64 {
	o, ok := other.(*NetworkGenome)
	if !ok {
		// Different kinds share no genes.
		return 2 * g.Config.CompatibilityDisjointCoefficient
	}

	disjoint := 0
	matching := 0
	weightDiffSum := 0.0
	for key, c1 := range g.Connections {
		if c2, exists := o.Connections[key]; exists {
			weightDiffSum += c1.Distance(c2, g.Config)
			matching++
		} else {
			disjoint++
		}
	}
	for key := range o.Connections {
		if _, exists := g.Connections[key]; !exists {
			disjoint++
		}
	}

	n := float64(max(len(g.Connections), len(o.Connections)))
	if n < 1.0 {
		n = 1.0
	}
	d := g.Config.CompatibilityDisjointCoefficient * float64(disjoint) / n
	if matching > 0 {
		d += g.Config.CompatibilityWeightCoefficient * weightDiffSum / float64(matching)
	}
	return d
}

// Crossover creates a child from the receiver and other. Nodes and disjoint
// connections come from the fitter parent, homologous connections mix attributes.
func (g *NetworkGenome) Crossover(other Genome) (Genome, error) {
	o, ok := other.(*NetworkGenome)
	if !ok {
		return nil, fmt.Errorf("cannot cross %s with %s", g.Kind(), other.Kind())
	}
	parent1, parent2 := g, o
	if parent1.Score < parent2.Score {
		parent1, parent2 = parent2, parent1
	}

	child := &NetworkGenome{
		Nodes:       make(map[int]*NodeGene, len(parent1.Nodes)),
		Connections: make(map[ConnectionKey]*ConnectionGene, len(parent1.Connections)),
		Config:      parent1.Config,
	}
	for key, n1 := range parent1.Nodes {
		if n2, exists := parent2.Nodes[key]; exists {
			child.Nodes[key] = n1.Crossover(n2)
		} else {
			child.Nodes[key] = n1.Copy()
		}
	}
	for key, c1 := range parent1.Connections {
		if c2, exists := parent2.Connections[key]; exists {
			child.Connections[key] = c1.Crossover(c2)
		} else {
			child.Connections[key] = c1.Copy()
		}
	}
	if child.Config.FeedForward {
		// A gene re-enabled from parent2 must not close a cycle in the child.
		for _, key := range child.connectionKeys() {
			c := child.Connections[key]
			if !c.Enabled || parent1.Connections[key].Enabled {
				continue
			}
			c.Enabled = false
			c.Enabled = !child.createsCycle(key.InNodeID, key.OutNodeID)
		}
	}
	return child, nil
}

// Mutate applies structural mutations (split connection, add connection) followed by
// attribute mutations of every node and connection.
func (g *NetworkGenome) Mutate(innov *Innovations) error {
	if innov == nil {
		return errors.New("mutate: innovations context is required")
	}
	structureMutated := false

	if rand.Float64() < g.Config.NodeAddProb {
		structureMutated = g.mutateAddNode(innov)
	}
	if !g.Config.SingleStructuralMutation || !structureMutated {
		if rand.Float64() < g.Config.ConnAddProb {
			g.mutateAddConnection()
		}
	}

	for _, key := range g.nodeKeys() {
		g.Nodes[key].Mutate(g.Config)
	}
	for _, key := range g.connectionKeys() {
		g.Connections[key].Mutate(g)
	}
	return nil
}

// mutateAddNode splits a randomly chosen connection.
func (g *NetworkGenome) mutateAddNode(innov *Innovations) bool {
	if len(g.Connections) == 0 {
		return false
	}
	keys := g.connectionKeys()
	return g.SplitConnection(keys[rand.Intn(len(keys))], innov)
}

// SplitConnection disables the connection at key and routes it through a new hidden
// node. The node key is the generation-wide marker for splitting key, so genomes
// splitting the same connection in one generation end up with identical genes.
// It reports false when the connection is missing or was already split this way.
func (g *NetworkGenome) SplitConnection(key ConnectionKey, innov *Innovations) bool {
	conn, ok := g.Connections[key]
	if !ok {
		return false
	}
	nodeKey := innov.ID(InnovationKey{Mutation: MutationSplitConnection, In: key.InNodeID, Out: key.OutNodeID})
	if _, exists := g.Nodes[nodeKey]; exists {
		return false
	}

	conn.Enabled = false
	g.Nodes[nodeKey] = NewNodeGene(nodeKey, g.Config)

	inKey := ConnectionKey{InNodeID: key.InNodeID, OutNodeID: nodeKey}
	in := NewConnectionGene(inKey, g.Config)
	in.Weight = 1.0
	in.Enabled = true
	g.Connections[inKey] = in

	outKey := ConnectionKey{InNodeID: nodeKey, OutNodeID: key.OutNodeID}
	out := NewConnectionGene(outKey, g.Config)
	out.Weight = conn.Weight
	out.Enabled = true
	g.Connections[outKey] = out
	return true
}

// mutateAddConnection tries a bounded number of random node pairs for a new connection.
func (g *NetworkGenome) mutateAddConnection() bool {
	outputs := g.nodeKeys()
	if len(outputs) == 0 {
		return false
	}
	inputs := append(append([]int{}, g.Config.InputKeys...), outputs...)

	const maxAttempts = 20
	for i := 0; i < maxAttempts; i++ {
		inNode := inputs[rand.Intn(len(inputs))]
		outNode := outputs[rand.Intn(len(outputs))]
		key := ConnectionKey{InNodeID: inNode, OutNodeID: outNode}
		if _, exists := g.Connections[key]; exists {
			continue
		}
		if g.Config.FeedForward && g.createsCycle(inNode, outNode) {
			continue
		}
		g.Connections[key] = NewConnectionGene(key, g.Config)
		return true
	}
	return false
}

// createsCycle reports whether an enabled edge inNode->outNode would close a cycle,
// i.e. whether outNode already reaches inNode.
func (g *NetworkGenome) createsCycle(inNode, outNode int) bool {
	if inNode == outNode {
		return true
	}
	dg := simple.NewDirectedGraph()
	ids := make(map[int]int64)
	node := func(key int) graph.Node {
		id, ok := ids[key]
		if !ok {
			id = int64(len(ids))
			ids[key] = id
			dg.AddNode(simple.Node(id))
		}
		return simple.Node(id)
	}
	from, to := node(outNode), node(inNode)
	for key, c := range g.Connections {
		if !c.Enabled || key.InNodeID == key.OutNodeID {
			continue
		}
		dg.SetEdge(dg.NewEdge(node(key.InNodeID), node(key.OutNodeID)))
	}
	return topo.PathExistsIn(dg, from, to)
}

func (g *NetworkGenome) nodeKeys() []int {
	keys := make([]int, 0, len(g.Nodes))
	for k := range g.Nodes {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func (g *NetworkGenome) connectionKeys() []ConnectionKey {
	keys := make([]ConnectionKey, 0, len(g.Connections))
	for k := range g.Connections {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].InNodeID != keys[j].InNodeID {
			return keys[i].InNodeID < keys[j].InNodeID
		}
		return keys[i].OutNodeID < keys[j].OutNodeID
	})
	return keys
}

// String lists the enabled connections; disabled ones are marked with '~'.
func (g *NetworkGenome) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "NetworkGenome(fitness=%.4f, hidden=%d, [", g.Score, len(g.Nodes)-len(g.Config.OutputKeys))
	for i, key := range g.connectionKeys() {
		if i > 0 {
			b.WriteByte(' ')
		}
		if !g.Connections[key].Enabled {
			b.WriteByte('~')
		}
		b.WriteString(key.String())
	}
	b.WriteString("])")
	return b.String()
}

type networkGenomeState struct {
	Nodes       []NodeGene
	Connections []ConnectionGene
	Score       float64
}

// MarshalBinary gob-encodes the genes in key order.
func (g *NetworkGenome) MarshalBinary() ([]byte, error) {
	state := networkGenomeState{Score: g.Score}
	for _, key := range g.nodeKeys() {
		state.Nodes = append(state.Nodes, *g.Nodes[key])
	}
	for _, key := range g.connectionKeys() {
		state.Connections = append(state.Connections, *g.Connections[key])
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(state); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeNetworkGenome is the GenomeDecoder of NetworkGenomeKind. The decoded genome is
// re-linked to the genome config of p.
func DecodeNetworkGenome(payload []byte, p *Population) (Genome, error) {
	if p == nil || p.Config == nil {
		return nil, errors.New("owning population with config is required")
	}
	var state networkGenomeState
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&state); err != nil {
		return nil, err
	}
	g := &NetworkGenome{
		Nodes:       make(map[int]*NodeGene, len(state.Nodes)),
		Connections: make(map[ConnectionKey]*ConnectionGene, len(state.Connections)),
		Score:       state.Score,
		Config:      &p.Config.Genome,
	}
	for i := range state.Nodes {
		n := state.Nodes[i]
		g.Nodes[n.Key] = &n
	}
	for i := range state.Connections {
		c := state.Connections[i]
		g.Connections[c.Key] = &c
	}
	return g, nil
}
