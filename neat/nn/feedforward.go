package nn

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/baldhumanity/neat-medoids/neat"
)

// neuralNode represents a node during network activation.
// It stores pre-fetched activation/aggregation functions and node properties.
type neuralNode struct {
	Key           int
	Bias          float64
	Response      float64
	ActivationFn  neat.ActivationType
	AggregationFn neat.AggregationType
	InputKeys     []neat.ConnectionKey // Enabled incoming connections, sorted
}

// FeedForwardNetwork is the phenotype of a NetworkGenome. Weights are copied out of
// the genome so a trainer can adjust them and write them back with ApplyWeights.
type FeedForwardNetwork struct {
	InputKeys     []int                          // Input node keys (negative)
	OutputKeys    []int                          // Output node keys (0 to N-1)
	NodeEvalOrder []int                          // Topologically sorted non-input node keys
	Nodes         map[int]neuralNode             // Node key -> processed node data
	Weights       map[neat.ConnectionKey]float64 // Enabled connections only
}

// CreateFeedForwardNetwork builds a runnable feed-forward network from a genome.
// The evaluation order comes from a stable topological sort of the enabled connections.
func CreateFeedForwardNetwork(g *neat.NetworkGenome) (*FeedForwardNetwork, error) {
	if !g.Config.FeedForward {
		return nil, errors.New("cannot create FeedForwardNetwork for a genome configured with FeedForward=false")
	}

	nodes := make(map[int]neuralNode, len(g.Nodes))
	for key, gn := range g.Nodes {
		actFn, err := neat.GetActivation(gn.Activation)
		if err != nil {
			return nil, fmt.Errorf("failed to get activation function '%s' for node %d: %w", gn.Activation, key, err)
		}
		aggFn, err := neat.GetAggregation(gn.Aggregation)
		if err != nil {
			return nil, fmt.Errorf("failed to get aggregation function '%s' for node %d: %w", gn.Aggregation, key, err)
		}
		nodes[key] = neuralNode{
			Key:           key,
			Bias:          gn.Bias,
			Response:      gn.Response,
			ActivationFn:  actFn,
			AggregationFn: aggFn,
		}
	}

	// Graph node ids are positions in the sorted key list, so ordering by id orders by key.
	keySet := make(map[int]bool)
	for _, ik := range g.Config.InputKeys {
		keySet[ik] = true
	}
	for key := range g.Nodes {
		keySet[key] = true
	}
	weights := make(map[neat.ConnectionKey]float64)
	for key, gc := range g.Connections {
		if !gc.Enabled {
			continue
		}
		if _, ok := nodes[key.OutNodeID]; !ok {
			return nil, fmt.Errorf("connection %s ends in unknown node", key)
		}
		weights[key] = gc.Weight
		keySet[key.InNodeID] = true
	}
	keys := make([]int, 0, len(keySet))
	for key := range keySet {
		keys = append(keys, key)
	}
	sort.Ints(keys)
	ids := make(map[int]int64, len(keys))
	dg := simple.NewDirectedGraph()
	for i, key := range keys {
		ids[key] = int64(i)
		dg.AddNode(simple.Node(i))
	}

	connKeys := sortedConnectionKeys(weights)
	for _, key := range connKeys {
		if key.InNodeID == key.OutNodeID {
			return nil, fmt.Errorf("self loop on node %d in a feed-forward genome", key.InNodeID)
		}
		dg.SetEdge(dg.NewEdge(simple.Node(ids[key.InNodeID]), simple.Node(ids[key.OutNodeID])))
		node := nodes[key.OutNodeID]
		node.InputKeys = append(node.InputKeys, key)
		nodes[key.OutNodeID] = node
	}

	sorted, err := topo.SortStabilized(dg, func(ns []graph.Node) {
		sort.Slice(ns, func(i, j int) bool { return ns[i].ID() < ns[j].ID() })
	})
	if err != nil {
		return nil, fmt.Errorf("failed topological sort: %w", err)
	}

	isInput := make(map[int]bool, len(g.Config.InputKeys))
	for _, ik := range g.Config.InputKeys {
		isInput[ik] = true
	}
	evalOrder := make([]int, 0, len(nodes))
	for _, n := range sorted {
		key := keys[n.ID()]
		if _, ok := nodes[key]; ok && !isInput[key] {
			evalOrder = append(evalOrder, key)
		}
	}

	return &FeedForwardNetwork{
		InputKeys:     g.Config.InputKeys,
		OutputKeys:    g.Config.OutputKeys,
		NodeEvalOrder: evalOrder,
		Nodes:         nodes,
		Weights:       weights,
	}, nil
}

// Activate computes the network's output for a given slice of input values.
// The input slice must match the number of input nodes.
func (net *FeedForwardNetwork) Activate(inputs []float64) ([]float64, error) {
	if len(inputs) != len(net.InputKeys) {
		return nil, fmt.Errorf("mismatch between input count (%d) and network input nodes (%d)", len(inputs), len(net.InputKeys))
	}

	nodeValues := make(map[int]float64, len(net.InputKeys)+len(net.Nodes))
	for i, ik := range net.InputKeys {
		nodeValues[ik] = inputs[i]
	}

	var incInputsBuffer []float64
	for _, nodeKey := range net.NodeEvalOrder {
		node := net.Nodes[nodeKey]

		if cap(incInputsBuffer) < len(node.InputKeys) {
			incInputsBuffer = make([]float64, 0, len(node.InputKeys))
		}
		incInputs := incInputsBuffer[:0]
		for _, connKey := range node.InputKeys {
			incInputs = append(incInputs, nodeValues[connKey.InNodeID]*net.Weights[connKey])
		}
		incInputsBuffer = incInputs

		activationInput := (node.AggregationFn(incInputs) + node.Bias) * node.Response
		nodeValues[nodeKey] = node.ActivationFn(activationInput)
	}

	// Output nodes without enabled inputs still carry their activated bias.
	outputs := make([]float64, len(net.OutputKeys))
	for i, ok := range net.OutputKeys {
		outputs[i] = nodeValues[ok]
	}
	return outputs, nil
}

// ConnectionKeys returns the keys of the network weights in a fixed order.
func (net *FeedForwardNetwork) ConnectionKeys() []neat.ConnectionKey {
	return sortedConnectionKeys(net.Weights)
}

// ApplyWeights copies the network weights back into the matching genes of g.
func (net *FeedForwardNetwork) ApplyWeights(g *neat.NetworkGenome) {
	for key, w := range net.Weights {
		if c, ok := g.Connections[key]; ok {
			c.Weight = w
		}
	}
}

func sortedConnectionKeys(weights map[neat.ConnectionKey]float64) []neat.ConnectionKey {
	keys := make([]neat.ConnectionKey, 0, len(weights))
	for k := range weights {
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
