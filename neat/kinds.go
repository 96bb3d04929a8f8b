package neat

import (
	"encoding"
	"fmt"
)

// Genome is an evolvable network encoding. The population engine only copies,
// compares, scores, breeds and serializes genomes; their structure is opaque to it.
type Genome interface {
	fmt.Stringer
	encoding.BinaryMarshaler

	// Kind tags the concrete variant so it can be decoded from a checkpoint.
	Kind() string
	Fitness() float64
	SetFitness(score float64)
	// Copy returns an independent deep copy.
	Copy() Genome
	// Distance returns a non-negative dissimilarity to other.
	Distance(other Genome) float64
	// Crossover combines the receiver with other into a new child genome.
	Crossover(other Genome) (Genome, error)
	// Mutate changes the genome in place. Structural changes take their
	// historical markers from innov.
	Mutate(innov *Innovations) error
}

// GenomeFactory produces a fresh genome for a population being created.
type GenomeFactory func(p *Population) (Genome, error)

// GenomeDecoder rebuilds a genome of one kind from its serialized payload.
type GenomeDecoder func(payload []byte, p *Population) (Genome, error)

// GenomeRecord is a serialized genome tagged with its kind.
type GenomeRecord struct {
	Kind    string
	Payload []byte
}

// GenomeCodecs maps genome kinds to their decoders.
type GenomeCodecs map[string]GenomeDecoder

// DefaultCodecs returns a registry holding the built-in genome kinds.
func DefaultCodecs() GenomeCodecs {
	return GenomeCodecs{NetworkGenomeKind: DecodeNetworkGenome}
}

// Register adds or replaces the decoder for kind.
func (c GenomeCodecs) Register(kind string, dec GenomeDecoder) {
	c[kind] = dec
}

// Encode serializes g together with its kind tag.
func (c GenomeCodecs) Encode(g Genome) (GenomeRecord, error) {
	if _, ok := c[g.Kind()]; !ok {
		return GenomeRecord{}, fmt.Errorf("no codec registered for genome kind %q", g.Kind())
	}
	payload, err := g.MarshalBinary()
	if err != nil {
		return GenomeRecord{}, fmt.Errorf("failed to encode %s genome: %w", g.Kind(), err)
	}
	return GenomeRecord{Kind: g.Kind(), Payload: payload}, nil
}

// Decode rebuilds a genome owned by p from rec.
func (c GenomeCodecs) Decode(rec GenomeRecord, p *Population) (Genome, error) {
	dec, ok := c[rec.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown genome kind %q", ErrCheckpointCorrupt, rec.Kind)
	}
	g, err := dec(rec.Payload, p)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s genome: %v", ErrCheckpointCorrupt, rec.Kind, err)
	}
	return g, nil
}
