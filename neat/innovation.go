package neat

import "sync"

// Structural mutation kinds recorded in an Innovations context.
const (
	MutationSplitConnection = "split_connection"
)

// InnovationKey identifies a structural mutation independent of the genome it happens in.
type InnovationKey struct {
	Mutation string
	In       int
	Out      int
}

// Innovations hands out historical markers for one generation. Two genomes that apply
// the same structural mutation while the context is alive receive the same marker.
// A context is created at the start of breeding and dropped when the generation ends.
// It is safe for concurrent use.
type Innovations struct {
	mu   sync.Mutex
	next func() int
	ids  map[InnovationKey]int
}

// NewInnovations creates a context drawing fresh markers from next.
func NewInnovations(next func() int) *Innovations {
	return &Innovations{
		next: next,
		ids:  make(map[InnovationKey]int),
	}
}

// ID returns the marker for key, allocating a new one the first time key is seen.
func (in *Innovations) ID(key InnovationKey) int {
	in.mu.Lock()
	defer in.mu.Unlock()

	if id, ok := in.ids[key]; ok {
		return id
	}
	id := in.next()
	in.ids[key] = id
	return id
}

// Len returns the number of distinct mutations recorded.
func (in *Innovations) Len() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.ids)
}
