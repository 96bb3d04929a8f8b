package neat

import "gonum.org/v1/gonum/mat"

// Monitor observes a run. Implementations must not modify the values they are handed;
// a population without a monitor evolves exactly like one with a monitor.
type Monitor interface {
	// OnBest is called at generation start and whenever a new top score is reached.
	OnBest(BestEvent)
	// OnTrain is called after each genome has been trained and scored.
	OnTrain(TrainEvent)
	// OnSpeciation is called after each clustering.
	OnSpeciation(SpeciationEvent)
	// OnGeneration is called once a generation has been bred.
	OnGeneration(GenerationEvent)
}

// BestEvent carries a snapshot of the best genome found so far.
type BestEvent struct {
	Generation int
	Genome     Genome
	Score      float64
	InputSize  int
}

// TrainEvent carries a freshly scored genome; Index runs from 1 to Total.
type TrainEvent struct {
	Generation int
	Species    int
	Index      int
	Total      int
	Genome     Genome
	Score      float64
}

// SpeciationEvent carries the distance matrix of a clustering and the species layout.
type SpeciationEvent struct {
	Generation int
	// Distances between genomes in flattening order.
	Distances mat.Symmetric
	// Order permutes matrix indices so that members of a species are contiguous.
	Order []int
	// Boundaries are cumulative species sizes in Order, starting with 0.
	Boundaries []int
	History    []HistoryRecord
}

// GenerationEvent summarizes a finished generation.
type GenerationEvent struct {
	Generation int
	Record     HistoryRecord
	NewSizes   map[int]int
	TopScore   float64
}
