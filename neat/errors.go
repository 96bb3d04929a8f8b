package neat

import "errors"

// Error kinds returned by the population engine. Callers match them with errors.Is;
// the returned errors wrap them with context.
var (
	// ErrConfiguration marks an infeasible or invalid setup, e.g. pop_size < species * min_species_size
	// or a zero total fitness handed to the allocator.
	ErrConfiguration = errors.New("configuration error")
	// ErrClustering marks a clusterer failure or an inconsistent label assignment.
	ErrClustering = errors.New("clustering failure")
	// ErrCheckpointNotFound is returned when no checkpoint exists for (run, generation).
	ErrCheckpointNotFound = errors.New("checkpoint not found")
	// ErrCheckpointCorrupt is returned when a stored checkpoint cannot be decoded.
	ErrCheckpointCorrupt = errors.New("checkpoint corrupt")
	// ErrTraining marks a trainer failure. It aborts the running generation.
	ErrTraining = errors.New("training failure")
)
