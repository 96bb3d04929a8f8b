package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/baldhumanity/neat-medoids/neat"
)

type checkpointID struct {
	name       string
	generation int
}

// MemoryStore keeps encoded checkpoints in memory. Loads return independent copies.
type MemoryStore struct {
	mu          sync.RWMutex
	checkpoints map[checkpointID][]byte
}

var (
	_ neat.CheckpointStore   = (*MemoryStore)(nil)
	_ neat.GenerationLister = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{checkpoints: make(map[checkpointID][]byte)}
}

func (s *MemoryStore) Save(_ context.Context, cp *neat.Checkpoint) error {
	payload, err := EncodeCheckpoint(cp)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.checkpoints[checkpointID{cp.Name, cp.Generation}] = payload
	return nil
}

func (s *MemoryStore) Load(_ context.Context, name string, generation int) (*neat.Checkpoint, error) {
	s.mu.RLock()
	payload, ok := s.checkpoints[checkpointID{name, generation}]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: run %q generation %d", neat.ErrCheckpointNotFound, name, generation)
	}
	return DecodeCheckpoint(payload)
}

func (s *MemoryStore) Generations(_ context.Context, name string) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var gens []int
	for id := range s.checkpoints {
		if id.name == name {
			gens = append(gens, id.generation)
		}
	}
	sort.Ints(gens)
	return gens, nil
}
