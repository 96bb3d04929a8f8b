package neat

import (
	"encoding/binary"
	"errors"
	"math"
	"sort"
)

// SpeciesRecord is the size and mean fitness of one species in one generation.
// Score stays nil until the generation has been evaluated.
type SpeciesRecord struct {
	Size  int
	Score *float64
}

// GobEncode writes the size followed by an evaluated flag, so that a zero score
// stays distinct from a missing one.
func (r SpeciesRecord) GobEncode() ([]byte, error) {
	buf := binary.AppendVarint(nil, int64(r.Size))
	if r.Score == nil {
		return append(buf, 0), nil
	}
	buf = append(buf, 1)
	return binary.LittleEndian.AppendUint64(buf, math.Float64bits(*r.Score)), nil
}

func (r *SpeciesRecord) GobDecode(data []byte) error {
	size, n := binary.Varint(data)
	if n <= 0 || n == len(data) {
		return errors.New("malformed species record")
	}
	data = data[n:]
	switch {
	case data[0] == 0 && len(data) == 1:
		r.Score = nil
	case data[0] == 1 && len(data) == 9:
		score := math.Float64frombits(binary.LittleEndian.Uint64(data[1:]))
		r.Score = &score
	default:
		return errors.New("malformed species record")
	}
	r.Size = int(size)
	return nil
}

// HistoryRecord maps species id to its record for one clustering event.
type HistoryRecord map[int]SpeciesRecord

// SpeciesIDs returns the ids of the record, newest (highest) first.
func (r HistoryRecord) SpeciesIDs() []int {
	ids := make([]int, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(ids)))
	return ids
}

// Clone returns a deep copy of the record.
func (r HistoryRecord) Clone() HistoryRecord {
	c := make(HistoryRecord, len(r))
	for id, rec := range r {
		if rec.Score != nil {
			s := *rec.Score
			rec.Score = &s
		}
		c[id] = rec
	}
	return c
}

func cloneHistory(h []HistoryRecord) []HistoryRecord {
	out := make([]HistoryRecord, len(h))
	for i, r := range h {
		out[i] = r.Clone()
	}
	return out
}

// sortedSpeciesIDs returns the ids of a species map in ascending order, the stable
// enumeration order used for training, breeding and reporting.
func sortedSpeciesIDs[T any](species map[int]T) []int {
	ids := make([]int, 0, len(species))
	for id := range species {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
