package neat

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// NewSpeciesSizes distributes the N population slots across species in proportion to
// their mean fitness. Every species gets at least min_species_size slots and the sizes
// sum to exactly N. Rounding leftovers are settled by random single-slot moves drawn
// from the population's random source.
func (p *Population) NewSpeciesSizes(scoreBySpecies map[int]float64) (map[int]int, error) {
	minSize := p.Config.SpeciesSet.MinSpeciesSize
	ids := sortedSpeciesIDs(scoreBySpecies)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no species to size", ErrConfiguration)
	}
	if p.N < len(ids)*minSize {
		return nil, fmt.Errorf("%w: population of %d cannot hold %d species of at least %d",
			ErrConfiguration, p.N, len(ids), minSize)
	}

	scores := make([]float64, len(ids))
	for i, id := range ids {
		scores[i] = scoreBySpecies[id]
	}
	total := floats.Sum(scores)
	if total == 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return nil, fmt.Errorf("%w: total species fitness is %v", ErrConfiguration, total)
	}

	n := float64(p.N)
	raw := make([]float64, len(ids))
	for i, s := range scores {
		raw[i] = math.Max(s/total*n, float64(minSize))
	}
	rawTotal := floats.Sum(raw)

	// Renormalizing can push a floored species below the floor again; restore it
	// and let the repair loop take the difference from larger species.
	sizes := make([]int, len(ids))
	sum := 0
	for i, r := range raw {
		sizes[i] = max(minSize, int(math.RoundToEven(r/rawTotal*n)))
		sum += sizes[i]
	}

	for sum > p.N {
		var shrinkable []int
		for i, s := range sizes {
			if s > minSize {
				shrinkable = append(shrinkable, i)
			}
		}
		if len(shrinkable) == 0 {
			return nil, fmt.Errorf("%w: cannot shrink %d species to %d genomes", ErrConfiguration, len(ids), p.N)
		}
		sizes[shrinkable[p.rng.Intn(len(shrinkable))]]--
		sum--
	}
	for sum < p.N {
		sizes[p.rng.Intn(len(sizes))]++
		sum++
	}

	newSizes := make(map[int]int, len(ids))
	for i, id := range ids {
		newSizes[id] = sizes[i]
	}
	return newSizes, nil
}
