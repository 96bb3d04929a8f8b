package neat

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"
)

// ParentSelector draws parent pairs from a species sorted by descending fitness.
type ParentSelector interface {
	SelectParents(rng *rand.Rand, ranked []Genome, k int) ([][2]Genome, error)
}

// TruncationSelector pairs parents drawn uniformly from the top SurvivalThreshold
// fraction of a species, keeping at least two candidates when the species has them.
type TruncationSelector struct {
	SurvivalThreshold float64
}

func (s TruncationSelector) SelectParents(rng *rand.Rand, ranked []Genome, k int) ([][2]Genome, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(ranked) == 0 {
		return nil, fmt.Errorf("no parents available for %d offspring", k)
	}
	cutoff := int(math.Ceil(s.SurvivalThreshold * float64(len(ranked))))
	cutoff = min(max(cutoff, 2), len(ranked))
	parents := ranked[:cutoff]

	pairs := make([][2]Genome, k)
	for i := range pairs {
		pairs[i] = [2]Genome{parents[rng.Intn(len(parents))], parents[rng.Intn(len(parents))]}
	}
	return pairs, nil
}

// TournamentSelector picks each parent as the fittest of Size uniformly drawn members.
type TournamentSelector struct {
	Size int
}

func (s TournamentSelector) SelectParents(rng *rand.Rand, ranked []Genome, k int) ([][2]Genome, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(ranked) == 0 {
		return nil, fmt.Errorf("no parents available for %d offspring", k)
	}
	size := max(s.Size, 1)
	pick := func() Genome {
		// ranked is sorted, so the lowest drawn index wins.
		best := rng.Intn(len(ranked))
		for i := 1; i < size; i++ {
			best = min(best, rng.Intn(len(ranked)))
		}
		return ranked[best]
	}
	pairs := make([][2]Genome, k)
	for i := range pairs {
		pairs[i] = [2]Genome{pick(), pick()}
	}
	return pairs, nil
}

// breed produces the next generation of every species. The top elitism_rate members
// move over unchanged; the rest of each new size is filled with mutated offspring.
// All mutations share one Innovations context. The result is built aside, so an error
// leaves the current species untouched.
func (p *Population) breed(ranked map[int][]Genome, newSizes map[int]int) (map[int][]Genome, error) {
	innov := NewInnovations(p.NextInnovationID)
	next := make(map[int][]Genome, len(ranked))

	for _, sp := range sortedSpeciesIDs(ranked) {
		members := ranked[sp]
		newSize, ok := newSizes[sp]
		if !ok {
			return nil, fmt.Errorf("no target size for species %d", sp)
		}
		elitism := min(int(math.Ceil(p.Config.Reproduction.ElitismRate*float64(len(members)))), newSize)
		elitism = min(elitism, len(members))

		log := p.log.WithFields(logrus.Fields{"generation": p.Generation, "species": sp})
		log.Debugf("%d elites in species %d", elitism, sp)
		for _, g := range members[:elitism] {
			log.Debug(g)
		}

		pairs, err := p.selector.SelectParents(p.rng, members, newSize-elitism)
		if err != nil {
			return nil, fmt.Errorf("parent selection in species %d: %w", sp, err)
		}
		if len(pairs) != newSize-elitism {
			return nil, fmt.Errorf("parent selection in species %d returned %d pairs, want %d", sp, len(pairs), newSize-elitism)
		}

		genomes := make([]Genome, 0, newSize)
		genomes = append(genomes, members[:elitism]...)
		for _, pair := range pairs {
			child, err := p.crossover(pair[0], pair[1])
			if err != nil {
				return nil, fmt.Errorf("crossover in species %d: %w", sp, err)
			}
			if err := child.Mutate(innov); err != nil {
				return nil, fmt.Errorf("mutation in species %d: %w", sp, err)
			}
			genomes = append(genomes, child)
		}
		next[sp] = genomes
	}
	p.log.WithField("generation", p.Generation).Debugf("%d structural innovations this generation", innov.Len())
	return next, nil
}
