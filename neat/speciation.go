package neat

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Clusterer partitions items given their precomputed pairwise distances. Fit returns a
// label in [0, k) per item and a quality score where lower is better. seeds are item
// indices of previous medoids used to bias the start; there may be more or fewer than k.
type Clusterer interface {
	Fit(ctx context.Context, distances mat.Symmetric, k int, seeds []int) (labels []int, score float64, err error)
}

// Cluster reassigns every genome to a species with medoid clustering, adapting the
// number of species by at most two per call. mode is ClusterAbsolute or ClusterRelative.
// On error the population is left untouched.
func (p *Population) Cluster(ctx context.Context, mode string) error {
	cfg := p.Config.SpeciesSet
	log := p.log.WithField("generation", p.Generation)

	// Smaller species first; ties by id.
	ids := sortedSpeciesIDs(p.Species)
	sort.SliceStable(ids, func(i, j int) bool {
		return len(p.Species[ids[i]]) < len(p.Species[ids[j]])
	})
	var genomes []Genome
	bounds := []int{0}
	for _, id := range ids {
		genomes = append(genomes, p.Species[id]...)
		bounds = append(bounds, len(genomes))
	}
	n := len(genomes)
	if n == 0 {
		return fmt.Errorf("%w: population is empty", ErrConfiguration)
	}

	distances, err := p.distanceMatrix(ctx, genomes)
	if err != nil {
		return err
	}
	seeds := speciesMedoids(distances, bounds)

	k := p.NumberOfSpecies
	lo := max(1, k-2)
	hi := min(n/cfg.MinSpeciesSize+1, k+3)
	if lo >= hi {
		return fmt.Errorf("%w: no feasible species count for %d genomes with min_species_size %d",
			ErrConfiguration, n, cfg.MinSpeciesSize)
	}
	k = max(lo, min(k, hi-1))
	inWindow := func(c int) bool { return c >= lo && c < hi }

	scores := make(map[int]float64, hi-lo)
	assignments := make(map[int][]int, hi-lo)
	report := make([]string, 0, hi-lo)
	for c := lo; c < hi; c++ {
		labels, score, err := p.clusterer.Fit(ctx, distances, c, seeds)
		if err != nil {
			return fmt.Errorf("%w: %d clusters: %w", ErrClustering, c, err)
		}
		if err := checkLabels(labels, n, c); err != nil {
			return fmt.Errorf("%w: %d clusters: %v", ErrClustering, c, err)
		}
		scores[c] = score
		assignments[c] = labels
		report = append(report, fmt.Sprintf("%d: %g", c, score))
	}
	log.Infof("Scores for clustering: %s", strings.Join(report, ", "))

	minted := 0
	switch mode {
	case ClusterRelative:
		for inWindow(k+1) && scores[k+1] < cfg.SplitRatio*scores[k] {
			k++
			minted++
		}
		for inWindow(k-1) && scores[k-1] < cfg.MergeRatio*scores[k] {
			k--
		}
	case ClusterAbsolute:
		for inWindow(k+1) && scores[k] >= cfg.AbsoluteThreshold {
			k++
			minted++
		}
		for inWindow(k-1) && scores[k-1] < cfg.AbsoluteThreshold {
			k--
		}
	default:
		return fmt.Errorf("%w: unknown clustering mode %q", ErrConfiguration, mode)
	}
	if k != p.NumberOfSpecies {
		log.WithFields(logrus.Fields{"from": p.NumberOfSpecies, "to": k}).Info("Number of species changed")
	}

	// Nothing below can fail; commit.
	for i := 0; i < minted || len(ids) < k; i++ {
		ids = append(ids, p.nextSpecies())
	}
	labels := assignments[k]
	species := make(map[int][]Genome, k)
	for i, g := range genomes {
		id := ids[labels[i]]
		species[id] = append(species[id], g)
	}
	record := make(HistoryRecord, len(species))
	for id, members := range species {
		record[id] = SpeciesRecord{Size: len(members)}
	}

	p.Species = species
	p.NumberOfSpecies = k
	p.History = append(p.History, record)

	if mean, std := distanceStats(distances); !math.IsNaN(mean) {
		log.WithFields(logrus.Fields{"mean": mean, "stdev": std, "species": len(species)}).Debug("Genome distances")
	}
	if p.monitor != nil {
		order, boundaries := speciesOrder(labels, ids)
		p.monitor.OnSpeciation(SpeciationEvent{
			Generation: p.Generation,
			Distances:  distances,
			Order:      order,
			Boundaries: boundaries,
			History:    cloneHistory(p.History),
		})
	}
	return nil
}

// distanceMatrix computes all pairwise genome distances. Rows are spread over
// Config.Neat.Workers goroutines and the matrix is only returned once complete.
func (p *Population) distanceMatrix(ctx context.Context, genomes []Genome) (*mat.SymDense, error) {
	n := len(genomes)
	d := mat.NewSymDense(n, nil)
	rows := make([][]float64, n)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Config.Neat.Workers)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			row := make([]float64, n-i)
			for j := i; j < n; j++ {
				dist := genomes[i].Distance(genomes[j])
				if dist < 0 || math.IsNaN(dist) {
					return fmt.Errorf("%w: invalid distance %v between genomes %d and %d", ErrClustering, dist, i, j)
				}
				row[j-i] = dist
			}
			rows[i] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, row := range rows {
		for j, dist := range row {
			d.SetSym(i, i+j, dist)
		}
	}
	return d, nil
}

// speciesMedoids returns, for every contiguous block [bounds[s], bounds[s+1]), the index
// of the member with the lowest distance sum to the rest of its block.
func speciesMedoids(d mat.Symmetric, bounds []int) []int {
	medoids := make([]int, 0, len(bounds)-1)
	for s := 0; s+1 < len(bounds); s++ {
		from, to := bounds[s], bounds[s+1]
		best, bestSum := from, math.Inf(1)
		for i := from; i < to; i++ {
			sum := 0.0
			for j := from; j < to; j++ {
				sum += d.At(i, j)
			}
			if sum < bestSum {
				best, bestSum = i, sum
			}
		}
		medoids = append(medoids, best)
	}
	return medoids
}

func checkLabels(labels []int, n, k int) error {
	if len(labels) != n {
		return fmt.Errorf("got %d labels for %d genomes", len(labels), n)
	}
	for i, l := range labels {
		if l < 0 || l >= k {
			return fmt.Errorf("label %d of genome %d outside [0, %d)", l, i, k)
		}
	}
	return nil
}

// speciesOrder returns matrix indices grouped by ascending species id and the
// cumulative group sizes.
func speciesOrder(labels, ids []int) (order, boundaries []int) {
	order = make([]int, len(labels))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return ids[labels[order[a]]] < ids[labels[order[b]]]
	})
	boundaries = []int{0}
	for i := 1; i <= len(order); i++ {
		if i == len(order) || labels[order[i]] != labels[order[i-1]] {
			boundaries = append(boundaries, i)
		}
	}
	return order, boundaries
}

// distanceStats returns mean and standard deviation of the off-diagonal distances.
func distanceStats(d mat.Symmetric) (float64, float64) {
	n := d.SymmetricDim()
	if n < 2 {
		return math.NaN(), math.NaN()
	}
	values := make([]float64, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			values = append(values, d.At(i, j))
		}
	}
	return stat.MeanStdDev(values, nil)
}
