// Package kmedoids clusters items by alternating k-medoids over a precomputed
// distance matrix.
package kmedoids

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// DefaultMaxIter bounds the assign/update rounds of Fit.
const DefaultMaxIter = 300

// Clusterer is a deterministic k-medoids clusterer. The zero value is usable.
type Clusterer struct {
	MaxIter int
}

// New returns a Clusterer with DefaultMaxIter.
func New() *Clusterer {
	return &Clusterer{MaxIter: DefaultMaxIter}
}

// Fit partitions the items of d into k clusters. Valid, distinct seeds become the first
// medoids; the remaining ones are picked farthest-first. It returns the cluster of every
// item and the sum of distances from items to their medoids.
func (c *Clusterer) Fit(ctx context.Context, d mat.Symmetric, k int, seeds []int) ([]int, float64, error) {
	n := d.SymmetricDim()
	if k < 1 || k > n {
		return nil, 0, fmt.Errorf("cannot form %d clusters from %d items", k, n)
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if v := d.At(i, j); math.IsNaN(v) || v < 0 {
				return nil, 0, fmt.Errorf("invalid distance %v between items %d and %d", v, i, j)
			}
		}
	}
	maxIter := c.MaxIter
	if maxIter <= 0 {
		maxIter = DefaultMaxIter
	}

	medoids := initMedoids(d, k, seeds)
	labels := make([]int, n)
	for iter := 0; iter < maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		assign(d, medoids, labels)
		if !update(d, medoids, labels) {
			break
		}
	}
	score := assign(d, medoids, labels)
	return labels, score, nil
}

// initMedoids takes up to k valid distinct seeds and fills up farthest-first. Without
// seeds the first medoid is the item with the lowest distance sum.
func initMedoids(d mat.Symmetric, k int, seeds []int) []int {
	n := d.SymmetricDim()
	medoids := make([]int, 0, k)
	chosen := make(map[int]bool, k)
	for _, s := range seeds {
		if len(medoids) == k {
			break
		}
		if s < 0 || s >= n || chosen[s] {
			continue
		}
		medoids = append(medoids, s)
		chosen[s] = true
	}
	if len(medoids) == 0 {
		best, bestSum := 0, math.Inf(1)
		for i := 0; i < n; i++ {
			sum := 0.0
			for j := 0; j < n; j++ {
				sum += d.At(i, j)
			}
			if sum < bestSum {
				best, bestSum = i, sum
			}
		}
		medoids = append(medoids, best)
		chosen[best] = true
	}
	for len(medoids) < k {
		far, farDist := -1, -1.0
		for i := 0; i < n; i++ {
			if chosen[i] {
				continue
			}
			nearest := math.Inf(1)
			for _, m := range medoids {
				nearest = math.Min(nearest, d.At(i, m))
			}
			if nearest > farDist {
				far, farDist = i, nearest
			}
		}
		medoids = append(medoids, far)
		chosen[far] = true
	}
	return medoids
}

// assign labels every item with its nearest medoid, lowest position on ties, and
// returns the total distance. Medoids always label themselves.
func assign(d mat.Symmetric, medoids, labels []int) float64 {
	total := 0.0
	self := make(map[int]int, len(medoids))
	for c, m := range medoids {
		self[m] = c
	}
	for i := range labels {
		if c, ok := self[i]; ok {
			labels[i] = c
			total += d.At(i, i)
			continue
		}
		best, bestDist := 0, math.Inf(1)
		for c, m := range medoids {
			if dist := d.At(i, m); dist < bestDist {
				best, bestDist = c, dist
			}
		}
		labels[i] = best
		total += bestDist
	}
	return total
}

// update moves every medoid to the member of its cluster with the lowest in-cluster
// distance sum and reports whether any medoid moved. A medoid only moves on a strict
// improvement.
func update(d mat.Symmetric, medoids, labels []int) bool {
	clusterSum := func(i, c int) float64 {
		sum := 0.0
		for j, lj := range labels {
			if lj == c {
				sum += d.At(i, j)
			}
		}
		return sum
	}
	changed := false
	for c := range medoids {
		best := medoids[c]
		bestSum := clusterSum(best, c)
		for i, li := range labels {
			if li != c {
				continue
			}
			if sum := clusterSum(i, c); sum < bestSum {
				best, bestSum = i, sum
			}
		}
		if best != medoids[c] {
			medoids[c] = best
			changed = true
		}
	}
	return changed
}
