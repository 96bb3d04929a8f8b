// Package monitor provides observers of a neat.Population run: Prometheus metrics,
// charts rendered with gonum/plot and structured log output.
package monitor

import "github.com/baldhumanity/neat-medoids/neat"

// Multi fans every event out to each monitor in order.
type Multi []neat.Monitor

var _ neat.Monitor = Multi(nil)

func (m Multi) OnBest(e neat.BestEvent) {
	for _, mon := range m {
		mon.OnBest(e)
	}
}

func (m Multi) OnTrain(e neat.TrainEvent) {
	for _, mon := range m {
		mon.OnTrain(e)
	}
}

func (m Multi) OnSpeciation(e neat.SpeciationEvent) {
	for _, mon := range m {
		mon.OnSpeciation(e)
	}
}

func (m Multi) OnGeneration(e neat.GenerationEvent) {
	for _, mon := range m {
		mon.OnGeneration(e)
	}
}
