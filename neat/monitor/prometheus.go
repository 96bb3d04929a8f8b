package monitor

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/baldhumanity/neat-medoids/neat"
)

// Prometheus exports run progress as metrics labelled with the run name.
type Prometheus struct {
	generations prometheus.Counter
	trained     prometheus.Counter
	topScore    prometheus.Gauge
	species     prometheus.Gauge
	scores      prometheus.Histogram
	speciesSize *prometheus.GaugeVec
	speciesMean *prometheus.GaugeVec
}

var _ neat.Monitor = (*Prometheus)(nil)

// NewPrometheus creates the collectors and registers them with reg.
func NewPrometheus(reg prometheus.Registerer, run string) (*Prometheus, error) {
	labels := prometheus.Labels{"run": run}
	p := &Prometheus{
		generations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "neat_generations_total", Help: "Completed generations.", ConstLabels: labels,
		}),
		trained: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "neat_genomes_trained_total", Help: "Genomes trained and scored.", ConstLabels: labels,
		}),
		topScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "neat_top_score", Help: "Highest score seen in the run.", ConstLabels: labels,
		}),
		species: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "neat_species", Help: "Number of species after the last clustering.", ConstLabels: labels,
		}),
		scores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "neat_genome_score", Help: "Scores of trained genomes.", ConstLabels: labels,
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		speciesSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "neat_species_size", Help: "Members per species.", ConstLabels: labels,
		}, []string{"species"}),
		speciesMean: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "neat_species_mean_score", Help: "Mean score per species.", ConstLabels: labels,
		}, []string{"species"}),
	}
	for _, c := range []prometheus.Collector{
		p.generations, p.trained, p.topScore, p.species, p.scores, p.speciesSize, p.speciesMean,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Prometheus) OnBest(e neat.BestEvent) {
	p.topScore.Set(e.Score)
}

func (p *Prometheus) OnTrain(e neat.TrainEvent) {
	p.trained.Inc()
	p.scores.Observe(e.Score)
}

func (p *Prometheus) OnSpeciation(e neat.SpeciationEvent) {
	p.species.Set(float64(len(e.Boundaries) - 1))
	if len(e.History) == 0 {
		return
	}
	p.speciesSize.Reset()
	for id, rec := range e.History[len(e.History)-1] {
		p.speciesSize.WithLabelValues(strconv.Itoa(id)).Set(float64(rec.Size))
	}
}

func (p *Prometheus) OnGeneration(e neat.GenerationEvent) {
	p.generations.Inc()
	p.topScore.Set(e.TopScore)
	p.speciesMean.Reset()
	for id, rec := range e.Record {
		if rec.Score != nil {
			p.speciesMean.WithLabelValues(strconv.Itoa(id)).Set(*rec.Score)
		}
	}
}
