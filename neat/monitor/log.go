package monitor

import (
	"github.com/sirupsen/logrus"

	"github.com/baldhumanity/neat-medoids/neat"
)

// Log writes events as structured log entries.
type Log struct {
	Logger logrus.FieldLogger
}

var _ neat.Monitor = (*Log)(nil)

func NewLog(logger logrus.FieldLogger) *Log {
	return &Log{Logger: logger}
}

func (l *Log) OnBest(e neat.BestEvent) {
	l.Logger.WithFields(logrus.Fields{
		"generation": e.Generation,
		"score":      e.Score,
	}).Infof("Best genome: %s", e.Genome)
}

func (l *Log) OnTrain(e neat.TrainEvent) {
	l.Logger.WithFields(logrus.Fields{
		"generation": e.Generation,
		"species":    e.Species,
		"score":      e.Score,
	}).Debugf("Trained genome %d/%d", e.Index, e.Total)
}

func (l *Log) OnSpeciation(e neat.SpeciationEvent) {
	l.Logger.WithFields(logrus.Fields{
		"generation": e.Generation,
		"species":    len(e.Boundaries) - 1,
	}).Info("Speciation done")
}

func (l *Log) OnGeneration(e neat.GenerationEvent) {
	fields := logrus.Fields{"generation": e.Generation, "top_score": e.TopScore}
	for _, id := range e.Record.SpeciesIDs() {
		l.Logger.WithFields(fields).WithField("species", id).Infof("%d -> %d genomes", e.Record[id].Size, e.NewSizes[id])
	}
}
