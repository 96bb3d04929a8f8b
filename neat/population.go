package neat

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"

	"github.com/baldhumanity/neat-medoids/neat/kmedoids"
)

// FirstInnovationID is the lowest historical marker handed out; keys below it are
// reserved for output nodes.
const FirstInnovationID = 5

// Network is a trainable unit built from a genome by a Trainer.
type Network any

// Trainer turns a genome into a trained network and scores it. Higher scores are better.
type Trainer interface {
	Build(g Genome, inputSize, outputSize int) (Network, error)
	Train(ctx context.Context, g Genome, net Network, epochs int) (Network, error)
	Evaluate(ctx context.Context, net Network) (float64, error)
}

// CrossoverFunc combines two parents into one child.
type CrossoverFunc func(a, b Genome) (Genome, error)

// DefaultCrossover delegates to the genome's own crossover.
func DefaultCrossover(a, b Genome) (Genome, error) {
	return a.Crossover(b)
}

// Options carries the collaborators of a Population. Only Trainer is required.
type Options struct {
	Trainer   Trainer
	Clusterer Clusterer      // Defaults to kmedoids.New()
	Selector  ParentSelector // Defaults to TruncationSelector with the configured survival threshold
	Crossover CrossoverFunc  // Defaults to DefaultCrossover
	Store     CheckpointStore
	Monitor   Monitor
	Codecs    GenomeCodecs       // Defaults to DefaultCodecs()
	Logger    logrus.FieldLogger // Defaults to logrus.StandardLogger()
	Rand      *rand.Rand         // Tie-breaks and parent draws; defaults to a source seeded with Config.Neat.Seed
}

// Population holds the state of a speciated evolutionary run.
type Population struct {
	Config          *Config
	Name            string
	N               int // Target population size
	InputSize       int
	OutputSize      int
	NumberOfSpecies int
	Species         map[int][]Genome // Species id -> members
	Generation      int              // Starts at 1, incremented by every completed Evolve
	TopScore        float64
	BestGenome      Genome // Independent copy of the genome that reached TopScore
	History         []HistoryRecord

	nextInnovation int
	nextSpeciesID  int

	trainer   Trainer
	clusterer Clusterer
	selector  ParentSelector
	crossover CrossoverFunc
	store     CheckpointStore
	monitor   Monitor
	codecs    GenomeCodecs
	log       logrus.FieldLogger
	rng       *rand.Rand
}

// NewPopulation creates a population with a single species of Config.Neat.PopSize
// genomes produced by newGenome (NewDefaultGenome when nil).
func NewPopulation(config *Config, newGenome GenomeFactory, opts Options) (*Population, error) {
	p, err := newPopulation(config, opts)
	if err != nil {
		return nil, err
	}
	if newGenome == nil {
		newGenome = NewDefaultGenome
	}

	p.Name = config.Neat.RunName
	p.N = config.Neat.PopSize
	p.InputSize = config.Neat.NumInputs
	p.OutputSize = config.Neat.NumOutputs
	p.NumberOfSpecies = 1
	p.Generation = 1
	p.nextInnovation = max(FirstInnovationID, p.OutputSize)
	p.nextSpeciesID = 1

	genomes := make([]Genome, 0, p.N)
	for i := 0; i < p.N; i++ {
		g, err := newGenome(p)
		if err != nil {
			return nil, fmt.Errorf("failed to create genome %d: %w", i, err)
		}
		genomes = append(genomes, g)
	}
	p.Species = map[int][]Genome{0: genomes}
	p.BestGenome = genomes[0].Copy()
	p.History = []HistoryRecord{}
	return p, nil
}

// LoadPopulation restores the population saved under (name, generation) in opts.Store.
func LoadPopulation(ctx context.Context, config *Config, name string, generation int, opts Options) (*Population, error) {
	if opts.Store == nil {
		return nil, errors.New("a checkpoint store is required to load a population")
	}
	p, err := newPopulation(config, opts)
	if err != nil {
		return nil, err
	}
	cp, err := opts.Store.Load(ctx, name, generation)
	if err != nil {
		return nil, err
	}
	if err := p.Restore(cp); err != nil {
		return nil, err
	}
	p.log.WithFields(logrus.Fields{"run": p.Name, "generation": p.Generation}).Info("Checkpoint loaded")
	return p, nil
}

func newPopulation(config *Config, opts Options) (*Population, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: config is required", ErrConfiguration)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if opts.Trainer == nil {
		return nil, fmt.Errorf("%w: a trainer is required", ErrConfiguration)
	}

	p := &Population{
		Config:    config,
		trainer:   opts.Trainer,
		clusterer: opts.Clusterer,
		selector:  opts.Selector,
		crossover: opts.Crossover,
		store:     opts.Store,
		monitor:   opts.Monitor,
		codecs:    opts.Codecs,
		log:       opts.Logger,
		rng:       opts.Rand,
	}
	if p.clusterer == nil {
		p.clusterer = kmedoids.New()
	}
	if p.selector == nil {
		p.selector = TruncationSelector{SurvivalThreshold: config.Reproduction.SurvivalThreshold}
	}
	if p.crossover == nil {
		p.crossover = DefaultCrossover
	}
	if p.codecs == nil {
		p.codecs = DefaultCodecs()
	}
	if p.log == nil {
		p.log = logrus.StandardLogger()
	}
	if p.rng == nil {
		p.rng = rand.New(rand.NewSource(config.Neat.Seed))
	}
	return p, nil
}

// NextInnovationID returns a fresh historical marker.
func (p *Population) NextInnovationID() int {
	id := p.nextInnovation
	p.nextInnovation++
	return id
}

func (p *Population) nextSpecies() int {
	id := p.nextSpeciesID
	p.nextSpeciesID++
	return id
}

// Size returns the number of genomes across all species.
func (p *Population) Size() int {
	total := 0
	for _, genomes := range p.Species {
		total += len(genomes)
	}
	return total
}

// Run calls Evolve for the given number of generations, stopping early when ctx is
// done or stop reports true after a generation.
func (p *Population) Run(ctx context.Context, generations int, stop func(*Population) bool) error {
	for i := 0; i < generations; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.Evolve(ctx); err != nil {
			return err
		}
		if stop != nil && stop(p) {
			return nil
		}
	}
	return nil
}

// Evolve runs one generation: checkpoint, speciate, train and score every genome,
// checkpoint again, resize the species by mean fitness and breed the next generation.
// A failure leaves the population and the pre-training checkpoint as they were
// before the call, so Evolve can be retried.
func (p *Population) Evolve(ctx context.Context) error {
	genStart := time.Now()
	log := p.log.WithFields(logrus.Fields{"run": p.Name, "generation": p.Generation})
	log.Infof("****** Generation %d ******", p.Generation)

	log.Info("Saving checkpoint")
	if err := p.saveCheckpoint(ctx); err != nil {
		return err
	}
	p.notifyBest()

	if err := p.evolve(ctx, log); err != nil {
		return err
	}
	log.WithField("top_score", p.TopScore).Infof("Generation %d finished in %s", p.Generation, time.Since(genStart))
	p.Generation++
	return nil
}

// evolveState is the part of a Population that one generation rewrites.
type evolveState struct {
	species         map[int][]Genome
	numberOfSpecies int
	history         []HistoryRecord
	nextInnovation  int
	nextSpeciesID   int
	topScore        float64
	best            Genome
}

func (p *Population) saveState() evolveState {
	return evolveState{
		species:         p.Species,
		numberOfSpecies: p.NumberOfSpecies,
		history:         cloneHistory(p.History),
		nextInnovation:  p.nextInnovation,
		nextSpeciesID:   p.nextSpeciesID,
		topScore:        p.TopScore,
		best:            p.BestGenome,
	}
}

func (p *Population) restoreState(s evolveState) {
	p.Species = s.species
	p.NumberOfSpecies = s.numberOfSpecies
	p.History = s.history
	p.nextInnovation = s.nextInnovation
	p.nextSpeciesID = s.nextSpeciesID
	p.TopScore = s.topScore
	p.BestGenome = s.best
}

// evolve runs the steps of Evolve after the first checkpoint. On error the
// population is put back as it was before speciation.
func (p *Population) evolve(ctx context.Context, log logrus.FieldLogger) (err error) {
	saved := p.saveState()
	defer func() {
		if err != nil {
			p.restoreState(saved)
		}
	}()

	if err := p.Cluster(ctx, p.Config.SpeciesSet.ClusteringMode); err != nil {
		return fmt.Errorf("speciation failed in generation %d: %w", p.Generation, err)
	}

	ranked, err := p.trainAll(ctx)
	if err != nil {
		return fmt.Errorf("training failed in generation %d: %w", p.Generation, err)
	}

	log.Info("Saving checkpoint after training")
	if err := p.saveCheckpoint(ctx); err != nil {
		return err
	}
	p.report(ranked)

	scoreBySpecies := make(map[int]float64, len(ranked))
	record := p.History[len(p.History)-1]
	for sp, genomes := range ranked {
		fitnesses := make([]float64, len(genomes))
		for i, g := range genomes {
			fitnesses[i] = g.Fitness()
		}
		mean := Mean(fitnesses)
		scoreBySpecies[sp] = mean
		rec := record[sp]
		rec.Score = &mean
		record[sp] = rec
	}

	newSizes, err := p.NewSpeciesSizes(scoreBySpecies)
	if err != nil {
		return fmt.Errorf("species resizing failed in generation %d: %w", p.Generation, err)
	}

	log.Info("Breeding new genomes")
	next, err := p.breed(ranked, newSizes)
	if err != nil {
		return fmt.Errorf("reproduction failed in generation %d: %w", p.Generation, err)
	}
	p.Species = next

	if p.monitor != nil {
		p.monitor.OnGeneration(GenerationEvent{
			Generation: p.Generation,
			Record:     record.Clone(),
			NewSizes:   newSizes,
			TopScore:   p.TopScore,
		})
	}
	return nil
}

type trainJob struct {
	species int
	genome  Genome
}

// trainAll trains and scores every genome, then returns each species sorted by
// descending fitness. Scores are attributed in enumeration order once all jobs are
// done, so the best-genome choice does not depend on scheduling.
func (p *Population) trainAll(ctx context.Context) (map[int][]Genome, error) {
	jobs := make([]trainJob, 0, p.N)
	for _, sp := range sortedSpeciesIDs(p.Species) {
		for _, g := range p.Species[sp] {
			jobs = append(jobs, trainJob{species: sp, genome: g})
		}
	}

	scores := make([]float64, len(jobs))
	workers := pool.New().WithMaxGoroutines(p.Config.Neat.Workers).WithContext(ctx).WithCancelOnError()
	for i, job := range jobs {
		i, job := i, job
		workers.Go(func(ctx context.Context) error {
			p.log.WithField("species", job.species).Debugf("Training genome %d/%d: %s", i+1, len(jobs), job.genome)
			score, err := p.trainOne(ctx, job.genome)
			if err != nil {
				return fmt.Errorf("%w: genome %d in species %d: %w", ErrTraining, i+1, job.species, err)
			}
			scores[i] = score
			return nil
		})
	}
	if err := workers.Wait(); err != nil {
		return nil, err
	}

	ranked := make(map[int][]Genome, len(p.Species))
	for i, job := range jobs {
		score := scores[i]
		job.genome.SetFitness(score)
		if p.monitor != nil {
			p.monitor.OnTrain(TrainEvent{
				Generation: p.Generation,
				Species:    job.species,
				Index:      i + 1,
				Total:      len(jobs),
				Genome:     job.genome,
				Score:      score,
			})
		}
		if score > p.TopScore {
			p.TopScore = score
			p.BestGenome = job.genome.Copy()
			p.log.WithFields(logrus.Fields{"species": job.species, "score": score}).Info("New best genome")
			p.notifyBest()
		}
		ranked[job.species] = append(ranked[job.species], job.genome)
	}
	for _, genomes := range ranked {
		genomes := genomes
		sort.SliceStable(genomes, func(i, j int) bool {
			return genomes[i].Fitness() > genomes[j].Fitness()
		})
	}
	return ranked, nil
}

func (p *Population) trainOne(ctx context.Context, g Genome) (float64, error) {
	net, err := p.trainer.Build(g, p.InputSize, p.OutputSize)
	if err != nil {
		return 0, fmt.Errorf("build: %w", err)
	}
	net, err = p.trainer.Train(ctx, g, net, p.Config.Neat.Epochs)
	if err != nil {
		return 0, fmt.Errorf("train: %w", err)
	}
	score, err := p.trainer.Evaluate(ctx, net)
	if err != nil {
		return 0, fmt.Errorf("evaluate: %w", err)
	}
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, fmt.Errorf("evaluate: score %v is not finite", score)
	}
	return score, nil
}

func (p *Population) notifyBest() {
	if p.monitor == nil || p.BestGenome == nil {
		return
	}
	p.monitor.OnBest(BestEvent{
		Generation: p.Generation,
		Genome:     p.BestGenome,
		Score:      p.TopScore,
		InputSize:  p.InputSize,
	})
}

// report logs every species with its members and scores at debug level.
func (p *Population) report(ranked map[int][]Genome) {
	for _, sp := range sortedSpeciesIDs(ranked) {
		genomes := ranked[sp]
		log := p.log.WithFields(logrus.Fields{"generation": p.Generation, "species": sp})
		log.Debugf("Species %d with %d members", sp, len(genomes))
		for _, g := range genomes {
			r := g.String()
			if len(r) > 64 {
				r = r[:60] + "..." + r[len(r)-1:]
			}
			log.Debugf("%-64s: %v", r, g.Fitness())
		}
	}
}
