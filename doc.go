// Package neat evolves variable-topology neural networks with NEAT-style genomes,
// grouping them into species by k-medoids clustering instead of a fixed compatibility
// threshold.
//
// Every generation the population is clustered over the full genome distance matrix.
// The number of species moves by at most two per generation, driven by the clustering
// score. Each species then gets a share of the population proportional to its mean
// fitness, never less than min_species_size, and is refilled by elitism, crossover
// and mutation. Structural mutations repeated within one generation share their
// historical marker. Checkpoints are written before and after training so a run can
// be resumed at any generation.
//
// Basic usage:
//
//	config, err := neat.LoadConfig("path/to/config")
//	if err != nil {
//		log.Fatalf("Error loading config: %v", err)
//	}
//
//	pop, err := neat.NewPopulation(config, nil, neat.Options{
//		Trainer: nn.NewHillClimber(nn.XOR(), config.Neat.Seed),
//		Store:   neat.NewFileStore(config.Neat.CheckpointDir),
//	})
//	if err != nil {
//		log.Fatalf("Error creating population: %v", err)
//	}
//
//	// Run for 100 generations or until the goal is reached
//	err = pop.Run(ctx, 100, func(p *neat.Population) bool {
//		return p.TopScore > 0.95
//	})
//
// A stopped run continues with neat.LoadPopulation from the same store.
package neat
