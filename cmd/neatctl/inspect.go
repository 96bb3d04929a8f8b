package main

import (
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/baldhumanity/neat-medoids/neat"
)

type speciesSummary struct {
	ID    int      `yaml:"id"`
	Size  int      `yaml:"size"`
	Score *float64 `yaml:"mean_score,omitempty"`
}

type checkpointSummary struct {
	Run             string             `yaml:"run"`
	Generation      int                `yaml:"generation"`
	PopulationSize  int                `yaml:"population_size"`
	NumberOfSpecies int                `yaml:"number_of_species"`
	NextInnovation  int                `yaml:"next_innovation"`
	NextSpeciesID   int                `yaml:"next_species_id"`
	Inputs          int                `yaml:"inputs"`
	Outputs         int                `yaml:"outputs"`
	TopScore        float64            `yaml:"top_score"`
	BestGenome      string             `yaml:"best_genome,omitempty"`
	Species         []speciesSummary   `yaml:"species"`
	History         [][]speciesSummary `yaml:"history,omitempty"`
}

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print a checkpoint summary as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			config, err := loadConfig()
			if err != nil {
				return err
			}
			store, closeStore, err := openStore(ctx, config)
			if err != nil {
				return err
			}
			defer closeStore()

			gen, err := resolveGeneration(ctx, store, config.Neat.RunName, viper.GetInt("generation"), "generation")
			if err != nil {
				return err
			}
			pop, err := neat.LoadPopulation(ctx, config, config.Neat.RunName, gen, neat.Options{Trainer: noTrainer{}, Store: store})
			if err != nil {
				return err
			}
			cp, err := pop.Snapshot()
			if err != nil {
				return err
			}

			summary := summarize(cp, pop)
			if !viper.GetBool("history") {
				summary.History = nil
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(summary)
		},
	}
	flags := cmd.Flags()
	flags.String("run", "", "run name (overrides run_name)")
	flags.Int("generation", -1, "generation to inspect, -1 for the newest")
	flags.Bool("history", false, "include the species history")
	return cmd
}

func summarize(cp *neat.Checkpoint, pop *neat.Population) checkpointSummary {
	s := checkpointSummary{
		Run:             cp.Name,
		Generation:      cp.Generation,
		PopulationSize:  cp.N,
		NumberOfSpecies: cp.NumberOfSpecies,
		NextInnovation:  cp.NextInnovation,
		NextSpeciesID:   cp.NextSpeciesID,
		Inputs:          cp.InputSize,
		Outputs:         cp.OutputSize,
		TopScore:        cp.TopScore,
	}
	if pop.BestGenome != nil {
		s.BestGenome = pop.BestGenome.String()
	}
	ids := make([]int, 0, len(pop.Species))
	for id := range pop.Species {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		s.Species = append(s.Species, speciesSummary{ID: id, Size: len(pop.Species[id])})
	}
	for _, rec := range cp.History {
		var row []speciesSummary
		for _, id := range rec.SpeciesIDs() {
			row = append(row, speciesSummary{ID: id, Size: rec[id].Size, Score: rec[id].Score})
		}
		s.History = append(s.History, row)
	}
	return s
}
