package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/baldhumanity/neat-medoids/neat"
	"github.com/baldhumanity/neat-medoids/neat/monitor"
)

func newPlotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plot",
		Short: "Render the species history of a checkpoint",
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
			cp, err := store.Load(ctx, config.Neat.RunName, gen)
			if err != nil {
				return err
			}
			out := viper.GetString("out")
			if out == "" {
				out = filepath.Join("plots", config.Neat.RunName)
			}
			if err := os.MkdirAll(out, 0o755); err != nil {
				return err
			}
			path := filepath.Join(out, "species.png")
			if err := monitor.SpeciesChart(cp.History, path); err != nil {
				return err
			}
			cmd.Printf("Wrote %s\n", path)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.String("run", "", "run name (overrides run_name)")
	flags.Int("generation", -1, "generation to plot, -1 for the newest")
	flags.String("out", "", "output directory (default plots/<run>)")
	return cmd
}

// noTrainer satisfies neat.Options for commands that only read checkpoints.
type noTrainer struct{}

func (noTrainer) Build(neat.Genome, int, int) (neat.Network, error) {
	return nil, errors.New("training is not available here")
}

func (noTrainer) Train(context.Context, neat.Genome, neat.Network, int) (neat.Network, error) {
	return nil, errors.New("training is not available here")
}

func (noTrainer) Evaluate(context.Context, neat.Network) (float64, error) {
	return 0, errors.New("training is not available here")
}
