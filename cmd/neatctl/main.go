// Command neatctl runs medoid-speciated NEAT evolutions and inspects their checkpoints.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/baldhumanity/neat-medoids/neat"
	"github.com/baldhumanity/neat-medoids/neat/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "neatctl",
		Short:         "Evolve neural networks with medoid speciation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := viper.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			level, err := logrus.ParseLevel(viper.GetString("log-level"))
			if err != nil {
				return err
			}
			logrus.SetLevel(level)
			return nil
		},
	}

	viper.SetEnvPrefix("NEAT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	flags := root.PersistentFlags()
	flags.String("config", "neat-config", "INI configuration file")
	flags.String("store", "file", "checkpoint store: file or sqlite")
	flags.String("checkpoint-dir", "", "root of file checkpoints (overrides checkpoint_dir)")
	flags.String("sqlite", "checkpoints.db", "database of the sqlite store")
	flags.String("log-level", "info", "log level")

	root.AddCommand(newRunCmd(), newInspectCmd(), newPlotCmd())
	return root
}

// loadConfig reads the INI file named by --config and applies flag overrides.
func loadConfig() (*neat.Config, error) {
	config, err := neat.LoadConfig(viper.GetString("config"))
	if err != nil {
		return nil, err
	}
	if dir := viper.GetString("checkpoint-dir"); dir != "" {
		config.Neat.CheckpointDir = dir
	}
	if run := viper.GetString("run"); run != "" {
		config.Neat.RunName = run
	}
	return config, nil
}

// openStore returns the configured checkpoint store and a function releasing it.
func openStore(ctx context.Context, config *neat.Config) (neat.CheckpointStore, func() error, error) {
	switch kind := viper.GetString("store"); kind {
	case "file":
		return neat.NewFileStore(config.Neat.CheckpointDir), func() error { return nil }, nil
	case "sqlite":
		store := storage.NewSQLiteStore(viper.GetString("sqlite"))
		if err := store.Init(ctx); err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", kind)
	}
}

// resolveGeneration turns a negative generation into the newest saved one. flag
// names the option the generation came from.
func resolveGeneration(ctx context.Context, store neat.CheckpointStore, run string, generation int, flag string) (int, error) {
	if generation >= 0 {
		return generation, nil
	}
	lister, ok := store.(neat.GenerationLister)
	if !ok {
		return 0, fmt.Errorf("store cannot list generations, pass --%s with a generation number", flag)
	}
	gens, err := lister.Generations(ctx, run)
	if err != nil {
		return 0, err
	}
	if len(gens) == 0 {
		return 0, fmt.Errorf("%w: run %q has no checkpoints", neat.ErrCheckpointNotFound, run)
	}
	return gens[len(gens)-1], nil
}
