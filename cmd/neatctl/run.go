package main

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/baldhumanity/neat-medoids/neat"
	"github.com/baldhumanity/neat-medoids/neat/monitor"
	"github.com/baldhumanity/neat-medoids/neat/nn"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evolve a population, resuming from a checkpoint when asked",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := logrus.StandardLogger()

			config, err := loadConfig()
			if err != nil {
				return err
			}
			if workers := viper.GetInt("workers"); workers > 0 {
				config.Neat.Workers = workers
			}

			data := nn.XOR()
			if path := viper.GetString("dataset"); path != "" {
				if data, err = nn.LoadCSV(path, config.Neat.NumInputs); err != nil {
					return err
				}
			}

			store, closeStore, err := openStore(ctx, config)
			if err != nil {
				return err
			}
			defer closeStore()

			monitors := monitor.Multi{monitor.NewLog(log)}
			if addr := viper.GetString("metrics-addr"); addr != "" {
				reg := prometheus.NewRegistry()
				metrics, err := monitor.NewPrometheus(reg, config.Neat.RunName)
				if err != nil {
					return err
				}
				monitors = append(monitors, metrics)
				srv := &http.Server{Addr: addr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						log.WithError(err).Error("Metrics server stopped")
					}
				}()
				defer srv.Close()
			}
			plots := monitor.NewPlotter()
			if viper.GetString("plots") != "" {
				monitors = append(monitors, plots)
			}

			opts := neat.Options{
				Trainer: nn.NewHillClimber(data, config.Neat.Seed),
				Store:   store,
				Monitor: monitors,
				Logger:  log,
			}

			var pop *neat.Population
			if resume := viper.GetInt("resume"); resume != 0 {
				gen, err := resolveGeneration(ctx, store, config.Neat.RunName, resume, "resume")
				if err != nil {
					return err
				}
				if pop, err = neat.LoadPopulation(ctx, config, config.Neat.RunName, gen, opts); err != nil {
					return err
				}
			} else if pop, err = neat.NewPopulation(config, nil, opts); err != nil {
				return err
			}

			goal := viper.GetFloat64("goal")
			err = pop.Run(ctx, viper.GetInt("generations"), func(p *neat.Population) bool {
				return goal > 0 && p.TopScore >= goal
			})
			if dir := viper.GetString("plots"); dir != "" {
				if perr := plots.Render(dir); perr != nil {
					log.WithError(perr).Warn("Failed to render plots")
				}
			}
			if err != nil {
				return err
			}
			log.WithFields(logrus.Fields{"generation": pop.Generation, "top_score": pop.TopScore}).
				Infof("Best genome: %s", pop.BestGenome)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.String("run", "", "run name (overrides run_name)")
	flags.Int("generations", 10, "generations to evolve")
	flags.Int("resume", 0, "resume from this generation, -1 for the newest checkpoint")
	flags.Int("workers", 0, "parallel workers (overrides workers)")
	flags.Float64("goal", 0, "stop once the top score reaches this value")
	flags.String("dataset", "", "headerless CSV dataset, inputs first (default XOR)")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address")
	flags.String("plots", "", "render charts into this directory when done")
	return cmd
}
