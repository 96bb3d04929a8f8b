package neat

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/ini.v1"
)

// Clustering modes understood by Population.Cluster.
const (
	ClusterAbsolute = "absolute"
	ClusterRelative = "relative"
)

// Config stores the configuration parameters of an evolutionary run.
type Config struct {
	Neat         NeatConfig
	Genome       GenomeConfig
	Reproduction ReproductionConfig
	SpeciesSet   SpeciesSetConfig
}

// NeatConfig holds run-level parameters.
type NeatConfig struct {
	PopSize       int    `ini:"pop_size"`
	NumInputs     int    `ini:"num_inputs"`
	NumOutputs    int    `ini:"num_outputs"`
	RunName       string `ini:"run_name"`       // Defaults to a dd.mm-HH:MM timestamp
	CheckpointDir string `ini:"checkpoint_dir"` // Root directory of file checkpoints
	Epochs        int    `ini:"epochs"`         // Training epochs per genome before evaluation
	Workers       int    `ini:"workers"`        // Parallelism of distance and training fan-out
	Seed          int64  `ini:"seed"`           // Seed of the allocator's tie-break source
}

// GenomeConfig holds parameters of the default network genome and its mutations.
type GenomeConfig struct {
	FeedForward                      bool    `ini:"feed_forward"`
	InitialConnection                string  `ini:"initial_connection"` // "full" or "unconnected"
	CompatibilityDisjointCoefficient float64 `ini:"compatibility_disjoint_coefficient"`
	CompatibilityWeightCoefficient   float64 `ini:"compatibility_weight_coefficient"`
	ConnAddProb                      float64 `ini:"conn_add_prob"`
	NodeAddProb                      float64 `ini:"node_add_prob"`
	SingleStructuralMutation         bool    `ini:"single_structural_mutation"`

	BiasInitMean    float64 `ini:"bias_init_mean"`
	BiasInitStdev   float64 `ini:"bias_init_stdev"`
	BiasReplaceRate float64 `ini:"bias_replace_rate"`
	BiasMutateRate  float64 `ini:"bias_mutate_rate"`
	BiasMutatePower float64 `ini:"bias_mutate_power"`
	BiasMaxValue    float64 `ini:"bias_max_value"`
	BiasMinValue    float64 `ini:"bias_min_value"`

	ResponseInitMean    float64 `ini:"response_init_mean"`
	ResponseInitStdev   float64 `ini:"response_init_stdev"`
	ResponseReplaceRate float64 `ini:"response_replace_rate"`
	ResponseMutateRate  float64 `ini:"response_mutate_rate"`
	ResponseMutatePower float64 `ini:"response_mutate_power"`
	ResponseMaxValue    float64 `ini:"response_max_value"`
	ResponseMinValue    float64 `ini:"response_min_value"`

	ActivationDefault    string   `ini:"activation_default"`
	ActivationOptions    []string `ini:"activation_options" delim:" "`
	ActivationMutateRate float64  `ini:"activation_mutate_rate"`

	AggregationDefault    string   `ini:"aggregation_default"`
	AggregationOptions    []string `ini:"aggregation_options" delim:" "`
	AggregationMutateRate float64  `ini:"aggregation_mutate_rate"`

	WeightInitMean    float64 `ini:"weight_init_mean"`
	WeightInitStdev   float64 `ini:"weight_init_stdev"`
	WeightReplaceRate float64 `ini:"weight_replace_rate"`
	WeightMutateRate  float64 `ini:"weight_mutate_rate"`
	WeightMutatePower float64 `ini:"weight_mutate_power"`
	WeightMaxValue    float64 `ini:"weight_max_value"`
	WeightMinValue    float64 `ini:"weight_min_value"`

	EnabledDefault    string  `ini:"enabled_default"`
	EnabledMutateRate float64 `ini:"enabled_mutate_rate"`

	// Derived from NeatConfig in derive().
	InputKeys  []int
	OutputKeys []int
}

// ReproductionConfig holds parameters of the breeding step.
type ReproductionConfig struct {
	ElitismRate       float64 `ini:"elitism_rate"`       // Fraction of each species carried over unchanged
	SurvivalThreshold float64 `ini:"survival_threshold"` // Fraction of each species eligible as parents
}

// SpeciesSetConfig holds parameters of medoid speciation and species resizing.
type SpeciesSetConfig struct {
	MinSpeciesSize    int     `ini:"min_species_size"`
	ClusteringMode    string  `ini:"clustering_mode"`    // "absolute" or "relative"
	AbsoluteThreshold float64 `ini:"absolute_threshold"` // Target clustering score in absolute mode
	SplitRatio        float64 `ini:"split_ratio"`        // Relative mode: split when score(k+1) < ratio*score(k)
	MergeRatio        float64 `ini:"merge_ratio"`        // Relative mode: merge when score(k-1) < ratio*score(k)
}

// DefaultConfig returns a configuration with every parameter set to its default.
// Sizes still have to be filled in by the caller before Validate succeeds.
func DefaultConfig() *Config {
	return &Config{
		Neat: NeatConfig{
			CheckpointDir: "checkpoints",
			Epochs:        2,
			Workers:       1,
			Seed:          1,
		},
		Genome: GenomeConfig{
			FeedForward:                      true,
			InitialConnection:                "full",
			CompatibilityDisjointCoefficient: 1.0,
			CompatibilityWeightCoefficient:   0.5,
			ConnAddProb:                      0.5,
			NodeAddProb:                      0.2,
			BiasInitStdev:                    1.0,
			BiasReplaceRate:                  0.1,
			BiasMutateRate:                   0.7,
			BiasMutatePower:                  0.5,
			BiasMaxValue:                     30,
			BiasMinValue:                     -30,
			ResponseInitMean:                 1.0,
			ResponseMaxValue:                 30,
			ResponseMinValue:                 -30,
			ActivationDefault:                "sigmoid",
			ActivationOptions:                []string{"sigmoid"},
			AggregationDefault:               "sum",
			AggregationOptions:               []string{"sum"},
			WeightInitStdev:                  1.0,
			WeightReplaceRate:                0.1,
			WeightMutateRate:                 0.8,
			WeightMutatePower:                0.5,
			WeightMaxValue:                   30,
			WeightMinValue:                   -30,
			EnabledDefault:                   "True",
			EnabledMutateRate:                0.01,
		},
		Reproduction: ReproductionConfig{
			ElitismRate:       0.1,
			SurvivalThreshold: 0.2,
		},
		SpeciesSet: SpeciesSetConfig{
			MinSpeciesSize:    5,
			ClusteringMode:    ClusterAbsolute,
			AbsoluteThreshold: 1500,
			SplitRatio:        0.5,
			MergeRatio:        1.2,
		},
	}
}

// LoadConfig loads configuration parameters from an INI file on top of DefaultConfig.
func LoadConfig(filePath string) (*Config, error) {
	cfg, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment:         true,
		UnescapeValueCommentSymbols: true,
	}, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file '%s': %w", filePath, err)
	}

	config := DefaultConfig()

	// Keys missing from a section keep their default.
	if err := cfg.Section("NEAT").MapTo(&config.Neat); err != nil {
		return nil, fmt.Errorf("failed to map [NEAT] section: %w", err)
	}
	if err := cfg.Section("DefaultGenome").MapTo(&config.Genome); err != nil {
		return nil, fmt.Errorf("failed to map [DefaultGenome] section: %w", err)
	}
	if err := cfg.Section("DefaultReproduction").MapTo(&config.Reproduction); err != nil {
		return nil, fmt.Errorf("failed to map [DefaultReproduction] section: %w", err)
	}
	if err := cfg.Section("DefaultSpeciesSet").MapTo(&config.SpeciesSet); err != nil {
		return nil, fmt.Errorf("failed to map [DefaultSpeciesSet] section: %w", err)
	}

	config.Neat.RunName = cleanIniString(config.Neat.RunName)
	config.Neat.CheckpointDir = cleanIniString(config.Neat.CheckpointDir)
	config.Genome.InitialConnection = cleanIniString(config.Genome.InitialConnection)
	config.Genome.ActivationDefault = cleanIniString(config.Genome.ActivationDefault)
	config.Genome.AggregationDefault = cleanIniString(config.Genome.AggregationDefault)
	config.Genome.EnabledDefault = cleanIniString(config.Genome.EnabledDefault)
	config.SpeciesSet.ClusteringMode = strings.ToLower(cleanIniString(config.SpeciesSet.ClusteringMode))
	for i, opt := range config.Genome.ActivationOptions {
		config.Genome.ActivationOptions[i] = strings.TrimSpace(opt)
	}
	for i, opt := range config.Genome.AggregationOptions {
		config.Genome.AggregationOptions[i] = strings.TrimSpace(opt)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the configuration, fills derived fields and the default run name.
func (c *Config) Validate() error {
	if c.Neat.RunName == "" {
		c.Neat.RunName = time.Now().Format("02.01-15:04")
	}
	if c.Neat.Workers <= 0 {
		c.Neat.Workers = 1
	}
	if c.SpeciesSet.ClusteringMode == "" {
		c.SpeciesSet.ClusteringMode = ClusterAbsolute
	}

	switch {
	case c.Neat.PopSize <= 0:
		return configErrorf("pop_size must be positive")
	case c.Neat.NumInputs <= 0:
		return configErrorf("num_inputs must be positive")
	case c.Neat.NumOutputs <= 0:
		return configErrorf("num_outputs must be positive")
	case c.Neat.Epochs < 0:
		return configErrorf("epochs cannot be negative")
	case c.SpeciesSet.MinSpeciesSize <= 0:
		return configErrorf("min_species_size must be positive")
	case c.Neat.PopSize < c.SpeciesSet.MinSpeciesSize:
		return configErrorf("pop_size (%d) is smaller than min_species_size (%d)", c.Neat.PopSize, c.SpeciesSet.MinSpeciesSize)
	case c.Reproduction.ElitismRate < 0 || c.Reproduction.ElitismRate > 1:
		return configErrorf("elitism_rate must be between 0 and 1")
	case c.Reproduction.SurvivalThreshold <= 0 || c.Reproduction.SurvivalThreshold > 1:
		return configErrorf("survival_threshold must be in (0, 1]")
	case c.SpeciesSet.ClusteringMode != ClusterAbsolute && c.SpeciesSet.ClusteringMode != ClusterRelative:
		return configErrorf("invalid clustering_mode '%s', must be 'absolute' or 'relative'", c.SpeciesSet.ClusteringMode)
	case c.SpeciesSet.AbsoluteThreshold <= 0:
		return configErrorf("absolute_threshold must be positive")
	case c.SpeciesSet.SplitRatio <= 0 || c.SpeciesSet.MergeRatio <= 0:
		return configErrorf("split_ratio and merge_ratio must be positive")
	}

	g := &c.Genome
	if len(g.ActivationOptions) == 0 {
		return configErrorf("activation_options must be specified")
	}
	if len(g.AggregationOptions) == 0 {
		return configErrorf("aggregation_options must be specified")
	}
	for _, name := range g.ActivationOptions {
		if _, err := GetActivation(name); err != nil {
			return configErrorf("%v", err)
		}
	}
	for _, name := range g.AggregationOptions {
		if _, err := GetAggregation(name); err != nil {
			return configErrorf("%v", err)
		}
	}
	if g.InitialConnection != "full" && g.InitialConnection != "unconnected" {
		return configErrorf("invalid initial_connection type '%s'", g.InitialConnection)
	}
	if g.CompatibilityDisjointCoefficient < 0 || g.CompatibilityWeightCoefficient < 0 {
		return configErrorf("compatibility coefficients cannot be negative")
	}
	if g.ConnAddProb < 0 || g.ConnAddProb > 1 || g.NodeAddProb < 0 || g.NodeAddProb > 1 {
		return configErrorf("conn_add_prob and node_add_prob must be between 0 and 1")
	}
	if g.BiasMaxValue < g.BiasMinValue || g.ResponseMaxValue < g.ResponseMinValue || g.WeightMaxValue < g.WeightMinValue {
		return configErrorf("attribute max values cannot be less than min values")
	}

	c.derive()
	return nil
}

// derive fills the input/output node keys: inputs are -1..-n, outputs 0..m-1.
func (c *Config) derive() {
	c.Genome.InputKeys = make([]int, c.Neat.NumInputs)
	for i := range c.Genome.InputKeys {
		c.Genome.InputKeys[i] = -(i + 1)
	}
	c.Genome.OutputKeys = make([]int, c.Neat.NumOutputs)
	for i := range c.Genome.OutputKeys {
		c.Genome.OutputKeys[i] = i
	}
}

func configErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// cleanIniString removes inline comments and trims whitespace from a string read from INI.
func cleanIniString(s string) string {
	if idx := strings.IndexAny(s, "#;"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
