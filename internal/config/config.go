// Package config loads engine settings from defaults, an optional YAML
// config file, and TAXA_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds every tunable of the engine.
type Config struct {
	// Models is the ensemble pool for classification votes.
	Models []string `mapstructure:"models" yaml:"models"`
	// Fallbacks are tried in order when a model fails.
	Fallbacks []string `mapstructure:"fallbacks" yaml:"fallbacks"`
	// BootstrapModel proposes and validates the initial tree.
	BootstrapModel string `mapstructure:"bootstrap_model" yaml:"bootstrap_model"`

	// TotalInvocations is the ensemble size per (item, branch) pair.
	TotalInvocations int `mapstructure:"total_invocations" yaml:"total_invocations"`
	// MajorityThreshold is the vote share required beyond the top node.
	MajorityThreshold float64 `mapstructure:"majority_threshold" yaml:"majority_threshold"`
	// Temperature for ensemble calls.
	Temperature float32 `mapstructure:"temperature" yaml:"temperature"`

	// BatchSize bounds concurrent classification cases per round.
	BatchSize int `mapstructure:"batch_size" yaml:"batch_size"`
	// InitialBatchSize is how many unclassified items a batch pulls.
	InitialBatchSize int `mapstructure:"initial_batch_size" yaml:"initial_batch_size"`

	// MinItemsToExamine and ExamineThreshold gate the examination loop.
	MinItemsToExamine int     `mapstructure:"min_items_to_examine" yaml:"min_items_to_examine"`
	ExamineThreshold  float64 `mapstructure:"examine_threshold" yaml:"examine_threshold"`

	// MaxRetries bounds retries per model invocation.
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`
	// RequestTimeout bounds one model invocation.
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	// RequestsPerSecond throttles outbound calls per model; zero
	// disables throttling.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`

	// DataDir is where the embedded database lives.
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`
}

// Default returns the engine defaults.
func Default() Config {
	return Config{
		Models:            []string{"gpt-4o", "claude-sonnet-4-20250514"},
		BootstrapModel:    "gpt-4o",
		TotalInvocations:  8,
		MajorityThreshold: 0.5,
		Temperature:       0.7,
		BatchSize:         4,
		InitialBatchSize:  50,
		MinItemsToExamine: 10,
		ExamineThreshold:  0.6,
		MaxRetries:        3,
		RequestTimeout:    2 * time.Minute,
		RequestsPerSecond: 0,
		DataDir:           defaultDataDir(),
	}
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	if len(c.Models) == 0 {
		return fmt.Errorf("at least one model is required")
	}
	if c.TotalInvocations <= 0 {
		return fmt.Errorf("total_invocations must be positive, got %d", c.TotalInvocations)
	}
	if c.MajorityThreshold < 0 || c.MajorityThreshold > 1 {
		return fmt.Errorf("majority_threshold must be in [0, 1], got %v", c.MajorityThreshold)
	}
	if c.ExamineThreshold < 0 || c.ExamineThreshold > 1 {
		return fmt.Errorf("examine_threshold must be in [0, 1], got %v", c.ExamineThreshold)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	return nil
}

// Load reads configuration from the given file (or the default search
// path when empty), then overlays TAXA_* environment variables.
func Load(cfgFile string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".taxa"))
		}
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("TAXA")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("models", d.Models)
	v.SetDefault("fallbacks", d.Fallbacks)
	v.SetDefault("bootstrap_model", d.BootstrapModel)
	v.SetDefault("total_invocations", d.TotalInvocations)
	v.SetDefault("majority_threshold", d.MajorityThreshold)
	v.SetDefault("temperature", d.Temperature)
	v.SetDefault("batch_size", d.BatchSize)
	v.SetDefault("initial_batch_size", d.InitialBatchSize)
	v.SetDefault("min_items_to_examine", d.MinItemsToExamine)
	v.SetDefault("examine_threshold", d.ExamineThreshold)
	v.SetDefault("max_retries", d.MaxRetries)
	v.SetDefault("request_timeout", d.RequestTimeout)
	v.SetDefault("requests_per_second", d.RequestsPerSecond)
	v.SetDefault("data_dir", d.DataDir)
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".taxa"
	}
	return filepath.Join(home, ".taxa", "data")
}
