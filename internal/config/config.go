// Package config provides unified configuration loading for simsweep.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nvandessel/simsweep/internal/constants"
	"github.com/nvandessel/simsweep/internal/sweep"
	"gopkg.in/yaml.v3"
)

// SweepConfig contains all simsweep configuration settings.
type SweepConfig struct {
	// Params is the parameter space to sweep.
	Params sweep.Params `json:"params" yaml:"params"`

	// Template is the simulator configuration template.
	// Relative paths are resolved against the workspace root.
	Template string `json:"template" yaml:"template"`

	// Simulator is the simulator executable. Relative paths containing a
	// separator are resolved against the workspace root; bare names are
	// looked up on PATH.
	Simulator string `json:"simulator" yaml:"simulator"`

	// Tokens are the placeholders substituted in the template.
	Tokens sweep.Tokens `json:"tokens" yaml:"tokens"`

	// Layout contains run directory naming settings.
	Layout LayoutConfig `json:"layout" yaml:"layout"`

	// Generate contains settings for the config generation phase.
	Generate GenerateConfig `json:"generate" yaml:"generate"`

	// Launch contains settings for the job launch phase.
	Launch LaunchConfig `json:"launch" yaml:"launch"`

	// FailFast aborts a phase on its first failed run instead of
	// collecting failures and carrying on.
	FailFast bool `json:"fail_fast" yaml:"fail_fast"`

	// Logging contains settings for operational and event logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// LayoutConfig configures run directory and file names.
type LayoutConfig struct {
	Prefix     string `json:"prefix" yaml:"prefix"`
	ConfigName string `json:"config_name" yaml:"config_name"`
	LogName    string `json:"log_name" yaml:"log_name"`
	ErrName    string `json:"err_name" yaml:"err_name"`
}

// GenerateConfig configures the generation phase.
type GenerateConfig struct {
	// Clean is what happens to existing run directories: "delete", "archive" or "none".
	Clean string `json:"clean" yaml:"clean"`

	// RandomSeed seeds the climate seed generator. Zero means time-based.
	RandomSeed int64 `json:"random_seed" yaml:"random_seed"`

	// SeedUpperBound is the exclusive upper bound of drawn climate seeds.
	SeedUpperBound int64 `json:"seed_upper_bound" yaml:"seed_upper_bound"`

	// KeepArchives is how many archived sweeps survive rotation.
	KeepArchives int `json:"keep_archives" yaml:"keep_archives"`
}

// LaunchConfig configures the launch phase.
type LaunchConfig struct {
	// MaxConcurrent caps live simulator processes. Zero launches every run
	// detached without waiting (fire-and-forget).
	MaxConcurrent int `json:"max_concurrent" yaml:"max_concurrent"`

	// Rate limits process starts per second. Zero disables pacing.
	Rate float64 `json:"rate" yaml:"rate"`

	// Burst is the number of starts allowed back to back when Rate is set.
	Burst int `json:"burst" yaml:"burst"`
}

// LoggingConfig configures simsweep's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables the event log at .simsweep/events.jsonl.
	Level string `json:"level" yaml:"level"`
}

// Default returns a SweepConfig reproducing the stock exploration workbench.
func Default() *SweepConfig {
	layout := sweep.DefaultLayout("")
	return &SweepConfig{
		Params: sweep.Params{
			MapSizes:             []string{"1600"},
			NumHGs:               []string{"100"},
			Controllers:          []string{"DecisionTree"},
			BiomassDistributions: []string{"linDecayFromWater"},
			Executions:           constants.DefaultExecutions,
		},
		Template:  constants.DefaultTemplate,
		Simulator: constants.DefaultSimulator,
		Tokens:    sweep.DefaultTokens(),
		Layout: LayoutConfig{
			Prefix:     layout.Prefix,
			ConfigName: layout.ConfigName,
			LogName:    layout.LogName,
			ErrName:    layout.ErrName,
		},
		Generate: GenerateConfig{
			Clean:          constants.CleanDelete,
			SeedUpperBound: sweep.DefaultSeedUpperBound,
			KeepArchives:   constants.MaxArchiveRotation,
		},
		Launch: LaunchConfig{
			Burst: 1,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from path and environment variables.
// Order: defaults -> path (if it exists) -> environment variables.
// An empty path skips the file.
func Load(path string) (*SweepConfig, error) {
	config := Default()

	if path != "" {
		if _, statErr := os.Stat(path); statErr == nil {
			fileConfig, loadErr := LoadFromFile(path)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
// Fields absent from the file keep their defaults.
func LoadFromFile(path string) (*SweepConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Template = expandEnvVars(config.Template)
	config.Simulator = expandEnvVars(config.Simulator)

	return config, nil
}

// Marshal renders the configuration as YAML.
func (c *SweepConfig) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate checks that the harness configuration is usable.
// Dimension values are passed through unchecked.
func (c *SweepConfig) Validate() error {
	if c.Params.Executions < 0 {
		return fmt.Errorf("executions must be non-negative, got %d", c.Params.Executions)
	}

	if strings.TrimSpace(c.Template) == "" {
		return fmt.Errorf("template must be set")
	}

	if strings.TrimSpace(c.Simulator) == "" {
		return fmt.Errorf("simulator must be set")
	}

	if c.Layout.Prefix == "" {
		return fmt.Errorf("layout.prefix must be set")
	}
	if strings.ContainsAny(c.Layout.Prefix, `/\`) {
		return fmt.Errorf("layout.prefix must not contain path separators, got %q", c.Layout.Prefix)
	}
	for name, v := range map[string]string{
		"layout.config_name": c.Layout.ConfigName,
		"layout.log_name":    c.Layout.LogName,
		"layout.err_name":    c.Layout.ErrName,
	} {
		if v == "" || filepath.Base(v) != v {
			return fmt.Errorf("%s must be a plain file name, got %q", name, v)
		}
	}

	for i, tok := range c.Tokens.List() {
		if tok == "" {
			return fmt.Errorf("token %d must not be empty", i)
		}
	}

	validClean := map[string]bool{constants.CleanDelete: true, constants.CleanArchive: true, constants.CleanNone: true}
	if !validClean[c.Generate.Clean] {
		return fmt.Errorf("invalid clean mode: %s (valid: delete, archive, none)", c.Generate.Clean)
	}

	if c.Generate.SeedUpperBound <= 0 {
		return fmt.Errorf("seed_upper_bound must be positive, got %d", c.Generate.SeedUpperBound)
	}

	if c.Launch.MaxConcurrent < 0 {
		return fmt.Errorf("max_concurrent must be non-negative, got %d", c.Launch.MaxConcurrent)
	}

	if c.Launch.Rate < 0 {
		return fmt.Errorf("rate must be non-negative, got %v", c.Launch.Rate)
	}
	if c.Launch.Rate > 0 && c.Launch.Burst < 1 {
		return fmt.Errorf("burst must be at least 1 when rate is set, got %d", c.Launch.Burst)
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	return nil
}

// Plan builds the immutable sweep plan rooted at root.
func (c *SweepConfig) Plan(root string) sweep.Plan {
	return sweep.Plan{
		Params: c.Params,
		Layout: sweep.Layout{
			Root:       root,
			Prefix:     c.Layout.Prefix,
			ConfigName: c.Layout.ConfigName,
			LogName:    c.Layout.LogName,
			ErrName:    c.Layout.ErrName,
		},
		Tokens:         c.Tokens,
		Template:       resolvePath(root, c.Template),
		Simulator:      resolveExecutable(root, c.Simulator),
		SeedUpperBound: c.Generate.SeedUpperBound,
	}
}

// resolvePath joins relative paths onto root.
func resolvePath(root, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

// resolveExecutable resolves executables given as relative paths against
// root and leaves bare command names for PATH lookup.
func resolveExecutable(root, name string) string {
	if !strings.ContainsAny(name, `/\`) {
		return name
	}
	p := resolvePath(root, name)
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *SweepConfig) {
	if v := os.Getenv("SIMSWEEP_TEMPLATE"); v != "" {
		config.Template = v
	}

	if v := os.Getenv("SIMSWEEP_SIMULATOR"); v != "" {
		config.Simulator = v
	}

	if v := os.Getenv("SIMSWEEP_EXECUTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Params.Executions = n
		}
	}

	if v := os.Getenv("SIMSWEEP_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Launch.MaxConcurrent = n
		}
	}

	if v := os.Getenv("SIMSWEEP_FAIL_FAST"); v != "" {
		config.FailFast = v == "true" || v == "1"
	}

	if v := os.Getenv("SIMSWEEP_RANDOM_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			config.Generate.RandomSeed = n
		}
	}

	if v := os.Getenv("SIMSWEEP_CLEAN"); v != "" {
		config.Generate.Clean = v
	}

	if v := os.Getenv("SIMSWEEP_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
