package sweep

import (
	"strconv"

	"github.com/nvandessel/simsweep/internal/substitute"
)

// Tokens names the placeholder written in the template for each field.
type Tokens struct {
	MapSize             string `json:"map_size" yaml:"map_size"`
	BiomassDistribution string `json:"biomass_distribution" yaml:"biomass_distribution"`
	NumHG               string `json:"num_hg" yaml:"num_hg"`
	Controller          string `json:"controller" yaml:"controller"`
	Seed                string `json:"seed" yaml:"seed"`
	Execution           string `json:"execution" yaml:"execution"`
}

// DefaultTokens returns the placeholders used by the stock simulator templates.
func DefaultTokens() Tokens {
	return Tokens{
		MapSize:             "MAPSIZE",
		BiomassDistribution: "BIOMASS_DISTRIBUTION",
		NumHG:               "NUMHG",
		Controller:          "CTYPE",
		Seed:                "CLIMATESEED",
		Execution:           "NUMEXEC",
	}
}

// List returns the tokens in substitution order.
func (k Tokens) List() []string {
	return []string{k.MapSize, k.BiomassDistribution, k.NumHG, k.Controller, k.Seed, k.Execution}
}

// Replacements returns the six substitutions for t, in the order map size,
// biomass distribution, group count, controller, seed, execution index.
func (k Tokens) Replacements(t Tuple, seed int64) []substitute.Replacement {
	return []substitute.Replacement{
		{Token: k.MapSize, Value: t.MapSize},
		{Token: k.BiomassDistribution, Value: t.BiomassDistribution},
		{Token: k.NumHG, Value: t.NumHG},
		{Token: k.Controller, Value: t.Controller},
		{Token: k.Seed, Value: strconv.FormatInt(seed, 10)},
		{Token: k.Execution, Value: t.ExecutionString()},
	}
}

// Plan is the immutable description of one sweep, built once at startup and
// handed to both phases.
type Plan struct {
	Params Params
	Layout Layout
	Tokens Tokens

	// Template is the path of the configuration template.
	Template string

	// Simulator is the simulator executable.
	Simulator string

	// SeedUpperBound is the exclusive bound of drawn seeds.
	SeedUpperBound int64
}
