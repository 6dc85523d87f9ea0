// Package sweep defines the parameter space of a simulation sweep and the
// naming convention shared by the generate and launch phases.
//
// Both phases derive every run directory and file path from a Tuple through
// Layout, so they agree on naming by construction.
package sweep

import "strconv"

// Params holds the value sets of the five sweep dimensions.
type Params struct {
	MapSizes             []string `json:"map_sizes" yaml:"map_sizes"`
	NumHGs               []string `json:"num_hgs" yaml:"num_hgs"`
	Controllers          []string `json:"controllers" yaml:"controllers"`
	BiomassDistributions []string `json:"biomass_distributions" yaml:"biomass_distributions"`

	// Executions is the number of repeats per combination; repeat indices
	// run from 0 to Executions-1.
	Executions int `json:"executions" yaml:"executions"`
}

// Tuple is one point of the parameter space, i.e. one run.
type Tuple struct {
	MapSize             string `json:"map_size"`
	NumHG               string `json:"num_hg"`
	Controller          string `json:"controller"`
	BiomassDistribution string `json:"biomass_distribution"`
	Execution           int    `json:"execution"`
}

// ExecutionString returns the repeat index in decimal.
func (t Tuple) ExecutionString() string {
	return strconv.Itoa(t.Execution)
}

// Size returns the number of tuples in the parameter space.
func (p Params) Size() int {
	if p.Executions <= 0 {
		return 0
	}
	return len(p.MapSizes) * len(p.NumHGs) * len(p.Controllers) * len(p.BiomassDistributions) * p.Executions
}

// GenerationOrder enumerates the space with the repeat index outermost,
// followed by map size, group count, controller and biomass distribution.
func (p Params) GenerationOrder() []Tuple {
	tuples := make([]Tuple, 0, p.Size())
	for ex := 0; ex < p.Executions; ex++ {
		for _, size := range p.MapSizes {
			for _, hg := range p.NumHGs {
				for _, ctrl := range p.Controllers {
					for _, bio := range p.BiomassDistributions {
						tuples = append(tuples, Tuple{
							MapSize:             size,
							NumHG:               hg,
							Controller:          ctrl,
							BiomassDistribution: bio,
							Execution:           ex,
						})
					}
				}
			}
		}
	}
	return tuples
}

// LaunchOrder enumerates the same space with the repeat index innermost.
// It visits exactly the tuples of GenerationOrder in a different sequence.
func (p Params) LaunchOrder() []Tuple {
	tuples := make([]Tuple, 0, p.Size())
	for _, size := range p.MapSizes {
		for _, hg := range p.NumHGs {
			for _, ctrl := range p.Controllers {
				for _, bio := range p.BiomassDistributions {
					for ex := 0; ex < p.Executions; ex++ {
						tuples = append(tuples, Tuple{
							MapSize:             size,
							NumHG:               hg,
							Controller:          ctrl,
							BiomassDistribution: bio,
							Execution:           ex,
						})
					}
				}
			}
		}
	}
	return tuples
}
