package sweep

import (
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func scenarioParams() Params {
	return Params{
		MapSizes:             []string{"1600"},
		NumHGs:               []string{"100"},
		Controllers:          []string{"DecisionTree"},
		BiomassDistributions: []string{"linDecayFromWater"},
		Executions:           2,
	}
}

func wideParams() Params {
	return Params{
		MapSizes:             []string{"400", "800", "1600"},
		NumHGs:               []string{"50", "100"},
		Controllers:          []string{"DecisionTree", "MDP", "Random"},
		BiomassDistributions: []string{"standard", "logDecayFromWater", "linDecayFromWater"},
		Executions:           3,
	}
}

func TestRunIdentity(t *testing.T) {
	tuple := Tuple{
		MapSize:             "1600",
		NumHG:               "100",
		Controller:          "DecisionTree",
		BiomassDistribution: "linDecayFromWater",
		Execution:           0,
	}
	got := RunIdentity(DefaultPrefix, tuple)
	want := "results_size1600_numHG100_controller_DecisionTree_biodist_linDecayFromWater_ex0"
	if got != want {
		t.Errorf("RunIdentity() = %q, want %q", got, want)
	}
}

func TestParams_Size(t *testing.T) {
	tests := []struct {
		name   string
		params Params
		want   int
	}{
		{"scenario", scenarioParams(), 2},
		{"wide", wideParams(), 3 * 2 * 3 * 3 * 3},
		{"zero executions", Params{MapSizes: []string{"1"}, NumHGs: []string{"1"}, Controllers: []string{"a"}, BiomassDistributions: []string{"b"}}, 0},
		{"empty dimension", Params{MapSizes: []string{"1"}, Controllers: []string{"a"}, BiomassDistributions: []string{"b"}, Executions: 4}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.params.Size(); got != tt.want {
				t.Errorf("Size() = %d, want %d", got, tt.want)
			}
			if got := len(tt.params.GenerationOrder()); got != tt.want {
				t.Errorf("len(GenerationOrder()) = %d, want %d", got, tt.want)
			}
			if got := len(tt.params.LaunchOrder()); got != tt.want {
				t.Errorf("len(LaunchOrder()) = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestScenario_TwoExecutions(t *testing.T) {
	layout := DefaultLayout("/work")
	var got []string
	for _, tuple := range scenarioParams().GenerationOrder() {
		got = append(got, layout.Identity(tuple))
	}
	want := []string{
		"results_size1600_numHG100_controller_DecisionTree_biodist_linDecayFromWater_ex0",
		"results_size1600_numHG100_controller_DecisionTree_biodist_linDecayFromWater_ex1",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("identities mismatch (-want +got):\n%s", diff)
	}
}

func TestIdentities_Unique(t *testing.T) {
	seen := make(map[string]Tuple)
	for _, tuple := range wideParams().GenerationOrder() {
		id := RunIdentity(DefaultPrefix, tuple)
		if prev, ok := seen[id]; ok {
			t.Fatalf("identity %q shared by %+v and %+v", id, prev, tuple)
		}
		seen[id] = tuple
	}
}

func TestOrders_SameTupleSet(t *testing.T) {
	p := wideParams()
	gen := identities(p.GenerationOrder())
	launch := identities(p.LaunchOrder())

	if cmp.Equal(gen, launch) {
		t.Error("expected generation and launch sequences to differ for a multi-valued space")
	}

	sort.Strings(gen)
	sort.Strings(launch)
	if diff := cmp.Diff(gen, launch); diff != "" {
		t.Errorf("tuple sets differ (-generate +launch):\n%s", diff)
	}
}

func TestGenerationOrder_RepeatOutermost(t *testing.T) {
	p := wideParams()
	perRepeat := p.Size() / p.Executions
	for i, tuple := range p.GenerationOrder() {
		if want := i / perRepeat; tuple.Execution != want {
			t.Fatalf("tuple %d has execution %d, want %d", i, tuple.Execution, want)
		}
	}
}

func TestLaunchOrder_RepeatInnermost(t *testing.T) {
	p := wideParams()
	for i, tuple := range p.LaunchOrder() {
		if want := i % p.Executions; tuple.Execution != want {
			t.Fatalf("tuple %d has execution %d, want %d", i, tuple.Execution, want)
		}
	}
}

func TestLayout_Paths(t *testing.T) {
	layout := DefaultLayout("/work")
	tuple := scenarioParams().GenerationOrder()[1]
	dir := filepath.Join("/work", "results_size1600_numHG100_controller_DecisionTree_biodist_linDecayFromWater_ex1")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"run dir", layout.RunDir(tuple), dir},
		{"config", layout.ConfigPath(tuple), filepath.Join(dir, "config.xml")},
		{"log", layout.LogPath(tuple), filepath.Join(dir, "simulator.log")},
		{"err", layout.ErrPath(tuple), filepath.Join(dir, "simulator.err")},
		{"pattern", layout.Pattern(), filepath.Join("/work", "results_*")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestDrawSeeds(t *testing.T) {
	seeds := DrawSeeds(NewRand(42), 50, DefaultSeedUpperBound)
	if len(seeds) != 50 {
		t.Fatalf("len(seeds) = %d, want 50", len(seeds))
	}
	for i, s := range seeds {
		if s < 0 || s >= DefaultSeedUpperBound {
			t.Errorf("seeds[%d] = %d out of [0, %d)", i, s, DefaultSeedUpperBound)
		}
	}

	again := DrawSeeds(NewRand(42), 50, DefaultSeedUpperBound)
	if diff := cmp.Diff(seeds, again); diff != "" {
		t.Errorf("same source seed should reproduce draws (-first +second):\n%s", diff)
	}

	if got := DrawSeeds(NewRand(1), 0, DefaultSeedUpperBound); got != nil {
		t.Errorf("DrawSeeds with zero executions = %v, want nil", got)
	}
}

func TestTokens_Replacements(t *testing.T) {
	tuple := scenarioParams().GenerationOrder()[1]
	reps := DefaultTokens().Replacements(tuple, 4821903)

	var got [][2]string
	for _, r := range reps {
		got = append(got, [2]string{r.Token, r.Value})
	}
	want := [][2]string{
		{"MAPSIZE", "1600"},
		{"BIOMASS_DISTRIBUTION", "linDecayFromWater"},
		{"NUMHG", "100"},
		{"CTYPE", "DecisionTree"},
		{"CLIMATESEED", "4821903"},
		{"NUMEXEC", "1"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Replacements() mismatch (-want +got):\n%s", diff)
	}
}

func identities(tuples []Tuple) []string {
	out := make([]string, len(tuples))
	for i, tuple := range tuples {
		out[i] = RunIdentity(DefaultPrefix, tuple)
	}
	return out
}
