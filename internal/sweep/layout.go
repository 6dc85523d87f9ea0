package sweep

import (
	"path/filepath"
	"strings"
)

// DefaultPrefix is the literal prefix of every run directory name.
const DefaultPrefix = "results_"

// RunIdentity returns the directory name of the run for t.
// Every dimension value is encoded, so distinct tuples never collide as long
// as the values themselves do not contain the separator literals.
func RunIdentity(prefix string, t Tuple) string {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteString("size")
	b.WriteString(t.MapSize)
	b.WriteString("_numHG")
	b.WriteString(t.NumHG)
	b.WriteString("_controller_")
	b.WriteString(t.Controller)
	b.WriteString("_biodist_")
	b.WriteString(t.BiomassDistribution)
	b.WriteString("_ex")
	b.WriteString(t.ExecutionString())
	return b.String()
}

// Layout is the on-disk naming convention of a sweep.
type Layout struct {
	// Root is the directory that holds all run directories.
	Root string

	// Prefix starts every run directory name.
	Prefix string

	// ConfigName, LogName and ErrName are file names inside a run directory.
	ConfigName string
	LogName    string
	ErrName    string
}

// DefaultLayout returns the layout rooted at root with the standard names.
func DefaultLayout(root string) Layout {
	return Layout{
		Root:       root,
		Prefix:     DefaultPrefix,
		ConfigName: "config.xml",
		LogName:    "simulator.log",
		ErrName:    "simulator.err",
	}
}

// Identity returns the run identity of t under this layout's prefix.
func (l Layout) Identity(t Tuple) string {
	return RunIdentity(l.Prefix, t)
}

// RunDir returns the run directory of t.
func (l Layout) RunDir(t Tuple) string {
	return filepath.Join(l.Root, l.Identity(t))
}

// ConfigPath returns the generated configuration file of t.
func (l Layout) ConfigPath(t Tuple) string {
	return filepath.Join(l.RunDir(t), l.ConfigName)
}

// LogPath returns the file receiving the simulator's standard output.
func (l Layout) LogPath(t Tuple) string {
	return filepath.Join(l.RunDir(t), l.LogName)
}

// ErrPath returns the file receiving the simulator's standard error.
func (l Layout) ErrPath(t Tuple) string {
	return filepath.Join(l.RunDir(t), l.ErrName)
}

// Pattern returns a filepath.Glob pattern matching every run directory.
func (l Layout) Pattern() string {
	return filepath.Join(l.Root, l.Prefix+"*")
}
