package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/nvandessel/simsweep/internal/config"
	"github.com/nvandessel/simsweep/internal/constants"
	"github.com/nvandessel/simsweep/internal/logging"
	"github.com/nvandessel/simsweep/internal/pathutil"
	"github.com/nvandessel/simsweep/internal/store"
	"github.com/nvandessel/simsweep/internal/sweep"
	"github.com/spf13/cobra"
)

// Set via ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "simsweep",
		Short: "Parameter sweep harness for agent-based simulations",
		Long: `simsweep builds the Cartesian product of a simulation's experiment
parameters, writes one configuration file per combination from a template,
and launches the simulator against each of them.

Each run gets its own directory in the workspace root, named after its
parameter values. Generation and launch can be run separately or together.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("root", ".", "Workspace root directory")
	rootCmd.PersistentFlags().String("config", "", "Sweep configuration file (default <root>/"+constants.ConfigFileName+")")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: info, debug or trace (overrides config)")
	rootCmd.PersistentFlags().Bool("no-ledger", false, "Do not record runs in "+constants.StateDirName+"/"+constants.LedgerFileName)

	rootCmd.AddCommand(
		newVersionCmd(),
		newInitCmd(),
		newConfigCmd(),
		newPlanCmd(),
		newGenerateCmd(),
		newLaunchCmd(),
		newRunCmd(),
		newRunsCmd(),
	)

	return rootCmd
}

// resolveRoot returns the absolute workspace root from the --root flag.
func resolveRoot(cmd *cobra.Command) (string, error) {
	root, _ := cmd.Flags().GetString("root")
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve root %s: %w", root, err)
	}
	return abs, nil
}

// configPath returns the --config flag or the default file under root.
func configPath(cmd *cobra.Command, root string) string {
	if p, _ := cmd.Flags().GetString("config"); p != "" {
		return p
	}
	return filepath.Join(root, constants.ConfigFileName)
}

// loadConfig loads, overrides from flags and validates the configuration.
func loadConfig(cmd *cobra.Command, root string) (*config.SweepConfig, error) {
	cfg, err := config.Load(configPath(cmd, root))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if f := cmd.Flags().Lookup("log-level"); f != nil && f.Changed {
		cfg.Logging.Level = f.Value.String()
	}
	if f := cmd.Flags().Lookup("fail-fast"); f != nil && f.Changed {
		cfg.FailFast, _ = cmd.Flags().GetBool("fail-fast")
	}
	if f := cmd.Flags().Lookup("clean"); f != nil && f.Changed {
		cfg.Generate.Clean = f.Value.String()
	}
	if f := cmd.Flags().Lookup("random-seed"); f != nil && f.Changed {
		cfg.Generate.RandomSeed, _ = cmd.Flags().GetInt64("random-seed")
	}
	if f := cmd.Flags().Lookup("max-concurrent"); f != nil && f.Changed {
		cfg.Launch.MaxConcurrent, _ = cmd.Flags().GetInt("max-concurrent")
	}
	if f := cmd.Flags().Lookup("rate"); f != nil && f.Changed {
		cfg.Launch.Rate, _ = cmd.Flags().GetFloat64("rate")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// session bundles what every sweep command needs.
type session struct {
	root   string
	cfg    *config.SweepConfig
	plan   sweep.Plan
	logger *slog.Logger
	events *logging.EventLogger
	ledger store.Ledger
}

// openSession loads configuration and opens the logger, event log and ledger.
func openSession(cmd *cobra.Command) (*session, error) {
	root, err := resolveRoot(cmd)
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig(cmd, root)
	if err != nil {
		return nil, err
	}

	s := &session{
		root:   root,
		cfg:    cfg,
		plan:   cfg.Plan(root),
		logger: logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr()),
		events: logging.NewEventLogger(pathutil.StateDir(root), cfg.Logging.Level),
	}

	noLedger, _ := cmd.Flags().GetBool("no-ledger")
	if noLedger {
		s.ledger = store.NewMemoryLedger()
	} else {
		l, err := store.NewSQLiteLedger(root)
		if err != nil {
			s.events.Close()
			return nil, fmt.Errorf("failed to open ledger: %w", err)
		}
		s.ledger = l
	}

	s.logger.Debug("session opened",
		"root", pathutil.RedactPath(root),
		"runs", s.plan.Params.Size(),
		"template", pathutil.RedactPath(s.plan.Template),
		"simulator", s.plan.Simulator)
	return s, nil
}

// Close releases the ledger and event log.
func (s *session) Close() {
	if err := s.ledger.Close(); err != nil {
		s.logger.Warn("failed to close ledger", "error", err)
	}
	s.events.Close()
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	notifySignals(sigCh)

	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}
