package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kilnbuild/kiln/pkg/engine"
	"github.com/kilnbuild/kiln/pkg/manifest"
	"github.com/kilnbuild/kiln/pkg/stores"
	"github.com/kilnbuild/kiln/pkg/telemetry"
)

var (
	// Global flags
	manifestPath string
	storePath    string
	logLevel     string
	logFormat    string
	jsonOutput   bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "kiln",
		Short: "Kiln - Incremental Multi-Project Build Orchestrator",
		Long: `Kiln orchestrates builds across multiple subprojects from a single
declarative manifest (kiln.yaml).

Features:
  - Task graph with explicit and artifact-implied dependencies
  - Content-digest up-to-date checks that skip unchanged tasks
  - Parallel execution of independent tasks
  - Cross-project artifact publish and resolve
  - Persistent run history and fingerprint state`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&manifestPath, "manifest", "m", "kiln.yaml", "workspace manifest path")
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "", "state database path (default: .kiln/state.db next to the manifest)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newGraphCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newCleanCommand())

	return rootCmd
}

// newLogger builds the logger configured by the global flags.
func newLogger() (*telemetry.Logger, error) {
	return telemetry.NewLogger(telemetry.LoggingConfig{
		Level:      logLevel,
		Format:     logFormat,
		Output:     "stderr",
		TimeFormat: "rfc3339",
	})
}

// loadGraph loads the manifest and builds the resolved task graph. Declared
// paths are resolved against the manifest's directory.
func loadGraph() (*engine.Graph, string, error) {
	abs, err := filepath.Abs(manifestPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to resolve manifest path: %w", err)
	}
	root := filepath.Dir(abs)

	m, err := manifest.NewLoader().Load(abs)
	if err != nil {
		return nil, "", err
	}
	graph, err := manifest.BuildGraph(m, root)
	if err != nil {
		return nil, "", err
	}
	return graph, root, nil
}

// openStore opens and migrates the state database. The default location is
// .kiln/state.db next to the manifest.
func openStore(ctx context.Context, root string) (stores.Store, error) {
	path := storePath
	if path == "" {
		path = filepath.Join(root, ".kiln", "state.db")
	}
	if err := ensureDir(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func ensureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

// parseTargets maps target arguments to task identities. Bare project names
// are not accepted; targets are always "project:task".
func parseTargets(graph *engine.Graph, args []string) ([]engine.TaskID, error) {
	if len(args) == 0 {
		return graph.Tasks(), nil
	}
	targets := make([]engine.TaskID, 0, len(args))
	for _, arg := range args {
		id := engine.TaskID(arg)
		if _, ok := graph.Task(id); !ok {
			return nil, engine.NewConfigurationError(
				fmt.Sprintf("unknown target: %s", arg), nil).
				WithCode(engine.ErrCodeUnknownTask)
		}
		targets = append(targets, id)
	}
	return targets, nil
}
