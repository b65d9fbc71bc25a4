package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilnbuild/kiln/pkg/action"
	"github.com/kilnbuild/kiln/pkg/engine"
	"github.com/kilnbuild/kiln/pkg/telemetry"
	"github.com/kilnbuild/kiln/pkg/watch"
)

// timeResolution rounds durations for display.
const timeResolution = time.Millisecond

func newRunCommand() *cobra.Command {
	var (
		workers     int
		failFast    bool
		dryRun      bool
		force       []string
		watchMode   bool
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "run [targets...]",
		Short: "Run build targets and their dependencies",
		Long: `Execute the requested targets together with their full dependency
closure. Tasks whose declared inputs, outputs, and action are unchanged
since their last successful run are skipped as up-to-date.

With no targets, every task in the manifest is run.`,
		Example: `  # Run everything
  kiln run

  # Run one target and its dependencies
  kiln run app:package

  # Force a task to re-run regardless of fingerprints
  kiln run app:package --force lib:compile

  # Preview the schedule without running actions
  kiln run --dry-run

  # Keep rebuilding as inputs change
  kiln run app:package --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger()
			if err != nil {
				return err
			}

			graph, root, err := loadGraph()
			if err != nil {
				return err
			}
			targets, err := parseTargets(graph, args)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, err := openStore(ctx, root)
			if err != nil {
				return err
			}
			defer store.Close()

			var metrics *telemetry.Metrics
			if metricsAddr != "" {
				metrics, err = telemetry.NewMetrics(telemetry.MetricsConfig{
					Enabled:       true,
					ListenAddress: metricsAddr,
					Path:          "/metrics",
					Namespace:     "kiln",
				})
				if err != nil {
					return err
				}
				go func() {
					if err := metrics.Serve(); err != nil {
						log.WithError(err).Error("metrics server stopped")
					}
				}()
			}

			forceIDs := make([]engine.TaskID, 0, len(force))
			for _, f := range force {
				forceIDs = append(forceIDs, engine.TaskID(f))
			}

			runOnce := func(ctx context.Context) (*engine.RunReport, error) {
				exec := engine.NewExecutor(graph, store, action.NewProcessRunner(), engine.Options{
					Workers:  workers,
					FailFast: failFast,
					DryRun:   dryRun,
					Force:    forceIDs,
					Recorder: store,
					Sink:     telemetry.NewRunObserver(log, metrics),
				})
				if metrics != nil {
					metrics.RunStarted()
				}
				return exec.Run(ctx, targets)
			}

			if watchMode {
				return runWatch(ctx, log, graph, targets, runOnce)
			}

			report, err := runOnce(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
			} else {
				printReport(report)
			}
			if report.Status != engine.RunStatusSucceeded {
				return fmt.Errorf("run %s", report.Status)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "w", 4, "maximum concurrently running tasks")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "stop scheduling new tasks after the first failure")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would run without invoking actions")
	cmd.Flags().StringSliceVar(&force, "force", nil, "task identities to re-run regardless of fingerprints")
	cmd.Flags().BoolVar(&watchMode, "watch", false, "re-run targets when declared inputs change")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	return cmd
}

// runWatch runs the targets once, then keeps re-running them as their
// declared inputs change. Build failures do not stop the watch loop.
func runWatch(ctx context.Context, log *telemetry.Logger, graph *engine.Graph,
	targets []engine.TaskID, runOnce func(context.Context) (*engine.RunReport, error)) error {

	closure, err := graph.Closure(targets)
	if err != nil {
		return err
	}

	if report, err := runOnce(ctx); err != nil {
		log.WithError(err).Error("build failed")
	} else {
		printReport(report)
	}

	trigger := make(chan []string, 1)
	w := watch.New(graph, closure, func(changed []string) {
		select {
		case trigger <- changed:
		default:
		}
	})

	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	log.Infof("watching %d tasks for input changes", len(closure))
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		case changed := <-trigger:
			log.Debugf("inputs changed: %v", changed)
			if report, err := runOnce(ctx); err != nil {
				log.WithError(err).Error("build failed")
			} else {
				printReport(report)
			}
		}
	}
}

// printReport writes a human-readable per-task summary to stdout.
func printReport(report *engine.RunReport) {
	ids := make([]string, 0, len(report.Results))
	for id := range report.Results {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)

	for _, id := range ids {
		r := report.Results[engine.TaskID(id)]
		line := fmt.Sprintf("%-12s %s", r.Status, id)
		if r.Status == engine.TaskStatusSucceeded {
			line += fmt.Sprintf(" (%s)", r.Duration.Round(timeResolution))
		}
		if r.Error != nil {
			line += "  " + r.Error.Message
		}
		fmt.Println(line)
	}

	s := report.Summary
	fmt.Printf("\n%s: %d total, %d succeeded, %d up-to-date, %d failed, %d skipped, %d cancelled (%s)\n",
		report.Status, s.Total, s.Succeeded, s.UpToDate, s.Failed, s.SkippedFailed, s.Cancelled,
		report.Duration.Round(timeResolution))
}
