package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kilnbuild/kiln/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show past build invocations",
		Long: `List recent build invocations from the state database, or show the
per-task results of one invocation when a run ID is given.`,
		Example: `  # Last 20 runs
  kiln history

  # Details of one run
  kiln history 2f1c9a3e-...`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, root, err := loadGraph()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			store, err := openStore(ctx, root)
			if err != nil {
				return err
			}
			defer store.Close()

			if len(args) == 1 {
				return showRun(cmd, store, args[0])
			}

			runs, err := store.ListRuns(ctx, limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN ID\tSTATUS\tSTARTED\tTARGETS")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					r.ID, r.Status, r.StartedAt.Format("2006-01-02 15:04:05"), r.Targets)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum runs to list")

	return cmd
}

func showRun(cmd *cobra.Command, store stores.Store, id string) error {
	ctx := cmd.Context()
	run, err := store.GetRun(ctx, id)
	if err != nil {
		return err
	}
	results, err := store.ListTaskResults(ctx, id)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Run     interface{} `json:"run"`
			Results interface{} `json:"results"`
		}{run, results})
	}

	fmt.Printf("Run %s: %s (started %s)\n", run.ID, run.Status,
		run.StartedAt.Format("2006-01-02 15:04:05"))

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TASK\tSTATUS\tDURATION\tERROR")
	for _, r := range results {
		errMsg := ""
		if r.Error != nil {
			errMsg = *r.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.TaskID, r.Status, r.Duration.Round(timeResolution), errMsg)
	}
	return w.Flush()
}
