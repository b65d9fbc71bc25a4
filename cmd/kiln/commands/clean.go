package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilnbuild/kiln/pkg/engine"
)

func newCleanCommand() *cobra.Command {
	var tasks []string

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Reset fingerprint state",
		Long: `Delete recorded fingerprints so tasks are considered out of date on
the next invocation. With --task, only the named tasks are reset;
otherwise the whole workspace is.

Output files on disk are not touched.`,
		Example: `  # Everything out of date
  kiln clean

  # One task out of date
  kiln clean --task lib:compile`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			graph, root, err := loadGraph()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			store, err := openStore(ctx, root)
			if err != nil {
				return err
			}
			defer store.Close()

			if len(tasks) == 0 {
				if err := store.ResetFingerprints(ctx); err != nil {
					return err
				}
				fmt.Println("All fingerprints reset")
				return nil
			}

			for _, t := range tasks {
				id := engine.TaskID(t)
				if _, ok := graph.Task(id); !ok {
					return engine.NewConfigurationError(
						fmt.Sprintf("unknown task: %s", t), nil).
						WithCode(engine.ErrCodeUnknownTask)
				}
				if err := store.DeleteFingerprint(ctx, id); err != nil {
					return err
				}
			}
			fmt.Printf("Reset fingerprints for %d tasks\n", len(tasks))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&tasks, "task", nil, "task identities to reset (default: all)")

	return cmd
}
