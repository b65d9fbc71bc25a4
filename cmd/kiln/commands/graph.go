package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newGraphCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph [targets...]",
		Short: "Print the task graph in Graphviz DOT format",
		Long: `Print the dependency graph of the requested targets (or the whole
workspace) in DOT format. Explicit dependencies are solid edges; artifact
consumption is dashed.`,
		Example: `  # Render the whole workspace
  kiln graph | dot -Tsvg -o graph.svg

  # Only the closure of one target
  kiln graph app:package`,
		RunE: func(cmd *cobra.Command, args []string) error {
			graph, _, err := loadGraph()
			if err != nil {
				return err
			}
			targets, err := parseTargets(graph, args)
			if err != nil {
				return err
			}
			closure, err := graph.Closure(targets)
			if err != nil {
				return err
			}
			fmt.Print(graph.ToDOT(closure))
			return nil
		},
	}

	return cmd
}
