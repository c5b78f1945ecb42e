package main

import (
	"fmt"

	"github.com/aretw0/flowforge/internal/compiler"
	"github.com/aretw0/flowforge/internal/presentation/graph"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph <flow.json>",
	Short: "Export the flow graph visualization",
	Long: `Outputs a Mermaid diagram (graph TD) of a flow document. With --order the
execution numbers are drawn on the nodes and unreached nodes are greyed out.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := readFlow(args[0])
		if err != nil {
			return err
		}
		var overlay *graph.Overlay
		if order, _ := cmd.Flags().GetBool("order"); order {
			overlay = &graph.Overlay{Order: make(map[string]int)}
			for _, chain := range compiler.New().Order(doc) {
				overlay.Entries = append(overlay.Entries, chain.Entry.ID)
				for id, n := range chain.Numbers() {
					if _, seen := overlay.Order[id]; !seen {
						overlay.Order[id] = n
					}
				}
			}
		}
		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(doc, overlay))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().Bool("order", false, "Annotate execution order")
}
