package main

import (
	"errors"
	"fmt"

	"github.com/aretw0/flowforge/internal/compiler"
	"github.com/aretw0/flowforge/pkg/domain"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <flow.json>",
	Short: "Check a flow document for structural faults",
	Long: `Reports unknown node kinds, dangling connections, execution cycles and
port type mismatches without generating any code.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := readFlow(args[0])
		if err == nil {
			err = compiler.New().Validate(doc)
		}
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			for _, e := range verr.Errors {
				fmt.Fprintln(cmd.ErrOrStderr(), "  -", e)
			}
			return fmt.Errorf("%s: %d problem(s) found", args[0], len(verr.Errors))
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
