package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/flowforge/internal/compiler"
	"github.com/aretw0/flowforge/internal/logging"
	"github.com/aretw0/flowforge/pkg/flow"
	"github.com/spf13/cobra"
)

var compileCmd = &cobra.Command{
	Use:   "compile <flow.json>",
	Short: "Compile a flow document to Structured Text",
	Long: `Validates a flow document and writes the generated sources below
<out>/plc, the layout a build commits to the project repository.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		_, logger, err := loadConfig(cmd)
		if err != nil {
			logger = logging.NewNop()
		}

		doc, err := readFlow(args[0])
		if err != nil {
			return err
		}
		res, err := compiler.New(compiler.WithLogger(logger)).Compile(doc)
		if err != nil {
			return err
		}
		files, err := res.Files(flowName(doc, args[0]))
		if err != nil {
			return err
		}

		names := make([]string, 0, len(files))
		for name := range files {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			path := filepath.Join(out, filepath.FromSlash(name))
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(path, files[name], 0o644); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(compileCmd)
	compileCmd.Flags().StringP("out", "o", ".", "Output directory")
}

func readFlow(path string) (*flow.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return flow.Parse(data)
}

func flowName(doc *flow.Document, path string) string {
	if doc.Name != "" {
		return doc.Name
	}
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
