package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/flowforge/internal/config"
	"github.com/aretw0/flowforge/internal/logging"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "flowforge",
	Short: "FlowForge builds and deploys PLC projects from flow graphs",
	Long: `FlowForge compiles visual flow graphs into IEC 61131-3 Structured Text,
builds them with the vendor toolchain and deploys them to TwinCAT controllers.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Configuration file (YAML or JSON)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: text or json")
}

// loadConfig reads the configuration file and applies the logging flags.
func loadConfig(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, nil, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if format, _ := cmd.Flags().GetString("log-format"); format != "" {
		cfg.Log.Format = format
	}
	if err := cfg.Validate(); err != nil {
		return cfg, nil, err
	}
	level, _ := logging.ParseLevel(cfg.Log.Level)
	return cfg, logging.NewWithFormat(os.Stderr, level, logging.Format(cfg.Log.Format)), nil
}
