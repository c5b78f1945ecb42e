package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/flowforge"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a build worker",
	Long: `Claims build jobs for one toolchain version and runs the build pipeline
on them until interrupted. The worker talks to the build API when
worker.api_url is set and to the shared store otherwise.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if v, _ := cmd.Flags().GetString("toolchain-version"); v != "" {
			cfg.Worker.ToolchainVersion = v
		}
		if u, _ := cmd.Flags().GetString("api"); u != "" {
			cfg.Worker.APIURL = u
		}
		once, _ := cmd.Flags().GetBool("once")

		eng, err := flowforge.New(cfg, flowforge.WithLogger(logger))
		if err != nil {
			return err
		}
		defer eng.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		w := eng.Worker()
		if once {
			ran, err := w.Poll(ctx)
			if err != nil {
				return err
			}
			if !ran {
				logger.Info("no job to build", "toolchain_version", cfg.Worker.ToolchainVersion)
			}
			return nil
		}
		return w.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
	workerCmd.Flags().String("toolchain-version", "", "Toolchain version to build for (overrides worker.toolchain_version)")
	workerCmd.Flags().String("api", "", "Build API base URL (overrides worker.api_url)")
	workerCmd.Flags().Bool("once", false, "Claim and build at most one job, then exit")
}
