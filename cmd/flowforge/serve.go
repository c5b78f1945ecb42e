package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aretw0/flowforge"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the build API",
	Long: `Starts the HTTP server that accepts build requests, hands jobs to workers
and records deploy approvals. With --worker a build worker runs in the same
process against the same store.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Server.Addr = addr
		}
		withWorker, _ := cmd.Flags().GetBool("worker")

		eng, err := flowforge.New(cfg, flowforge.WithLogger(logger))
		if err != nil {
			return err
		}
		defer eng.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           eng.Server().Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("build API listening", "addr", srv.Addr, "store", cfg.Server.Store)
			serverErrors <- srv.ListenAndServe()
		}()

		workerDone := make(chan error, 1)
		if withWorker {
			go func() { workerDone <- eng.Worker().Run(ctx) }()
		} else {
			close(workerDone)
		}

		select {
		case err := <-serverErrors:
			stop()
			<-workerDone
			return fmt.Errorf("server error: %w", err)
		case <-ctx.Done():
		}

		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("graceful shutdown did not complete", "err", err)
			_ = srv.Close()
		}
		<-workerDone
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (overrides server.addr)")
	serveCmd.Flags().Bool("worker", false, "Also run a build worker in this process")
}
