package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/drivesink/drivesink/internal/httpapi"
	"github.com/drivesink/drivesink/internal/logging"
	"github.com/drivesink/drivesink/internal/utils"
)

var serveFlags struct {
	listenAddr string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the sync trigger over HTTP",
	Long: `Serve starts an HTTP server exposing GET/POST /v1/sync, so a timer or
external scheduler can trigger reconciliation runs. Per-request boolean
overrides (force_full_sync, dry_run, delete_orphaned_objects,
sync_permissions) accept 1/0, true/false and yes/no.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(utils.ExitConfigError)
		}
		if serveFlags.listenAddr != "" {
			cfg.ListenAddr = serveFlags.listenAddr
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		engine, runCfg, cleanup, err := buildTarget(ctx, cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(utils.ExitFatal)
		}
		defer cleanup()

		handler := httpapi.NewServer(engine, runCfg, logger)
		srv := &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("http trigger listening", logging.F("addr", cfg.ListenAddr))
			errCh <- srv.ListenAndServe()
		}()

		select {
		case <-ctx.Done():
			logger.Info("shutting down http trigger")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}
			return nil
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		}
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.listenAddr, "listen", "", "Bind address for the HTTP trigger (default from config)")
	rootCmd.AddCommand(serveCmd)
}
