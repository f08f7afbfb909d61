package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"orqon-dispatch/internal/app"
	"orqon-dispatch/internal/common/config"
	"orqon-dispatch/internal/transport"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP and WebSocket API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := newLogger(cfg)
		log.Info("Starting orqon...", map[string]interface{}{"version": cfg.App.Version, "environment": cfg.App.Environment})

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := app.New(ctx, cfg, log)
		if err != nil {
			return err
		}

		addr := cfg.Server.Address
		if serveAddr != "" {
			addr = serveAddr
		}
		srv := transport.NewServer(transport.Options{
			Address:         addr,
			AllowedOrigins:  cfg.Server.AllowedOrigins,
			ReadTimeout:     config.GetDuration(cfg.Server.ReadTimeout),
			WriteTimeout:    config.GetDuration(cfg.Server.WriteTimeout),
			ServiceName:     cfg.App.Name,
			Version:         cfg.App.Version,
			ReadinessChecks: a.Checks(),
		}, a.Dispatcher, log.With(map[string]interface{}{"component": "http"}))

		errCh := make(chan error, 1)
		go func() {
			log.Info("HTTP server listening", map[string]interface{}{"address": addr})
			errCh <- srv.Start()
		}()

		select {
		case <-ctx.Done():
			log.Info("Shutdown signal received, stopping...", nil)
		case err = <-errCh:
			if err != nil {
				log.Error("HTTP server failed", map[string]interface{}{"error": err.Error()})
			}
		}

		shutdownTimeout := config.GetDuration(cfg.Server.ShutdownTimeout)
		if shutdownTimeout <= 0 {
			shutdownTimeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			log.Warn("HTTP shutdown incomplete", map[string]interface{}{"error": serr.Error()})
		}
		a.Close(shutdownCtx)
		log.Info("orqon stopped", nil)
		return err
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.address)")
	rootCmd.AddCommand(serveCmd)
}
