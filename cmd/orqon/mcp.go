package main

import (
	"context"

	"github.com/spf13/cobra"

	"orqon-dispatch/internal/app"
	"orqon-dispatch/internal/transport"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the dispatcher as MCP tools over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		// stdout carries MCP frames
		log := newLogger(cfg, "stderr")
		ctx := context.Background()

		a, err := app.New(ctx, cfg, log, app.WithoutTelemetry())
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		log.Info("MCP server on stdio", map[string]interface{}{"name": cfg.App.Name})
		return transport.NewMCPServer(cfg.App.Name, cfg.App.Version, a.Dispatcher).Serve()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
