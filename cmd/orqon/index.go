package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"orqon-dispatch/internal/app"
)

var knowledgeFile string

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Rebuild the client-name similarity index and seed the compliance knowledge base",
	Long: `index re-embeds every client name from the record source and persists the
index to resolver.persist_path. With --knowledge it also loads a JSON array
of compliance articles into Elasticsearch.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := newLogger(cfg, "stderr")
		ctx := context.Background()

		a, err := app.New(ctx, cfg, log, app.WithoutTelemetry())
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		out := cmd.OutOrStdout()
		records, indexed, err := a.RebuildIndex(ctx)
		if err != nil {
			return fmt.Errorf("rebuilding index: %w", err)
		}
		fmt.Fprintf(out, "Indexed %d client names from %d records\n", indexed, records)

		if knowledgeFile != "" {
			n, err := a.SeedKnowledge(ctx, knowledgeFile)
			if err != nil {
				return fmt.Errorf("seeding knowledge base: %w", err)
			}
			fmt.Fprintf(out, "Loaded %d compliance articles\n", n)
		}
		return nil
	},
}

func init() {
	indexCmd.Flags().StringVar(&knowledgeFile, "knowledge", "", "JSON file of compliance articles to index")
	rootCmd.AddCommand(indexCmd)
}
