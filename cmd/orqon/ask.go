package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"orqon-dispatch/internal/app"
	apperrors "orqon-dispatch/internal/common/errors"
)

var (
	askSession string
	askJSON    bool
)

var askCmd = &cobra.Command{
	Use:   "ask <text>",
	Short: "Send one query through the dispatcher and print the answer",
	Args:  cobra.MinimumNArgs(1),
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

		sid := askSession
		if sid == "" {
			sid = uuid.NewString()
		}
		resp, err := a.Dispatcher.Process(ctx, strings.Join(args, " "), sid)
		if resp == nil {
			return fmt.Errorf("%s", apperrors.UserMessage(err))
		}
		if err != nil && apperrors.IsValidation(err) {
			return fmt.Errorf("%s", resp.ResponseText)
		}

		out := cmd.OutOrStdout()
		if askJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		}
		fmt.Fprintln(out, resp.ResponseText)
		fmt.Fprintf(cmd.ErrOrStderr(), "[session %s, handler %s, outcome %s]\n", sid, resp.Handler, resp.Kind)
		return nil
	},
}

func init() {
	askCmd.Flags().StringVar(&askSession, "session", "", "session id (default: a new random id)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the full response as JSON")
	rootCmd.AddCommand(askCmd)
}
