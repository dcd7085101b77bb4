package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/urisubmit/urisubmit/internal/server"
	"github.com/urisubmit/urisubmit/internal/telemetry"
)

func newServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Start the submission web server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			cfg, err := loadLocalConfig(configFlag(cmd))
			if err != nil {
				return err
			}
			slog.SetDefault(telemetry.NewLogger(os.Stderr, cfg.Logging))

			shutdown, err := telemetry.SetupTracing(ctx, cfg.Tracing)
			if err != nil {
				return err
			}
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					slog.Warn("tracing shutdown", "error", err)
				}
			}()

			s, err := server.New(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "urisubmit server listening on %s\n", s.Addr())
			return s.Run(ctx)
		},
	}
}
