package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"paycycle/internal/app"
)

func newDispatchCmd() *cobra.Command {
	var (
		cfgPath string
		window  int
	)
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Run one reminder dispatch pass and exit",
		Long: `Run one reminder dispatch pass and exit.

Selects occurrences due within the window, sends push notifications and
stamps the sent markers, then prints the run report as JSON. Intended for
deployments that drive dispatch from cron instead of the built-in trigger.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			report, err := app.RunDispatch(ctx, cfgPath, window)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "config.yaml", "path to the config file")
	cmd.Flags().IntVarP(&window, "window", "w", 0, "look-ahead window in minutes (0 uses dispatch.window_minutes)")
	return cmd
}
