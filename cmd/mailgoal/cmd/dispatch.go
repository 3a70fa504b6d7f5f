package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mailgoal/mailgoal/internal/app"
	"github.com/mailgoal/mailgoal/internal/config"
	"github.com/mailgoal/mailgoal/internal/logger"
	"github.com/mailgoal/mailgoal/internal/storage"
)

func DispatchCmd() *cobra.Command {
	var reportURL bool

	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Run one reminder batch and print its report as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDispatch(cmd.Context(), reportURL)
		},
	}
	cmd.Flags().BoolVar(&reportURL, "report-url", false, "Print a presigned link to the archived report")

	return cmd
}

func runDispatch(ctx context.Context, reportURL bool) error {
	cfg := config.Load()
	logger.Init(cfg.IsDevelopment(), cfg.SentryDSN, cfg.AppEnv)
	defer logger.Flush()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.BatchTimeout)
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.Dispatcher.Run(ctx, cfg.CronSecret)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	err = enc.Encode(report)
	if err != nil {
		return err
	}

	if !reportURL {
		return nil
	}
	archive, ok := a.Archive.(*storage.S3Archive)
	if !ok {
		return fmt.Errorf("report archive is not configured, set S3_BUCKET")
	}
	link, err := archive.ReportURL(context.WithoutCancel(ctx), report)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "report:", link)
	return nil
}
