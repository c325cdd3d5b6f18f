package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/motorlot/marketplace/internal/app"
	"github.com/motorlot/marketplace/internal/config"
	"github.com/motorlot/marketplace/internal/pkg/postgres"
	"github.com/motorlot/marketplace/internal/version"
)

const shutdownTimeout = 30 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}

			application, err := app.New(cfg)
			if err != nil {
				return fmt.Errorf("init app: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				errCh <- application.Run()
			}()

			select {
			case err = <-errCh:
			case <-ctx.Done():
				slog.Info("shutdown signal received")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			return errors.Join(err, application.Shutdown(shutdownCtx))
		},
	}
}

func newMigrateCommand() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.Database.MigrationsPath
			}
			return postgres.Migrate(cfg.Database.URL, dir)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Migrations directory (defaults to database.migrations_path)")

	return cmd
}

func newProcessCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Run one email queue sweep",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withQueue(cmd, func(ctx context.Context, _ *config.Config, queue *app.Queue) error {
				result, err := queue.Manager.ProcessQueue(ctx, limit)
				if printErr := printJSON(cmd, result); printErr != nil {
					return printErr
				}
				return err
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum entries to send (defaults to queue.batch_size)")

	return cmd
}

func newCleanupCommand() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete sent and failed email queue entries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withQueue(cmd, func(ctx context.Context, cfg *config.Config, queue *app.Queue) error {
				if days == 0 {
					days = cfg.Queue.RetentionDays
				}
				deleted, err := queue.Manager.Cleanup(ctx, days)
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]int64{"deleted": deleted})
			})
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "Delete entries older than this many days (defaults to queue.retention_days)")

	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "marketplace %s\n", version.String())
			return err
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
