// Package cli implements the marketplace command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/motorlot/marketplace/internal/app"
	"github.com/motorlot/marketplace/internal/config"
)

// DefaultConfigPath is read when --config is not given. It may be absent.
const DefaultConfigPath = "config.yaml"

type runtimeState struct {
	configPath string
	cfg        *config.Config
}

type runtimeKey struct{}

// NewRootCommand creates the root command with all subcommands.
func NewRootCommand() *cobra.Command {
	rt := &runtimeState{}

	root := &cobra.Command{
		Use:          "marketplace",
		Short:        "Vehicle marketplace API and email queue",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}

			cfg, err := config.Load(rt.configPath)
			if err != nil {
				return err
			}
			rt.cfg = cfg
			slog.SetDefault(app.NewLogger(cfg.Log))
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&rt.configPath, "config", "c", DefaultConfigPath, "Path to config file")
	root.SetContext(context.WithValue(context.Background(), runtimeKey{}, rt))

	root.AddCommand(
		newServeCommand(),
		newMigrateCommand(),
		newProcessCommand(),
		newCleanupCommand(),
		newVersionCommand(),
	)

	return root
}

func getConfig(cmd *cobra.Command) (*config.Config, error) {
	rt, ok := cmd.Context().Value(runtimeKey{}).(*runtimeState)
	if !ok || rt == nil || rt.cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return rt.cfg, nil
}

// withQueue connects to the database and runs fn with the email queue.
func withQueue(cmd *cobra.Command, fn func(ctx context.Context, cfg *config.Config, queue *app.Queue) error) error {
	cfg, err := getConfig(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	db, err := app.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	queue, err := app.NewQueue(cfg, db)
	if err != nil {
		return fmt.Errorf("create queue: %w", err)
	}

	return fn(ctx, cfg, queue)
}
