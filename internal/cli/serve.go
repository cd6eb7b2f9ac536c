package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaiso/Flowstack/internal/app"
	"github.com/shaiso/Flowstack/internal/config"
	"github.com/shaiso/Flowstack/internal/telemetry"
)

// NewServeCmd создаёт команду запуска сервера: HTTP API, планировщик
// и запись истории. configPath указывает на значение флага --config.
func NewServeCmd(configPath *string) *cobra.Command {
	var addr string
	var storage string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server, scheduler and history persister",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
			}
			if storage != "" {
				cfg.Storage.Driver = storage
				if err := cfg.Validate(); err != nil {
					return err
				}
			}

			logger := telemetry.SetupLoggerWith(telemetry.ParseLevel(cfg.Log.Level), cfg.Log.Format)
			logger.Info("starting flowstack", "addr", cfg.HTTP.Addr, "storage", cfg.Storage.Driver)

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}

			if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides config)")
	cmd.Flags().StringVar(&storage, "storage", "", "Storage driver: postgres, badger or memory (overrides config)")

	return cmd
}
