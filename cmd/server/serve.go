package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/prperemyshlev/identity-service/internal/app"
	"github.com/prperemyshlev/identity-service/internal/config"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}

	infra, err := app.NewInfrastructure(ctx, *cfg)
	if err != nil {
		return oops.Code("INFRASTRUCTURE_FAILED").Wrap(err)
	}

	application, err := app.NewApp(ctx, infra, cfg)
	if err != nil {
		_ = infra.Shutdown(context.Background())
		return oops.Code("APP_INIT_FAILED").Wrap(err)
	}

	if err := application.Run(ctx); err != nil {
		infra.Logger().Error("Application failed", zap.Error(err))
		return err
	}
	return nil
}
