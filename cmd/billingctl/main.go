package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/storycraft/billing/internal/app/apiapp"
	"github.com/storycraft/billing/internal/config"
	"github.com/storycraft/billing/internal/infra/logger"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:          "billingctl",
		Short:        "Operate the billing pipeline: repair activations, migrate, issue tokens",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "config file path")

	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(confirmCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tokenCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	if v := os.Getenv("APP_CONFIG"); v != "" {
		return v
	}
	return "configs/config.yaml"
}

// env bundles what every subcommand needs.
type env struct {
	cfg        config.Config
	log        *zap.Logger
	components *apiapp.Components
}

func setup(ctx context.Context) (*env, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.Log, cfg.Env)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	log = log.Named("billingctl")

	components, err := apiapp.BuildComponents(ctx, cfg, log)
	if err != nil {
		_ = log.Sync()
		return nil, nil, err
	}

	cleanup := func() {
		_ = components.Close()
		_ = log.Sync()
	}
	return &env{cfg: cfg, log: log, components: components}, cleanup, nil
}
