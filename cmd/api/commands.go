package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/novacrm/auth-service/internal/infra/app"
	"github.com/novacrm/auth-service/internal/infra/config"
	"github.com/novacrm/auth-service/internal/infra/database"
	"github.com/novacrm/auth-service/internal/infra/logger"
)

const defaultEnvFile = ".env"

// NewRootCmd builds the CLI. Running it without a subcommand starts the API server.
func NewRootCmd() *cobra.Command {
	var envFile string

	serve := newServeCmd()
	cmd := &cobra.Command{
		Use:          "auth-api",
		Short:        "NOVA CRM authentication service",
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return loadEnvFile(envFile)
		},
		RunE: serve.RunE,
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", defaultEnvFile, "dotenv file loaded before reading configuration")

	cmd.AddCommand(serve, newMigrateCmd())
	return cmd
}

// loadEnvFile applies a dotenv file. A missing default file is fine; a missing explicit one is not.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err == nil || (path == defaultEnvFile && errors.Is(err, fs.ErrNotExist)) {
		return nil
	}
	return fmt.Errorf("load %s: %w", path, err)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			application, err := app.New(ctx, cfg)
			if err != nil {
				return fmt.Errorf("init app: %w", err)
			}
			return application.Run(ctx)
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			log, err := logger.New(cfg.App.Name, cfg.App.Env)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer func() { _ = log.Sync() }()

			ctx := cmd.Context()
			pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := database.RunMigrations(ctx, pool, log); err != nil {
				log.Error("migration failed", zap.Error(err))
				return err
			}
			return nil
		},
	}
}
