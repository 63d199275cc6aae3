package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zime-ai/nucleus/internal/server"
	"github.com/zime-ai/nucleus/internal/version"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			db, err := ctx.openDB(signalCtx)
			if err != nil {
				logger.Error("open database", zap.Error(err))
				return err
			}
			defer db.Close()

			srv, err := server.NewServer(db, cfg, logger)
			if err != nil {
				return err
			}
			logger.Info("starting nucleus",
				zap.String("version", version.Version),
				zap.String("db_path", cfg.DBPath),
				zap.String("allowed_domain", cfg.Auth.AllowedDomain))
			return srv.Run(signalCtx)
		},
	}
}
