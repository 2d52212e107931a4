package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/life-stream-dev/life-stream-go-jtp/internal/auth"
	"github.com/life-stream-dev/life-stream-go-jtp/internal/database"
	"github.com/life-stream-dev/life-stream-go-jtp/internal/event"
	"github.com/life-stream-dev/life-stream-go-jtp/internal/logger"
	"github.com/life-stream-dev/life-stream-go-jtp/internal/registry"
	"github.com/life-stream-dev/life-stream-go-jtp/internal/server"
	"github.com/life-stream-dev/life-stream-go-jtp/internal/utils"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	loggerCallback := logger.Init(cfg)
	logger.Debug("Application initializing...")
	cleaner := event.NewCleaner(loggerCallback)
	if grace := cfg.Server.ShutdownGraceDuration(); grace > 0 {
		cleaner.SetTimeout(grace)
	}
	defer cleaner.Clean()

	static, err := auth.StaticCredentialsFromConfig(cfg.Server.Credentials)
	if err != nil {
		logger.FatalF("Error occured while loading credentials, details: %v", err)
		return err
	}
	credentials := auth.ChainStore{static}

	if cfg.Database.Enabled {
		db, err := database.Connect(context.Background(), cfg)
		if err != nil {
			logger.FatalF("Error occured while initializing database, details: %v", err)
			return err
		}
		cleaner.Add(db)
		credentials = append(credentials, database.NewDBStore(db, cfg.Database.CacheSize, utils.MustParseStringTime(cfg.Database.CacheTTL)))
	}

	reg := registry.New()
	if err := server.RegisterBuiltins(reg); err != nil {
		return err
	}

	srv := server.New(server.OptionsFromConfig(cfg.Server), reg, credentials)
	if err := srv.Listen(); err != nil {
		logger.FatalF("Error occured while starting server, details: %v", err)
		return err
	}
	cleaner.Add(srv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve() }()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
		return nil
	case err := <-serveErr:
		if errors.Is(err, server.ErrServerClosed) {
			return nil
		}
		logger.ErrorF("Server stopped unexpectedly, details: %v", err)
		return err
	}
}
