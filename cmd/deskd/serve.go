package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantfold/deskd"
	"github.com/quantfold/deskd/internal/logger"
	"github.com/quantfold/deskd/internal/store"
	"github.com/quantfold/deskd/internal/store/sqlite"
	"github.com/quantfold/deskd/internal/supervisor"
)

func newServeCmd() *cobra.Command {
	var f ServeFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the supervisor daemon",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runServe(f)
		},
	}
	cmd.Flags().StringVarP(&f.ConfigPath, "config", "c", "/config/deskd.toml", "path to TOML config")
	return cmd
}

func runServe(f ServeFlags) error {
	cfg, err := deskd.LoadConfig(f.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	specs, err := cfg.Specs()
	if err != nil {
		return err
	}

	log := logger.NewSupervisorLogger(cfg.Supervisor.LogLevel)

	var journal store.Store
	if path := cfg.Supervisor.JournalPath; path != "" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return fmt.Errorf("journal dir: %w", err)
			}
		}
		db, err := sqlite.New(path)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer func() { _ = db.Close() }()
		journal = db
	}

	sup, err := deskd.New(specs, supervisor.Options{
		Logger:      log,
		Journal:     journal,
		GlobalEnv:   cfg.Env,
		StopTimeout: cfg.Supervisor.StopTimeout,
	})
	if err != nil {
		return err
	}

	if err := deskd.RegisterMetricsDefault(); err != nil {
		log.Warn("metrics registration failed", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- sup.Run(ctx) }()

	server := deskd.NewHTTPServer(cfg.Supervisor.Listen, "/api", sup)
	log.Info("control API listening", "addr", cfg.Supervisor.Listen)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	case <-sup.Done():
	}

	<-sup.Done()
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutCancel()
	_ = server.Shutdown(shutCtx)
	return <-runErr
}

func newValidateCmd() *cobra.Command {
	var f ServeFlags
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the config and print the computed start order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := deskd.LoadConfig(f.ConfigPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			specs, err := cfg.Specs()
			if err != nil {
				return err
			}
			sup, err := deskd.New(specs, supervisor.Options{})
			if err != nil {
				return err
			}
			cmd.Printf("config ok: %d processes\n", len(specs))
			cmd.Printf("start order: %v\n", sup.Order())
			return nil
		},
	}
	cmd.Flags().StringVarP(&f.ConfigPath, "config", "c", "/config/deskd.toml", "path to TOML config")
	return cmd
}
