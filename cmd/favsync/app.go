package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"favsync/pkg/auth"
	"favsync/pkg/config"
	"favsync/pkg/logger"
	"favsync/pkg/ratelimit"
	"favsync/pkg/remote"
	"favsync/pkg/state"
	"favsync/pkg/storage"
	"favsync/pkg/ui"
)

// app bundles what every mirror command needs.
type app struct {
	cfg    *config.Config
	log    logger.Logger
	runID  string
	store  *state.Store
	files  *storage.Manager
	client *remote.Client
}

// setup opens everything setupLocal does plus a remote client, logged in
// when credentials are known. It exits the process on any failure.
func setup(ctx context.Context, flags map[string]interface{}) *app {
	a := setupLocal(flags)
	a.connect(ctx)
	return a
}

// setupLocal loads configuration and opens the state store and the file
// tree. The remote client stays nil.
func setupLocal(flags map[string]interface{}) *app {
	for k, v := range globalFlags() {
		if _, ok := flags[k]; !ok {
			flags[k] = v
		}
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		ui.PrintError("Configuration error", err.Error())
		os.Exit(1)
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		ui.PrintError("Failed to initialize logger", err.Error())
		os.Exit(1)
	}
	log, runID := logger.WithRunID(logger.GetLogger())
	logger.SetLogger(log)

	if err := cfg.EnsureDirectories(); err != nil {
		ui.PrintError("Failed to create output directories", err.Error())
		os.Exit(1)
	}

	store, err := state.Open(cfg.Storage.Database, log)
	if err != nil {
		if errors.Is(err, state.ErrLocked) {
			ui.PrintError("Another favsync run is using this database", cfg.Storage.Database)
		} else {
			ui.PrintError("Failed to open state database", err.Error())
		}
		os.Exit(1)
	}
	if store.Quarantined() {
		ui.PrintWarning("State database was unreadable and has been reset, old file kept at", cfg.Storage.Database+".bak")
	}

	files, err := storage.NewManager(cfg.Download.OutputDir)
	if err != nil {
		store.Close()
		ui.PrintError("Failed to prepare output directory", err.Error())
		os.Exit(1)
	}

	return &app{cfg: cfg, log: log, runID: runID, store: store, files: files}
}

func (a *app) connect(ctx context.Context) {
	cfg, log := a.cfg, a.log
	resolveCredentials(cfg, log)

	client, err := remote.New(remote.Options{
		BaseURL:   cfg.Remote.BaseURL,
		UserAgent: cfg.Remote.UserAgent,
		Timeout:   cfg.Remote.Timeout,
		Username:  cfg.Remote.Username,
		Password:  cfg.Remote.Password,
		Limiter:   ratelimit.NewTokenBucket(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.BurstSize),
	}, log)
	if err != nil {
		a.store.Close()
		ui.PrintError("Failed to create remote client", err.Error())
		os.Exit(1)
	}

	if cfg.Remote.Username != "" {
		if err := client.Authenticate(ctx, cfg.Remote.Username, cfg.Remote.Password); err != nil {
			log.WithError(err).Warn("login failed, continuing without a session")
		} else {
			log.InfoWithFields("logged in", map[string]interface{}{"username": cfg.Remote.Username})
		}
	}
	a.client = client
}

// resolveCredentials fills in the login from the credential store when
// neither the config file, the environment nor the flags supplied one.
func resolveCredentials(cfg *config.Config, log logger.Logger) {
	if cfg.Remote.Username != "" && cfg.Remote.Password != "" {
		return
	}

	manager, err := auth.NewManager()
	if err != nil {
		log.WithError(err).Debug("credential store unavailable")
		return
	}
	account, err := manager.Lookup(cfg.Remote.Username)
	if err != nil || account == nil {
		log.Debug("no stored credentials, running anonymously")
		return
	}
	cfg.Remote.Username = account.Username
	cfg.Remote.Password = account.Password
	log.DebugWithFields("using stored credentials", map[string]interface{}{"username": account.Username})
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.WithError(err).Warn("failed to close state database")
	}
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
