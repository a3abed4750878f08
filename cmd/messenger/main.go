package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/atlasmessenger/internal/buildinfo"
	"github.com/dmitrijs2005/atlasmessenger/internal/client/cli"
	"github.com/dmitrijs2005/atlasmessenger/internal/client/config"
	"github.com/dmitrijs2005/atlasmessenger/internal/client/controller"
	"github.com/dmitrijs2005/atlasmessenger/internal/client/identity"
	"github.com/dmitrijs2005/atlasmessenger/internal/client/layer"
	"github.com/dmitrijs2005/atlasmessenger/internal/client/persistence"
	"github.com/dmitrijs2005/atlasmessenger/internal/logging"
)

func main() {
	buildinfo.PrintBuildData(os.Stdout)

	if err := run(); err != nil {
		log.Fatalf("%v", err)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := logging.New(os.Stderr, logging.FormatText, slog.LevelWarn)

	provider, err := identity.NewProvider(cfg.IdentityProviderURL, "",
		identity.WithTimeout(cfg.HTTPTimeout),
		identity.WithLogger(logger.With("component", "identity")))
	if err != nil {
		return err
	}
	logger.Info(ctx, "identity provider configured", "url", provider.BaseURL(), "app_id", cfg.AppID)

	store, err := persistence.New(ctx, persistence.Options{Mode: cfg.PersistenceMode, Dir: cfg.DataDir})
	if err != nil {
		return err
	}
	defer store.Close()

	factory := layer.NewRESTFactory(cfg.MessagingEndpoint,
		layer.WithTimeout(cfg.HTTPTimeout),
		layer.WithLogger(logger.With("component", "layer")))

	dispatcher := controller.NewSerialDispatcher()
	defer dispatcher.Close()

	ctrl, err := controller.NewLayerController(ctx, provider, store, factory,
		controller.WithDispatcher(dispatcher),
		controller.WithLogger(logger.With("component", "controller")))
	if err != nil {
		return err
	}
	defer ctrl.Close()

	return cli.NewApp(ctrl, os.Stdin).Run(ctx, cfg.AppID)
}
