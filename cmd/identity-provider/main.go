// Command identity-provider runs the development back end: the identity
// provider, the messaging sandbox and a prometheus endpoint.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/atlasmessenger/internal/buildinfo"
	"github.com/dmitrijs2005/atlasmessenger/internal/logging"
	"github.com/dmitrijs2005/atlasmessenger/internal/server"
	"github.com/dmitrijs2005/atlasmessenger/internal/server/config"
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	logger := logging.New(os.Stdout, logging.FormatJSON, cfg.LogLevel)

	app, err := server.NewApp(ctx, cfg, logger)
	if err != nil {
		return err
	}

	logger.Info(ctx, "starting identity provider", "version", buildinfo.Version())
	return app.Run(ctx)
}
