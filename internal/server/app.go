// Package server wires and runs the development back end: the identity
// provider, the messaging sandbox and the metrics endpoint, each on its own
// listener, shut down together when the context ends.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/atlasmessenger/internal/logging"
	"github.com/dmitrijs2005/atlasmessenger/internal/server/auth"
	"github.com/dmitrijs2005/atlasmessenger/internal/server/config"
	"github.com/dmitrijs2005/atlasmessenger/internal/server/db"
	"github.com/dmitrijs2005/atlasmessenger/internal/server/httpapi"
	"github.com/dmitrijs2005/atlasmessenger/internal/server/metrics"
	"github.com/dmitrijs2005/atlasmessenger/internal/server/sandbox"
	"github.com/dmitrijs2005/atlasmessenger/internal/server/users"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// Listener names accepted by Addr.
const (
	IdentityListener = "identity"
	SandboxListener  = "sandbox"
	MetricsListener  = "metrics"
)

type endpoint struct {
	name     string
	addr     string
	server   *http.Server
	listener net.Listener
}

type App struct {
	config    *config.Config
	logger    logging.Logger
	repos     db.RepositoryManager
	endpoints []*endpoint
}

// NewApp opens storage, applies migrations and builds the HTTP servers.
func NewApp(ctx context.Context, cfg *config.Config, logger logging.Logger) (*App, error) {
	repos, err := db.New(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := repos.RunMigrations(ctx); err != nil {
		_ = repos.Close()
		return nil, fmt.Errorf("db migrations error: %w", err)
	}

	issuer := auth.NewIssuer([]byte(cfg.SecretKey))
	m := metrics.New()

	svc := users.NewService(repos.Users(), issuer, cfg.IdentityTokenTTL, cfg.RefreshWindow, logger.With("component", "users"))
	platform := sandbox.New(cfg.AppID, issuer,
		sandbox.WithNonceTTL(cfg.NonceTTL),
		sandbox.WithSessionTTL(cfg.SessionTokenTTL),
	)

	app := &App{config: cfg, logger: logger, repos: repos}
	app.add(IdentityListener, cfg.IdentityAddr, httpapi.NewIdentityRouter(svc, logger.With("server", IdentityListener), m))
	app.add(SandboxListener, cfg.SandboxAddr, httpapi.NewSandboxRouter(platform, logger.With("server", SandboxListener), m))
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		app.add(MetricsListener, cfg.MetricsAddr, mux)
	}
	return app, nil
}

func (a *App) add(name, addr string, h http.Handler) {
	a.endpoints = append(a.endpoints, &endpoint{
		name:   name,
		addr:   addr,
		server: &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second},
	})
}

// Listen binds every endpoint. Already bound endpoints are closed when one
// of them fails.
func (a *App) Listen() error {
	for _, e := range a.endpoints {
		l, err := net.Listen("tcp", e.addr)
		if err != nil {
			a.closeListeners()
			return fmt.Errorf("listen %s on %s: %w", e.name, e.addr, err)
		}
		e.listener = l
	}
	return nil
}

func (a *App) closeListeners() {
	for _, e := range a.endpoints {
		if e.listener != nil {
			_ = e.listener.Close()
			e.listener = nil
		}
	}
}

// Addr returns the bound address of the named listener, or "" before Listen.
func (a *App) Addr(name string) string {
	for _, e := range a.endpoints {
		if e.name == name && e.listener != nil {
			return e.listener.Addr().String()
		}
	}
	return ""
}

// Serve runs all servers until ctx is done or one of them fails, then shuts
// the others down gracefully and closes storage.
func (a *App) Serve(ctx context.Context) error {
	defer func() {
		if err := a.repos.Close(); err != nil {
			a.logger.Warn(ctx, "closing storage failed", "error", err)
		}
	}()

	g, gCtx := errgroup.WithContext(ctx)

	for _, e := range a.endpoints {
		g.Go(func() error {
			a.logger.Info(gCtx, "listening", "server", e.name, "addr", e.listener.Addr().String())
			if err := e.server.Serve(e.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("%s server: %w", e.name, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info(ctx, "shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		for _, e := range a.endpoints {
			if err := e.server.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("%s shutdown: %w", e.name, err))
			}
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

// Run listens and serves until ctx is done.
func (a *App) Run(ctx context.Context) error {
	if err := a.Listen(); err != nil {
		return err
	}
	return a.Serve(ctx)
}
