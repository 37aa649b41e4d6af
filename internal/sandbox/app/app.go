package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/aussiebroadwan/checkout/internal/sandbox/gateway"
	"github.com/aussiebroadwan/checkout/internal/sandbox/ledger"
	"github.com/aussiebroadwan/checkout/pkg/slogx"
	"golang.org/x/sync/errgroup"
)

// BuildVersion is overridden at build time with -ldflags.
var BuildVersion = "v0.1.0"

// Application is the sandbox gateway process.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db      *ledger.Store
	gateway *gateway.Gateway
	keeper  *ledger.Housekeeper

	server *http.Server
}

// New wires the application. The logger is built from cfg when nil.
func New(cfg Config, logger *slog.Logger) (*Application, error) {
	if logger == nil {
		logger = slogx.New(slogx.Config{
			Service: "checkout-sandbox",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		})
	}

	app := &Application{cfg: cfg, logger: logger}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	app.gateway = gateway.New(gateway.Options{
		PublicURL:      cfg.PublicURL,
		PublicKeys:     cfg.PublicKeys,
		AllowedOrigins: cfg.AllowedOrigins,
		SessionTTL:     cfg.SessionTTL,
		MethodStep:     cfg.MethodStep,
		Version:        BuildVersion,
	}, app.db, slogx.Named(logger, "gateway"))

	app.keeper = ledger.NewHousekeeper(app.db, slogx.Named(logger, "housekeeping"),
		cfg.HousekeepingEvery, cfg.LedgerRetention)

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           app.gateway,
		ReadHeaderTimeout: 3 * time.Second,
	}

	return app, nil
}

// Handler is the gateway's HTTP handler, for tests and embedding.
func (app *Application) Handler() http.Handler { return app.gateway }

// Run serves until ctx is done, then shuts down gracefully.
func (app *Application) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", app.server.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return app.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (app *Application) Serve(ctx context.Context, ln net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)

	app.logger.Info("checkout sandbox starting",
		"addr", ln.Addr().String(),
		"public_url", app.cfg.PublicURL,
		"ws_url", app.cfg.WSURL(),
		"version", BuildVersion,
	)

	g.Go(func() error {
		if err := app.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error { return app.gateway.Janitor(ctx) })
	g.Go(func() error { return app.keeper.Run(ctx) })
	g.Go(func() error {
		<-ctx.Done()
		return app.shutdown()
	})

	err := g.Wait()

	if cerr := app.db.Close(); cerr != nil {
		app.logger.Error("error closing database", "error", cerr)
	}
	app.logger.Info("checkout sandbox stopped")
	return err
}

func (app *Application) shutdown() error {
	app.logger.Info("shutting down checkout sandbox")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	app.gateway.Shutdown()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if cerr := app.server.Close(); cerr != nil {
			app.logger.Error("error closing server", "error", cerr)
		}
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func (app *Application) initDatabase() error {
	db, err := ledger.NewStore(ledger.DSN(app.cfg.DatabaseFile))
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply ledger migrations: %w", err)
	}

	app.db = db
	app.logger.Info("ledger migrations applied", "file", app.cfg.DatabaseFile)
	return nil
}
