// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/parkwatch/internal/api"
	"github.com/starford/parkwatch/internal/codec"
	"github.com/starford/parkwatch/internal/issueservice"
	"github.com/starford/parkwatch/internal/kv"
	"github.com/starford/parkwatch/internal/mcpserver"
	"github.com/starford/parkwatch/internal/models"
	"github.com/starford/parkwatch/internal/recordstore"
	"github.com/starford/parkwatch/internal/sse"
	"github.com/starford/parkwatch/internal/watcher"
)

// deps is everything below the presentation layers.
type deps struct {
	logger *slog.Logger
	store  *recordstore.Store
	codec  codec.Codec
	close  func() error
}

func newApplication(opts []Option) (*application, error) {
	app := &application{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// setup initializes logging, the ledger backend, the codec and the record store.
func (a *application) setup() (*deps, error) {
	cfg := a.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(a.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("ledger_driver", cfg.Ledger.Driver),
		slog.String("ledger_path", cfg.Ledger.Path),
		slog.Bool("read_only", cfg.Ledger.Account == ""),
		slog.String("codec", cfg.Codec.Kind),
		slog.String("consistency", cfg.Store.Consistency),
		slog.String("log_level", cfg.App.LogLevel.String()))

	backend, closeFn := a.backend, func() error { return nil }
	if backend == nil {
		var err error
		backend, closeFn, err = kv.Open(cfg.Ledger.Driver, cfg.Ledger.Path)
		if err != nil {
			return nil, fmt.Errorf("init ledger: %w", err)
		}
	}
	signer := kv.NewSigner(backend, cfg.Ledger.Account)
	if cfg.Ledger.Account == "" {
		logger.Warn("no ledger account configured, running read-only")
	}

	c, err := newCodec(cfg.Codec)
	if err != nil {
		_ = closeFn()
		return nil, fmt.Errorf("init codec: %w", err)
	}

	mode, err := recordstore.ParseConsistency(cfg.Store.Consistency)
	if err != nil {
		_ = closeFn()
		return nil, err
	}
	store, err := recordstore.New(signer,
		recordstore.WithLogger(logger),
		recordstore.WithConsistency(mode),
		recordstore.WithMaxRetries(cfg.Store.MaxRetries),
	)
	if err != nil {
		_ = closeFn()
		return nil, fmt.Errorf("init record store: %w", err)
	}

	return &deps{logger: logger, store: store, codec: c, close: closeFn}, nil
}

// newCodec builds the payload codec selected by cfg.
func newCodec(cfg CodecConfig) (codec.Codec, error) {
	switch cfg.Kind {
	case CodecAge:
		if cfg.IdentityFile != "" {
			return codec.LoadAgeIdentity(cfg.IdentityFile)
		}
		return codec.NewAgeRecipient(cfg.Recipient)
	case CodecLabel, "":
		return codec.NewLabel(cfg.Label), nil
	default:
		return nil, fmt.Errorf("unknown codec %q", cfg.Kind)
	}
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	d, err := app.setup()
	if err != nil {
		return err
	}
	defer func() {
		if err := d.close(); err != nil {
			d.logger.Error("ledger close failed", slog.String("error", err.Error()))
		}
	}()
	logger := d.logger

	// SSE broker; stats.updated carries the tally re-derived from the ledger.
	broker := sse.NewBroker(cfg.Events.StatsThrottle,
		sse.WithLogger(logger),
		sse.WithStats(func(ctx context.Context) (models.StatusCounts, error) {
			all, err := d.store.ReadAll(ctx)
			if err != nil {
				return models.StatusCounts{}, err
			}
			return issueservice.AggregateByStatus(all), nil
		}),
	)
	defer broker.Close()

	svc := issueservice.NewService(d.store, d.codec,
		issueservice.WithLogger(logger),
		issueservice.WithEventCallback(broker.PublishIssueEvent),
	)
	apiRouter := api.NewRouter(svc, api.AuthPolicy{
		Enabled:     cfg.Auth.AuthEnabled(),
		Token:       cfg.Auth.Token,
		PublicReads: cfg.Auth.PublicReads,
	}, broker)

	r := newRootRouter(svc, apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Other processes may write to a shared fs ledger; tell clients when they do.
	if cfg.Ledger.Driver == kv.DriverFS && app.backend == nil {
		g.Go(func() error {
			err := watcher.Watch(gCtx, cfg.Ledger.Path, cfg.Events.WatchDebounce, logger, func(key string) {
				broker.PublishIssueEvent(sse.KindChanged, key)
			})
			if err != nil {
				logger.Warn("ledger watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully",
		slog.Uint64("cas_conflicts", d.store.Conflicts()))
	return nil
}

// newRootRouter adds request middleware and the unauthenticated health checks
// in front of the API router.
func newRootRouter(svc *issueservice.Service, apiRouter http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeHealth(w, http.StatusOK, "ok")
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if !svc.Available(r.Context()) {
			writeHealth(w, http.StatusServiceUnavailable, "ledger unavailable")
			return
		}
		writeHealth(w, http.StatusOK, "ok")
	})

	r.Mount("/api", apiRouter)
	return r
}

func writeHealth(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, `{"status":%q}`, msg)
}

// RunMCP serves the issue tools over stdio until stdin closes. Logs go to
// stderr unless WithLogOutput says otherwise.
func RunMCP(_ context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	if app.logOutput == os.Stdout {
		app.logOutput = io.Discard
	}

	d, err := app.setup()
	if err != nil {
		return err
	}
	defer func() { _ = d.close() }()

	svc := issueservice.NewService(d.store, d.codec, issueservice.WithLogger(d.logger))
	d.logger.Info("Serving MCP over stdio")
	return mcpserver.New(svc).ServeStdio()
}
