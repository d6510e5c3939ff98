package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ccheshirecat/volterm/internal/server/ai"
	"github.com/ccheshirecat/volterm/internal/server/config"
	"github.com/ccheshirecat/volterm/internal/server/db"
	"github.com/ccheshirecat/volterm/internal/server/eventbus"
	"github.com/ccheshirecat/volterm/internal/server/eventbus/memory"
	"github.com/ccheshirecat/volterm/internal/server/httpapi"
	"github.com/ccheshirecat/volterm/internal/server/listing"
	"github.com/ccheshirecat/volterm/internal/server/shell"
)

// App wires the config, command log, shell sessions, and HTTP transport.
type App struct {
	cfg          config.ServerConfig
	logger       *slog.Logger
	store        db.Store
	shells       *shell.Manager
	files        *listing.Cache
	events       eventbus.Bus
	httpServer   *http.Server
	shutdownWait time.Duration
}

// Params carries optional collaborators. Zero values select the defaults
// derived from the config.
type Params struct {
	Model ai.ChatModel
	Bus   eventbus.Bus
}

// New constructs the daemon application around an opened store.
func New(cfg config.ServerConfig, logger *slog.Logger, store db.Store, params Params) (*App, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("store must not be nil")
	}
	if params.Bus == nil {
		params.Bus = memory.New()
	}
	if params.Model == nil {
		params.Model = ai.NewOllama(cfg.LLMURL, cfg.LLMModel, 0)
	}

	shells := shell.NewManager(shell.Options{
		Shell:  cfg.Shell,
		Bus:    params.Bus,
		Logger: logger.With("component", "shell"),
	})
	files := listing.New(listing.DefaultTTL)
	commands := store.Queries().Commands()

	assistant, err := ai.NewService(ai.Options{
		Model:    params.Model,
		Shells:   shells,
		Files:    files,
		Commands: commands,
		Depth:    cfg.HistoryDepth,
		Logger:   logger.With("component", "ai"),
	})
	if err != nil {
		files.Close()
		return nil, err
	}

	handler := httpapi.New(httpapi.Options{
		Logger:     logger.With("component", "http"),
		Shells:     shells,
		Commands:   commands,
		Files:      files,
		Bus:        params.Bus,
		AI:         ai.NewRouter(assistant),
		AllowCIDRs: cfg.AllowCIDRs,
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// No write timeout: AI replies are slow and /ws streams indefinitely.
		IdleTimeout: 120 * time.Second,
	}

	return &App{
		cfg:          cfg,
		logger:       logger,
		store:        store,
		shells:       shells,
		files:        files,
		events:       params.Bus,
		httpServer:   httpServer,
		shutdownWait: 15 * time.Second,
	}, nil
}

// Handler exposes the HTTP API, mainly for tests.
func (a *App) Handler() http.Handler { return a.httpServer.Handler }

// Run starts the default shell session and the HTTP server, blocking until
// context cancellation.
func (a *App) Run(ctx context.Context) error {
	if err := a.shells.Start(ctx); err != nil {
		return fmt.Errorf("start default session: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("api server listening", "addr", a.httpServer.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.shutdown()
		return ctx.Err()
	case err := <-errCh:
		a.shutdown()
		return err
	}
}

func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownWait)
	defer cancel()
	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.logger.Error("http shutdown", "error", err)
	}
	a.shells.Shutdown()
	a.files.Close()
	if err := a.store.Close(ctx); err != nil {
		a.logger.Error("store close", "error", err)
	}
}
