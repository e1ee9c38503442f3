// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/starford/vellum/internal/events"
	"github.com/starford/vellum/internal/mcpserver"
	"github.com/starford/vellum/internal/notefile"
	"github.com/starford/vellum/internal/notestore"
	"github.com/starford/vellum/internal/sidecar"
	"github.com/starford/vellum/internal/trash"
)

// NewLogger builds the slog logger described by cfg, writing to w.
func NewLogger(cfg ApplicationConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == LogFormatText {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// App is a loaded note store with the resources behind it.
type App struct {
	Store   *notestore.Store
	Sidecar sidecar.Kind
	closer  io.Closer
}

// Close stops the store and releases the sidecar.
func (a *App) Close() error {
	err := a.Store.Close()
	if cerr := a.closer.Close(); err == nil {
		err = cerr
	}
	return err
}

// Open builds the sidecar, codec and store for cfg and loads the notes
// directory.
func Open(cfg *Config, logger *slog.Logger) (*App, error) {
	if err := os.MkdirAll(cfg.Notes.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create notes dir: %w", err)
	}

	formats, err := cfg.Notes.Formats()
	if err != nil {
		return nil, fmt.Errorf("init formats: %w", err)
	}

	sc, kind, err := sidecar.Open(cfg.Sidecar.Backend, cfg.Notes.Dir, cfg.Sidecar.ResolveIndexPath(cfg.Notes.Dir))
	if err != nil {
		return nil, fmt.Errorf("init sidecar: %w", err)
	}

	codec := notefile.New(sc, formats, trash.New(cfg.Trash.Dir), notefile.WithLogger(logger))
	store := notestore.New(codec,
		notestore.WithLogger(logger),
		notestore.WithDebounce(cfg.Watcher.Debounce),
		notestore.WithSettleDelay(cfg.Watcher.Settle),
	)
	if err := store.SetDirectory(cfg.Notes.Dir); err != nil {
		store.Close()
		sc.Close()
		return nil, fmt.Errorf("load notes: %w", err)
	}

	logger.Debug("Store opened",
		slog.String("notes_dir", store.Directory()),
		slog.String("sidecar", string(kind)),
		slog.Int("notes", len(store.Notes())))

	return &App{Store: store, Sidecar: kind, closer: sc}, nil
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{
		mode:    ModeWatch,
		version: "dev",
		stdin:   os.Stdin,
		stdout:  os.Stdout,
	}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// stdout carries the protocol in MCP mode.
	logOut := io.Writer(os.Stdout)
	if app.mode == ModeMCP {
		logOut = os.Stderr
	}
	logger := NewLogger(cfg.App, logOut)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("mode", string(app.mode)),
		slog.String("notes_dir", cfg.Notes.Dir),
		slog.String("sidecar_backend", string(cfg.Sidecar.Backend)),
		slog.String("log_level", cfg.App.LogLevel.String()))

	a, err := Open(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	g, gCtx := errgroup.WithContext(ctx)
	gCtx, stop := context.WithCancel(gCtx)
	defer stop()

	// Log every store event.
	sub := a.Store.Subscribe()
	g.Go(func() error {
		for {
			select {
			case <-gCtx.Done():
				return nil
			case ev, ok := <-sub:
				if !ok {
					return nil
				}
				logEvent(logger, ev)
			}
		}
	})

	if app.mode == ModeMCP {
		srv := mcpserver.New(a.Store, app.version)
		g.Go(func() error {
			defer stop()
			logger.Info("Starting MCP server on stdio")
			if err := srv.Serve(gCtx, app.stdin, app.stdout); err != nil && gCtx.Err() == nil {
				return fmt.Errorf("MCP server error: %w", err)
			}
			return nil
		})
	}

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
		stop()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Stopped successfully")
	return nil
}

func logEvent(logger *slog.Logger, ev events.Event) {
	attrs := []slog.Attr{slog.String("kind", string(ev.Kind))}
	if ev.Note != nil {
		attrs = append(attrs,
			slog.String("id", ev.Note.ID),
			slog.String("title", ev.Note.Title),
			slog.String("path", ev.Note.Location))
	} else if ev.Directory != "" {
		attrs = append(attrs, slog.String("dir", ev.Directory))
	}
	logger.LogAttrs(context.Background(), slog.LevelInfo, "store: event", attrs...)
}

