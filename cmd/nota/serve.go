package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lthms/nota/internal/entry"
	"github.com/lthms/nota/internal/httpapi"
	"github.com/lthms/nota/internal/store"
)

// ServeCmd runs the HTTP API server.
type ServeCmd struct {
	Listen string `help:"Listen address, overrides the config file." placeholder:"HOST:PORT"`
	DB     string `type:"path" help:"SQLite database path, overrides the config file."`
}

// Run opens the store and serves the API until SIGINT or SIGTERM.
func (cmd *ServeCmd) Run(cfg *Config) error {
	if cmd.Listen != "" {
		cfg.Listen = cmd.Listen
	}
	if cmd.DB != "" {
		cfg.DBPath = cmd.DB
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	service := entry.New(st, entry.Config{LongDocThreshold: cfg.LongDocThreshold})
	api := httpapi.New(service, st)

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Listen, err)
	}

	srv := &http.Server{Handler: api.Handler()}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "addr", ln.Addr().String(), "db", cfg.DBPath)
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
