package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ryan-winkler/cfcalendar/internal/api"
	"github.com/ryan-winkler/cfcalendar/internal/archive"
	"github.com/ryan-winkler/cfcalendar/internal/ratelimit"
	localtls "github.com/ryan-winkler/cfcalendar/internal/tls"
	"github.com/ryan-winkler/cfcalendar/internal/watcher"
)

func (a *app) serve(args []string) int {
	if len(args) != 0 {
		fmt.Fprintln(a.stderr, "usage: cfcal [flags] serve")
		return exitUsage
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", a.cfg.ListenAddr())
	if err != nil {
		a.logger.Error("could not listen", "addr", a.cfg.ListenAddr(), "error", err)
		return exitInitFail
	}
	return a.serveOn(ctx, ln)
}

// serveOn serves the API on ln until ctx is done.
func (a *app) serveOn(ctx context.Context, ln net.Listener) int {
	cfg := a.cfg
	arc := archive.New(cfg.OutputDir, a.logger)

	limiter := ratelimit.New(cfg.RateLimit, time.Minute, cfg.RateAllow)
	go limiter.Run(ctx, 5*time.Minute)

	opts := api.Options{
		Units:        a.units,
		Converter:    a.conv,
		Logger:       a.logger,
		Calendar:     cfg.Calendar,
		ResultsDir:   arc.Dir(),
		HistoryLimit: cfg.HistoryLimit,
		AuthToken:    cfg.AuthToken,
		Limiter:      limiter,
		AccessLog:    cfg.AccessLog,
		Version:      version,
	}

	var inbox *watcher.Watcher
	if cfg.WatchDir != "" {
		w := watcher.New(cfg.WatchDir, cfg.Calendar, a.units, a.conv, arc, a.logger)
		if err := w.Start(); err != nil {
			// The API still works without the inbox.
			a.logger.Error("inbox watcher not started", "dir", cfg.WatchDir, "error", err)
		} else {
			defer w.Stop()
			inbox = w
			opts.Events = w.SSEHandler()
		}
	}

	server := &http.Server{
		Handler:           api.New(opts).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	if inbox != nil {
		// Ends open event streams, which Shutdown would otherwise wait on.
		server.RegisterOnShutdown(inbox.Stop)
	}

	proto := "http"
	if cfg.EnableTLS {
		tlsConfig, err := localtls.GenerateOrLoad(cfg.TLSDir, cfg.TLSHostnames, a.logger)
		if err != nil {
			a.logger.Error("TLS setup failed, falling back to HTTP", "error", err)
		} else {
			server.TLSConfig = tlsConfig
			proto = "https"
		}
	}

	a.logger.Info("cfcal starting",
		"addr", ln.Addr().String(),
		"proto", proto,
		"version", version,
		"calendar", cfg.Calendar,
		"units", unitsSource(cfg.UnitsPath),
		"watch", cfg.WatchDir,
		"output", arc.Dir(),
	)

	errc := make(chan error, 1)
	go func() {
		if proto == "https" {
			errc <- server.ServeTLS(ln, "", "")
		} else {
			errc <- server.Serve(ln)
		}
	}()

	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("server failed", "error", err)
			return exitInitFail
		}
		return exitOK
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("shutdown error", "error", err)
	}
	a.logger.Info("stopped")
	return exitOK
}

func unitsSource(path string) string {
	if path == "" {
		return "embedded"
	}
	return path
}
