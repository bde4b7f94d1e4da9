// entry point of the application
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"ytpanel/internal/backend"
	"ytpanel/internal/config"
	httprouter "ytpanel/internal/infrastructure/delivery/http"
	"ytpanel/internal/infrastructure/delivery/terminal"
	"ytpanel/internal/observability"
	"ytpanel/internal/poller"
	"ytpanel/internal/proxymgr"
	"ytpanel/internal/service"
	httpserver "ytpanel/pkg/http/server"
	"ytpanel/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.New()
	if err != nil {
		slog.Error("config new", slog.Any("error", err))
		stop()
		os.Exit(1)
	}

	log, err := logger.New(&logger.Options{
		AddSource: true,
		Level:     cfg.App.LogLevel,
	})
	if err != nil {
		slog.WarnContext(ctx, "logger level invalid; defaulting to info", slog.Any("error", err))
	}

	metrics := observability.New(prometheus.DefaultRegisterer)

	// proxy manager stays nil when no proxies are configured
	var proxyMgr *proxymgr.Manager
	if len(cfg.Proxy.Proxies) > 0 {
		proxyMgr = proxymgr.New(log, cfg, metrics)
		go proxyMgr.StartHealthChecker(ctx)

		log.InfoContext(ctx, "proxy manager initialized", slog.Int("proxy_count", proxyMgr.ProxyCount()))
	}

	client := backend.New(log, cfg, proxyMgr, metrics)
	pl := poller.New(log, client, cfg.Poll.Interval, metrics)
	view := terminal.NewView(os.Stdout, cfg.UI.Color, cfg.UI.NotificationTTL)
	panel := service.New(log, cfg, client, pl, view, metrics)

	var httpSrv *httpserver.Server
	if cfg.HTTP.Addr != "" {
		router := httprouter.New(log, panel, metrics, prometheus.DefaultGatherer)

		httpSrv, err = httpserver.New(router, httpserver.Options{
			Addr:            cfg.HTTP.Addr,
			WriteTimeout:    cfg.HTTP.HandlerTimeout,
			ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
		})
		if err != nil {
			log.ErrorContext(ctx, "status server listen", slog.String("addr", cfg.HTTP.Addr), slog.Any("error", err))
			stop()
			os.Exit(1)
		}

		go func() {
			if err, ok := <-httpSrv.Notify(); ok {
				log.ErrorContext(ctx, "status server stopped", slog.Any("error", err))
			}
		}()

		log.InfoContext(ctx, "status server started", slog.String("addr", httpSrv.Addr()))
	}

	log.InfoContext(ctx, "ytpanel started", slog.String("backend", client.BaseURL()))

	panel.Init(ctx)

	repl := terminal.NewREPL(log, panel, view, os.Stdin, os.Stdout)

	err = repl.Run(ctx)
	if err != nil {
		log.ErrorContext(ctx, "command loop", slog.Any("error", err))
	}

	panel.Close()

	if httpSrv != nil {
		err = httpSrv.Shutdown()
		if err != nil {
			log.Error(err.Error())
		}
	}

	log.InfoContext(ctx, "ytpanel shut down gracefully")
}
