package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmitrijs2005/lecom/internal/buildinfo"
	"github.com/dmitrijs2005/lecom/internal/client/cli"
	"github.com/dmitrijs2005/lecom/internal/client/config"
	"github.com/dmitrijs2005/lecom/internal/logging"
	"github.com/dmitrijs2005/lecom/internal/metrics"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	cfg := config.LoadConfig()

	// the REPL owns stdout
	logger := logging.New(cfg.LogLevel, os.Stderr)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Handler(reg), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error(ctx, "metrics.serve", "error", err)
			}
		}()
		defer srv.Close()
	}

	app, cleanup, err := cli.Bootstrap(ctx, cfg, logger, m)
	if err != nil {
		log.Fatalf("%v", err)
		return
	}
	defer func() {
		if err := cleanup(); err != nil {
			logger.Warn(ctx, "client.cleanup", "error", err)
		}
	}()

	app.Run(ctx)

}
