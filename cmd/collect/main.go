package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"lunarcollector/internal/app"
	"lunarcollector/internal/config"
	"lunarcollector/internal/pipeline"
)

func main() {
	var configPath string
	var shape string
	var timeout int
	var metricsAddr string
	var dryRun bool

	flag.StringVar(&configPath, "config", getenv("CONFIG_FILE", ""), "path to config.json or config.yaml (optional)")
	flag.StringVar(&shape, "shape", "", "upstream payload shape: verbose or compact (overrides config)")
	flag.IntVar(&timeout, "timeout", getenvInt("RUN_TIMEOUT_SEC", 300), "whole run timeout seconds")
	flag.StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics on this address while running (overrides config)")
	flag.BoolVar(&dryRun, "dry-run", false, "fetch and normalize but keep records in memory instead of MongoDB")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil { log.Fatalf("config: %v", err) }
	if shape != "" { cfg.LunarCrush.Shape = shape }
	if metricsAddr != "" { cfg.Metrics.Addr = metricsAddr }
	if dryRun { cfg.DryRun = true }

	logger, err := app.NewLogger(cfg.Logging)
	if err != nil { log.Fatalf("logger: %v", err) }

	a, err := app.New(cfg, logger)
	if err != nil { logger.WithError(err).Fatal("wiring collector") }

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	var srv *http.Server
	if cfg.Metrics.Addr != "" {
		srv = serveMetrics(cfg.Metrics.Addr, a, logger)
	}

	res, runErr := a.Pipeline.Run(ctx)
	if a.Memory != nil {
		logger.WithFields(logrus.Fields{
			"documents": a.Memory.Len(),
			"batches":   a.Memory.Batches(),
		}).Info("dry run, nothing written to mongo")
	}

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer closeCancel()
	if srv != nil {
		_ = srv.Shutdown(closeCtx)
	}
	if err := a.Close(closeCtx); err != nil {
		logger.WithError(err).Warn("closing collector")
	}

	printSummary(res, runErr)
	if runErr != nil {
		os.Exit(1)
	}
}

func serveMetrics(addr string, a *app.App, logger *logrus.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.Metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics listener stopped")
		}
	}()
	logger.WithField("addr", addr).Info("serving metrics")
	return srv
}

func printSummary(res pipeline.Result, runErr error) {
	out := struct {
		pipeline.Result
		Took  string `json:"took"`
		Error string `json:"error,omitempty"`
	}{Result: res, Took: res.Took.String()}
	if runErr != nil {
		out.Error = runErr.Error()
	}
	b, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(b))
}

func getenv(key, def string) string { if v := os.Getenv(key); v != "" { return v }; return def }
func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var x int
		_, _ = fmt.Sscanf(v, "%d", &x)
		if x > 0 { return x }
	}
	return def
}
