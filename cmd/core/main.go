// Package main is the entrypoint for the extdb core process: it loads
// configuration, exposes metrics and health endpoints, builds the
// host.Core, and blocks until SIGINT or SIGTERM. This binary opens no
// request transport of its own: a host embeds internal/host as a
// library, and cmd/harness serves the core over a line-delimited socket.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arma-extdb/extdb-core/internal/config"
	"github.com/arma-extdb/extdb-core/internal/health"
	"github.com/arma-extdb/extdb-core/internal/host"
)

var configPath = flag.String("config", "configs/extdb.yaml", "Path to core configuration file")

func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("[main] starting extdb core")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[main] failed to load configuration: %v", err)
	}
	log.Printf("[main] configuration loaded: %d database sections, %d workers, instance=%s",
		len(cfg.Databases), cfg.Core.Workers, cfg.Core.InstanceID)
	os.Setenv("EXTDB_REDIS_ADDR", cfg.Redis.Addr)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Core.MetricsPort),
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("[main] metrics server listening on :%d/metrics", cfg.Core.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[main] metrics server error: %v", err)
		}
	}()

	checker := health.NewChecker(cfg)
	healthServer := checker.ServeHTTP(context.Background())
	log.Printf("[main] health check server listening on :%d/health", cfg.Core.HealthCheckPort)

	log.Println("[main] running initial health check...")
	report := checker.Check(context.Background())
	for _, comp := range report.Components {
		log.Printf("[main]   %s: %s (%s, latency %s)", comp.Name, comp.Status, comp.Message, comp.Latency)
	}
	log.Printf("[main] overall health: %s", report.Status)

	log.Println("[main] initializing core (database sections attach lazily via DATABASE control commands)")
	core := host.New(cfg)
	defer func() {
		log.Println("[main] closing core...")
		core.Close()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	log.Println("[main] core is ready. Waiting for shutdown signal...")
	sig := <-sigCh
	log.Printf("[main] received signal %v, shutting down gracefully...", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[main] health server shutdown error: %v", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[main] metrics server shutdown error: %v", err)
	}
	if err := checker.Close(); err != nil {
		log.Printf("[main] health checker close error: %v", err)
	}

	log.Println("[main] shutdown complete.")
}
