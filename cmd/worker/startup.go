// cmd/worker/startup.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"bloom-api/pkg/container"
)

// startServices performs startup checks and exposes /health and /metrics.
func startServices(c *container.Container) error {
	log.Info().Msg("============================================")
	log.Info().Msg("Bloom upload worker starting...")
	log.Info().Msg("============================================")

	checks := []struct {
		name string
		fn   func(ctx context.Context) error
	}{
		{"Redis Connection", c.Cache.Ping},
	}

	for _, check := range checks {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := check.fn(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("%s failed: %w", check.name, err)
		}
		log.Info().Str("check", check.name).Msg("OK")
	}

	go startHealthCheckServer(c)
	return nil
}

// startHealthCheckServer starts HTTP server for health checks and metrics
func startHealthCheckServer(c *container.Container) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthCheckHandler(c))
	mux.Handle("/metrics", promhttp.Handler())

	addr := ":" + getEnv("WORKER_HEALTH_PORT", "9999")
	log.Info().Str("addr", addr).Msg("[Health] Starting health check server")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error().Err(err).Msg("[Health] Failed to start")
	}
}

// healthCheckHandler handles /health endpoint
func healthCheckHandler(c *container.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		if err := c.Cache.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]string{
			"service": "bloom-upload-worker",
			"status":  http.StatusText(status),
		})
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
