// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package server provides the HTTP surface for proxy reads, bulk ingest,
// and operational health/metrics.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mangavault/mangavault/pkg/vault"
)

// Config holds server configuration.
type Config struct {
	Addr           string
	Port           int
	BaseFolder     string // storage-source root new ingest writes land under
	AllowedOrigins []string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{Addr: "0.0.0.0", Port: 8080, BaseFolder: "manga"}
}

// Server is the mangavault HTTP server.
type Server struct {
	config     Config
	httpServer *http.Server
	log        *vault.Logger

	router   *vault.Router
	policy   *vault.GroupPolicy
	read     *vault.ReadPipeline
	engine   *vault.Engine
	progress *vault.ProgressStore
	wsHub    *WSHub
	registry *prometheus.Registry
}

// New wires a Server around the already-constructed domain collaborators.
func New(cfg Config, router *vault.Router, policy *vault.GroupPolicy, read *vault.ReadPipeline, engine *vault.Engine, progress *vault.ProgressStore, log *vault.Logger) *Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(vault.NewRouterCollector(router))

	return &Server{
		config:   cfg,
		log:      log,
		router:   router,
		policy:   policy,
		read:     read,
		engine:   engine,
		progress: progress,
		wsHub:    NewWSHub(),
		registry: reg,
	}
}

// ListenAndServe starts the HTTP server and blocks until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	go s.wsHub.Run()

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	addr := fmt.Sprintf("%s:%d", s.config.Addr, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.corsMiddleware(s.loggingMiddleware(mux)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // proxy reads can stream large pages well past 30s
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	go s.broadcastHealthLoop(ctx)

	s.log.Info("server listening on http://%s", addr)

	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// broadcastHealthLoop pushes a group-health snapshot to connected
// WebSocket clients every few seconds, so a dashboard never has to poll
// GET /health itself.
func (s *Server) broadcastHealthLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.wsHub.ClientCount() == 0 {
				continue
			}
			s.wsHub.BroadcastHealth(s.router.GetHealth(nil))
		}
	}
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /proxy/{path...}", s.handleProxy)

	mux.HandleFunc("POST /ingest", s.handleIngestStart)
	mux.HandleFunc("GET /ingest/{id}", s.handleIngestStatus)
	mux.HandleFunc("POST /ingest/resume/{token}", s.handleIngestResume)

	mux.HandleFunc("GET /groups", s.handleGroupsShow)
	mux.HandleFunc("POST /groups/active", s.handleGroupsSwitch)

	mux.HandleFunc("GET /ws", s.handleWebSocket)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("%s %s %s", r.Method, r.URL.Path, time.Since(start).Round(time.Millisecond))
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			allowed := len(s.config.AllowedOrigins) == 0
			for _, o := range s.config.AllowedOrigins {
				if o == "*" || o == origin {
					allowed = true
					break
				}
			}
			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
