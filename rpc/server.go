// Copyright 2025 OpenStacks Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/openstacks-io/herald/chain"
	"github.com/openstacks-io/herald/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var blockIdRegex = regexp.MustCompile(`^[0-9a-f]{64}$`)

// ServerConfig configures the RPC server
type ServerConfig struct {
	ListenAddress string
	PromRegistry  prometheus.Registerer
	// MaxMessageSize caps total bytes per tenure response; zero uses the
	// default
	MaxMessageSize uint64
	// ChunkSize is the tenure stream pull granularity; zero uses the
	// default
	ChunkSize int
}

// HealthResponse is the GET /health response body
type HealthResponse struct {
	Healthy bool `json:"healthy"`
}

// Server is the node's RPC API server. It serves pull-based streaming reads
// of historical tenure blocks
type Server struct {
	config     ServerConfig
	logger     *slog.Logger
	source     BlockSource
	metrics    *serverMetrics
	httpServer *http.Server
	mu         sync.Mutex
}

type serverMetrics struct {
	tenureRequests *prometheus.CounterVec
	tenureBytes    prometheus.Counter
}

// NewServer creates an RPC server reading blocks from the given source
func NewServer(
	cfg ServerConfig,
	source BlockSource,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	logger = logger.With("component", "rpc")
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":20443"
	}
	s := &Server{
		config: cfg,
		logger: logger,
		source: source,
	}
	if cfg.PromRegistry != nil {
		promautoFactory := promauto.With(cfg.PromRegistry)
		s.metrics = &serverMetrics{
			tenureRequests: promautoFactory.NewCounterVec(
				prometheus.CounterOpts{
					Name: "herald_tenure_requests_total",
					Help: "tenure stream requests by status",
				},
				[]string{"status"},
			),
			tenureBytes: promautoFactory.NewCounter(
				prometheus.CounterOpts{
					Name: "herald_tenure_bytes_total",
					Help: "total bytes streamed in tenure responses",
				},
			),
		}
	}
	return s
}

// Handler returns the server's route handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v3/tenures/{block_id}", s.handleGetTenure)
	return mux
}

// Start starts the HTTP server in a background goroutine. The listening
// socket is bound first so port conflicts are detected immediately
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.httpServer != nil {
		s.mu.Unlock()
		return errors.New("server already started")
	}
	server := &http.Server{
		Addr:              s.config.ListenAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 60 * time.Second,
	}
	s.httpServer = server
	s.mu.Unlock()

	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		s.mu.Lock()
		s.httpServer = nil
		s.mu.Unlock()
		return fmt.Errorf("failed to listen for RPC server: %w", err)
	}
	go func() {
		if err := server.Serve(ln); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(
				"RPC server error",
				"error", err,
			)
		}
	}()
	s.logger.Info(
		"RPC listener started on " + s.config.ListenAddress,
	)

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		srv := s.httpServer
		s.httpServer = nil
		s.mu.Unlock()
		if srv != nil {
			//nolint:contextcheck
			shutdownCtx, cancel := context.WithTimeout(
				context.Background(),
				30*time.Second,
			)
			defer cancel()
			//nolint:contextcheck
			if err := srv.Shutdown(shutdownCtx); err != nil {
				s.logger.Error(
					"failed to shutdown RPC server on context cancellation",
					"error", err,
				)
			}
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.httpServer = nil
	s.mu.Unlock()
	if srv != nil {
		s.logger.Debug("shutting down RPC server")
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown RPC server: %w", err)
		}
	}
	return nil
}

func (s *Server) countRequest(status string) {
	if s.metrics != nil {
		s.metrics.tenureRequests.WithLabelValues(status).Inc()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck,errchkjson
	json.NewEncoder(w).Encode(HealthResponse{Healthy: true})
}

// handleGetTenure handles GET /v3/tenures/{block_id} and streams the tenure
// of the named block as raw concatenated block records
func (s *Server) handleGetTenure(w http.ResponseWriter, r *http.Request) {
	blockIdStr := r.PathValue("block_id")
	// A path segment that isn't a block id doesn't name a resource, so it
	// answers the same as an unknown block
	if !blockIdRegex.MatchString(blockIdStr) {
		s.countRequest("not_found")
		http.Error(w, "no such block", http.StatusNotFound)
		return
	}
	// The request must carry no body
	if r.ContentLength != 0 {
		s.countRequest("bad_request")
		http.Error(
			w,
			"expected empty request body",
			http.StatusBadRequest,
		)
		return
	}
	blockId, err := chain.NewBlockIdFromHex(blockIdStr)
	if err != nil {
		s.countRequest("not_found")
		http.Error(w, "no such block", http.StatusNotFound)
		return
	}
	stream, err := NewTenureStream(
		s.source,
		blockId,
		s.config.MaxMessageSize,
		s.config.ChunkSize,
	)
	if err != nil {
		if errors.Is(err, storage.ErrBlockNotFound) {
			s.countRequest("not_found")
			http.Error(w, "no such block", http.StatusNotFound)
			return
		}
		s.logger.Error(
			"failed to start tenure stream",
			"block_id", blockIdStr,
			"error", err,
		)
		s.countRequest("error")
		http.Error(
			w,
			"failed to load tenure",
			http.StatusInternalServerError,
		)
		return
	}
	s.countRequest("ok")
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	for {
		chunk, err := stream.Next()
		if err != nil {
			// Headers are gone; all we can do is log and cut the stream
			s.logger.Error(
				"tenure stream failed mid-response",
				"block_id", blockIdStr,
				"error", err,
			)
			return
		}
		if len(chunk) == 0 {
			return
		}
		if _, err := w.Write(chunk); err != nil {
			s.logger.Debug(
				"client went away during tenure stream",
				"block_id", blockIdStr,
				"error", err,
			)
			return
		}
		if s.metrics != nil {
			s.metrics.tenureBytes.Add(float64(len(chunk)))
		}
	}
}
