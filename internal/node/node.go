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

package node

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	herald "github.com/openstacks-io/herald"
	"github.com/openstacks-io/herald/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run builds a node from the loaded config, starts the prometheus metrics
// listener, and runs the node until an interrupt or termination signal
func Run(cfg *config.Config, logger *slog.Logger) error {
	logger.Debug(fmt.Sprintf("config: %+v", cfg), "component", "node")
	// Parse shutdown timeout
	shutdownTimeout := 30 * time.Second
	if cfg.ShutdownTimeout != "" {
		var err error
		shutdownTimeout, err = time.ParseDuration(cfg.ShutdownTimeout)
		if err != nil {
			return fmt.Errorf("invalid shutdown timeout: %w", err)
		}
	}
	var deliveryTimeout time.Duration
	if cfg.DeliveryTimeout != "" {
		var err error
		deliveryTimeout, err = time.ParseDuration(cfg.DeliveryTimeout)
		if err != nil {
			return fmt.Errorf("invalid delivery timeout: %w", err)
		}
	}
	var retryInterval time.Duration
	if cfg.RetryInterval != "" {
		var err error
		retryInterval, err = time.ParseDuration(cfg.RetryInterval)
		if err != nil {
			return fmt.Errorf("invalid retry interval: %w", err)
		}
	}
	observers := make([]herald.ObserverConfig, 0, len(cfg.Observers))
	for _, observer := range cfg.Observers {
		observers = append(observers, herald.ObserverConfig{
			Endpoint:  observer.Endpoint,
			EventKeys: observer.Events,
		})
	}
	n, err := herald.New(
		herald.NewConfig(
			herald.WithLogger(logger),
			herald.WithDataDir(cfg.DataDir),
			herald.WithObservers(observers...),
			herald.WithRPCListenAddress(
				fmt.Sprintf("%s:%d", cfg.BindAddr, cfg.RPCPort),
			),
			herald.WithMaxMessageSize(cfg.MaxMessageSize),
			herald.WithChunkSize(cfg.ChunkSize),
			herald.WithDeliveryTimeout(deliveryTimeout),
			herald.WithRetryInterval(retryInterval),
			herald.WithMaxDeliveryAttempts(cfg.MaxDeliveryAttempts),
			herald.WithTracing(cfg.Tracing),
			herald.WithTracingStdout(cfg.TracingStdout),
			herald.WithShutdownTimeout(shutdownTimeout),
			// Enable metrics with default prometheus registry
			herald.WithPrometheusRegistry(prometheus.DefaultRegisterer),
		),
	)
	if err != nil {
		return err
	}
	// Metrics listener
	http.Handle("/metrics", promhttp.Handler())
	logger.Info(
		"serving prometheus metrics on "+fmt.Sprintf(
			"%s:%d",
			cfg.BindAddr,
			cfg.MetricsPort,
		),
		"component", "node",
	)
	metricsServer := &http.Server{
		Addr: fmt.Sprintf(
			"%s:%d",
			cfg.BindAddr,
			cfg.MetricsPort,
		),
		ReadHeaderTimeout: 60 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil &&
			err != http.ErrServerClosed {
			logger.Error(
				fmt.Sprintf("failed to start metrics listener: %s", err),
				"component", "node",
			)
			os.Exit(1)
		}
	}()
	// Wait for interrupt/termination signal
	signalCtx, signalCtxStop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer signalCtxStop()

	// Run node in goroutine
	errChan := make(chan error, 1)
	go func() {
		err := n.Run()
		select {
		case errChan <- err:
		case <-signalCtx.Done():
		}
	}()

	// Wait for signal or error
	select {
	case <-signalCtx.Done():
		logger.Info("signal received, initiating graceful shutdown")
		// Shutdown metrics server
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			shutdownTimeout,
		)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
		// Shutdown node
		if err := n.Stop(); err != nil {
			logger.Error("node shutdown error", "error", err)
		}
		return nil
	case err := <-errChan:
		return err
	}
}
