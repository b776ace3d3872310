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

package herald

import (
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ObserverConfig is one configured event observer: an endpoint plus the
// event keys it subscribes to
type ObserverConfig struct {
	Endpoint  string
	EventKeys []string
}

type Config struct {
	promRegistry     prometheus.Registerer
	logger           *slog.Logger
	dataDir          string
	rpcListenAddress string
	observers        []ObserverConfig
	maxMessageSize   uint64
	chunkSize        int
	deliveryTimeout  time.Duration
	retryInterval    time.Duration
	maxAttempts      int
	tracing          bool
	tracingStdout    bool
	shutdownTimeout  time.Duration
}

// ConfigOptionFunc is a type that represents functions that modify the node config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new herald config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	// Apply options
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithLogger specifies the logger to use. The default is to discard logs
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithDataDir specifies the persistent data directory to use. The default is
// to store everything in memory
func WithDataDir(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

// WithObservers specifies the event observers to register at startup
func WithObservers(observers ...ObserverConfig) ConfigOptionFunc {
	return func(c *Config) {
		c.observers = append(c.observers, observers...)
	}
}

// WithRPCListenAddress specifies the listen address for the RPC API
func WithRPCListenAddress(address string) ConfigOptionFunc {
	return func(c *Config) {
		c.rpcListenAddress = address
	}
}

// WithPrometheusRegistry specifies a prometheus registry for metrics
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithMaxMessageSize caps the total bytes of one tenure stream response
func WithMaxMessageSize(size uint64) ConfigOptionFunc {
	return func(c *Config) {
		c.maxMessageSize = size
	}
}

// WithChunkSize specifies the tenure stream pull granularity
func WithChunkSize(size int) ConfigOptionFunc {
	return func(c *Config) {
		c.chunkSize = size
	}
}

// WithDeliveryTimeout bounds one observer delivery attempt
func WithDeliveryTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.deliveryTimeout = timeout
	}
}

// WithRetryInterval specifies the sleep between observer delivery attempts
func WithRetryInterval(interval time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.retryInterval = interval
	}
}

// WithMaxDeliveryAttempts bounds observer delivery attempts. The default of
// zero retries forever
func WithMaxDeliveryAttempts(attempts int) ConfigOptionFunc {
	return func(c *Config) {
		c.maxAttempts = attempts
	}
}

// WithTracing enables tracing
func WithTracing(tracing bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = tracing
	}
}

// WithTracingStdout enables tracing output to stdout instead of OTLP-via-HTTP
func WithTracingStdout(stdout bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingStdout = stdout
	}
}

// WithShutdownTimeout specifies the timeout for graceful shutdown
func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.shutdownTimeout = timeout
	}
}
