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

package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/openstacks-io/herald/transport"
)

const (
	// DefaultAttemptTimeout bounds one delivery attempt
	DefaultAttemptTimeout = 1000 * time.Millisecond
	// DefaultRetryInterval is the fixed sleep between attempts
	DefaultRetryInterval = 1000 * time.Millisecond
)

// EventObserver delivers payloads to one configured observer endpoint.
// Delivery blocks until the observer acknowledges with a 200: a failed or
// rejected attempt is retried after a fixed interval, by default forever.
// Stalling the caller on a broken observer is deliberate backpressure, so
// chain processing does not outrun its consumers
type EventObserver struct {
	logger         *slog.Logger
	metrics        *deliveryMetrics
	endpoint       string
	host           string
	port           uint16
	attemptTimeout time.Duration
	retryInterval  time.Duration
	// maxAttempts of zero means retry forever
	maxAttempts int
}

func newEventObserver(
	endpoint string,
	logger *slog.Logger,
	metrics *deliveryMetrics,
	attemptTimeout time.Duration,
	retryInterval time.Duration,
	maxAttempts int,
) (*EventObserver, error) {
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		return nil, fmt.Errorf("observer endpoint %q: %w", endpoint, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("observer endpoint %q: %w", endpoint, err)
	}
	if attemptTimeout <= 0 {
		attemptTimeout = DefaultAttemptTimeout
	}
	if retryInterval <= 0 {
		retryInterval = DefaultRetryInterval
	}
	return &EventObserver{
		logger:         logger,
		metrics:        metrics,
		endpoint:       endpoint,
		host:           host,
		port:           uint16(port),
		attemptTimeout: attemptTimeout,
		retryInterval:  retryInterval,
		maxAttempts:    maxAttempts,
	}, nil
}

// Endpoint returns the observer's configured host:port
func (o *EventObserver) Endpoint() string {
	return o.endpoint
}

// Send POSTs the payload to the observer at the given sub-path and does not
// return until the observer answers 200, the attempt budget runs out, or the
// context is canceled
func (o *EventObserver) Send(
	ctx context.Context,
	path string,
	payload []byte,
) error {
	attempt := 0
	for {
		attempt++
		err := o.attempt(ctx, path, payload)
		if err == nil {
			if o.metrics != nil {
				o.metrics.deliveries.WithLabelValues(path).Inc()
			}
			return nil
		}
		o.logger.Warn(
			"event observer did not acknowledge, will retry",
			"endpoint", o.endpoint,
			"path", path,
			"attempt", attempt,
			"error", err,
			"component", "dispatcher",
		)
		if o.metrics != nil {
			o.metrics.retries.WithLabelValues(path).Inc()
		}
		if o.maxAttempts > 0 && attempt >= o.maxAttempts {
			return fmt.Errorf(
				"giving up on observer %s after %d attempts: %w",
				o.endpoint,
				attempt,
				err,
			)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.retryInterval):
		}
	}
}

func (o *EventObserver) attempt(
	ctx context.Context,
	path string,
	payload []byte,
) error {
	req := transport.NewRequest(http.MethodPost, o.endpoint, path, payload)
	req.Headers.Set("Content-Type", "application/json")
	// One connection per attempt
	req.Headers.Set("Connection", "close")
	resp, err := transport.SendRequest(
		ctx,
		o.host,
		o.port,
		req,
		o.attemptTimeout,
	)
	if err != nil {
		return err
	}
	if resp.Status != http.StatusOK {
		return &transport.StatusError{
			Path:   resp.Path,
			Status: resp.Status,
		}
	}
	return nil
}
