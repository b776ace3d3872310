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
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/openstacks-io/herald/dispatcher"
	"github.com/openstacks-io/herald/event"
	"github.com/openstacks-io/herald/rpc"
	"github.com/openstacks-io/herald/storage"
)

// Node ties the chain-data delivery layer together: the block store, the
// observer registry and dispatcher, the in-process mailbox, and the RPC
// server for tenure streaming
type Node struct {
	config        Config
	store         *storage.Store
	registry      *event.Registry
	mailbox       *event.Mailbox
	dispatcher    *dispatcher.Dispatcher
	rpcServer     *rpc.Server
	shutdownFuncs []func(context.Context) error
	runCancel     context.CancelFunc
	done          chan struct{}
	shutdownOnce  sync.Once
}

// New creates a node from the given config
func New(cfg Config) (*Node, error) {
	n := &Node{
		config: cfg,
		done:   make(chan struct{}),
	}
	if err := n.configValidate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return n, nil
}

func (n *Node) configValidate() error {
	for _, observer := range n.config.observers {
		if _, _, err := net.SplitHostPort(observer.Endpoint); err != nil {
			return fmt.Errorf(
				"observer endpoint %q: %w",
				observer.Endpoint,
				err,
			)
		}
		if _, err := event.ParseKeys(observer.EventKeys); err != nil {
			return fmt.Errorf(
				"observer %q event keys: %w",
				observer.Endpoint,
				err,
			)
		}
	}
	return nil
}

// Run starts the node and blocks until Stop is called
func (n *Node) Run() error {
	// Configure tracing
	if n.config.tracing {
		if err := n.setupTracing(); err != nil {
			return err
		}
	}
	// Open block store
	store, err := storage.New(
		n.config.dataDir,
		n.config.logger,
		n.config.promRegistry,
	)
	if err != nil {
		return fmt.Errorf("failed to open block store: %w", err)
	}
	n.store = store
	// Event plumbing
	n.registry = event.NewRegistry(n.config.promRegistry, n.config.logger)
	n.mailbox = event.NewMailbox(n.config.logger)
	n.dispatcher = dispatcher.NewDispatcher(dispatcher.Config{
		Logger:         n.config.logger,
		PromRegistry:   n.config.promRegistry,
		Registry:       n.registry,
		Mailbox:        n.mailbox,
		AttemptTimeout: n.config.deliveryTimeout,
		RetryInterval:  n.config.retryInterval,
		MaxAttempts:    n.config.maxAttempts,
	})
	for _, observer := range n.config.observers {
		keys, err := event.ParseKeys(observer.EventKeys)
		if err != nil {
			return fmt.Errorf(
				"observer %q event keys: %w",
				observer.Endpoint,
				err,
			)
		}
		if _, err := n.dispatcher.RegisterObserver(
			observer.Endpoint,
			keys,
		); err != nil {
			return fmt.Errorf("failed to register observer: %w", err)
		}
	}
	// RPC server
	runCtx, runCancel := context.WithCancel(context.Background())
	n.runCancel = runCancel
	n.rpcServer = rpc.NewServer(
		rpc.ServerConfig{
			ListenAddress:  n.config.rpcListenAddress,
			PromRegistry:   n.config.promRegistry,
			MaxMessageSize: n.config.maxMessageSize,
			ChunkSize:      n.config.chunkSize,
		},
		n.store,
		n.config.logger,
	)
	if err := n.rpcServer.Start(runCtx); err != nil {
		runCancel()
		return err
	}

	// Wait for shutdown signal
	<-n.done
	return nil
}

// Stop shuts the node down gracefully. Safe to call more than once
func (n *Node) Stop() error {
	var err error
	n.shutdownOnce.Do(func() {
		err = n.shutdown()
	})
	return err
}

func (n *Node) shutdown() error {
	shutdownTimeout := 30 * time.Second
	if n.config.shutdownTimeout > 0 {
		shutdownTimeout = n.config.shutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var err error

	n.config.logger.Debug("starting graceful shutdown")

	// Phase 1: stop accepting new work
	n.config.logger.Debug("shutdown phase 1: stopping new work")
	if n.rpcServer != nil {
		if stopErr := n.rpcServer.Stop(ctx); stopErr != nil {
			err = errors.Join(
				err,
				fmt.Errorf("rpc server shutdown: %w", stopErr),
			)
		}
	}
	if n.runCancel != nil {
		n.runCancel()
	}

	// Phase 2: flush state and close the store
	n.config.logger.Debug("shutdown phase 2: closing block store")
	if n.store != nil {
		if closeErr := n.store.Close(); closeErr != nil {
			err = errors.Join(
				err,
				fmt.Errorf("block store close: %w", closeErr),
			)
		}
	}

	// Phase 3: cleanup resources
	n.config.logger.Debug("shutdown phase 3: cleanup resources")
	for _, fn := range n.shutdownFuncs {
		if fnErr := fn(ctx); fnErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown function: %w", fnErr))
		}
	}
	n.shutdownFuncs = nil

	n.config.logger.Debug("graceful shutdown complete")
	close(n.done)
	return err
}

// Dispatcher returns the node's event dispatcher for chain-processing
// callers
func (n *Node) Dispatcher() *dispatcher.Dispatcher {
	return n.dispatcher
}

// Mailbox returns the node's in-process chunk event mailbox
func (n *Node) Mailbox() *event.Mailbox {
	return n.mailbox
}

// Store returns the node's block store
func (n *Node) Store() *storage.Store {
	return n.store
}
