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
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/openstacks-io/herald/event"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type deliveryMetrics struct {
	deliveries *prometheus.CounterVec
	retries    *prometheus.CounterVec
}

// Config configures a Dispatcher. Zero-value timing fields fall back to the
// defaults; MaxAttempts of zero retries forever
type Config struct {
	Logger         *slog.Logger
	PromRegistry   prometheus.Registerer
	Registry       *event.Registry
	Mailbox        *event.Mailbox
	AttemptTimeout time.Duration
	RetryInterval  time.Duration
	MaxAttempts    int
}

// Dispatcher fans chain events out to the registered observers. Each
// category of event has a process method that builds the per-observer
// payloads and delivers them sequentially, blocking until every interested
// observer has acknowledged
type Dispatcher struct {
	logger    *slog.Logger
	metrics   *deliveryMetrics
	registry  *event.Registry
	mailbox   *event.Mailbox
	observers map[event.ObserverId]*EventObserver
	cfg       Config
}

// NewDispatcher creates a dispatcher around the given registry and mailbox
func NewDispatcher(cfg Config) *Dispatcher {
	d := &Dispatcher{
		logger:    cfg.Logger,
		registry:  cfg.Registry,
		mailbox:   cfg.Mailbox,
		observers: make(map[event.ObserverId]*EventObserver),
		cfg:       cfg,
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if cfg.PromRegistry != nil {
		promautoFactory := promauto.With(cfg.PromRegistry)
		d.metrics = &deliveryMetrics{
			deliveries: promautoFactory.NewCounterVec(
				prometheus.CounterOpts{
					Name: "herald_observer_deliveries_total",
					Help: "acknowledged observer deliveries by path",
				},
				[]string{"path"},
			),
			retries: promautoFactory.NewCounterVec(
				prometheus.CounterOpts{
					Name: "herald_observer_delivery_retries_total",
					Help: "failed observer delivery attempts by path",
				},
				[]string{"path"},
			),
		}
	}
	return d
}

// RegisterObserver registers an observer endpoint with the given
// subscription keys and creates its delivery client
func (d *Dispatcher) RegisterObserver(
	endpoint string,
	keys []event.Key,
) (event.Observer, error) {
	client, err := newEventObserver(
		endpoint,
		d.logger,
		d.metrics,
		d.cfg.AttemptTimeout,
		d.cfg.RetryInterval,
		d.cfg.MaxAttempts,
	)
	if err != nil {
		return event.Observer{}, err
	}
	observer := d.registry.Register(endpoint, keys)
	d.observers[observer.Id] = client
	return observer, nil
}

// observerEvent is one filtered event as delivered to an observer
type observerEvent struct {
	Txid       string          `json:"txid"`
	Event      json.RawMessage `json:"event"`
	EventIndex int             `json:"event_index"`
	Committed  bool            `json:"committed"`
}

// sendAll delivers one marshaled payload to each given observer in order
func (d *Dispatcher) sendAll(
	ctx context.Context,
	observers []event.Observer,
	path string,
	payload any,
) error {
	if len(observers) == 0 {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", path, err)
	}
	for _, observer := range observers {
		client, ok := d.observers[observer.Id]
		if !ok {
			continue
		}
		if err := client.Send(ctx, path, data); err != nil {
			return err
		}
	}
	return nil
}

// processFilteredBatch builds the dispatch matrix for the receipts and sends
// each recipient the base payload extended with its filtered slice of the
// flattened event list. Every recipient gets a delivery, with an empty event
// list when nothing in the batch matched its subscriptions
func (d *Dispatcher) processFilteredBatch(
	ctx context.Context,
	path string,
	basePayload map[string]any,
	receipts []event.TxReceipt,
	recipients []event.Observer,
) error {
	matrix, events := d.registry.DispatchMatrix(receipts)
	for _, observer := range recipients {
		indexSet := matrix[observer.Id]
		client, ok := d.observers[observer.Id]
		if !ok {
			continue
		}
		filtered := make([]observerEvent, 0, len(indexSet))
		for _, idx := range indexSet.Indices() {
			evt := events[idx]
			eventBody := evt.Event.Payload
			if len(eventBody) == 0 {
				eventBody = json.RawMessage("null")
			}
			filtered = append(filtered, observerEvent{
				EventIndex: idx,
				Txid:       evt.Txid.String(),
				Committed:  evt.Committed,
				Event:      eventBody,
			})
		}
		payload := make(map[string]any, len(basePayload)+1)
		for key, val := range basePayload {
			payload[key] = val
		}
		payload["events"] = filtered
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", path, err)
		}
		if err := client.Send(ctx, path, data); err != nil {
			return err
		}
	}
	return nil
}

// ProcessNewBlock announces a newly processed block to every registered
// observer, with each receiving only the events it subscribed to (an empty
// list when none matched). basePayload carries the externally constructed
// block summary fields
func (d *Dispatcher) ProcessNewBlock(
	ctx context.Context,
	basePayload map[string]any,
	receipts []event.TxReceipt,
) error {
	return d.processFilteredBatch(
		ctx,
		PathBlockProcessed,
		basePayload,
		receipts,
		d.registry.Observers(),
	)
}

// ProcessNewMicroblocks announces a newly processed microblock stream to
// microblock and any-event observers, with per-observer event filtering as
// for new blocks
func (d *Dispatcher) ProcessNewMicroblocks(
	ctx context.Context,
	basePayload map[string]any,
	receipts []event.TxReceipt,
) error {
	return d.processFilteredBatch(
		ctx,
		PathMicroblockSubmit,
		basePayload,
		receipts,
		d.registry.Interested(d.registry.MicroblockObservers(), true),
	)
}

// ProcessBurnBlock announces a new burnchain block to burn-block and
// any-event observers
func (d *Dispatcher) ProcessBurnBlock(
	ctx context.Context,
	payload any,
) error {
	observers := d.registry.Interested(d.registry.BurnBlockObservers(), true)
	return d.sendAll(ctx, observers, PathBurnBlockSubmit, payload)
}

// ProcessNewMempoolTxs announces mempool admissions to mempool and any-event
// observers
func (d *Dispatcher) ProcessNewMempoolTxs(
	ctx context.Context,
	payload any,
) error {
	observers := d.registry.Interested(d.registry.MempoolObservers(), true)
	return d.sendAll(ctx, observers, PathMempoolTxSubmit, payload)
}

// ProcessDroppedMempoolTxs announces mempool evictions to mempool and
// any-event observers
func (d *Dispatcher) ProcessDroppedMempoolTxs(
	ctx context.Context,
	payload any,
) error {
	observers := d.registry.Interested(d.registry.MempoolObservers(), true)
	return d.sendAll(ctx, observers, PathMempoolTxDrop, payload)
}

// ProcessMinedBlock announces a locally mined block to miner observers
func (d *Dispatcher) ProcessMinedBlock(
	ctx context.Context,
	payload any,
) error {
	observers := d.registry.Interested(d.registry.MinedBlockObservers(), false)
	return d.sendAll(ctx, observers, PathMinedBlock, payload)
}

// ProcessMinedMicroblock announces a locally mined microblock
func (d *Dispatcher) ProcessMinedMicroblock(
	ctx context.Context,
	payload any,
) error {
	observers := d.registry.Interested(
		d.registry.MinedMicroblockObservers(),
		false,
	)
	return d.sendAll(ctx, observers, PathMinedMicroblock, payload)
}

// ProcessMinedNakamotoBlock announces a locally mined nakamoto block to
// miner observers
func (d *Dispatcher) ProcessMinedNakamotoBlock(
	ctx context.Context,
	payload any,
) error {
	observers := d.registry.Interested(d.registry.MinedBlockObservers(), false)
	return d.sendAll(ctx, observers, PathMinedNakamotoBlock, payload)
}

// ProcessStackerDBChunks forwards replicated-state chunk events to the
// in-process mailbox consumer, then announces them to stackerdb observers
func (d *Dispatcher) ProcessStackerDBChunks(
	ctx context.Context,
	evt event.ChunksEvent,
) error {
	if d.mailbox != nil {
		d.mailbox.Forward(evt)
	}
	observers := d.registry.Interested(d.registry.StackerDBObservers(), false)
	return d.sendAll(ctx, observers, PathStackerDBChunks, evt)
}

// ProcessNewAttachments announces newly available attachments to every
// registered observer
func (d *Dispatcher) ProcessNewAttachments(
	ctx context.Context,
	payload any,
) error {
	return d.sendAll(
		ctx,
		d.registry.Observers(),
		PathAttachmentsNew,
		payload,
	)
}

// ProcessProposalResponse announces a block proposal validation result to
// block-proposal observers
func (d *Dispatcher) ProcessProposalResponse(
	ctx context.Context,
	payload any,
) error {
	observers := d.registry.Interested(
		d.registry.BlockProposalObservers(),
		false,
	)
	return d.sendAll(ctx, observers, PathProposalResponse, payload)
}
