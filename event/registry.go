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

package event

import (
	"log/slog"
	"sync"

	"github.com/openstacks-io/herald/chain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ObserverId is the dense, stable index of a registered observer. Indices
// are assigned at registration time and never reused or reassigned
type ObserverId uint16

// Observer is one configured external delivery target
type Observer struct {
	Endpoint string
	Id       ObserverId
}

// IdSet is a set of observer indices
type IdSet map[ObserverId]struct{}

func (s IdSet) add(id ObserverId) {
	s[id] = struct{}{}
}

// Contains reports whether the set holds the given observer index
func (s IdSet) Contains(id ObserverId) bool {
	_, ok := s[id]
	return ok
}

// contractEventKey keys the contract-event observer lookup
type contractEventKey struct {
	Contract  chain.ContractId
	EventName string
}

type registryMetrics struct {
	observers     prometheus.Gauge
	subscriptions *prometheus.GaugeVec
}

// Registry stores, per topic, the set of observer indices interested in it.
// Observers persist for the process lifetime; the observer list only grows
type Registry struct {
	logger    *slog.Logger
	metrics   *registryMetrics
	observers []Observer
	// Keyed lookups
	contractEvents map[contractEventKey]IdSet
	assets         map[chain.AssetId]IdSet
	// Flat per-topic interest sets
	burnBlock       IdSet
	mempool         IdSet
	microblock      IdSet
	stx             IdSet
	anyEvent        IdSet
	minedBlock      IdSet
	minedMicroblock IdSet
	stackerdb       IdSet
	blockProposal   IdSet
	mu              sync.RWMutex
}

// NewRegistry creates an empty observer registry
func NewRegistry(
	promRegistry prometheus.Registerer,
	logger *slog.Logger,
) *Registry {
	r := &Registry{
		logger:          logger,
		contractEvents:  make(map[contractEventKey]IdSet),
		assets:          make(map[chain.AssetId]IdSet),
		burnBlock:       make(IdSet),
		mempool:         make(IdSet),
		microblock:      make(IdSet),
		stx:             make(IdSet),
		anyEvent:        make(IdSet),
		minedBlock:      make(IdSet),
		minedMicroblock: make(IdSet),
		stackerdb:       make(IdSet),
		blockProposal:   make(IdSet),
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if promRegistry != nil {
		r.initMetrics(promRegistry)
	}
	return r
}

func (r *Registry) initMetrics(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	r.metrics = &registryMetrics{}
	r.metrics.observers = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "herald_registered_observers",
		Help: "number of registered event observers",
	})
	r.metrics.subscriptions = promautoFactory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "herald_observer_subscriptions",
			Help: "number of observer subscriptions by key type",
		},
		[]string{"key"},
	)
}

// Register appends an observer for the given endpoint and records its index
// in the interest set of every requested key. Returns the new observer
func (r *Registry) Register(endpoint string, keys []Key) Observer {
	r.mu.Lock()
	defer r.mu.Unlock()
	observer := Observer{
		Endpoint: endpoint,
		//nolint:gosec // observer count is bounded well below 2^16
		Id: ObserverId(len(r.observers)),
	}
	r.logger.Info(
		"registering event observer",
		"endpoint", endpoint,
		"component", "events",
	)
	for _, key := range keys {
		switch key.Type {
		case KeyAnyEvent:
			r.anyEvent.add(observer.Id)
		case KeySTXEvent:
			r.stx.add(observer.Id)
		case KeyMemPoolTx:
			r.mempool.add(observer.Id)
		case KeyBurnBlock:
			r.burnBlock.add(observer.Id)
		case KeyMicroblock:
			r.microblock.add(observer.Id)
		case KeyMinedBlock:
			r.minedBlock.add(observer.Id)
		case KeyMinedMicroblock:
			r.minedMicroblock.add(observer.Id)
		case KeyStackerDBChunk:
			r.stackerdb.add(observer.Id)
		case KeyBlockProposal:
			r.blockProposal.add(observer.Id)
		case KeyContractEvent:
			lookupKey := contractEventKey{
				Contract:  key.Contract,
				EventName: key.EventName,
			}
			if _, ok := r.contractEvents[lookupKey]; !ok {
				r.contractEvents[lookupKey] = make(IdSet)
			}
			r.contractEvents[lookupKey].add(observer.Id)
		case KeyAssetEvent:
			if _, ok := r.assets[key.Asset]; !ok {
				r.assets[key.Asset] = make(IdSet)
			}
			r.assets[key.Asset].add(observer.Id)
		}
		if r.metrics != nil {
			r.metrics.subscriptions.WithLabelValues(keyLabel(key.Type)).
				Inc()
		}
	}
	r.observers = append(r.observers, observer)
	if r.metrics != nil {
		r.metrics.observers.Set(float64(len(r.observers)))
	}
	return observer
}

func keyLabel(t KeyType) string {
	switch t {
	case KeyAnyEvent:
		return "any"
	case KeySTXEvent:
		return "stx"
	case KeyMemPoolTx:
		return "memtx"
	case KeyBurnBlock:
		return "burn_blocks"
	case KeyMicroblock:
		return "microblocks"
	case KeyMinedBlock:
		return "miner"
	case KeyMinedMicroblock:
		return "mined_microblocks"
	case KeyStackerDBChunk:
		return "stackerdb"
	case KeyBlockProposal:
		return "block_proposal"
	case KeyContractEvent:
		return "contract_event"
	case KeyAssetEvent:
		return "asset_event"
	default:
		return "unknown"
	}
}

// Observers returns all registered observers in registration order
func (r *Registry) Observers() []Observer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ret := make([]Observer, len(r.observers))
	copy(ret, r.observers)
	return ret
}

// Interested returns the ordered list of observers whose index is present in
// the given interest set, or in the any-event set when includeAny is true.
// Used by delivery paths that don't need per-event filtering
func (r *Registry) Interested(set IdSet, includeAny bool) []Observer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ret []Observer
	for _, observer := range r.observers {
		if set.Contains(observer.Id) {
			ret = append(ret, observer)
			continue
		}
		if includeAny && r.anyEvent.Contains(observer.Id) {
			ret = append(ret, observer)
		}
	}
	return ret
}

// Per-topic interest set accessors, for use with Interested

func (r *Registry) BurnBlockObservers() IdSet       { return r.burnBlock }
func (r *Registry) MempoolObservers() IdSet         { return r.mempool }
func (r *Registry) MicroblockObservers() IdSet      { return r.microblock }
func (r *Registry) MinedBlockObservers() IdSet      { return r.minedBlock }
func (r *Registry) MinedMicroblockObservers() IdSet { return r.minedMicroblock }
func (r *Registry) StackerDBObservers() IdSet       { return r.stackerdb }
func (r *Registry) BlockProposalObservers() IdSet   { return r.blockProposal }
func (r *Registry) AnyEventObservers() IdSet        { return r.anyEvent }
