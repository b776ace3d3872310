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
	"encoding/json"

	"github.com/openstacks-io/herald/chain"
)

// EventType discriminates the topic category of a chain event. Every event
// belongs to exactly one category
type EventType int

const (
	EventTypeContract EventType = iota
	EventTypeSTXTransfer
	EventTypeSTXMint
	EventTypeSTXBurn
	EventTypeSTXLock
	EventTypeNFTTransfer
	EventTypeNFTMint
	EventTypeNFTBurn
	EventTypeFTTransfer
	EventTypeFTMint
	EventTypeFTBurn
)

// IsSTX returns true for the STX event subtypes, which all resolve through
// the flat STX observer set
func (t EventType) IsSTX() bool {
	switch t {
	case EventTypeSTXTransfer, EventTypeSTXMint, EventTypeSTXBurn,
		EventTypeSTXLock:
		return true
	default:
		return false
	}
}

// IsAsset returns true for the NFT/FT event subtypes, which all resolve
// through the keyed asset observer lookup
func (t EventType) IsAsset() bool {
	switch t {
	case EventTypeNFTTransfer, EventTypeNFTMint, EventTypeNFTBurn,
		EventTypeFTTransfer, EventTypeFTMint, EventTypeFTBurn:
		return true
	default:
		return false
	}
}

// ChainEvent is an opaque event record produced per transaction receipt.
// Only the topic-discriminating key fields are inspected here; the payload
// is already-formed JSON handed through untouched
type ChainEvent struct {
	Type EventType
	// Contract and EventName key contract events
	Contract  chain.ContractId
	EventName string
	// Asset keys NFT/FT events
	Asset chain.AssetId
	// Payload is the pre-built JSON body for this event
	Payload json.RawMessage
}

// TxReceipt is the per-transaction container of event records, in the order
// they were emitted
type TxReceipt struct {
	Txid chain.Txid
	// Committed is false when the transaction aborted (its events still
	// dispatch, tagged as uncommitted)
	Committed bool
	Events    []ChainEvent
}

// FlatEvent is one entry of the flattened per-batch event list. The index of
// a FlatEvent within the list is the event index used by the dispatch matrix
type FlatEvent struct {
	Event     *ChainEvent
	Txid      chain.Txid
	Committed bool
}

// ChunksEvent is a batch of newly-accepted replicated-state chunks for one
// contract, forwarded both to HTTP observers and to the in-process mailbox
type ChunksEvent struct {
	ContractId    chain.ContractId  `json:"contract_id"`
	ModifiedSlots []json.RawMessage `json:"modified_slots"`
}
