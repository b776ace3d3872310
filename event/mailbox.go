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
	"slices"
	"sync"

	"github.com/openstacks-io/herald/chain"
)

// MailboxQueueSize is the buffer size of a mailbox receiver channel
const MailboxQueueSize = 100

// mailboxRegistration is the single slot's content: the send side of the
// active receiver plus its topic interests
type mailboxRegistration struct {
	ch chan ChunksEvent
	// interestedInSigners marks interest in the protected signer contracts
	interestedInSigners bool
	otherInterests      []chain.ContractId
}

// Mailbox is a single-slot broadcast channel that lets one in-process
// consumer (the miner coordinator) receive replicated-state chunk events for
// specific contracts without going through HTTP. At most one registration is
// active at a time; a new registration displaces the previous receiver.
//
// The slot is only ever touched under the mutex, and the mutex is never held
// across a channel send, so a slow consumer cannot block a registrar
type Mailbox struct {
	logger *slog.Logger
	slot   *mailboxRegistration
	mu     sync.Mutex
}

// NewMailbox creates an empty mailbox
func NewMailbox(logger *slog.Logger) *Mailbox {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mailbox{
		logger: logger,
	}
}

// Register installs a fresh receiver interested in the protected signer
// contracts plus any explicitly named contracts, replacing any prior
// registration. Returns the receiver channel and whether a prior
// registration was displaced
func (m *Mailbox) Register(
	interests ...chain.ContractId,
) (<-chan ChunksEvent, bool) {
	reg := &mailboxRegistration{
		ch:                  make(chan ChunksEvent, MailboxQueueSize),
		interestedInSigners: true,
		otherInterests:      interests,
	}
	m.mu.Lock()
	displaced := m.slot != nil
	m.slot = reg
	m.mu.Unlock()
	return reg.ch, displaced
}

// Unregister clears the slot unconditionally. The receiver argument is
// consumed to make explicit that the caller gives up its channel; no
// forwarding occurs until a new registration is made
func (m *Mailbox) Unregister(receiver <-chan ChunksEvent) {
	_ = receiver
	m.mu.Lock()
	m.slot = nil
	m.mu.Unlock()
}

// sender returns the send side of the active registration if it is
// interested in the given contract, or nil
func (m *Mailbox) sender(contractId chain.ContractId) chan ChunksEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.slot == nil {
		return nil
	}
	if m.slot.interestedInSigners && contractId.IsSignersContract() {
		return m.slot.ch
	}
	if slices.Contains(m.slot.otherInterests, contractId) {
		return m.slot.ch
	}
	return nil
}

// IsActive reports whether a registered consumer is interested in chunk
// events for the given contract
func (m *Mailbox) IsActive(contractId chain.ContractId) bool {
	return m.sender(contractId) != nil
}

// Forward delivers the event to the registered consumer if one is
// interested. The send is best-effort and never blocks: a full channel logs
// a warning and drops the event. Returns whether the event was delivered
func (m *Mailbox) Forward(evt ChunksEvent) bool {
	ch := m.sender(evt.ContractId)
	if ch == nil {
		return false
	}
	// Send outside the lock
	select {
	case ch <- evt:
		return true
	default:
		m.logger.Warn(
			"mailbox consumer is not keeping up, dropping chunk event",
			"contract", evt.ContractId.String(),
			"component", "events",
		)
		return false
	}
}
