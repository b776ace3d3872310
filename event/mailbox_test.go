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

package event_test

import (
	"testing"

	"github.com/openstacks-io/herald/chain"
	"github.com/openstacks-io/herald/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var signersContract = chain.ContractId{
	Address: chain.BootAddress,
	Name:    "signers-0-1",
}

func TestMailboxRegister(t *testing.T) {
	defer goleak.VerifyNone(t)
	mailbox := event.NewMailbox(nil)
	assert.False(t, mailbox.IsActive(signersContract))
	receiver, displaced := mailbox.Register()
	assert.False(t, displaced)
	// A registration is always interested in the signer contracts
	assert.True(t, mailbox.IsActive(signersContract))
	evt := event.ChunksEvent{ContractId: signersContract}
	assert.True(t, mailbox.Forward(evt))
	select {
	case got := <-receiver:
		assert.Equal(t, signersContract, got.ContractId)
	default:
		t.Fatal("expected forwarded event")
	}
}

func TestMailboxExplicitInterests(t *testing.T) {
	mailbox := event.NewMailbox(nil)
	otherContract, err := chain.NewContractIdFromString(
		"ST2X2FYCY01Y7YR2TGC2Y6661NFF3SMH0NGXPWTV5.scratch",
	)
	require.NoError(t, err)
	uninteresting, err := chain.NewContractIdFromString(
		"ST2X2FYCY01Y7YR2TGC2Y6661NFF3SMH0NGXPWTV5.other",
	)
	require.NoError(t, err)
	_, _ = mailbox.Register(otherContract)
	assert.True(t, mailbox.IsActive(signersContract))
	assert.True(t, mailbox.IsActive(otherContract))
	assert.False(t, mailbox.IsActive(uninteresting))
	// A non-boot contract named like the signer contracts doesn't count
	impostor := chain.ContractId{
		Address: "ST2X2FYCY01Y7YR2TGC2Y6661NFF3SMH0NGXPWTV5",
		Name:    "signers-0-1",
	}
	assert.False(t, mailbox.IsActive(impostor))
}

func TestMailboxSingleOwner(t *testing.T) {
	mailbox := event.NewMailbox(nil)
	first, displaced := mailbox.Register()
	assert.False(t, displaced)
	second, displaced := mailbox.Register()
	assert.True(t, displaced)
	// The first receiver stops getting events even without an explicit
	// unregister
	evt := event.ChunksEvent{ContractId: signersContract}
	assert.True(t, mailbox.Forward(evt))
	select {
	case <-first:
		t.Fatal("displaced receiver should not get events")
	default:
	}
	select {
	case got := <-second:
		assert.Equal(t, signersContract, got.ContractId)
	default:
		t.Fatal("expected forwarded event on active receiver")
	}
}

func TestMailboxUnregister(t *testing.T) {
	mailbox := event.NewMailbox(nil)
	receiver, _ := mailbox.Register()
	mailbox.Unregister(receiver)
	assert.False(t, mailbox.IsActive(signersContract))
	assert.False(
		t,
		mailbox.Forward(event.ChunksEvent{ContractId: signersContract}),
	)
}

func TestMailboxFullChannelDrops(t *testing.T) {
	mailbox := event.NewMailbox(nil)
	receiver, _ := mailbox.Register()
	evt := event.ChunksEvent{ContractId: signersContract}
	// Fill the receiver's buffer without draining it
	for range event.MailboxQueueSize {
		require.True(t, mailbox.Forward(evt))
	}
	// The next send must drop instead of blocking
	assert.False(t, mailbox.Forward(evt))
	// Drain one and forwarding works again
	<-receiver
	assert.True(t, mailbox.Forward(evt))
}
