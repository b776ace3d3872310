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
	"fmt"
	"strings"

	"github.com/openstacks-io/herald/chain"
)

// KeyType enumerates the kinds of subscription keys an observer can
// register for
type KeyType int

const (
	KeyAnyEvent KeyType = iota
	KeySTXEvent
	KeyMemPoolTx
	KeyBurnBlock
	KeyMicroblock
	KeyMinedBlock
	KeyMinedMicroblock
	KeyStackerDBChunk
	KeyBlockProposal
	KeyContractEvent
	KeyAssetEvent
)

// Key is one parsed subscription key from an observer's configuration
type Key struct {
	Type KeyType
	// Contract and EventName are set for KeyContractEvent
	Contract  chain.ContractId
	EventName string
	// Asset is set for KeyAssetEvent
	Asset chain.AssetId
}

// ParseKey parses an observer event key string. Recognized forms:
//
//	"*"                                  all events
//	"stx"                                STX transfer/mint/burn/lock events
//	"memtx"                              mempool admission/drop events
//	"burn_blocks"                        burnchain block events
//	"microblocks"                        microblock events
//	"miner"                              locally mined block events
//	"mined_microblocks"                  locally mined microblock events
//	"stackerdb"                          replicated-state chunk events
//	"block_proposal"                     proposal validation responses
//	"<addr>.<contract>::<event-name>"    one contract event
//	"asset:<addr>.<contract>::<name>"    one asset's mint/transfer/burn events
func ParseKey(s string) (Key, error) {
	switch s {
	case "*":
		return Key{Type: KeyAnyEvent}, nil
	case "stx":
		return Key{Type: KeySTXEvent}, nil
	case "memtx":
		return Key{Type: KeyMemPoolTx}, nil
	case "burn_blocks":
		return Key{Type: KeyBurnBlock}, nil
	case "microblocks":
		return Key{Type: KeyMicroblock}, nil
	case "miner":
		return Key{Type: KeyMinedBlock}, nil
	case "mined_microblocks":
		return Key{Type: KeyMinedMicroblock}, nil
	case "stackerdb":
		return Key{Type: KeyStackerDBChunk}, nil
	case "block_proposal":
		return Key{Type: KeyBlockProposal}, nil
	}
	if assetStr, ok := strings.CutPrefix(s, "asset:"); ok {
		assetId, err := chain.NewAssetIdFromString(assetStr)
		if err != nil {
			return Key{}, err
		}
		return Key{Type: KeyAssetEvent, Asset: assetId}, nil
	}
	contractPart, eventName, found := strings.Cut(s, "::")
	if !found || eventName == "" {
		return Key{}, fmt.Errorf("unrecognized event key: %q", s)
	}
	contractId, err := chain.NewContractIdFromString(contractPart)
	if err != nil {
		return Key{}, err
	}
	return Key{
		Type:      KeyContractEvent,
		Contract:  contractId,
		EventName: eventName,
	}, nil
}

// ParseKeys parses a list of observer event key strings
func ParseKeys(keys []string) ([]Key, error) {
	ret := make([]Key, 0, len(keys))
	for _, key := range keys {
		tmpKey, err := ParseKey(key)
		if err != nil {
			return nil, err
		}
		ret = append(ret, tmpKey)
	}
	return ret, nil
}
