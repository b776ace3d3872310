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

package chain

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	// BlockIdSize is the size in bytes of an index block hash
	BlockIdSize = 32
	// ConsensusHashSize is the size in bytes of a tenure consensus hash
	ConsensusHashSize = 20
	// TxidSize is the size in bytes of a transaction ID
	TxidSize = 32
)

// BootAddress is the well-known address that owns protected system
// contracts. Contracts deployed under it are "boot" contracts.
const BootAddress = "ST000000000000000000002AMW42H"

// SignersContractName is the name prefix of the protected signer
// coordination contracts
const SignersContractName = "signers"

var ErrInvalidHashLength = errors.New("invalid hash length")

// BlockId uniquely identifies a block across all forks
type BlockId [BlockIdSize]byte

func (b BlockId) String() string {
	return hex.EncodeToString(b[:])
}

func (b BlockId) Bytes() []byte {
	return b[:]
}

func (b BlockId) IsZero() bool {
	return b == BlockId{}
}

// NewBlockIdFromHex parses a 64-character lowercase hex string into a BlockId
func NewBlockIdFromHex(s string) (BlockId, error) {
	var ret BlockId
	if len(s) != BlockIdSize*2 {
		return ret, ErrInvalidHashLength
	}
	tmp, err := hex.DecodeString(s)
	if err != nil {
		return ret, err
	}
	copy(ret[:], tmp)
	return ret, nil
}

// ConsensusHash identifies the tenure a block was produced in. All blocks in
// one tenure share the same consensus hash
type ConsensusHash [ConsensusHashSize]byte

func (c ConsensusHash) String() string {
	return hex.EncodeToString(c[:])
}

func NewConsensusHashFromHex(s string) (ConsensusHash, error) {
	var ret ConsensusHash
	if len(s) != ConsensusHashSize*2 {
		return ret, ErrInvalidHashLength
	}
	tmp, err := hex.DecodeString(s)
	if err != nil {
		return ret, err
	}
	copy(ret[:], tmp)
	return ret, nil
}

// Txid identifies a transaction
type Txid [TxidSize]byte

func (t Txid) String() string {
	return hex.EncodeToString(t[:])
}

// ContractId is a fully-qualified contract identifier (deployer address plus
// contract name)
type ContractId struct {
	Address string
	Name    string
}

func (c ContractId) String() string {
	return c.Address + "." + c.Name
}

// MarshalJSON renders the contract id in its "<address>.<name>" string form
func (c ContractId) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *ContractId) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := NewContractIdFromString(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// NewContractIdFromString parses an "<address>.<contract-name>" identifier
func NewContractIdFromString(s string) (ContractId, error) {
	addr, name, found := strings.Cut(s, ".")
	if !found || addr == "" || name == "" {
		return ContractId{}, fmt.Errorf(
			"invalid contract identifier: %q",
			s,
		)
	}
	return ContractId{Address: addr, Name: name}, nil
}

// IsBoot returns true if the contract is deployed under the boot address
func (c ContractId) IsBoot() bool {
	return c.Address == BootAddress
}

// IsSignersContract returns true for the protected signer coordination
// contracts (boot contracts whose name starts with "signers")
func (c ContractId) IsSignersContract() bool {
	return c.IsBoot() && strings.HasPrefix(c.Name, SignersContractName)
}

// AssetId is a fully-qualified asset identifier: the defining contract plus
// the asset name within it
type AssetId struct {
	Contract ContractId
	Name     string
}

func (a AssetId) String() string {
	return a.Contract.String() + "::" + a.Name
}

// NewAssetIdFromString parses an "<address>.<contract>::<asset>" identifier
func NewAssetIdFromString(s string) (AssetId, error) {
	contractPart, assetName, found := strings.Cut(s, "::")
	if !found || assetName == "" {
		return AssetId{}, fmt.Errorf("invalid asset identifier: %q", s)
	}
	contractId, err := NewContractIdFromString(contractPart)
	if err != nil {
		return AssetId{}, err
	}
	return AssetId{Contract: contractId, Name: assetName}, nil
}
