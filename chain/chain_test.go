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

package chain_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/openstacks-io/herald/chain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockIdHex(t *testing.T) {
	hexStr := strings.Repeat("ab", 32)
	blockId, err := chain.NewBlockIdFromHex(hexStr)
	require.NoError(t, err)
	assert.Equal(t, hexStr, blockId.String())
	_, err = chain.NewBlockIdFromHex("abcd")
	assert.ErrorIs(t, err, chain.ErrInvalidHashLength)
	_, err = chain.NewBlockIdFromHex(strings.Repeat("zz", 32))
	assert.Error(t, err)
}

func TestContractId(t *testing.T) {
	contractId, err := chain.NewContractIdFromString(
		"ST2X2FYCY01Y7YR2TGC2Y6661NFF3SMH0NGXPWTV5.tokens",
	)
	require.NoError(t, err)
	assert.Equal(
		t,
		"ST2X2FYCY01Y7YR2TGC2Y6661NFF3SMH0NGXPWTV5",
		contractId.Address,
	)
	assert.Equal(t, "tokens", contractId.Name)
	assert.False(t, contractId.IsBoot())
	assert.False(t, contractId.IsSignersContract())
	_, err = chain.NewContractIdFromString("no-dot")
	assert.Error(t, err)
	_, err = chain.NewContractIdFromString(".name-only")
	assert.Error(t, err)
}

func TestSignersContract(t *testing.T) {
	signers := chain.ContractId{
		Address: chain.BootAddress,
		Name:    "signers-0-1",
	}
	assert.True(t, signers.IsBoot())
	assert.True(t, signers.IsSignersContract())
	pox := chain.ContractId{
		Address: chain.BootAddress,
		Name:    "pox-4",
	}
	assert.True(t, pox.IsBoot())
	assert.False(t, pox.IsSignersContract())
}

func TestContractIdJSON(t *testing.T) {
	contractId, err := chain.NewContractIdFromString(
		"ST2X2FYCY01Y7YR2TGC2Y6661NFF3SMH0NGXPWTV5.tokens",
	)
	require.NoError(t, err)
	data, err := json.Marshal(contractId)
	require.NoError(t, err)
	assert.Equal(
		t,
		`"ST2X2FYCY01Y7YR2TGC2Y6661NFF3SMH0NGXPWTV5.tokens"`,
		string(data),
	)
	var decoded chain.ContractId
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, contractId, decoded)
}

func TestAssetId(t *testing.T) {
	assetId, err := chain.NewAssetIdFromString(
		"ST2X2FYCY01Y7YR2TGC2Y6661NFF3SMH0NGXPWTV5.tokens::gold",
	)
	require.NoError(t, err)
	assert.Equal(t, "gold", assetId.Name)
	assert.Equal(
		t,
		"ST2X2FYCY01Y7YR2TGC2Y6661NFF3SMH0NGXPWTV5.tokens::gold",
		assetId.String(),
	)
	_, err = chain.NewAssetIdFromString("missing-asset-name")
	assert.Error(t, err)
}

func TestBlockCodecRoundTrip(t *testing.T) {
	block := chain.Block{
		Version:       1,
		Height:        123,
		Timestamp:     1700000000,
		ConsensusHash: chain.ConsensusHash{0x01, 0x02},
		ParentBlockId: chain.BlockId{0x03, 0x04},
		Payload:       []byte("transactions"),
	}
	data, err := block.Encode()
	require.NoError(t, err)
	var decoded chain.Block
	require.NoError(t, decoded.Decode(data))
	assert.Equal(t, block, decoded)
	// Identifiers are stable across the round trip
	assert.Equal(t, block.BlockId(), decoded.BlockId())
}

func TestDecodeBlocksConcatenated(t *testing.T) {
	blocks := []chain.Block{
		{Version: 1, Height: 10, Payload: []byte("a")},
		{Version: 1, Height: 11, Payload: []byte("bb")},
		{Version: 1, Height: 12, Payload: []byte("ccc")},
	}
	var wire []byte
	for i := range blocks {
		data, err := blocks[i].Encode()
		require.NoError(t, err)
		wire = append(wire, data...)
	}
	decoded, err := chain.DecodeBlocks(wire)
	require.NoError(t, err)
	assert.Equal(t, blocks, decoded)
}

func TestDecodeBlocksEmpty(t *testing.T) {
	decoded, err := chain.DecodeBlocks(nil)
	require.NoError(t, err)
	assert.Empty(t, decoded)
}

func TestDecodeBlocksTruncated(t *testing.T) {
	block := chain.Block{Version: 1, Height: 10, Payload: []byte("aaaa")}
	data, err := block.Encode()
	require.NoError(t, err)
	_, err = chain.DecodeBlocks(data[:len(data)-2])
	assert.Error(t, err)
}

func TestBlockHeader(t *testing.T) {
	block := chain.Block{
		Version:       1,
		Height:        55,
		ConsensusHash: chain.ConsensusHash{0x0a},
		ParentBlockId: chain.BlockId{0x0b},
	}
	header := block.Header()
	assert.Equal(t, block.BlockId(), header.BlockId)
	assert.Equal(t, block.ConsensusHash, header.ConsensusHash)
	assert.Equal(t, block.ParentBlockId, header.ParentBlockId)
	assert.Equal(t, uint64(55), header.Height)
	assert.Equal(t, chain.BlockKindNakamoto, header.Kind)
}
