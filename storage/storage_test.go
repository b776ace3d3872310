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

package storage_test

import (
	"testing"

	"github.com/openstacks-io/herald/chain"
	"github.com/openstacks-io/herald/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.New("", nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	return store
}

func TestStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	block := &chain.Block{
		Version:       1,
		Height:        42,
		Timestamp:     1700000000,
		ConsensusHash: chain.ConsensusHash{0xaa},
		ParentBlockId: chain.BlockId{0xbb},
		Payload:       []byte("payload"),
	}
	require.NoError(t, store.AddBlock(block, chain.BlockKindNakamoto))

	header, err := store.BlockHeader(block.BlockId())
	require.NoError(t, err)
	assert.Equal(t, block.BlockId(), header.BlockId)
	assert.Equal(t, block.ConsensusHash, header.ConsensusHash)
	assert.Equal(t, block.ParentBlockId, header.ParentBlockId)
	assert.Equal(t, uint64(42), header.Height)
	assert.Equal(t, chain.BlockKindNakamoto, header.Kind)

	encoded, err := block.Encode()
	require.NoError(t, err)
	size, err := store.BlockSize(block.BlockId())
	require.NoError(t, err)
	assert.Equal(t, uint64(len(encoded)), size)

	data, err := store.BlockBytes(block.BlockId())
	require.NoError(t, err)
	assert.Equal(t, encoded, data)
	var decoded chain.Block
	require.NoError(t, decoded.Decode(data))
	assert.Equal(t, *block, decoded)
}

func TestStoreNotFound(t *testing.T) {
	store := newTestStore(t)
	missing := chain.BlockId{0x01, 0x02}
	_, err := store.BlockHeader(missing)
	assert.ErrorIs(t, err, storage.ErrBlockNotFound)
	_, err = store.BlockSize(missing)
	assert.ErrorIs(t, err, storage.ErrBlockNotFound)
	_, err = store.BlockBytes(missing)
	assert.ErrorIs(t, err, storage.ErrBlockNotFound)
}

func TestStoreEpoch2Kind(t *testing.T) {
	store := newTestStore(t)
	block := &chain.Block{
		Version:       0,
		Height:        7,
		ConsensusHash: chain.ConsensusHash{0x01},
	}
	require.NoError(t, store.AddBlock(block, chain.BlockKindEpoch2))
	header, err := store.BlockHeader(block.BlockId())
	require.NoError(t, err)
	assert.Equal(t, chain.BlockKindEpoch2, header.Kind)
}
