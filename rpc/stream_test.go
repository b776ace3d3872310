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

package rpc_test

import (
	"bytes"
	"testing"

	"github.com/openstacks-io/herald/chain"
	"github.com/openstacks-io/herald/rpc"
	"github.com/openstacks-io/herald/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource is an in-memory BlockSource with fully controlled block sizes
type fakeSource struct {
	headers map[chain.BlockId]chain.BlockHeader
	blobs   map[chain.BlockId][]byte
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		headers: make(map[chain.BlockId]chain.BlockHeader),
		blobs:   make(map[chain.BlockId][]byte),
	}
}

func (f *fakeSource) add(
	blockId chain.BlockId,
	parentId chain.BlockId,
	consensusHash chain.ConsensusHash,
	kind chain.BlockKind,
	size int,
) {
	f.headers[blockId] = chain.BlockHeader{
		BlockId:       blockId,
		ConsensusHash: consensusHash,
		ParentBlockId: parentId,
		Kind:          kind,
	}
	blob := make([]byte, size)
	for i := range blob {
		blob[i] = blockId[0]
	}
	f.blobs[blockId] = blob
}

func (f *fakeSource) BlockHeader(
	blockId chain.BlockId,
) (chain.BlockHeader, error) {
	header, ok := f.headers[blockId]
	if !ok {
		return chain.BlockHeader{}, storage.ErrBlockNotFound
	}
	return header, nil
}

func (f *fakeSource) BlockSize(blockId chain.BlockId) (uint64, error) {
	blob, ok := f.blobs[blockId]
	if !ok {
		return 0, storage.ErrBlockNotFound
	}
	return uint64(len(blob)), nil
}

func (f *fakeSource) BlockBytes(blockId chain.BlockId) ([]byte, error) {
	blob, ok := f.blobs[blockId]
	if !ok {
		return nil, storage.ErrBlockNotFound
	}
	return blob, nil
}

// drain pulls the stream to completion and returns the concatenated bytes
func drain(t *testing.T, stream *rpc.TenureStream) []byte {
	t.Helper()
	var out bytes.Buffer
	for {
		chunk, err := stream.Next()
		require.NoError(t, err)
		if len(chunk) == 0 {
			return out.Bytes()
		}
		out.Write(chunk)
	}
}

func TestTenureStreamBudget(t *testing.T) {
	source := newFakeSource()
	tenure := chain.ConsensusHash{0xcc}
	// Genesis-side anchor outside the tenure format
	anchor := chain.BlockId{0xa0}
	source.add(anchor, chain.BlockId{}, tenure, chain.BlockKindEpoch2, 400)
	b1 := chain.BlockId{0x01}
	b2 := chain.BlockId{0x02}
	b3 := chain.BlockId{0x03}
	source.add(b1, anchor, tenure, chain.BlockKindNakamoto, 400)
	source.add(b2, b1, tenure, chain.BlockKindNakamoto, 400)
	source.add(b3, b2, tenure, chain.BlockKindNakamoto, 400)
	// Budget of 1000 fits two 400-byte blocks but not three
	stream, err := rpc.NewTenureStream(source, b3, 1000, 32)
	require.NoError(t, err)
	data := drain(t, stream)
	assert.Len(t, data, 800)
	assert.Equal(t, byte(0x03), data[0])
	assert.Equal(t, byte(0x02), data[len(data)-1])
}

func TestTenureStreamBoundary(t *testing.T) {
	source := newFakeSource()
	prevTenure := chain.ConsensusHash{0x01}
	thisTenure := chain.ConsensusHash{0x02}
	parent := chain.BlockId{0x10}
	child := chain.BlockId{0x11}
	source.add(
		parent,
		chain.BlockId{},
		prevTenure,
		chain.BlockKindNakamoto,
		100,
	)
	source.add(child, parent, thisTenure, chain.BlockKindNakamoto, 100)
	stream, err := rpc.NewTenureStream(source, child, 0, 0)
	require.NoError(t, err)
	// Plenty of budget left, but the parent is in another tenure
	data := drain(t, stream)
	assert.Len(t, data, 100)
	assert.Equal(t, byte(0x11), data[0])
}

func TestTenureStreamStopsAtLegacyParent(t *testing.T) {
	source := newFakeSource()
	tenure := chain.ConsensusHash{0x05}
	parent := chain.BlockId{0x20}
	child := chain.BlockId{0x21}
	source.add(parent, chain.BlockId{}, tenure, chain.BlockKindEpoch2, 100)
	source.add(child, parent, tenure, chain.BlockKindNakamoto, 100)
	stream, err := rpc.NewTenureStream(source, child, 0, 0)
	require.NoError(t, err)
	data := drain(t, stream)
	assert.Len(t, data, 100)
}

func TestTenureStreamMissingStart(t *testing.T) {
	source := newFakeSource()
	_, err := rpc.NewTenureStream(source, chain.BlockId{0xff}, 0, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrBlockNotFound)
}

func TestTenureStreamMissingParent(t *testing.T) {
	source := newFakeSource()
	tenure := chain.ConsensusHash{0x06}
	child := chain.BlockId{0x30}
	source.add(
		child,
		chain.BlockId{0x31},
		tenure,
		chain.BlockKindNakamoto,
		100,
	)
	stream, err := rpc.NewTenureStream(source, child, 0, 0)
	require.NoError(t, err)
	// First block streams fine
	chunk, err := stream.Next()
	require.NoError(t, err)
	assert.Len(t, chunk, 100)
	// Advancing to the absent parent fails
	_, err = stream.Next()
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrBlockNotFound)
}

func TestTenureStreamChunkHint(t *testing.T) {
	source := newFakeSource()
	tenure := chain.ConsensusHash{0x07}
	parent := chain.BlockId{0x40}
	child := chain.BlockId{0x41}
	source.add(parent, chain.BlockId{}, tenure, chain.BlockKindEpoch2, 10)
	source.add(child, parent, tenure, chain.BlockKindNakamoto, 100)
	stream, err := rpc.NewTenureStream(source, child, 0, 32)
	require.NoError(t, err)
	var sizes []int
	for {
		chunk, err := stream.Next()
		require.NoError(t, err)
		if len(chunk) == 0 {
			break
		}
		sizes = append(sizes, len(chunk))
	}
	assert.Equal(t, []int{32, 32, 32, 4}, sizes)
}
