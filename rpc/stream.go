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

package rpc

import (
	"fmt"

	"github.com/openstacks-io/herald/chain"
)

const (
	// DefaultChunkSize is the preferred read granularity for tenure stream
	// pulls
	DefaultChunkSize = 4096
	// DefaultMaxMessageSize caps the total bytes of one tenure stream
	// response
	DefaultMaxMessageSize = 16 * 1024 * 1024
)

// BlockSource is the narrow read interface the tenure stream walks. The
// block store satisfies it
type BlockSource interface {
	BlockHeader(blockId chain.BlockId) (chain.BlockHeader, error)
	BlockSize(blockId chain.BlockId) (uint64, error)
	BlockBytes(blockId chain.BlockId) ([]byte, error)
}

// blockCursor drains the serialized bytes of one block
type blockCursor struct {
	header chain.BlockHeader
	data   []byte
	offset int
}

func (c *blockCursor) exhausted() bool {
	return c.offset >= len(c.data)
}

func (c *blockCursor) next(hint int) []byte {
	remaining := len(c.data) - c.offset
	if remaining <= 0 {
		return nil
	}
	n := min(hint, remaining)
	chunk := c.data[c.offset : c.offset+n]
	c.offset += n
	return chunk
}

// TenureStream emits the blocks of one tenure as a raw concatenated byte
// stream, walking backward from a start block to its ancestors. The walk
// stops at the tenure boundary, at the first non-tenure-format parent, or
// when the next block would push the response past the byte budget — the
// client then re-requests starting from the last block it received
type TenureStream struct {
	source         BlockSource
	current        *blockCursor
	consensusHash  chain.ConsensusHash
	totalSent      uint64
	maxMessageSize uint64
	chunkSize      int
}

// NewTenureStream starts a tenure stream at the given block. Zero values for
// maxMessageSize and chunkSize use the defaults
func NewTenureStream(
	source BlockSource,
	startBlockId chain.BlockId,
	maxMessageSize uint64,
	chunkSize int,
) (*TenureStream, error) {
	if maxMessageSize == 0 {
		maxMessageSize = DefaultMaxMessageSize
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	header, err := source.BlockHeader(startBlockId)
	if err != nil {
		return nil, err
	}
	data, err := source.BlockBytes(startBlockId)
	if err != nil {
		return nil, err
	}
	return &TenureStream{
		source:         source,
		consensusHash:  header.ConsensusHash,
		maxMessageSize: maxMessageSize,
		chunkSize:      chunkSize,
		current: &blockCursor{
			header: header,
			data:   data,
		},
	}, nil
}

// Next pulls the next chunk of the stream. The chunk size hint bounds the
// preferred granularity but a pull may return fewer bytes. An empty chunk
// with no error is end of stream
func (t *TenureStream) Next() ([]byte, error) {
	if t.current == nil {
		return nil, nil
	}
	if t.current.exhausted() {
		if err := t.advance(); err != nil {
			return nil, err
		}
		if t.current == nil {
			return nil, nil
		}
	}
	return t.current.next(t.chunkSize), nil
}

// advance moves the cursor to the current block's parent, or marks the
// stream terminal
func (t *TenureStream) advance() error {
	t.totalSent += uint64(len(t.current.data))
	parentId := t.current.header.ParentBlockId
	parent, err := t.source.BlockHeader(parentId)
	if err != nil {
		return fmt.Errorf("load parent header %s: %w", parentId, err)
	}
	if parent.Kind != chain.BlockKindNakamoto {
		// Walked past the tenure format horizon
		t.current = nil
		return nil
	}
	if parent.ConsensusHash != t.consensusHash {
		// Crossed the tenure boundary
		t.current = nil
		return nil
	}
	parentSize, err := t.source.BlockSize(parentId)
	if err != nil {
		return fmt.Errorf("load parent size %s: %w", parentId, err)
	}
	if t.totalSent+parentSize > t.maxMessageSize {
		// Out of budget; the client resumes from the last block it got
		t.current = nil
		return nil
	}
	data, err := t.source.BlockBytes(parentId)
	if err != nil {
		return fmt.Errorf("load parent block %s: %w", parentId, err)
	}
	t.current = &blockCursor{
		header: parent,
		data:   data,
	}
	return nil
}
