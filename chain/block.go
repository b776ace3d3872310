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
	"bytes"
	"crypto/sha256"
	"errors"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// BlockKind discriminates the header format of a stored block
type BlockKind uint8

const (
	// BlockKindEpoch2 is the legacy pre-tenure block format
	BlockKindEpoch2 BlockKind = 1
	// BlockKindNakamoto is the tenure-based block format
	BlockKindNakamoto BlockKind = 2
)

// BlockHeader is the narrow header view used by the streaming and delivery
// paths. It carries just enough to walk the parent chain and detect tenure
// boundaries
type BlockHeader struct {
	BlockId       BlockId
	ConsensusHash ConsensusHash
	ParentBlockId BlockId
	Height        uint64
	Kind          BlockKind
}

// Block is a tenure-format block record. Records are serialized as CBOR and
// concatenated with no framing on the tenure stream wire format
type Block struct {
	_             struct{} `cbor:",toarray"`
	Version       uint8
	Height        uint64
	Timestamp     uint64
	ConsensusHash ConsensusHash
	ParentBlockId BlockId
	Payload       []byte
}

// BlockId computes the block's identifier as the SHA-256 digest of its
// serialized form
func (b *Block) BlockId() BlockId {
	data, err := b.Encode()
	if err != nil {
		// Encoding a fully-populated fixed-shape struct cannot fail
		panic("failed to encode block: " + err.Error())
	}
	return BlockId(sha256.Sum256(data))
}

// Header returns the narrow header view for this block
func (b *Block) Header() BlockHeader {
	return BlockHeader{
		BlockId:       b.BlockId(),
		ConsensusHash: b.ConsensusHash,
		ParentBlockId: b.ParentBlockId,
		Height:        b.Height,
		Kind:          BlockKindNakamoto,
	}
}

// Encode serializes the block record as CBOR
func (b *Block) Encode() ([]byte, error) {
	return cbor.Marshal(b)
}

// Decode deserializes a single block record from CBOR
func (b *Block) Decode(data []byte) error {
	return cbor.Unmarshal(data, b)
}

// DecodeBlocks decodes a raw concatenation of serialized block records,
// repeatedly deserializing one block from the front of the remaining bytes
// until none remain. This is the client-side decode for a tenure stream
// response body
func DecodeBlocks(data []byte) ([]Block, error) {
	var ret []Block
	dec := cbor.NewDecoder(bytes.NewReader(data))
	for {
		var tmpBlock Block
		err := dec.Decode(&tmpBlock)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		ret = append(ret, tmpBlock)
	}
	return ret, nil
}
