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
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/openstacks-io/herald/chain"
	"github.com/openstacks-io/herald/rpc"
	"github.com/openstacks-io/herald/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildTenure stores an epoch2 anchor plus count tenure blocks chained on
// top of it, all in one tenure, and returns them oldest first
func buildTenure(
	t *testing.T,
	store *storage.Store,
	consensusHash chain.ConsensusHash,
	count int,
) []chain.Block {
	t.Helper()
	anchor := chain.Block{
		Version:       0,
		Height:        1,
		ConsensusHash: consensusHash,
		Payload:       []byte("anchor"),
	}
	require.NoError(t, store.AddBlock(&anchor, chain.BlockKindEpoch2))
	blocks := make([]chain.Block, 0, count)
	parentId := anchor.BlockId()
	for i := range count {
		block := chain.Block{
			Version:       1,
			Height:        uint64(2 + i),
			Timestamp:     uint64(1700000000 + i),
			ConsensusHash: consensusHash,
			ParentBlockId: parentId,
			Payload:       []byte(strings.Repeat("x", 50+i)),
		}
		require.NoError(t, store.AddBlock(&block, chain.BlockKindNakamoto))
		parentId = block.BlockId()
		blocks = append(blocks, block)
	}
	return blocks
}

func newTenureServer(
	t *testing.T,
	store *storage.Store,
) (*httptest.Server, string, uint16) {
	t.Helper()
	server := rpc.NewServer(rpc.ServerConfig{ChunkSize: 32}, store, nil)
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)
	parsed, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.ParseUint(parsed.Port(), 10, 16)
	require.NoError(t, err)
	return srv, parsed.Hostname(), uint16(port)
}

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.New("", nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	return store
}

func TestTenureRoundTrip(t *testing.T) {
	store := newTestStore(t)
	tenure := chain.ConsensusHash{0x0a}
	blocks := buildTenure(t, store, tenure, 3)
	_, host, port := newTenureServer(t, store)
	tip := blocks[len(blocks)-1]
	got, err := rpc.RequestTenure(
		context.Background(),
		host,
		port,
		tip.BlockId(),
		5*time.Second,
	)
	require.NoError(t, err)
	// Streamed child to ancestor, stopping at the legacy anchor
	require.Len(t, got, 3)
	for i, block := range got {
		assert.Equal(t, blocks[len(blocks)-1-i], block)
	}
}

func TestTenureNotFound(t *testing.T) {
	store := newTestStore(t)
	srv, _, _ := newTenureServer(t, store)
	missing := chain.BlockId{0x01}
	resp, err := http.Get(srv.URL + "/v3/tenures/" + missing.String())
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTenureBadBlockId(t *testing.T) {
	store := newTestStore(t)
	srv, _, _ := newTenureServer(t, store)
	// A malformed block id answers like an unknown block
	testDefs := []string{
		"abc123",
		strings.Repeat("0", 63),
		strings.Repeat("0", 65),
		strings.ToUpper(strings.Repeat("ab", 32)),
		strings.Repeat("zz", 32),
	}
	for _, blockIdStr := range testDefs {
		resp, err := http.Get(srv.URL + "/v3/tenures/" + blockIdStr)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(
			t,
			http.StatusNotFound,
			resp.StatusCode,
			"block id %q",
			blockIdStr,
		)
	}
}

func TestTenureRejectsRequestBody(t *testing.T) {
	store := newTestStore(t)
	tenure := chain.ConsensusHash{0x0b}
	blocks := buildTenure(t, store, tenure, 1)
	srv, _, _ := newTenureServer(t, store)
	req, err := http.NewRequest(
		http.MethodGet,
		srv.URL+"/v3/tenures/"+blocks[0].BlockId().String(),
		strings.NewReader("not empty"),
	)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTenureContentType(t *testing.T) {
	store := newTestStore(t)
	tenure := chain.ConsensusHash{0x0c}
	blocks := buildTenure(t, store, tenure, 2)
	srv, _, _ := newTenureServer(t, store)
	tip := blocks[len(blocks)-1]
	resp, err := http.Get(srv.URL + "/v3/tenures/" + tip.BlockId().String())
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(
		t,
		"application/octet-stream",
		resp.Header.Get("Content-Type"),
	)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	decoded, err := chain.DecodeBlocks(body)
	require.NoError(t, err)
	assert.Len(t, decoded, 2)
}

func TestHealth(t *testing.T) {
	store := newTestStore(t)
	srv, _, _ := newTenureServer(t, store)
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}
