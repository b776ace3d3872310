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

package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/openstacks-io/herald/chain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"
)

// ErrBlockNotFound is returned when a referenced block or header does not
// exist in the store. It is distinct from I/O failures so callers can map it
// to not-found at their boundary
var ErrBlockNotFound = errors.New("no such block")

var blockKeyPrefix = []byte("block:")

type storeMetrics struct {
	blocksStored prometheus.Counter
	bytesStored  prometheus.Counter
}

// Store holds chain blocks: raw serialized block records in a badger blob
// store, header metadata rows in sqlite. Both live under dataDir, or in
// memory when dataDir is empty
type Store struct {
	logger     *slog.Logger
	metrics    *storeMetrics
	blobDb     *badger.DB
	metadataDb *gorm.DB
	gcTicker   *time.Ticker
	gcStopCh   chan struct{}
	gcWg       sync.WaitGroup
	dataDir    string
}

// New creates a block store under dataDir, creating the directory if needed.
// An empty dataDir gives a fully in-memory store
func New(
	dataDir string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (*Store, error) {
	if logger == nil {
		// Throw away logs so we don't need guards on every log call
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	s := &Store{
		logger:  logger,
		dataDir: dataDir,
	}
	if dataDir != "" {
		if _, err := os.Stat(dataDir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read data dir: %w", err)
			}
			if err := os.MkdirAll(dataDir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create data dir: %w", err)
			}
		}
	}
	if err := s.openBlobDb(); err != nil {
		return nil, err
	}
	if err := s.openMetadataDb(); err != nil {
		s.blobDb.Close()
		return nil, err
	}
	if promRegistry != nil {
		s.registerMetrics(promRegistry)
	}
	if dataDir != "" {
		// Periodic value log GC for disk-backed stores
		s.gcTicker = time.NewTicker(5 * time.Minute)
		s.gcStopCh = make(chan struct{})
		s.gcWg.Add(1)
		go s.blobGc(s.gcTicker, s.gcStopCh)
	}
	return s, nil
}

func (s *Store) openBlobDb() error {
	var badgerOpts badger.Options
	if s.dataDir == "" {
		badgerOpts = badger.DefaultOptions("").
			WithLogger(newBadgerLogger(s.logger)).
			// The default INFO logging is a bit verbose
			WithLoggingLevel(badger.WARNING).
			WithInMemory(true)
	} else {
		blobDir := filepath.Join(s.dataDir, "blob")
		badgerOpts = badger.DefaultOptions(blobDir).
			WithLogger(newBadgerLogger(s.logger)).
			WithLoggingLevel(badger.WARNING).
			WithCompression(options.Snappy)
	}
	blobDb, err := badger.Open(badgerOpts)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}
	s.blobDb = blobDb
	return nil
}

func (s *Store) registerMetrics(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	s.metrics = &storeMetrics{
		blocksStored: promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "herald_store_blocks_total",
			Help: "number of blocks added to the store",
		}),
		bytesStored: promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "herald_store_block_bytes_total",
			Help: "total serialized block bytes added to the store",
		}),
	}
}

func (s *Store) blobGc(t *time.Ticker, stop <-chan struct{}) {
	defer s.gcWg.Done()
	for {
		select {
		case <-t.C:
		again:
			err := s.blobDb.RunValueLogGC(0.5)
			if err != nil {
				if !errors.Is(err, badger.ErrNoRewrite) {
					s.logger.Warn(
						fmt.Sprintf("blob store: GC failure: %s", err),
						"component", "storage",
					)
				}
			} else {
				// Run it again if it just ran successfully
				goto again
			}
		case <-stop:
			return
		}
	}
}

// AddBlock stores a block's serialized bytes and its header metadata row.
// The header kind records which block format the record uses
func (s *Store) AddBlock(block *chain.Block, kind chain.BlockKind) error {
	data, err := block.Encode()
	if err != nil {
		return fmt.Errorf("encode block: %w", err)
	}
	blockId := block.BlockId()
	key := blockKey(blockId)
	err = s.blobDb.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
	if err != nil {
		return fmt.Errorf("store block %s: %w", blockId, err)
	}
	row := BlockRow{
		BlockId:       blockId.String(),
		ConsensusHash: block.ConsensusHash.String(),
		ParentBlockId: block.ParentBlockId.String(),
		Height:        block.Height,
		Kind:          uint8(kind),
		Size:          uint64(len(data)),
	}
	if result := s.metadataDb.Create(&row); result.Error != nil {
		return fmt.Errorf("store block header %s: %w", blockId, result.Error)
	}
	s.logger.Debug(
		"stored block",
		"block_id", blockId.String(),
		"height", block.Height,
		"size", len(data),
		"component", "storage",
	)
	if s.metrics != nil {
		s.metrics.blocksStored.Inc()
		s.metrics.bytesStored.Add(float64(len(data)))
	}
	return nil
}

// BlockHeader fetches the header metadata for the given block id
func (s *Store) BlockHeader(blockId chain.BlockId) (chain.BlockHeader, error) {
	var row BlockRow
	result := s.metadataDb.
		Where("block_id = ?", blockId.String()).
		First(&row)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return chain.BlockHeader{}, ErrBlockNotFound
		}
		return chain.BlockHeader{}, fmt.Errorf(
			"lookup block header %s: %w",
			blockId,
			result.Error,
		)
	}
	return row.decode()
}

// BlockSize fetches the stored size in bytes of the given block's serialized
// record
func (s *Store) BlockSize(blockId chain.BlockId) (uint64, error) {
	var row BlockRow
	result := s.metadataDb.
		Select("size").
		Where("block_id = ?", blockId.String()).
		First(&row)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return 0, ErrBlockNotFound
		}
		return 0, fmt.Errorf(
			"lookup block size %s: %w",
			blockId,
			result.Error,
		)
	}
	return row.Size, nil
}

// BlockBytes fetches the raw serialized record for the given block id
func (s *Store) BlockBytes(blockId chain.BlockId) ([]byte, error) {
	var data []byte
	err := s.blobDb.View(func(txn *badger.Txn) error {
		item, err := txn.Get(blockKey(blockId))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrBlockNotFound
			}
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrBlockNotFound) {
			return nil, ErrBlockNotFound
		}
		return nil, fmt.Errorf("fetch block %s: %w", blockId, err)
	}
	return data, nil
}

// Close stops background work and closes both databases
func (s *Store) Close() error {
	if s.gcTicker != nil {
		s.gcTicker.Stop()
		close(s.gcStopCh)
		s.gcWg.Wait()
		s.gcTicker = nil
	}
	var errs []error
	if sqlDb, err := s.metadataDb.DB(); err == nil {
		if err := sqlDb.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.blobDb.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func blockKey(blockId chain.BlockId) []byte {
	key := make([]byte, 0, len(blockKeyPrefix)+chain.BlockIdSize)
	key = append(key, blockKeyPrefix...)
	key = append(key, blockId.Bytes()...)
	return key
}
