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
	"fmt"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"github.com/openstacks-io/herald/chain"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

// BlockRow is the header metadata row for one stored block
type BlockRow struct {
	ID            uint   `gorm:"primarykey"`
	BlockId       string `gorm:"uniqueIndex;size:64"`
	ConsensusHash string `gorm:"index;size:40"`
	ParentBlockId string `gorm:"size:64"`
	Height        uint64 `gorm:"index"`
	Kind          uint8
	Size          uint64
}

// TableName overrides the table name
func (BlockRow) TableName() string {
	return "block"
}

func (r *BlockRow) decode() (chain.BlockHeader, error) {
	blockId, err := chain.NewBlockIdFromHex(r.BlockId)
	if err != nil {
		return chain.BlockHeader{}, fmt.Errorf(
			"corrupt block header row %d: %w",
			r.ID,
			err,
		)
	}
	consensusHash, err := chain.NewConsensusHashFromHex(r.ConsensusHash)
	if err != nil {
		return chain.BlockHeader{}, fmt.Errorf(
			"corrupt block header row %d: %w",
			r.ID,
			err,
		)
	}
	parentBlockId, err := chain.NewBlockIdFromHex(r.ParentBlockId)
	if err != nil {
		return chain.BlockHeader{}, fmt.Errorf(
			"corrupt block header row %d: %w",
			r.ID,
			err,
		)
	}
	return chain.BlockHeader{
		BlockId:       blockId,
		ConsensusHash: consensusHash,
		ParentBlockId: parentBlockId,
		Height:        r.Height,
		Kind:          chain.BlockKind(r.Kind),
	}, nil
}

func (s *Store) openMetadataDb() error {
	var metadataDb *gorm.DB
	var err error
	if s.dataDir == "" {
		// cache=shared lets multiple connections share the in-memory
		// database
		metadataDb, err = gorm.Open(
			sqlite.Open("file::memory:?cache=shared"),
			&gorm.Config{
				Logger:                 gormlogger.Discard,
				SkipDefaultTransaction: true,
			},
		)
	} else {
		metadataDbPath := filepath.Join(s.dataDir, "metadata.sqlite")
		// WAL journal mode, disable sync on write
		metadataConnOpts := "_pragma=journal_mode(WAL)&_pragma=sync(OFF)"
		metadataDb, err = gorm.Open(
			sqlite.Open(
				fmt.Sprintf("file:%s?%s", metadataDbPath, metadataConnOpts),
			),
			&gorm.Config{
				Logger:                 gormlogger.Discard,
				SkipDefaultTransaction: true,
			},
		)
	}
	if err != nil {
		return fmt.Errorf("open metadata store: %w", err)
	}
	// Trace queries alongside everything else
	if err := metadataDb.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return err
	}
	if err := metadataDb.AutoMigrate(&BlockRow{}); err != nil {
		return err
	}
	s.metadataDb = metadataDb
	return nil
}
