/*
 * Copyright 2024 Galactica Network
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *      http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package storage

import (
	"context"
	"fmt"
	"time"

	db "github.com/cometbft/cometbft-db"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ugorji/go/codec"

	"github.com/Galactica-corp/purchase-oracle-service/internal/utils"
)

const (
	// rootRecordKeyLength is the length of the root journal key in bytes.
	rootRecordKeyLength = PrefixLength + common.HashLength + 8
)

var mh codec.MsgpackHandle

type (
	// RootJournal keeps the history of successful on-chain root updates.
	// Structure:
	//  RootJournalPrefix -> productID -> big-endian unix nanos -> record
	RootJournal struct {
		database db.DB
	}

	// RootRecord is a root written to the purchase oracle contract.
	RootRecord struct {
		ProductID   common.Hash `json:"product_id"`
		Root        common.Hash `json:"root"`
		TxHash      common.Hash `json:"tx_hash"`
		BlockNumber uint64      `json:"block_number"`
		SyncedAt    time.Time   `json:"synced_at"`
	}

	rootRecordValue struct {
		Root        []byte
		TxHash      []byte
		BlockNumber uint64
	}
)

// NewRootJournal creates a root journal on top of the key-value database.
func NewRootJournal(database db.DB) *RootJournal {
	return &RootJournal{database: database}
}

// Append stores the record in the journal.
func (j *RootJournal) Append(_ context.Context, record RootRecord) error {
	value := rootRecordValue{
		Root:        record.Root.Bytes(),
		TxHash:      record.TxHash.Bytes(),
		BlockNumber: record.BlockNumber,
	}

	var data []byte
	if err := codec.NewEncoderBytes(&data, &mh).Encode(value); err != nil {
		return fmt.Errorf("serialize root record: %w", err)
	}

	if err := j.database.SetSync(makeRootRecordKey(record.ProductID, record.SyncedAt), data); err != nil {
		return fmt.Errorf("write root record: %w", err)
	}

	return nil
}

// RootHistory returns up to limit records of the product, newest first.
// A non-positive limit returns the whole history.
func (j *RootJournal) RootHistory(_ context.Context, productID common.Hash, limit int) ([]RootRecord, error) {
	productDB := db.NewPrefixDB(j.database, makeRootRecordPrefix(productID))

	iterator, err := productDB.ReverseIterator(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create iterator: %w", err)
	}
	defer func() { _ = iterator.Close() }()

	var records []RootRecord
	for ; iterator.Valid(); iterator.Next() {
		if limit > 0 && len(records) >= limit {
			break
		}

		var value rootRecordValue
		if err := codec.NewDecoderBytes(iterator.Value(), &mh).Decode(&value); err != nil {
			return nil, fmt.Errorf("deserialize root record: %w", err)
		}

		records = append(records, RootRecord{
			ProductID:   productID,
			Root:        common.BytesToHash(value.Root),
			TxHash:      common.BytesToHash(value.TxHash),
			BlockNumber: value.BlockNumber,
			SyncedAt:    time.Unix(0, int64(utils.BigEndianToUint64(iterator.Key()))).UTC(),
		})
	}

	if err := iterator.Error(); err != nil {
		return nil, fmt.Errorf("iterate root records: %w", err)
	}

	return records, nil
}

func makeRootRecordPrefix(productID common.Hash) []byte {
	key := make([]byte, 0, PrefixLength+common.HashLength)
	key = append(key, RootJournalPrefix)
	return append(key, productID.Bytes()...)
}

func makeRootRecordKey(productID common.Hash, syncedAt time.Time) []byte {
	key := make([]byte, 0, rootRecordKeyLength)
	key = append(key, makeRootRecordPrefix(productID)...)
	return append(key, utils.Uint64ToBigEndian(uint64(syncedAt.UnixNano()))...)
}
