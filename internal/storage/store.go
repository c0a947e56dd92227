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
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Galactica-corp/purchase-oracle-service/internal/types"
)

// Store is the relational storage of product oracles and purchases.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new store on top of an opened and migrated database.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// UpsertPurchase inserts the purchase or updates the existing one with the same purchase id, then
// stores the items that were not stored yet. Every upsert resets the committed leaf, so the
// reconciliation job re-encodes the purchase with its current status.
func (s *Store) UpsertPurchase(ctx context.Context, purchase *PurchaseStatus, items []PurchaseItem) error {
	updateColumns := []string{"status", "total_price", "currency_code", "updated_at"}
	if purchase.PurchaseToken != nil {
		updateColumns = append(updateColumns, "purchase_token")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		purchase.Leaf = nil

		err := tx.Omit(clause.Associations).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "purchase_id"}},
			DoUpdates: append(
				clause.AssignmentColumns(updateColumns),
				clause.Assignment{Column: clause.Column{Name: "leaf"}, Value: gorm.Expr("NULL")},
			),
		}).Create(purchase).Error
		if err != nil {
			return fmt.Errorf("upsert purchase: %w", err)
		}

		if len(items) == 0 {
			return nil
		}

		for i := range items {
			items[i].PurchaseID = purchase.PurchaseID
		}

		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "purchase_id"}, {Name: "external_id"}},
			DoNothing: true,
		}).Create(&items).Error
		if err != nil {
			return fmt.Errorf("insert purchase items: %w", err)
		}

		return nil
	})
}

// FindPurchaseByID finds the purchase of the product by its content-derived id.
func (s *Store) FindPurchaseByID(ctx context.Context, productID, purchaseID common.Hash) (*PurchaseStatus, error) {
	var purchase PurchaseStatus
	err := s.db.WithContext(ctx).
		Where("oracle_id = (?)", s.oracleIDQuery(productID)).
		Where("purchase_id = ?", purchaseID.Hex()).
		Take(&purchase).Error
	if err != nil {
		return nil, wrapNotFound(err, "find purchase by id")
	}

	return &purchase, nil
}

// FindPurchaseByToken finds the purchase by the token issued to the customer and the external id.
func (s *Store) FindPurchaseByToken(ctx context.Context, token, externalID string) (*PurchaseStatus, error) {
	var purchase PurchaseStatus
	err := s.db.WithContext(ctx).
		Where("purchase_token = ? AND external_id = ?", token, externalID).
		Take(&purchase).Error
	if err != nil {
		return nil, wrapNotFound(err, "find purchase by token")
	}

	return &purchase, nil
}

// FindPurchaseByExternalID finds the purchase of the product by the id assigned by the merchant platform.
func (s *Store) FindPurchaseByExternalID(ctx context.Context, productID common.Hash, externalID string) (*PurchaseStatus, error) {
	var purchase PurchaseStatus
	err := s.db.WithContext(ctx).
		Where("oracle_id = (?)", s.oracleIDQuery(productID)).
		Where("external_id = ?", externalID).
		Take(&purchase).Error
	if err != nil {
		return nil, wrapNotFound(err, "find purchase by external id")
	}

	return &purchase, nil
}

// SelectPurchaseItems returns the items of the purchase.
func (s *Store) SelectPurchaseItems(ctx context.Context, purchaseID common.Hash) ([]PurchaseItem, error) {
	var items []PurchaseItem
	if err := s.db.WithContext(ctx).Where("purchase_id = ?", purchaseID.Hex()).Order("id").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("select purchase items: %w", err)
	}

	return items, nil
}

// SelectUncommittedPurchases returns the purchases without a committed leaf.
// A nil oracleIDs selects the purchases of all oracles.
func (s *Store) SelectUncommittedPurchases(ctx context.Context, oracleIDs []uint64) ([]PurchaseStatus, error) {
	if oracleIDs != nil && len(oracleIDs) == 0 {
		return nil, nil
	}

	query := s.db.WithContext(ctx).Where("leaf IS NULL")
	if oracleIDs != nil {
		query = query.Where("oracle_id IN ?", oracleIDs)
	}

	var purchases []PurchaseStatus
	if err := query.Order("id").Find(&purchases).Error; err != nil {
		return nil, fmt.Errorf("select uncommitted purchases: %w", err)
	}

	return purchases, nil
}

// SelectPendingLeafStats returns for every oracle with uncommitted purchases their count and
// the update time of the oldest one, ordered by oracle id.
func (s *Store) SelectPendingLeafStats(ctx context.Context) ([]PendingLeafStats, error) {
	var rows []struct {
		OracleID uint64
		Pending  int
		Oldest   scanTime
	}
	err := s.db.WithContext(ctx).
		Model(&PurchaseStatus{}).
		Select("oracle_id, count(*) AS pending, min(updated_at) AS oldest").
		Where("leaf IS NULL").
		Group("oracle_id").
		Order("oracle_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("select pending leaves: %w", err)
	}

	res := make([]PendingLeafStats, 0, len(rows))
	for _, row := range rows {
		res = append(res, PendingLeafStats{OracleID: row.OracleID, Pending: row.Pending, Oldest: time.Time(row.Oldest)})
	}

	return res, nil
}

// CommitLeaves writes the leaves in one transaction and returns the amount of committed leaves.
// A purchase updated after it was selected keeps its NULL leaf and is picked up by the next run.
func (s *Store) CommitLeaves(ctx context.Context, leaves []LeafCommit) (int, error) {
	var committed int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		committed = 0
		for _, leaf := range leaves {
			res := tx.Model(&PurchaseStatus{}).
				Where("id = ? AND leaf IS NULL AND status = ?", leaf.PurchaseRowID, string(leaf.Status)).
				UpdateColumn("leaf", hexutil.Encode(leaf.Leaf))
			if res.Error != nil {
				return fmt.Errorf("commit leaf of purchase %d: %w", leaf.PurchaseRowID, res.Error)
			}

			committed += int(res.RowsAffected)
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return committed, nil
}

// ProductLeaves returns all committed leaves of the product.
func (s *Store) ProductLeaves(ctx context.Context, productID common.Hash) ([][]byte, error) {
	var encoded []string
	err := s.db.WithContext(ctx).
		Model(&PurchaseStatus{}).
		Where("oracle_id = (?)", s.oracleIDQuery(productID)).
		Where("leaf IS NOT NULL").
		Order("id").
		Pluck("leaf", &encoded).Error
	if err != nil {
		return nil, fmt.Errorf("select product leaves: %w", err)
	}

	leaves := make([][]byte, 0, len(encoded))
	for _, enc := range encoded {
		leaf, err := hexutil.Decode(enc)
		if err != nil {
			return nil, fmt.Errorf("decode leaf %s: %w", enc, err)
		}
		leaves = append(leaves, leaf)
	}

	return leaves, nil
}

// SelectProductIDs resolves oracle ids into product ids.
func (s *Store) SelectProductIDs(ctx context.Context, oracleIDs []uint64) ([]common.Hash, error) {
	if len(oracleIDs) == 0 {
		return nil, nil
	}

	var productIDs []string
	err := s.db.WithContext(ctx).
		Model(&ProductOracle{}).
		Where("id IN ?", oracleIDs).
		Order("product_id").
		Pluck("product_id", &productIDs).Error
	if err != nil {
		return nil, fmt.Errorf("select product ids: %w", err)
	}

	return toHashes(productIDs), nil
}

// SelectUnsyncedProductIDs returns the products with a computed root that was not confirmed on-chain.
func (s *Store) SelectUnsyncedProductIDs(ctx context.Context) ([]common.Hash, error) {
	var productIDs []string
	err := s.db.WithContext(ctx).
		Model(&ProductOracle{}).
		Where("synced = ? AND merkle_root IS NOT NULL", false).
		Order("product_id").
		Pluck("product_id", &productIDs).Error
	if err != nil {
		return nil, fmt.Errorf("select unsynced product ids: %w", err)
	}

	return toHashes(productIDs), nil
}

// FindOracleByID finds the product oracle by its row id.
func (s *Store) FindOracleByID(ctx context.Context, id uint64) (*ProductOracle, error) {
	var oracle ProductOracle
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&oracle).Error; err != nil {
		return nil, wrapNotFound(err, "find oracle by id")
	}

	return &oracle, nil
}

// FindOracleByProductID finds the product oracle by the on-chain product id.
func (s *Store) FindOracleByProductID(ctx context.Context, productID common.Hash) (*ProductOracle, error) {
	var oracle ProductOracle
	if err := s.db.WithContext(ctx).Where("product_id = ?", productID.Hex()).Take(&oracle).Error; err != nil {
		return nil, wrapNotFound(err, "find oracle by product id")
	}

	return &oracle, nil
}

// SelectOracles returns all registered product oracles.
func (s *Store) SelectOracles(ctx context.Context) ([]ProductOracle, error) {
	var oracles []ProductOracle
	if err := s.db.WithContext(ctx).Order("id").Find(&oracles).Error; err != nil {
		return nil, fmt.Errorf("select oracles: %w", err)
	}

	return oracles, nil
}

// UpsertProductOracle registers the product oracle or refreshes its platform and hook key.
// The root and sync state of an existing oracle are kept.
func (s *Store) UpsertProductOracle(ctx context.Context, oracle *ProductOracle) (*ProductOracle, error) {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "product_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"hook_signature_key", "platform"}),
	}).Create(oracle).Error
	if err != nil {
		return nil, fmt.Errorf("upsert product oracle: %w", err)
	}

	return s.FindOracleByProductID(ctx, common.HexToHash(oracle.ProductID))
}

// SetMerkleRoot stores the computed root of the product and marks it as not synced.
func (s *Store) SetMerkleRoot(ctx context.Context, productID, root common.Hash) error {
	res := s.db.WithContext(ctx).
		Model(&ProductOracle{}).
		Where("product_id = ?", productID.Hex()).
		Updates(map[string]interface{}{
			"merkle_root": root.Hex(),
			"synced":      false,
		})
	if res.Error != nil {
		return fmt.Errorf("set merkle root: %w", res.Error)
	}

	if res.RowsAffected == 0 {
		return fmt.Errorf("set merkle root of product %s: %w", productID.Hex(), types.ErrNotFound)
	}

	return nil
}

// MarkSynced marks the stored root of the product as matching the on-chain root.
// The hash of the transaction that updated the root is stored when given.
func (s *Store) MarkSynced(ctx context.Context, productID common.Hash, txHash *common.Hash) error {
	updates := map[string]interface{}{"synced": true}
	if txHash != nil {
		updates["last_sync_tx_hash"] = txHash.Hex()
	}

	res := s.db.WithContext(ctx).
		Model(&ProductOracle{}).
		Where("product_id = ?", productID.Hex()).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("mark synced: %w", res.Error)
	}

	if res.RowsAffected == 0 {
		return fmt.Errorf("mark product %s synced: %w", productID.Hex(), types.ErrNotFound)
	}

	return nil
}

func (s *Store) oracleIDQuery(productID common.Hash) *gorm.DB {
	return s.db.Model(&ProductOracle{}).Select("id").Where("product_id = ?", productID.Hex())
}

func wrapNotFound(err error, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", op, types.ErrNotFound)
	}

	return fmt.Errorf("%s: %w", op, err)
}

func toHashes(values []string) []common.Hash {
	hashes := make([]common.Hash, 0, len(values))
	for _, value := range values {
		hashes = append(hashes, common.HexToHash(value))
	}

	return hashes
}
