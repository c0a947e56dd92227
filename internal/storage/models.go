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
	"time"

	"github.com/Galactica-corp/purchase-oracle-service/internal/types"
)

type (
	// ProductOracle is a product registered with the purchase oracle contract.
	// MerkleRoot is the last computed root of the product tree and Synced reports
	// whether the on-chain root matched it at the last check.
	ProductOracle struct {
		ID               uint64         `gorm:"primaryKey" json:"id"`
		ProductID        string         `gorm:"size:66;uniqueIndex;not null" json:"product_id"`
		HookSignatureKey string         `json:"-"`
		Platform         types.Platform `gorm:"size:32;not null" json:"platform"`
		MerkleRoot       *string        `gorm:"size:66" json:"merkle_root,omitempty"`
		Synced           bool           `gorm:"not null;default:false" json:"synced"`
		LastSyncTxHash   *string        `gorm:"size:66" json:"last_sync_tx_hash,omitempty"`
		CreatedAt        time.Time      `json:"created_at"`
	}

	// PurchaseStatus is the latest known state of a purchase.
	// Leaf is NULL until the reconciliation job commits the purchase into the product tree.
	PurchaseStatus struct {
		ID                 uint64         `gorm:"primaryKey" json:"-"`
		OracleID           uint64         `gorm:"index;not null" json:"-"`
		Oracle             *ProductOracle `gorm:"foreignKey:OracleID;constraint:OnDelete:CASCADE" json:"-"`
		PurchaseID         string         `gorm:"size:66;uniqueIndex;not null" json:"purchase_id"`
		ExternalID         string         `gorm:"index:idx_purchase_external_token,priority:1" json:"external_id"`
		ExternalCustomerID string         `json:"external_customer_id,omitempty"`
		PurchaseToken      *string        `gorm:"index:idx_purchase_external_token,priority:2" json:"-"`
		Status             types.Status   `gorm:"size:16;not null" json:"status"`
		TotalPrice         string         `json:"total_price"`
		CurrencyCode       string         `gorm:"size:8" json:"currency_code"`
		Leaf               *string        `gorm:"index" json:"leaf,omitempty"`
		CreatedAt          time.Time      `json:"created_at"`
		UpdatedAt          time.Time      `json:"updated_at"`
	}

	// PurchaseItem is a line item of a purchase. Items are immutable once stored.
	PurchaseItem struct {
		ID         uint64    `gorm:"primaryKey" json:"-"`
		PurchaseID string    `gorm:"size:66;not null;uniqueIndex:idx_purchase_item,priority:1" json:"purchase_id"`
		ExternalID string    `gorm:"not null;uniqueIndex:idx_purchase_item,priority:2" json:"external_id"`
		Price      string    `json:"price"`
		Name       string    `json:"name"`
		Title      string    `json:"title"`
		Quantity   int       `json:"quantity"`
		CreatedAt  time.Time `json:"created_at"`
	}

	// LeafCommit assigns an encoded leaf to a purchase row.
	// The leaf is written only if the row still has the status it was encoded from.
	LeafCommit struct {
		PurchaseRowID uint64
		Status        types.Status
		Leaf          []byte
	}

	// PendingLeafStats summarizes the uncommitted purchases of a product oracle.
	PendingLeafStats struct {
		OracleID uint64
		Pending  int
		Oldest   time.Time
	}
)

func (ProductOracle) TableName() string {
	return "product_oracles"
}

func (PurchaseStatus) TableName() string {
	return "purchase_statuses"
}

func (PurchaseItem) TableName() string {
	return "purchase_items"
}
