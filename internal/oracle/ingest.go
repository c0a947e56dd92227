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

package oracle

import (
	"context"
	"errors"
	"fmt"

	"github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"

	"github.com/Galactica-corp/purchase-oracle-service/internal/merkle"
	"github.com/Galactica-corp/purchase-oracle-service/internal/storage"
	"github.com/Galactica-corp/purchase-oracle-service/internal/types"
)

var ErrInvalidPurchase = errors.New("invalid purchase")

type (
	// PurchaseUpsert is the new state of a purchase of a registered product oracle.
	PurchaseUpsert struct {
		OracleID           uint64
		PurchaseID         common.Hash
		ExternalID         string
		ExternalCustomerID string
		PurchaseToken      *string
		Status             types.Status
		TotalPrice         string
		CurrencyCode       string
		Items              []PurchaseItem
	}

	// IngestionService stores purchase events. Stored purchases are committed into the product
	// trees by the reconciliation job.
	IngestionService struct {
		store  IngestStore
		logger log.Logger
	}
)

func NewIngestionService(store IngestStore, logger log.Logger) *IngestionService {
	return &IngestionService{
		store:  store,
		logger: logger,
	}
}

// UpsertPurchase stores the purchase with its items in one transaction.
// The committed leaf of an existing purchase is reset, items are only added.
func (s *IngestionService) UpsertPurchase(ctx context.Context, upsert PurchaseUpsert) error {
	if !upsert.Status.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrInvalidPurchase, types.ErrInvalidStatus, upsert.Status)
	}

	if upsert.ExternalID == "" {
		return fmt.Errorf("%w: empty external id", ErrInvalidPurchase)
	}

	purchase := &storage.PurchaseStatus{
		OracleID:           upsert.OracleID,
		PurchaseID:         upsert.PurchaseID.Hex(),
		ExternalID:         upsert.ExternalID,
		ExternalCustomerID: upsert.ExternalCustomerID,
		PurchaseToken:      upsert.PurchaseToken,
		Status:             upsert.Status,
		TotalPrice:         upsert.TotalPrice,
		CurrencyCode:       upsert.CurrencyCode,
	}

	items := make([]storage.PurchaseItem, 0, len(upsert.Items))
	for _, item := range upsert.Items {
		items = append(items, storage.PurchaseItem{
			PurchaseID: purchase.PurchaseID,
			ExternalID: item.ExternalID,
			Price:      item.Price,
			Name:       item.Name,
			Title:      item.Title,
			Quantity:   item.Quantity,
		})
	}

	if err := s.store.UpsertPurchase(ctx, purchase, items); err != nil {
		return fmt.Errorf("upsert purchase %s: %w", upsert.PurchaseID.Hex(), err)
	}

	return nil
}

// HandleWebhook stores the purchase reported for the product and returns its purchase id.
func (s *IngestionService) HandleWebhook(ctx context.Context, productID common.Hash, webhook PurchaseWebhook) (common.Hash, error) {
	oracle, err := s.store.FindOracleByProductID(ctx, productID)
	if errors.Is(err, types.ErrNotFound) {
		s.logger.Info("webhook for unknown product", "product", productID.Hex(), "platform", webhook.Platform)
		return common.Hash{}, fmt.Errorf("%w: %s", ErrOracleNotFound, productID.Hex())
	}
	if err != nil {
		return common.Hash{}, fmt.Errorf("find oracle: %w", err)
	}

	if !acceptsPlatform(oracle.Platform, webhook.Platform) {
		return common.Hash{}, fmt.Errorf(
			"%w: oracle platform %s, webhook platform %s",
			ErrPlatformMismatch,
			oracle.Platform,
			webhook.Platform,
		)
	}

	purchaseID := derivePurchaseID(productID, webhook)

	s.logger.Debug(
		"handling purchase webhook",
		"product", productID.Hex(),
		"purchase", purchaseID.Hex(),
		"external_id", webhook.ExternalID,
		"status", webhook.Status,
	)

	if err := s.UpsertPurchase(ctx, PurchaseUpsert{
		OracleID:           oracle.ID,
		PurchaseID:         purchaseID,
		ExternalID:         webhook.ExternalID,
		ExternalCustomerID: webhook.ExternalCustomerID,
		PurchaseToken:      webhook.PurchaseToken,
		Status:             webhook.Status,
		TotalPrice:         webhook.TotalPrice,
		CurrencyCode:       webhook.CurrencyCode,
		Items:              webhook.Items,
	}); err != nil {
		return common.Hash{}, err
	}

	return purchaseID, nil
}

// derivePurchaseID packs the numeric order ids of shopify and woo-commerce as numbers and the free-form ids of
// generic payloads as text.
func derivePurchaseID(productID common.Hash, webhook PurchaseWebhook) common.Hash {
	switch webhook.Platform {
	case types.PlatformShopify, types.PlatformWooCommerce:
		return merkle.DerivePurchaseID(productID, webhook.ExternalID)
	default:
		return merkle.DeriveTextPurchaseID(productID, webhook.ExternalID)
	}
}

// acceptsPlatform reports whether an oracle of the platform accepts webhooks of the given platform.
// Generic payloads are accepted by custom and internal oracles.
func acceptsPlatform(oracle, webhook types.Platform) bool {
	if oracle == webhook {
		return true
	}

	return webhook == types.PlatformCustom && oracle == types.PlatformInternal
}
