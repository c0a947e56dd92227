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
	"encoding/json"
	"strconv"

	"github.com/Galactica-corp/purchase-oracle-service/internal/types"
)

type (
	// PurchaseWebhook is a purchase event reported by a merchant platform, normalized across platforms.
	PurchaseWebhook struct {
		Platform           types.Platform
		ExternalID         string
		ExternalCustomerID string
		PurchaseToken      *string
		Status             types.Status
		TotalPrice         string
		CurrencyCode       string
		Items              []PurchaseItem
	}

	PurchaseItem struct {
		ExternalID string `json:"external_id"`
		Price      string `json:"price"`
		Name       string `json:"name"`
		Title      string `json:"title"`
		Quantity   int    `json:"quantity"`
	}

	// ShopifyOrder is the payload of the shopify orders/* webhooks.
	ShopifyOrder struct {
		ID              int64  `json:"id" binding:"required"`
		FinancialStatus string `json:"financial_status"`
		TotalPrice      string `json:"total_price"`
		Currency        string `json:"currency"`
		CheckoutToken   string `json:"checkout_token"`
		Token           string `json:"token"`
		Customer        struct {
			ID int64 `json:"id"`
		} `json:"customer"`
		LineItems []ShopifyLineItem `json:"line_items"`
	}

	ShopifyLineItem struct {
		ProductID int64  `json:"product_id"`
		Price     string `json:"price"`
		Name      string `json:"name"`
		Title     string `json:"title"`
		Quantity  int    `json:"quantity"`
	}

	// WooCommerceOrder is the payload of the woo-commerce order webhooks.
	WooCommerceOrder struct {
		ID            int64  `json:"id" binding:"required"`
		Status        string `json:"status"`
		Total         string `json:"total"`
		Currency      string `json:"currency"`
		CustomerID    int64  `json:"customer_id"`
		OrderKey      string `json:"order_key"`
		TransactionID string `json:"transaction_id"`
		LineItems     []WooCommerceLineItem `json:"line_items"`
	}

	WooCommerceLineItem struct {
		ProductID int64       `json:"product_id"`
		Price     json.Number `json:"price"`
		Name      string      `json:"name"`
		Quantity  int         `json:"quantity"`
	}

	// GenericPurchase is the payload of platforms without a dedicated integration.
	GenericPurchase struct {
		ID           string         `json:"id" binding:"required"`
		CustomerID   string         `json:"customer_id"`
		Token        string         `json:"token"`
		Status       string         `json:"status" binding:"required"`
		TotalPrice   string         `json:"total_price"`
		CurrencyCode string         `json:"currency_code"`
		Items        []PurchaseItem `json:"items"`
	}
)

// MapShopifyFinancialStatus maps the shopify order financial status to a purchase status.
func MapShopifyFinancialStatus(status string) types.Status {
	switch status {
	case "paid":
		return types.StatusConfirmed
	case "refunded":
		return types.StatusRefunded
	case "voided":
		return types.StatusCancelled
	default:
		return types.StatusPending
	}
}

// MapWooCommerceOrderStatus maps the woo-commerce order status to a purchase status.
func MapWooCommerceOrderStatus(status string) types.Status {
	switch status {
	case "completed", "processing":
		return types.StatusConfirmed
	case "refunded":
		return types.StatusRefunded
	case "cancelled", "failed":
		return types.StatusCancelled
	default:
		return types.StatusPending
	}
}

// Webhook normalizes the shopify order.
func (o *ShopifyOrder) Webhook() PurchaseWebhook {
	items := make([]PurchaseItem, 0, len(o.LineItems))
	for _, item := range o.LineItems {
		items = append(items, PurchaseItem{
			ExternalID: strconv.FormatInt(item.ProductID, 10),
			Price:      item.Price,
			Name:       item.Name,
			Title:      item.Title,
			Quantity:   item.Quantity,
		})
	}

	return PurchaseWebhook{
		Platform:           types.PlatformShopify,
		ExternalID:         strconv.FormatInt(o.ID, 10),
		ExternalCustomerID: strconv.FormatInt(o.Customer.ID, 10),
		PurchaseToken:      firstNonEmpty(o.CheckoutToken, o.Token),
		Status:             MapShopifyFinancialStatus(o.FinancialStatus),
		TotalPrice:         o.TotalPrice,
		CurrencyCode:       o.Currency,
		Items:              items,
	}
}

// Webhook normalizes the woo-commerce order.
func (o *WooCommerceOrder) Webhook() PurchaseWebhook {
	items := make([]PurchaseItem, 0, len(o.LineItems))
	for _, item := range o.LineItems {
		items = append(items, PurchaseItem{
			ExternalID: strconv.FormatInt(item.ProductID, 10),
			Price:      item.Price.String(),
			Name:       item.Name,
			Title:      item.Name,
			Quantity:   item.Quantity,
		})
	}

	return PurchaseWebhook{
		Platform:           types.PlatformWooCommerce,
		ExternalID:         strconv.FormatInt(o.ID, 10),
		ExternalCustomerID: strconv.FormatInt(o.CustomerID, 10),
		PurchaseToken:      firstNonEmpty(o.OrderKey, o.TransactionID),
		Status:             MapWooCommerceOrderStatus(o.Status),
		TotalPrice:         o.Total,
		CurrencyCode:       o.Currency,
		Items:              items,
	}
}

// Webhook normalizes the generic purchase, the status must be one of the purchase statuses.
func (p *GenericPurchase) Webhook() (PurchaseWebhook, error) {
	status, err := types.ParseStatus(p.Status)
	if err != nil {
		return PurchaseWebhook{}, err
	}

	return PurchaseWebhook{
		Platform:           types.PlatformCustom,
		ExternalID:         p.ID,
		ExternalCustomerID: p.CustomerID,
		PurchaseToken:      firstNonEmpty(p.Token),
		Status:             status,
		TotalPrice:         p.TotalPrice,
		CurrencyCode:       p.CurrencyCode,
		Items:              p.Items,
	}, nil
}

func firstNonEmpty(values ...string) *string {
	for _, value := range values {
		if value != "" {
			return &value
		}
	}

	return nil
}
