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

package query

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Galactica-corp/purchase-oracle-service/internal/oracle"
	"github.com/Galactica-corp/purchase-oracle-service/internal/types"
)

// HandleWebhook stores the purchase event of a merchant platform for the product.
func (s *Server) HandleWebhook(c *gin.Context) {
	productID, err := parseUint256("product id", c.Param("productId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	platform, err := types.ParsePlatform(c.Param("platform"))
	if err != nil {
		AbortWithError(c, invalidRequest("%v", err))
		return
	}

	var webhook oracle.PurchaseWebhook
	switch platform {
	case types.PlatformShopify:
		var order oracle.ShopifyOrder
		if err := c.ShouldBindJSON(&order); err != nil {
			AbortWithError(c, invalidRequest("shopify order: %v", err))
			return
		}
		webhook = order.Webhook()

	case types.PlatformWooCommerce:
		var order oracle.WooCommerceOrder
		if err := c.ShouldBindJSON(&order); err != nil {
			AbortWithError(c, invalidRequest("woo-commerce order: %v", err))
			return
		}
		webhook = order.Webhook()

	default:
		var purchase oracle.GenericPurchase
		if err := c.ShouldBindJSON(&purchase); err != nil {
			AbortWithError(c, invalidRequest("purchase: %v", err))
			return
		}
		if webhook, err = purchase.Webhook(); err != nil {
			AbortWithError(c, invalidRequest("purchase: %v", err))
			return
		}
	}

	purchaseID, err := s.webhooks.HandleWebhook(c.Request.Context(), productID, webhook)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"purchase_id": purchaseID.Hex()})
}
