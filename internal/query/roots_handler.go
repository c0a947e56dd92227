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
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Galactica-corp/purchase-oracle-service/internal/storage"
)

const (
	defaultRootHistoryLimit = 20
	maxRootHistoryLimit     = 100
)

// RootHistory lists the roots synced on-chain for the product, newest first.
func (s *Server) RootHistory(c *gin.Context) {
	productID, err := parseUint256("product id", c.Param("productId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	limit := defaultRootHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			AbortWithError(c, invalidRequest("limit must be a positive number: %s", raw))
			return
		}
		limit = min(limit, maxRootHistoryLimit)
	}

	records, err := s.roots.RootHistory(c.Request.Context(), productID, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if records == nil {
		records = []storage.RootRecord{}
	}

	c.JSON(http.StatusOK, gin.H{
		"product_id": productID.Hex(),
		"roots":      records,
	})
}
