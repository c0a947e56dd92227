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
	"github.com/Galactica-corp/purchase-oracle-service/internal/storage"
)

type proofResponse struct {
	Status   oracle.ProofStatus      `json:"status"`
	Proof    []string                `json:"proof,omitempty"`
	Leaf     string                  `json:"leaf,omitempty"`
	Root     string                  `json:"root,omitempty"`
	Purchase *storage.PurchaseStatus `json:"purchase,omitempty"`
	Oracle   *storage.ProductOracle  `json:"oracle,omitempty"`
}

// ProofByPurchaseID queries the proof of a purchase by its purchase id.
func (s *Server) ProofByPurchaseID(c *gin.Context) {
	productID, err := parseUint256("product id", c.Param("productId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	purchaseID, err := parseUint256("purchase id", c.Param("purchaseId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.writeProof(c, oracle.ByPurchaseID{ProductID: productID, PurchaseID: purchaseID})
}

// ProofByExternalID queries the proof of a purchase by the order id of the merchant platform.
func (s *Server) ProofByExternalID(c *gin.Context) {
	productID, err := parseUint256("product id", c.Param("productId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.writeProof(c, oracle.ByExternalID{ProductID: productID, ExternalID: c.Param("externalId")})
}

// ProofByToken queries the proof of a purchase by its purchase token and external id.
func (s *Server) ProofByToken(c *gin.Context) {
	token, externalID := c.Query("token"), c.Query("externalId")
	if token == "" || externalID == "" {
		AbortWithError(c, invalidRequest("token and externalId are required"))
		return
	}

	s.writeProof(c, oracle.ByToken{Token: token, ExternalID: externalID})
}

func (s *Server) writeProof(c *gin.Context, selector oracle.ProofSelector) {
	res, err := s.proofs.GetPurchaseProof(c.Request.Context(), selector)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := proofResponse{
		Status:   res.Status,
		Purchase: res.Purchase,
		Oracle:   res.Oracle,
	}

	if res.Status == oracle.ProofStatusSuccess {
		resp.Leaf = res.Leaf.Hex()
		resp.Proof = make([]string, len(res.Proof))
		for i, p := range res.Proof {
			resp.Proof[i] = p.Hex()
		}
		if res.Oracle != nil && res.Oracle.MerkleRoot != nil {
			resp.Root = *res.Oracle.MerkleRoot
		}
	}

	status := http.StatusOK
	if res.Status == oracle.ProofStatusPurchaseNotFound {
		status = http.StatusNotFound
	}

	c.JSON(status, resp)
}
