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
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/Galactica-corp/purchase-oracle-service/internal/merkle"
	"github.com/Galactica-corp/purchase-oracle-service/internal/storage"
	"github.com/Galactica-corp/purchase-oracle-service/internal/types"
)

const (
	ProofStatusPurchaseNotFound     ProofStatus = "purchase-not-found"
	ProofStatusPurchaseNotProcessed ProofStatus = "purchase-not-processed"
	ProofStatusOracleNotSynced      ProofStatus = "oracle-not-synced"
	ProofStatusNoProofFound         ProofStatus = "no-proof-found"
	ProofStatusSuccess              ProofStatus = "success"
)

type (
	// ProofStatus is the outcome of a proof request. Every status except success is an
	// expected state, clients may poll until the purchase is committed and synced.
	ProofStatus string

	// ProofSelector selects the purchase to prove: ByPurchaseID, ByToken or ByExternalID.
	ProofSelector interface {
		isProofSelector()
	}

	ByPurchaseID struct {
		ProductID  common.Hash
		PurchaseID common.Hash
	}

	ByToken struct {
		Token      string
		ExternalID string
	}

	ByExternalID struct {
		ProductID  common.Hash
		ExternalID string
	}

	// PurchaseProof is the result of a proof request.
	// Proof, Leaf, Purchase and Oracle are set for the statuses where they are known.
	PurchaseProof struct {
		Status   ProofStatus
		Proof    []common.Hash
		Leaf     common.Hash
		Purchase *storage.PurchaseStatus
		Oracle   *storage.ProductOracle
	}

	// ProofService serves merkle proofs of committed purchases of synced oracles.
	ProofService struct {
		store   ProofStore
		trees   TreeCache
		metrics *Metrics
		logger  log.Logger
	}
)

func (ByPurchaseID) isProofSelector() {}
func (ByToken) isProofSelector()      {}
func (ByExternalID) isProofSelector() {}

func NewProofService(store ProofStore, trees TreeCache, metrics *Metrics, logger log.Logger) *ProofService {
	return &ProofService{
		store:   store,
		trees:   trees,
		metrics: metrics,
		logger:  logger,
	}
}

// GetPurchaseProof returns the proof of the selected purchase against the root of its oracle.
// Only storage failures are returned as errors.
func (s *ProofService) GetPurchaseProof(ctx context.Context, selector ProofSelector) (*PurchaseProof, error) {
	res, err := s.getPurchaseProof(ctx, selector)
	if err != nil {
		s.metrics.proofRequests.WithLabelValues(ResultError).Inc()
		return nil, err
	}

	s.metrics.proofRequests.WithLabelValues(string(res.Status)).Inc()
	return res, nil
}

func (s *ProofService) getPurchaseProof(ctx context.Context, selector ProofSelector) (*PurchaseProof, error) {
	purchase, err := s.findPurchase(ctx, selector)
	if errors.Is(err, types.ErrNotFound) {
		return &PurchaseProof{Status: ProofStatusPurchaseNotFound}, nil
	}
	if err != nil {
		return nil, err
	}

	if purchase.Leaf == nil {
		return &PurchaseProof{Status: ProofStatusPurchaseNotProcessed, Purchase: purchase}, nil
	}

	oracle, err := s.store.FindOracleByID(ctx, purchase.OracleID)
	if err != nil {
		return nil, fmt.Errorf("find oracle of purchase %s: %w", purchase.PurchaseID, err)
	}

	if !oracle.Synced || oracle.MerkleRoot == nil {
		return &PurchaseProof{Status: ProofStatusOracleNotSynced, Purchase: purchase, Oracle: oracle}, nil
	}

	rawLeaf, err := hexutil.Decode(*purchase.Leaf)
	if err != nil {
		return nil, fmt.Errorf("decode leaf of purchase %s: %w", purchase.PurchaseID, err)
	}

	productID := common.HexToHash(oracle.ProductID)
	proof, leaf, err := s.trees.Proof(ctx, productID, rawLeaf)
	if errors.Is(err, merkle.ErrLeafNotFound) {
		s.logger.Info("leaf of synced oracle is missing in tree", "product", oracle.ProductID, "purchase", purchase.PurchaseID)
		return &PurchaseProof{Status: ProofStatusNoProofFound, Leaf: leaf, Purchase: purchase, Oracle: oracle}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get proof of purchase %s: %w", purchase.PurchaseID, err)
	}

	// the tree may already contain leaves committed after the last sync
	if !merkle.Verify(leaf, proof, common.HexToHash(*oracle.MerkleRoot)) {
		return &PurchaseProof{Status: ProofStatusOracleNotSynced, Leaf: leaf, Purchase: purchase, Oracle: oracle}, nil
	}

	return &PurchaseProof{
		Status:   ProofStatusSuccess,
		Proof:    proof,
		Leaf:     leaf,
		Purchase: purchase,
		Oracle:   oracle,
	}, nil
}

func (s *ProofService) findPurchase(ctx context.Context, selector ProofSelector) (*storage.PurchaseStatus, error) {
	switch sel := selector.(type) {
	case ByPurchaseID:
		return s.store.FindPurchaseByID(ctx, sel.ProductID, sel.PurchaseID)
	case ByToken:
		return s.store.FindPurchaseByToken(ctx, sel.Token, sel.ExternalID)
	case ByExternalID:
		return s.store.FindPurchaseByExternalID(ctx, sel.ProductID, sel.ExternalID)
	default:
		return nil, fmt.Errorf("unsupported proof selector %T", selector)
	}
}
