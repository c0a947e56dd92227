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
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/Galactica-corp/purchase-oracle-service/internal/merkle"
	"github.com/Galactica-corp/purchase-oracle-service/internal/types"
)

func TestProofService_selectors(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	productID := common.HexToHash("0x01")
	oracle := env.registerProduct(t, productID, types.PlatformCustom)
	token := "checkout-token"

	for i, externalID := range []string{"1001", "1002", "1003"} {
		purchaseID := merkle.DerivePurchaseID(productID, externalID)
		upsert := PurchaseUpsert{
			OracleID:   oracle.ID,
			PurchaseID: purchaseID,
			ExternalID: externalID,
			Status:     types.StatusConfirmed,
		}
		if i == 0 {
			upsert.PurchaseToken = &token
		}
		require.NoError(t, env.ingest.UpsertPurchase(ctx, upsert))
	}
	env.run(t)

	root := env.chain.root(productID)
	selectors := []ProofSelector{
		ByPurchaseID{ProductID: productID, PurchaseID: merkle.DerivePurchaseID(productID, "1002")},
		ByToken{Token: token, ExternalID: "1001"},
		ByExternalID{ProductID: productID, ExternalID: "1003"},
	}

	for _, selector := range selectors {
		res := env.proof(t, selector)
		require.Equal(t, ProofStatusSuccess, res.Status, "%#v", selector)
		require.NotEmpty(t, res.Proof)
		require.True(t, merkle.Verify(res.Leaf, res.Proof, root))
		require.Equal(t, oracle.ID, res.Oracle.ID)
		require.Equal(t, root.Hex(), *res.Oracle.MerkleRoot)
	}

	require.Equal(t, 3.0, testutil.ToFloat64(env.metrics.proofRequests.WithLabelValues(string(ProofStatusSuccess))))
}

func TestProofService_purchaseNotFound(t *testing.T) {
	env := newTestEnv(t)
	productID := common.HexToHash("0x01")
	oracle := env.registerProduct(t, productID, types.PlatformCustom)
	env.upsert(t, oracle, common.HexToHash("0x0a"), types.StatusPending)

	selectors := []ProofSelector{
		ByPurchaseID{ProductID: productID, PurchaseID: common.HexToHash("0x0b")},
		ByPurchaseID{ProductID: common.HexToHash("0x02"), PurchaseID: common.HexToHash("0x0a")},
		ByToken{Token: "unknown", ExternalID: "10"},
		ByExternalID{ProductID: productID, ExternalID: "unknown"},
	}

	for _, selector := range selectors {
		res := env.proof(t, selector)
		require.Equal(t, ProofStatusPurchaseNotFound, res.Status, "%#v", selector)
		require.Nil(t, res.Purchase)
	}
}

func TestProofService_noProofFound(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	productID := common.HexToHash("0x01")
	oracle := env.registerProduct(t, productID, types.PlatformCustom)
	env.upsert(t, oracle, common.HexToHash("0x0a"), types.StatusPending)
	env.run(t)

	// a tree cached before the leaf of the second purchase was committed
	env.upsert(t, oracle, common.HexToHash("0x0b"), types.StatusPending)
	_, _, err := env.reconciler.commitLeaves(ctx, nil)
	require.NoError(t, err)

	res := env.proof(t, ByPurchaseID{ProductID: productID, PurchaseID: common.HexToHash("0x0b")})
	require.Equal(t, ProofStatusNoProofFound, res.Status)
	require.NotNil(t, res.Purchase)
	require.NotNil(t, res.Oracle)

	// after the invalidation the tree contains the leaf, but its root is not on-chain yet
	env.trees.Invalidate(productID)
	res = env.proof(t, ByPurchaseID{ProductID: productID, PurchaseID: common.HexToHash("0x0b")})
	require.Equal(t, ProofStatusOracleNotSynced, res.Status)

	// the proof of the first purchase does not verify against the stored root either
	res = env.proof(t, ByPurchaseID{ProductID: productID, PurchaseID: common.HexToHash("0x0a")})
	require.Equal(t, ProofStatusOracleNotSynced, res.Status)
}
