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

package merkle

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/Galactica-corp/purchase-oracle-service/internal/types"
)

func TestEncodeLeaf(t *testing.T) {
	leaf := EncodeLeaf(uint256.NewInt(0xabc), types.StatusConfirmed)

	expected := common.FromHex("0x0000000000000000000000000000000000000000000000000000000000000abc01")
	require.Equal(t, expected, leaf)
	require.Len(t, leaf, LeafLength)
}

func TestEncodeLeaf_statusCodes(t *testing.T) {
	id := uint256.NewInt(7)

	for status, code := range map[types.Status]byte{
		types.StatusPending:   0,
		types.StatusConfirmed: 1,
		types.StatusCancelled: 2,
		types.StatusRefunded:  3,
	} {
		leaf := EncodeLeaf(id, status)
		require.Equal(t, code, leaf[PurchaseIDLength], "status %s", status)
	}
}

func TestEncodeLeaf_deterministic(t *testing.T) {
	id := PurchaseIDFromHash(common.HexToHash("0x1234567890abcdef1234567890abcdef1234567890abcdef1234567890abcdef"))

	require.Equal(t, EncodeLeaf(id, types.StatusPending), EncodeLeaf(id.Clone(), types.StatusPending))
	require.NotEqual(t, EncodeLeaf(id, types.StatusPending), EncodeLeaf(id, types.StatusRefunded))
	require.NotEqual(t, EncodeLeaf(id, types.StatusPending), EncodeLeaf(uint256.NewInt(1), types.StatusPending))
}

func TestPurchaseIDFromHash(t *testing.T) {
	hash := common.HexToHash("0xff")
	require.Equal(t, uint256.NewInt(0xff), PurchaseIDFromHash(hash))
}

func TestDerivePurchaseID(t *testing.T) {
	productID := common.HexToHash("0x01")

	numeric := DerivePurchaseID(productID, "4242")
	require.Equal(t, numeric, DerivePurchaseID(productID, "4242"))
	require.NotEqual(t, numeric, DerivePurchaseID(productID, "4243"))
	require.NotEqual(t, numeric, DerivePurchaseID(common.HexToHash("0x02"), "4242"))

	// non decimal ids are hashed as raw bytes
	require.NotEqual(t, DerivePurchaseID(productID, "order-1"), DerivePurchaseID(productID, "order-2"))
}

func TestExternalIDBytes(t *testing.T) {
	require.Equal(t, []byte{0x10, 0x92}, externalIDBytes("4242"))
	require.Equal(t, []byte{0}, externalIDBytes("0"))
	require.Equal(t, []byte("wc_order_42"), externalIDBytes("wc_order_42"))
	require.Equal(t, []byte("-1"), externalIDBytes("-1"))
}

func TestExternalIDBytes_canonicalDecimalsOnly(t *testing.T) {
	require.Equal(t, []byte{7}, externalIDBytes("7"))
	require.Equal(t, []byte("007"), externalIDBytes("007"))
	require.Equal(t, []byte("+7"), externalIDBytes("+7"))
	require.Equal(t, []byte("00"), externalIDBytes("00"))
	require.Equal(t, []byte(" 7"), externalIDBytes(" 7"))

	productID := common.HexToHash("0x01")
	ids := map[common.Hash]string{}
	for _, externalID := range []string{"7", "007", "+7"} {
		purchaseID := DerivePurchaseID(productID, externalID)
		require.NotContains(t, ids, purchaseID, "%s collides with %s", externalID, ids[purchaseID])
		ids[purchaseID] = externalID
	}
}

func TestDeriveTextPurchaseID(t *testing.T) {
	productID := common.HexToHash("0x01")

	// "a" and "97" pack to the same byte when decimals are numeric
	require.Equal(t, DerivePurchaseID(productID, "a"), DerivePurchaseID(productID, "97"))
	require.NotEqual(t, DeriveTextPurchaseID(productID, "a"), DeriveTextPurchaseID(productID, "97"))
	require.Equal(t, DerivePurchaseID(productID, "order-1"), DeriveTextPurchaseID(productID, "order-1"))
}
