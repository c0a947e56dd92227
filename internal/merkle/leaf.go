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
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/Galactica-corp/purchase-oracle-service/internal/types"
)

const (
	// PurchaseIDLength is the size of the packed purchase id in bytes (uint256).
	PurchaseIDLength = 32

	// LeafLength is the size of an encoded purchase leaf: uint256 purchase id followed by uint8 status.
	LeafLength = PurchaseIDLength + 1
)

// EncodeLeaf packs the purchase id and its status code the same way as solidity abi.encodePacked(uint256, uint8).
func EncodeLeaf(purchaseID *uint256.Int, status types.Status) []byte {
	leaf := make([]byte, LeafLength)
	id := purchaseID.Bytes32()
	copy(leaf, id[:])
	leaf[PurchaseIDLength] = byte(status.Code())

	return leaf
}

// PurchaseIDFromHash converts the content-derived purchase id to uint256.
func PurchaseIDFromHash(purchaseID common.Hash) *uint256.Int {
	return new(uint256.Int).SetBytes32(purchaseID[:])
}

// DerivePurchaseID computes keccak256(productID || externalID) for the numeric order ids of the merchant platforms.
// A canonical decimal external id is packed as its minimal big endian representation, any other id as raw utf-8 bytes.
func DerivePurchaseID(productID common.Hash, externalID string) common.Hash {
	return crypto.Keccak256Hash(productID.Bytes(), externalIDBytes(externalID))
}

// DeriveTextPurchaseID computes keccak256(productID || externalID) with the external id always packed as raw utf-8
// bytes, so distinct free-form ids never share a purchase id.
func DeriveTextPurchaseID(productID common.Hash, externalID string) common.Hash {
	return crypto.Keccak256Hash(productID.Bytes(), []byte(externalID))
}

func externalIDBytes(externalID string) []byte {
	if !isCanonicalDecimal(externalID) {
		return []byte(externalID)
	}

	n, _ := new(big.Int).SetString(externalID, 10)
	if n.Sign() == 0 {
		return []byte{0}
	}

	return n.Bytes()
}

// isCanonicalDecimal reports whether s matches ^(0|[1-9][0-9]*)$.
func isCanonicalDecimal(s string) bool {
	if s == "" || (s[0] == '0' && len(s) > 1) {
		return false
	}

	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}

	return true
}
