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

package main

import (
	"log"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/Galactica-corp/purchase-oracle-service/internal/merkle"
	"github.com/Galactica-corp/purchase-oracle-service/internal/types"
)

func main() {
	productID := common.HexToHash("0xabc")
	statuses := []types.Status{types.StatusPending, types.StatusConfirmed, types.StatusCancelled, types.StatusRefunded}

	totalLeaves := 1000000
	batchSize := 100000

	leaves := make([][]byte, 0, totalLeaves)
	start := time.Now()

	for i := 0; i < totalLeaves; i += batchSize {
		genStart := time.Now()
		for j := i; j < i+batchSize; j++ {
			purchaseID := merkle.DerivePurchaseID(productID, strconv.Itoa(j))
			leaves = append(leaves, merkle.EncodeLeaf(merkle.PurchaseIDFromHash(purchaseID), statuses[j%len(statuses)]))
		}
		log.Printf("Generated %d leaves in %s\n", batchSize, time.Since(genStart))

		buildStart := time.Now()
		tree := merkle.NewTree(leaves)
		log.Printf("Built tree of %d leaves in %s - root %s\n", tree.GetLeavesAmount(), time.Since(buildStart), tree.Root().Hex())

		proofStart := time.Now()
		proof, ok := tree.Proof(leaves[len(leaves)-1])
		if !ok {
			panic("last leaf not found in tree")
		}
		if !merkle.Verify(merkle.HashLeaf(leaves[len(leaves)-1]), proof, tree.Root()) {
			panic("proof of last leaf does not verify")
		}
		log.Printf("Proof of %d siblings created and verified in %s\n", len(proof), time.Since(proofStart))
	}

	log.Printf("Built trees up to %d leaves in %s\n", len(leaves), time.Since(start))

	// a purchase id out of the uint64 range still encodes into a 33 bytes leaf
	maxLeaf := merkle.EncodeLeaf(new(uint256.Int).SetAllOne(), types.StatusConfirmed)
	log.Printf("Leaf of the max purchase id: %x\n", maxLeaf)
}
