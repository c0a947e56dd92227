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
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

type (
	// Tree is an immutable keccak256 merkle tree with hashed, sorted leaves and sorted pairs.
	// The layout matches the one expected by the on-chain verifier (OpenZeppelin MerkleProof):
	//   - every raw leaf is hashed once before insertion
	//   - hashed leaves are sorted, so the root does not depend on the insertion order
	//   - a parent node is keccak256(min(left, right) || max(left, right))
	//   - the last node of an odd level is promoted to the next level as is
	Tree struct {
		// levels[0] are the sorted hashed leaves, the last level contains the root
		levels [][]common.Hash
	}
)

// NewTree builds the tree from raw (not hashed) leaves.
func NewTree(rawLeaves [][]byte) *Tree {
	leaves := make([]common.Hash, len(rawLeaves))
	for i, raw := range rawLeaves {
		leaves[i] = HashLeaf(raw)
	}

	sort.Slice(leaves, func(i, j int) bool {
		return bytes.Compare(leaves[i][:], leaves[j][:]) < 0
	})

	levels := [][]common.Hash{leaves}
	for level := leaves; len(level) > 1; level = levels[len(levels)-1] {
		next := make([]common.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}

			next = append(next, HashPair(level[i], level[i+1]))
		}

		levels = append(levels, next)
	}

	return &Tree{levels: levels}
}

// Root returns the root of the tree. The root of an empty tree is the zero hash.
func (t *Tree) Root() common.Hash {
	top := t.levels[len(t.levels)-1]
	if len(top) == 0 {
		return common.Hash{}
	}

	return top[0]
}

// GetLeavesAmount returns the amount of leaves in the tree.
func (t *Tree) GetLeavesAmount() int {
	return len(t.levels[0])
}

// Proof returns the sibling path for the raw leaf, bottom-up.
// The second return value is false if the leaf is not a member of the tree.
func (t *Tree) Proof(rawLeaf []byte) ([]common.Hash, bool) {
	return t.ProofForHash(HashLeaf(rawLeaf))
}

// ProofForHash returns the sibling path for an already hashed leaf.
func (t *Tree) ProofForHash(leaf common.Hash) ([]common.Hash, bool) {
	leaves := t.levels[0]
	index := sort.Search(len(leaves), func(i int) bool {
		return bytes.Compare(leaves[i][:], leaf[:]) >= 0
	})
	if index == len(leaves) || leaves[index] != leaf {
		return nil, false
	}

	proof := make([]common.Hash, 0, len(t.levels)-1)
	for _, level := range t.levels[:len(t.levels)-1] {
		// a promoted node has no sibling on this level
		if sibling := index ^ 1; sibling < len(level) {
			proof = append(proof, level[sibling])
		}

		index /= 2
	}

	return proof, true
}

// Verify recomputes the root from the hashed leaf and its proof.
func Verify(leaf common.Hash, proof []common.Hash, root common.Hash) bool {
	computed := leaf
	for _, sibling := range proof {
		computed = HashPair(computed, sibling)
	}

	return computed == root
}

// HashLeaf hashes a raw leaf into a tree leaf.
func HashLeaf(rawLeaf []byte) common.Hash {
	return keccak256(rawLeaf)
}

// HashPair hashes two nodes in the sorted order.
func HashPair(a, b common.Hash) common.Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}

	return keccak256(a[:], b[:])
}

func keccak256(data ...[]byte) common.Hash {
	hash := sha3.NewLegacyKeccak256()
	for _, d := range data {
		hash.Write(d)
	}

	var h common.Hash
	hash.Sum(h[:0])

	return h
}
