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
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/lru"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheSize is the default amount of product trees kept in memory.
const DefaultCacheSize = 32

var ErrLeafNotFound = errors.New("leaf not found in tree")

type (
	// LeafSource provides all committed leaves of a product.
	LeafSource interface {
		ProductLeaves(ctx context.Context, productID common.Hash) ([][]byte, error)
	}

	// TreeCache builds product trees lazily from the LeafSource and keeps the most recently used ones.
	// Trees are built outside the lock and published only if the product was not invalidated meanwhile,
	// so a reader never observes a partially built tree and the first access after Invalidate
	// always reflects the storage state.
	TreeCache struct {
		source LeafSource
		trees  *lru.Cache[common.Hash, *Tree]
		builds singleflight.Group

		// generations are bumped on every invalidation of a product
		generations map[common.Hash]uint64
		mu          sync.Mutex
	}
)

// NewTreeCache creates a new cache of product trees with the given capacity.
func NewTreeCache(source LeafSource, size int) *TreeCache {
	if size <= 0 {
		size = DefaultCacheSize
	}

	return &TreeCache{
		source:      source,
		trees:       lru.NewCache[common.Hash, *Tree](size),
		generations: make(map[common.Hash]uint64),
	}
}

// Tree returns the cached tree of the product or builds it from the storage.
func (c *TreeCache) Tree(ctx context.Context, productID common.Hash) (*Tree, error) {
	if tree, ok := c.trees.Get(productID); ok {
		return tree, nil
	}

	generation := c.generation(productID)
	key := fmt.Sprintf("%s:%d", productID.Hex(), generation)

	// the build is shared by all callers, a caller giving up must not fail it for the others
	buildCtx := context.WithoutCancel(ctx)
	ch := c.builds.DoChan(key, func() (interface{}, error) {
		leaves, err := c.source.ProductLeaves(buildCtx, productID)
		if err != nil {
			return nil, fmt.Errorf("load product leaves: %w", err)
		}

		tree := NewTree(leaves)
		c.publish(productID, generation, tree)

		return tree, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}

		return res.Val.(*Tree), nil
	}
}

// Root returns the merkle root of the product tree.
func (c *TreeCache) Root(ctx context.Context, productID common.Hash) (common.Hash, error) {
	tree, err := c.Tree(ctx, productID)
	if err != nil {
		return common.Hash{}, err
	}

	return tree.Root(), nil
}

// Proof returns the proof and the hashed tree leaf for the raw purchase leaf.
// ErrLeafNotFound is returned if the leaf is not part of the current tree.
func (c *TreeCache) Proof(ctx context.Context, productID common.Hash, rawLeaf []byte) ([]common.Hash, common.Hash, error) {
	tree, err := c.Tree(ctx, productID)
	if err != nil {
		return nil, common.Hash{}, err
	}

	leaf := HashLeaf(rawLeaf)
	proof, ok := tree.ProofForHash(leaf)
	if !ok {
		return nil, leaf, ErrLeafNotFound
	}

	return proof, leaf, nil
}

// Invalidate drops the trees of the given products, the next access rebuilds them from the storage.
func (c *TreeCache) Invalidate(productIDs ...common.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, productID := range productIDs {
		c.generations[productID]++
		c.trees.Remove(productID)
	}
}

// Cached reports whether the product tree is currently cached.
func (c *TreeCache) Cached(productID common.Hash) bool {
	return c.trees.Contains(productID)
}

func (c *TreeCache) generation(productID common.Hash) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.generations[productID]
}

// publish adds the tree to the cache unless the product was invalidated after the build started.
func (c *TreeCache) publish(productID common.Hash, generation uint64, tree *Tree) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generations[productID] != generation {
		return
	}

	c.trees.Add(productID, tree)
}
