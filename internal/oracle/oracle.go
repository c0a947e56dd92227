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
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/Galactica-corp/purchase-oracle-service/internal/signer"
	"github.com/Galactica-corp/purchase-oracle-service/internal/storage"
)

var (
	ErrOracleNotFound   = errors.New("product oracle not found")
	ErrPlatformMismatch = errors.New("webhook platform does not match the product oracle")
)

type (
	// TreeCache provides the merkle trees of products built from the committed leaves.
	TreeCache interface {
		Root(ctx context.Context, productID common.Hash) (common.Hash, error)
		Proof(ctx context.Context, productID common.Hash, rawLeaf []byte) ([]common.Hash, common.Hash, error)
		Invalidate(productIDs ...common.Hash)
	}

	// RootOracle reads and writes the merkle roots stored on-chain.
	RootOracle interface {
		ReadRoot(ctx context.Context, productID common.Hash) (common.Hash, error)
		SimulateUpdateRoot(ctx context.Context, account *signer.Account, productID, root common.Hash) (*ethtypes.Transaction, error)
		Submit(ctx context.Context, tx *ethtypes.Transaction) (common.Hash, error)
		WaitForReceipt(ctx context.Context, txHash common.Hash, confirmations uint64) (*ethtypes.Receipt, error)
	}

	// Signer provides the accounts allowed to update the on-chain roots.
	Signer interface {
		AccountForKey(key string) (*signer.Account, error)
		MutexForKey(key string) *sync.Mutex
	}

	// RootJournal records successful on-chain root updates.
	RootJournal interface {
		Append(ctx context.Context, record storage.RootRecord) error
	}

	IngestStore interface {
		FindOracleByProductID(ctx context.Context, productID common.Hash) (*storage.ProductOracle, error)
		UpsertPurchase(ctx context.Context, purchase *storage.PurchaseStatus, items []storage.PurchaseItem) error
	}

	ProofStore interface {
		FindPurchaseByID(ctx context.Context, productID, purchaseID common.Hash) (*storage.PurchaseStatus, error)
		FindPurchaseByToken(ctx context.Context, token, externalID string) (*storage.PurchaseStatus, error)
		FindPurchaseByExternalID(ctx context.Context, productID common.Hash, externalID string) (*storage.PurchaseStatus, error)
		FindOracleByID(ctx context.Context, id uint64) (*storage.ProductOracle, error)
	}

	ReconcileStore interface {
		SelectUncommittedPurchases(ctx context.Context, oracleIDs []uint64) ([]storage.PurchaseStatus, error)
		SelectPendingLeafStats(ctx context.Context) ([]storage.PendingLeafStats, error)
		CommitLeaves(ctx context.Context, leaves []storage.LeafCommit) (int, error)
		SelectProductIDs(ctx context.Context, oracleIDs []uint64) ([]common.Hash, error)
		SelectUnsyncedProductIDs(ctx context.Context) ([]common.Hash, error)
		SetMerkleRoot(ctx context.Context, productID, root common.Hash) error
		MarkSynced(ctx context.Context, productID common.Hash, txHash *common.Hash) error
	}
)
