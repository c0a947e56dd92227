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
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	db "github.com/cometbft/cometbft-db"
	"github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Galactica-corp/purchase-oracle-service/internal/merkle"
	"github.com/Galactica-corp/purchase-oracle-service/internal/signer"
	"github.com/Galactica-corp/purchase-oracle-service/internal/storage"
	"github.com/Galactica-corp/purchase-oracle-service/internal/types"
)

const testPrivateKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

type (
	// fakeChain keeps the on-chain roots in memory, a root update is applied when its receipt is awaited.
	fakeChain struct {
		mu          sync.Mutex
		roots       map[common.Hash]common.Hash
		pending     map[common.Hash][2]common.Hash
		readErr     map[common.Hash]error
		simulateErr error
		submitErr   error
		receiptErr  error
		nonce       uint64
		writes      int
	}

	testEnv struct {
		database   *gorm.DB
		store      *storage.Store
		trees      *merkle.TreeCache
		chain      *fakeChain
		journal    *storage.RootJournal
		keyring    *signer.Keyring
		metrics    *Metrics
		registry   *prometheus.Registry
		ingest     *IngestionService
		proofs     *ProofService
		reconciler *Reconciler
	}
)

func newFakeChain() *fakeChain {
	return &fakeChain{
		roots:   make(map[common.Hash]common.Hash),
		pending: make(map[common.Hash][2]common.Hash),
		readErr: make(map[common.Hash]error),
	}
}

func (c *fakeChain) ReadRoot(_ context.Context, productID common.Hash) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.readErr[productID]; err != nil {
		return common.Hash{}, err
	}

	return c.roots[productID], nil
}

func (c *fakeChain) SimulateUpdateRoot(_ context.Context, account *signer.Account, productID, root common.Hash) (*ethtypes.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.simulateErr != nil {
		return nil, c.simulateErr
	}

	to := common.HexToAddress("0x907C070A007AE4A9088110794de5E8Ab5ce85Fd8")
	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce: c.nonce,
		To:    &to,
		Data:  append(productID.Bytes(), root.Bytes()...),
	})
	c.nonce++

	return account.Opts.Signer(account.Address, tx)
}

func (c *fakeChain) Submit(_ context.Context, tx *ethtypes.Transaction) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.submitErr != nil {
		return common.Hash{}, c.submitErr
	}

	data := tx.Data()
	c.pending[tx.Hash()] = [2]common.Hash{common.BytesToHash(data[:32]), common.BytesToHash(data[32:])}
	return tx.Hash(), nil
}

func (c *fakeChain) WaitForReceipt(_ context.Context, txHash common.Hash, confirmations uint64) (*ethtypes.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if confirmations < DefaultConfirmations {
		return nil, fmt.Errorf("unexpected confirmations %d", confirmations)
	}

	if c.receiptErr != nil {
		return nil, c.receiptErr
	}

	update, ok := c.pending[txHash]
	if !ok {
		return nil, fmt.Errorf("unknown transaction %s", txHash.Hex())
	}
	delete(c.pending, txHash)

	c.roots[update[0]] = update[1]
	c.writes++

	return &ethtypes.Receipt{
		Status:      ethtypes.ReceiptStatusSuccessful,
		TxHash:      txHash,
		BlockNumber: big.NewInt(int64(100 + c.writes)),
	}, nil
}

func (c *fakeChain) root(productID common.Hash) common.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.roots[productID]
}

func (c *fakeChain) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.writes
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := log.NewNopLogger()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	database, err := storage.OpenDatabase(storage.DriverSQLite, dsn, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.CloseDatabase(database) })

	keyring := signer.NewKeyring(big.NewInt(1337))
	require.NoError(t, keyring.AddHexKey(signer.OracleUpdaterKey, testPrivateKey))

	env := &testEnv{
		database: database,
		store:    storage.NewStore(database),
		chain:    newFakeChain(),
		journal:  storage.NewRootJournal(db.NewMemDB()),
		keyring:  keyring,
		registry: prometheus.NewRegistry(),
	}
	env.metrics = NewMetrics(env.registry)
	env.trees = merkle.NewTreeCache(env.store, merkle.DefaultCacheSize)
	env.ingest = NewIngestionService(env.store, logger)
	env.proofs = NewProofService(env.store, env.trees, env.metrics, logger)
	env.reconciler = NewReconciler(
		env.store,
		env.trees,
		env.chain,
		env.keyring,
		env.journal,
		DefaultReconcilerConfig(),
		env.metrics,
		logger,
	)

	return env
}

func (env *testEnv) registerProduct(t *testing.T, productID common.Hash, platform types.Platform) *storage.ProductOracle {
	t.Helper()

	oracle, err := env.store.UpsertProductOracle(context.Background(), &storage.ProductOracle{
		ProductID: productID.Hex(),
		Platform:  platform,
	})
	require.NoError(t, err)

	return oracle
}

func (env *testEnv) upsert(t *testing.T, oracle *storage.ProductOracle, purchaseID common.Hash, status types.Status) {
	t.Helper()

	require.NoError(t, env.ingest.UpsertPurchase(context.Background(), PurchaseUpsert{
		OracleID:     oracle.ID,
		PurchaseID:   purchaseID,
		ExternalID:   purchaseID.Big().String(),
		Status:       status,
		TotalPrice:   "10.00",
		CurrencyCode: "EUR",
	}))
}

func (env *testEnv) run(t *testing.T) Report {
	t.Helper()

	report, err := env.reconciler.Run(context.Background())
	require.NoError(t, err)

	return report
}

func (env *testEnv) oracle(t *testing.T, productID common.Hash) *storage.ProductOracle {
	t.Helper()

	oracle, err := env.store.FindOracleByProductID(context.Background(), productID)
	require.NoError(t, err)

	return oracle
}

func (env *testEnv) proof(t *testing.T, selector ProofSelector) *PurchaseProof {
	t.Helper()

	res, err := env.proofs.GetPurchaseProof(context.Background(), selector)
	require.NoError(t, err)

	return res
}

// fixed clock for the update policy
func fixedNow(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}
