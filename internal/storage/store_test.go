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

package storage

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Galactica-corp/purchase-oracle-service/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	database, err := OpenDatabase(DriverSQLite, dsn, log.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = CloseDatabase(database) })

	return NewStore(database)
}

func createOracle(t *testing.T, store *Store, productID common.Hash) *ProductOracle {
	t.Helper()

	oracle, err := store.UpsertProductOracle(context.Background(), &ProductOracle{
		ProductID: productID.Hex(),
		Platform:  types.PlatformCustom,
	})
	require.NoError(t, err)

	return oracle
}

func strPtr(s string) *string {
	return &s
}

func TestStore_UpsertPurchase(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	productID := common.HexToHash("0x01")
	oracle := createOracle(t, store, productID)
	purchaseID := common.HexToHash("0xabc")

	err := store.UpsertPurchase(ctx, &PurchaseStatus{
		OracleID:      oracle.ID,
		PurchaseID:    purchaseID.Hex(),
		ExternalID:    "1001",
		PurchaseToken: strPtr("token"),
		Status:        types.StatusPending,
		TotalPrice:    "10.00",
		CurrencyCode:  "USD",
	}, []PurchaseItem{{ExternalID: "item-1", Price: "10.00", Name: "book", Quantity: 1}})
	require.NoError(t, err)

	purchases, err := store.SelectUncommittedPurchases(ctx, nil)
	require.NoError(t, err)
	require.Len(t, purchases, 1)

	committed, err := store.CommitLeaves(ctx, []LeafCommit{{
		PurchaseRowID: purchases[0].ID,
		Status:        types.StatusPending,
		Leaf:          []byte{0x01, 0x02},
	}})
	require.NoError(t, err)
	require.Equal(t, 1, committed)

	// re-delivery with a new status resets the leaf and keeps the token and the items
	err = store.UpsertPurchase(ctx, &PurchaseStatus{
		OracleID:     oracle.ID,
		PurchaseID:   purchaseID.Hex(),
		ExternalID:   "1001",
		Status:       types.StatusConfirmed,
		TotalPrice:   "12.00",
		CurrencyCode: "EUR",
	}, []PurchaseItem{
		{ExternalID: "item-1", Price: "99.00", Name: "changed", Quantity: 5},
		{ExternalID: "item-2", Price: "2.00", Name: "pen", Quantity: 1},
	})
	require.NoError(t, err)

	purchase, err := store.FindPurchaseByID(ctx, productID, purchaseID)
	require.NoError(t, err)
	require.Nil(t, purchase.Leaf)
	require.Equal(t, types.StatusConfirmed, purchase.Status)
	require.Equal(t, "12.00", purchase.TotalPrice)
	require.Equal(t, "EUR", purchase.CurrencyCode)
	require.NotNil(t, purchase.PurchaseToken)
	require.Equal(t, "token", *purchase.PurchaseToken)

	items, err := store.SelectPurchaseItems(ctx, purchaseID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "book", items[0].Name)
	require.Equal(t, "10.00", items[0].Price)
	require.Equal(t, "pen", items[1].Name)
}

func TestStore_UpsertPurchase_rollsBackOnItemFailure(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	productID := common.HexToHash("0x01")
	oracle := createOracle(t, store, productID)
	purchaseID := common.HexToHash("0xabc")

	errItems := errors.New("items table unavailable")
	var failItems atomic.Bool
	failItems.Store(true)
	err := store.db.Callback().Create().Before("gorm:create").Register("test:fail_purchase_items", func(tx *gorm.DB) {
		if failItems.Load() && tx.Statement.Table == "purchase_items" {
			_ = tx.AddError(errItems)
		}
	})
	require.NoError(t, err)

	upsert := func(status types.Status) error {
		return store.UpsertPurchase(ctx, &PurchaseStatus{
			OracleID:   oracle.ID,
			PurchaseID: purchaseID.Hex(),
			ExternalID: "1001",
			Status:     status,
		}, []PurchaseItem{{ExternalID: "item-1", Price: "10.00", Quantity: 1}})
	}

	require.ErrorIs(t, upsert(types.StatusPending), errItems)
	_, err = store.FindPurchaseByID(ctx, productID, purchaseID)
	require.ErrorIs(t, err, types.ErrNotFound)

	failItems.Store(false)
	require.NoError(t, upsert(types.StatusPending))
	purchases, err := store.SelectUncommittedPurchases(ctx, nil)
	require.NoError(t, err)
	require.Len(t, purchases, 1)
	committed, err := store.CommitLeaves(ctx, []LeafCommit{
		{PurchaseRowID: purchases[0].ID, Status: types.StatusPending, Leaf: []byte{0x0a}},
	})
	require.NoError(t, err)
	require.Equal(t, 1, committed)

	// a re-delivery failing on its items leaves the committed state untouched
	failItems.Store(true)
	require.ErrorIs(t, upsert(types.StatusConfirmed), errItems)

	purchase, err := store.FindPurchaseByID(ctx, productID, purchaseID)
	require.NoError(t, err)
	require.Equal(t, types.StatusPending, purchase.Status)
	require.NotNil(t, purchase.Leaf)
	require.Equal(t, "0x0a", *purchase.Leaf)

	items, err := store.SelectPurchaseItems(ctx, purchaseID)
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestScanTime(t *testing.T) {
	want := time.Date(2024, 5, 1, 12, 30, 15, 123456000, time.UTC)

	for _, value := range []interface{}{
		want,
		want.String(),
		[]byte(want.Format("2006-01-02 15:04:05.999999999-07:00")),
		want.Format(time.RFC3339Nano),
		"2024-05-01 12:30:15.123456",
	} {
		var got scanTime
		require.NoError(t, got.Scan(value), value)
		require.True(t, want.Equal(time.Time(got)), "%v parsed as %v", value, time.Time(got))
	}

	var got scanTime
	require.Error(t, got.Scan("yesterday"))
	require.Error(t, got.Scan(42))
}

func TestStore_FindPurchase(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	productID := common.HexToHash("0x01")
	otherProductID := common.HexToHash("0x02")
	oracle := createOracle(t, store, productID)
	createOracle(t, store, otherProductID)
	purchaseID := common.HexToHash("0xabc")

	require.NoError(t, store.UpsertPurchase(ctx, &PurchaseStatus{
		OracleID:      oracle.ID,
		PurchaseID:    purchaseID.Hex(),
		ExternalID:    "1001",
		PurchaseToken: strPtr("token"),
		Status:        types.StatusPending,
	}, nil))

	purchase, err := store.FindPurchaseByID(ctx, productID, purchaseID)
	require.NoError(t, err)
	require.Equal(t, "1001", purchase.ExternalID)

	purchase, err = store.FindPurchaseByToken(ctx, "token", "1001")
	require.NoError(t, err)
	require.Equal(t, purchaseID.Hex(), purchase.PurchaseID)

	purchase, err = store.FindPurchaseByExternalID(ctx, productID, "1001")
	require.NoError(t, err)
	require.Equal(t, purchaseID.Hex(), purchase.PurchaseID)

	_, err = store.FindPurchaseByID(ctx, otherProductID, purchaseID)
	require.ErrorIs(t, err, types.ErrNotFound)

	_, err = store.FindPurchaseByToken(ctx, "token", "1002")
	require.ErrorIs(t, err, types.ErrNotFound)

	_, err = store.FindPurchaseByExternalID(ctx, otherProductID, "1001")
	require.ErrorIs(t, err, types.ErrNotFound)
}

func TestStore_CommitLeaves_skipsChangedPurchases(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	oracle := createOracle(t, store, common.HexToHash("0x01"))

	for i, id := range []string{"0x0a", "0x0b"} {
		require.NoError(t, store.UpsertPurchase(ctx, &PurchaseStatus{
			OracleID:   oracle.ID,
			PurchaseID: common.HexToHash(id).Hex(),
			ExternalID: fmt.Sprint(i),
			Status:     types.StatusPending,
		}, nil))
	}

	purchases, err := store.SelectUncommittedPurchases(ctx, []uint64{oracle.ID})
	require.NoError(t, err)
	require.Len(t, purchases, 2)

	// the second purchase changes its status after it was selected
	require.NoError(t, store.UpsertPurchase(ctx, &PurchaseStatus{
		OracleID:   oracle.ID,
		PurchaseID: common.HexToHash("0x0b").Hex(),
		ExternalID: "1",
		Status:     types.StatusConfirmed,
	}, nil))

	committed, err := store.CommitLeaves(ctx, []LeafCommit{
		{PurchaseRowID: purchases[0].ID, Status: purchases[0].Status, Leaf: []byte{0x0a}},
		{PurchaseRowID: purchases[1].ID, Status: purchases[1].Status, Leaf: []byte{0x0b}},
	})
	require.NoError(t, err)
	require.Equal(t, 1, committed)

	leaves, err := store.ProductLeaves(ctx, common.HexToHash("0x01"))
	require.NoError(t, err)
	require.Equal(t, [][]byte{{0x0a}}, leaves)

	purchases, err = store.SelectUncommittedPurchases(ctx, nil)
	require.NoError(t, err)
	require.Len(t, purchases, 1)
	require.Equal(t, types.StatusConfirmed, purchases[0].Status)

	purchases, err = store.SelectUncommittedPurchases(ctx, []uint64{})
	require.NoError(t, err)
	require.Empty(t, purchases)
}

func TestStore_SelectPendingLeafStats(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	first := createOracle(t, store, common.HexToHash("0x01"))
	second := createOracle(t, store, common.HexToHash("0x02"))

	for i := 0; i < 3; i++ {
		require.NoError(t, store.UpsertPurchase(ctx, &PurchaseStatus{
			OracleID:   first.ID,
			PurchaseID: common.BigToHash(big.NewInt(int64(i + 10))).Hex(),
			ExternalID: fmt.Sprint(i),
			Status:     types.StatusPending,
		}, nil))
	}
	require.NoError(t, store.UpsertPurchase(ctx, &PurchaseStatus{
		OracleID:   second.ID,
		PurchaseID: common.HexToHash("0x02").Hex(),
		ExternalID: "x",
		Status:     types.StatusPending,
	}, nil))

	stats, err := store.SelectPendingLeafStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	require.Equal(t, first.ID, stats[0].OracleID)
	require.Equal(t, 3, stats[0].Pending)
	require.WithinDuration(t, time.Now(), stats[0].Oldest, time.Minute)
	require.Equal(t, second.ID, stats[1].OracleID)
	require.Equal(t, 1, stats[1].Pending)
}

func TestStore_SyncState(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	productA := common.HexToHash("0x0a")
	productB := common.HexToHash("0x0b")
	oracleA := createOracle(t, store, productA)
	oracleB := createOracle(t, store, productB)

	unsynced, err := store.SelectUnsyncedProductIDs(ctx)
	require.NoError(t, err)
	require.Empty(t, unsynced, "oracles without a computed root are not carried over")

	root := common.HexToHash("0x1234")
	require.NoError(t, store.SetMerkleRoot(ctx, productA, root))
	require.NoError(t, store.SetMerkleRoot(ctx, productB, root))

	unsynced, err = store.SelectUnsyncedProductIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []common.Hash{productA, productB}, unsynced)

	txHash := common.HexToHash("0xfeed")
	require.NoError(t, store.MarkSynced(ctx, productA, &txHash))
	require.NoError(t, store.MarkSynced(ctx, productB, nil))

	unsynced, err = store.SelectUnsyncedProductIDs(ctx)
	require.NoError(t, err)
	require.Empty(t, unsynced)

	oracle, err := store.FindOracleByProductID(ctx, productA)
	require.NoError(t, err)
	require.True(t, oracle.Synced)
	require.Equal(t, root.Hex(), *oracle.MerkleRoot)
	require.Equal(t, txHash.Hex(), *oracle.LastSyncTxHash)

	oracle, err = store.FindOracleByID(ctx, oracleB.ID)
	require.NoError(t, err)
	require.Nil(t, oracle.LastSyncTxHash)

	productIDs, err := store.SelectProductIDs(ctx, []uint64{oracleB.ID, oracleA.ID})
	require.NoError(t, err)
	require.Equal(t, []common.Hash{productA, productB}, productIDs)

	require.ErrorIs(t, store.SetMerkleRoot(ctx, common.HexToHash("0xff"), root), types.ErrNotFound)
	require.ErrorIs(t, store.MarkSynced(ctx, common.HexToHash("0xff"), nil), types.ErrNotFound)
}

func TestStore_UpsertProductOracle_keepsSyncState(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	productID := common.HexToHash("0x01")
	oracle := createOracle(t, store, productID)

	require.NoError(t, store.SetMerkleRoot(ctx, productID, common.HexToHash("0x1234")))
	require.NoError(t, store.MarkSynced(ctx, productID, nil))

	updated, err := store.UpsertProductOracle(ctx, &ProductOracle{
		ProductID:        productID.Hex(),
		Platform:         types.PlatformShopify,
		HookSignatureKey: "secret",
	})
	require.NoError(t, err)
	require.Equal(t, oracle.ID, updated.ID)
	require.Equal(t, types.PlatformShopify, updated.Platform)
	require.Equal(t, "secret", updated.HookSignatureKey)
	require.True(t, updated.Synced)

	oracles, err := store.SelectOracles(ctx)
	require.NoError(t, err)
	require.Len(t, oracles, 1)
}
