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
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"

	"github.com/Galactica-corp/purchase-oracle-service/internal/merkle"
	"github.com/Galactica-corp/purchase-oracle-service/internal/signer"
	"github.com/Galactica-corp/purchase-oracle-service/internal/storage"
)

const (
	DefaultConfirmations  = 4
	DefaultReceiptTimeout = 5 * time.Minute
)

type (
	// UpdatePolicy limits the scan to oracles with enough pending leaves or with a pending leaf
	// older than MaxAge. The zero policy scans every oracle.
	UpdatePolicy struct {
		Threshold int
		MaxAge    time.Duration
	}

	ReconcilerConfig struct {
		// SignerKey is the logical key of the account that updates the on-chain roots.
		SignerKey string

		// Confirmations is the amount of blocks a root update must be confirmed with.
		Confirmations uint64

		// ReceiptTimeout bounds the wait for the receipt of a root update.
		ReceiptTimeout time.Duration

		Policy UpdatePolicy
	}

	// Report summarizes a reconciliation run.
	Report struct {
		// LeavesCommitted is the amount of purchase leaves written by the run.
		LeavesCommitted int

		// Products are the products whose roots were resynced, in processing order.
		Products []common.Hash

		// ChainWrites is the amount of confirmed on-chain root updates.
		ChainWrites int

		// AlreadySynced is the amount of products whose on-chain root already matched.
		AlreadySynced int

		// Failed is the amount of products left unsynced because of chain failures.
		Failed int
	}

	// Reconciler commits pending purchases into the product trees and pushes the changed roots on-chain.
	Reconciler struct {
		store   ReconcileStore
		trees   TreeCache
		chain   RootOracle
		signer  Signer
		journal RootJournal
		config  ReconcilerConfig
		metrics *Metrics
		logger  log.Logger

		now func() time.Time
	}
)

// DefaultReconcilerConfig returns the configuration used in production.
func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		SignerKey:      signer.OracleUpdaterKey,
		Confirmations:  DefaultConfirmations,
		ReceiptTimeout: DefaultReceiptTimeout,
	}
}

// Enabled reports whether the policy filters oracles.
func (p UpdatePolicy) Enabled() bool {
	return p.Threshold > 0 || p.MaxAge > 0
}

func NewReconciler(
	store ReconcileStore,
	trees TreeCache,
	chain RootOracle,
	accounts Signer,
	journal RootJournal,
	config ReconcilerConfig,
	metrics *Metrics,
	logger log.Logger,
) *Reconciler {
	return &Reconciler{
		store:   store,
		trees:   trees,
		chain:   chain,
		signer:  accounts,
		journal: journal,
		config:  config,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Run executes one reconciliation: commits the pending leaves, invalidates the trees of the
// affected products and resyncs their roots together with the roots left unsynced by previous runs.
// Chain failures leave the product unsynced and do not stop the run, storage failures abort it.
func (r *Reconciler) Run(ctx context.Context) (Report, error) {
	var report Report

	oracleIDs, err := r.selectOracles(ctx)
	if err != nil {
		return report, err
	}

	committedOracleIDs, committed, err := r.commitLeaves(ctx, oracleIDs)
	if err != nil {
		return report, err
	}
	report.LeavesCommitted = committed
	r.metrics.leavesCommitted.Add(float64(committed))

	changedProductIDs, err := r.store.SelectProductIDs(ctx, committedOracleIDs)
	if err != nil {
		return report, err
	}

	unsyncedProductIDs, err := r.store.SelectUnsyncedProductIDs(ctx)
	if err != nil {
		return report, err
	}

	r.trees.Invalidate(changedProductIDs...)

	report.Products = unionProductIDs(changedProductIDs, unsyncedProductIDs)
	if len(report.Products) == 0 {
		r.metrics.unsyncedProducts.Set(0)
		r.logger.Debug("no oracle to update")
		return report, nil
	}

	r.logger.Info(
		"resyncing product roots",
		"products", len(report.Products),
		"changed", len(changedProductIDs),
		"carried_over", len(unsyncedProductIDs),
		"leaves", committed,
	)

	for _, productID := range report.Products {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if err := r.resyncRoot(ctx, productID, &report); err != nil {
			return report, err
		}
	}

	r.metrics.unsyncedProducts.Set(float64(report.Failed))
	return report, nil
}

// selectOracles returns the oracles to scan, nil means all oracles.
func (r *Reconciler) selectOracles(ctx context.Context) ([]uint64, error) {
	policy := r.config.Policy
	if !policy.Enabled() {
		return nil, nil
	}

	stats, err := r.store.SelectPendingLeafStats(ctx)
	if err != nil {
		return nil, err
	}

	now := r.now()
	oracleIDs := make([]uint64, 0, len(stats))
	for _, s := range stats {
		age := now.Sub(s.Oldest)
		switch {
		case policy.Threshold > 0 && s.Pending >= policy.Threshold:
			r.logger.Debug("oracle needs update", "oracle", s.OracleID, "pending", s.Pending, "reason", "threshold")
		case policy.MaxAge > 0 && age >= policy.MaxAge:
			r.logger.Debug("oracle needs update", "oracle", s.OracleID, "age", age, "reason", "age")
		default:
			continue
		}

		oracleIDs = append(oracleIDs, s.OracleID)
	}

	return oracleIDs, nil
}

// commitLeaves encodes the leaves of the uncommitted purchases and writes them in one transaction.
// It returns the oracles that got new leaves.
func (r *Reconciler) commitLeaves(ctx context.Context, oracleIDs []uint64) ([]uint64, int, error) {
	purchases, err := r.store.SelectUncommittedPurchases(ctx, oracleIDs)
	if err != nil {
		return nil, 0, err
	}

	if len(purchases) == 0 {
		return nil, 0, nil
	}

	leaves := make([]storage.LeafCommit, 0, len(purchases))
	affected := make(map[uint64]struct{})
	for _, purchase := range purchases {
		if !purchase.Status.Valid() {
			r.logger.Error("skip purchase with unknown status", "purchase", purchase.PurchaseID, "status", purchase.Status)
			continue
		}

		purchaseID := merkle.PurchaseIDFromHash(common.HexToHash(purchase.PurchaseID))
		leaves = append(leaves, storage.LeafCommit{
			PurchaseRowID: purchase.ID,
			Status:        purchase.Status,
			Leaf:          merkle.EncodeLeaf(purchaseID, purchase.Status),
		})
		affected[purchase.OracleID] = struct{}{}
	}

	committed, err := r.store.CommitLeaves(ctx, leaves)
	if err != nil {
		return nil, 0, err
	}

	affectedOracleIDs := make([]uint64, 0, len(affected))
	for oracleID := range affected {
		affectedOracleIDs = append(affectedOracleIDs, oracleID)
	}
	sort.Slice(affectedOracleIDs, func(i, j int) bool { return affectedOracleIDs[i] < affectedOracleIDs[j] })

	return affectedOracleIDs, committed, nil
}

// resyncRoot stores the current root of the product and pushes it on-chain if it differs.
func (r *Reconciler) resyncRoot(ctx context.Context, productID common.Hash, report *Report) error {
	logger := r.logger.With("product", productID.Hex())

	root, err := r.trees.Root(ctx, productID)
	if err != nil {
		return fmt.Errorf("compute root of product %s: %w", productID.Hex(), err)
	}

	// readers must not see a synced oracle with a root older than the committed leaves
	if err := r.store.SetMerkleRoot(ctx, productID, root); err != nil {
		return err
	}

	onChainRoot, err := r.chain.ReadRoot(ctx, productID)
	if err != nil {
		logger.Error("read on-chain root", "error", err)
		r.markFailed(report)
		return nil
	}

	if onChainRoot == root {
		if err := r.store.MarkSynced(ctx, productID, nil); err != nil {
			return err
		}

		logger.Debug("on-chain root is up to date", "root", root.Hex())
		report.AlreadySynced++
		r.metrics.rootUpdates.WithLabelValues(ResultAlreadySynced).Inc()
		return nil
	}

	record, err := r.updateRoot(ctx, productID, root)
	if err != nil {
		logger.Error("update on-chain root", "root", root.Hex(), "error", err)
		r.markFailed(report)
		return nil
	}

	if err := r.store.MarkSynced(ctx, productID, &record.TxHash); err != nil {
		return err
	}

	if err := r.journal.Append(ctx, *record); err != nil {
		logger.Error("append root journal", "tx", record.TxHash.Hex(), "error", err)
	}

	logger.Info("on-chain root updated", "root", root.Hex(), "tx", record.TxHash.Hex(), "block", record.BlockNumber)
	report.ChainWrites++
	r.metrics.rootUpdates.WithLabelValues(ResultSuccess).Inc()
	return nil
}

// updateRoot simulates, sends and waits for the root update while holding the signing key mutex.
func (r *Reconciler) updateRoot(ctx context.Context, productID, root common.Hash) (*storage.RootRecord, error) {
	account, err := r.signer.AccountForKey(r.config.SignerKey)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}

	mutex := r.signer.MutexForKey(r.config.SignerKey)
	mutex.Lock()
	defer mutex.Unlock()

	tx, err := r.chain.SimulateUpdateRoot(ctx, account, productID, root)
	if err != nil {
		return nil, err
	}

	txHash, err := r.chain.Submit(ctx, tx)
	if err != nil {
		return nil, err
	}

	receiptCtx := ctx
	if r.config.ReceiptTimeout > 0 {
		var cancel context.CancelFunc
		receiptCtx, cancel = context.WithTimeout(ctx, r.config.ReceiptTimeout)
		defer cancel()
	}

	receipt, err := r.chain.WaitForReceipt(receiptCtx, txHash, r.config.Confirmations)
	if err != nil {
		return nil, err
	}

	return &storage.RootRecord{
		ProductID:   productID,
		Root:        root,
		TxHash:      txHash,
		BlockNumber: receipt.BlockNumber.Uint64(),
		SyncedAt:    r.now().UTC(),
	}, nil
}

func (r *Reconciler) markFailed(report *Report) {
	report.Failed++
	r.metrics.rootUpdates.WithLabelValues(ResultFailed).Inc()
}

// unionProductIDs merges the product ids into a sorted list without duplicates.
func unionProductIDs(lists ...[]common.Hash) []common.Hash {
	seen := make(map[common.Hash]struct{})
	var res []common.Hash
	for _, list := range lists {
		for _, productID := range list {
			if _, ok := seen[productID]; ok {
				continue
			}
			seen[productID] = struct{}{}
			res = append(res, productID)
		}
	}

	sort.Slice(res, func(i, j int) bool { return bytes.Compare(res[i][:], res[j][:]) < 0 })
	return res
}
