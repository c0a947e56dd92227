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

package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/Galactica-corp/purchase-oracle-service/internal/contract/PurchaseOracle"
	"github.com/Galactica-corp/purchase-oracle-service/internal/signer"
)

const (
	DefaultCallTimeout     = 15 * time.Second
	DefaultPollInterval    = 2 * time.Second
	DefaultMaxPollInterval = 30 * time.Second
)

var (
	ErrTxReverted   = errors.New("transaction reverted")
	errNotConfirmed = errors.New("transaction not confirmed yet")
)

type (
	// Backend is the subset of the EVM RPC used by the client. *ethclient.Client implements it.
	Backend interface {
		bind.ContractBackend
		ChainID(ctx context.Context) (*big.Int, error)
		BlockNumber(ctx context.Context) (uint64, error)
		TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	}

	ClientConfig struct {
		// CallTimeout bounds every single RPC call.
		CallTimeout time.Duration

		// PollInterval is the initial interval between receipt polls, it grows exponentially up to MaxPollInterval.
		PollInterval    time.Duration
		MaxPollInterval time.Duration
	}

	// Client reads and updates the merkle roots stored in the PurchaseOracle contract.
	Client struct {
		backend  Backend
		address  common.Address
		contract *PurchaseOracle.PurchaseOracle
		config   ClientConfig
		logger   log.Logger
	}
)

// DefaultClientConfig returns the configuration used in production.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		CallTimeout:     DefaultCallTimeout,
		PollInterval:    DefaultPollInterval,
		MaxPollInterval: DefaultMaxPollInterval,
	}
}

// Dial connects to the EVM RPC, retrying with exponential backoff until the context is done.
func Dial(ctx context.Context, rpcURL string, logger log.Logger) (*ethclient.Client, error) {
	logger.Info("connecting to EVM RPC", "evm_rpc", rpcURL)

	var client *ethclient.Client
	if err := backoff.Retry(func() error {
		var err error
		client, err = ethclient.DialContext(ctx, rpcURL)
		if err != nil {
			logger.Error("dial EVM RPC", "error", err)
		}

		return err
	}, backoff.WithContext(backoff.NewExponentialBackOff(), ctx)); err != nil {
		return nil, fmt.Errorf("connect via RPC: %w", err)
	}

	logger.Info("connected to EVM RPC")
	return client, nil
}

// NewClient creates a client of the PurchaseOracle contract deployed at the address.
func NewClient(backend Backend, address common.Address, config ClientConfig, logger log.Logger) (*Client, error) {
	contract, err := PurchaseOracle.NewPurchaseOracle(address, backend)
	if err != nil {
		return nil, fmt.Errorf("bind purchase oracle: %w", err)
	}

	return &Client{
		backend:  backend,
		address:  address,
		contract: contract,
		config:   config,
		logger:   logger,
	}, nil
}

// ChainID returns the chain id of the connected network.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	chainID, err := c.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("get chain id: %w", err)
	}

	return chainID, nil
}

// ReadRoot returns the merkle root of the product stored in the contract.
func (c *Client) ReadRoot(ctx context.Context, productID common.Hash) (common.Hash, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	root, err := c.contract.GetMerkleRoot(&bind.CallOpts{Context: ctx}, productID.Big())
	if err != nil {
		return common.Hash{}, fmt.Errorf("get merkle root: %w", err)
	}

	return root, nil
}

// SimulateUpdateRoot executes the root update as a call from the account to surface reverts and
// returns the signed transaction without sending it.
func (c *Client) SimulateUpdateRoot(
	ctx context.Context,
	account *signer.Account,
	productID common.Hash,
	root common.Hash,
) (*types.Transaction, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	data, err := c.contract.PackUpdateMerkleRoot(productID.Big(), root)
	if err != nil {
		return nil, fmt.Errorf("pack update merkle root: %w", err)
	}

	if _, err := c.backend.CallContract(ctx, ethereum.CallMsg{
		From: account.Address,
		To:   &c.address,
		Data: data,
	}, nil); err != nil {
		return nil, fmt.Errorf("simulate update merkle root: %w", err)
	}

	opts := *account.Opts
	opts.Context = ctx
	opts.NoSend = true

	tx, err := c.contract.UpdateMerkleRoot(&opts, productID.Big(), root)
	if err != nil {
		return nil, fmt.Errorf("sign update merkle root: %w", err)
	}

	return tx, nil
}

// Submit sends the signed transaction.
func (c *Client) Submit(ctx context.Context, tx *types.Transaction) (common.Hash, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	if err := c.backend.SendTransaction(ctx, tx); err != nil {
		return common.Hash{}, fmt.Errorf("send transaction: %w", err)
	}

	return tx.Hash(), nil
}

// WaitForReceipt polls the receipt of the transaction until it has the given amount of confirmations
// or the context is done. ErrTxReverted is returned for a failed transaction.
func (c *Client) WaitForReceipt(ctx context.Context, txHash common.Hash, confirmations uint64) (*types.Receipt, error) {
	var receipt *types.Receipt

	if err := backoff.Retry(func() error {
		var err error
		receipt, err = c.receipt(ctx, txHash)
		if err != nil {
			if !errors.Is(err, ethereum.NotFound) {
				c.logger.Error("get transaction receipt", "tx", txHash.Hex(), "error", err)
			}
			return err
		}

		if receipt.Status != types.ReceiptStatusSuccessful {
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrTxReverted, txHash.Hex()))
		}

		head, err := c.blockNumber(ctx)
		if err != nil {
			return err
		}

		if head+1 < receipt.BlockNumber.Uint64()+confirmations {
			return errNotConfirmed
		}

		return nil
	}, backoff.WithContext(c.newPollBackOff(), ctx)); err != nil {
		return receipt, fmt.Errorf("wait for receipt %s: %w", txHash.Hex(), err)
	}

	return receipt, nil
}

func (c *Client) receipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	return c.backend.TransactionReceipt(ctx, txHash)
}

func (c *Client) blockNumber(ctx context.Context) (uint64, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	return c.backend.BlockNumber(ctx)
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.config.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.config.CallTimeout)
}

func (c *Client) newPollBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.config.PollInterval
	b.MaxInterval = c.config.MaxPollInterval
	// the context bounds the waiting
	b.MaxElapsedTime = 0
	b.Reset()

	return b
}
