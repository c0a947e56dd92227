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

package signer

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Galactica-corp/purchase-oracle-service/internal/types"
)

const (
	// OracleUpdaterKey is the logical key allowed to update merkle roots of the purchase oracle contract.
	OracleUpdaterKey = "oracle-updater"
)

type (
	// Keyring holds the signing keys of the service. Key custody is external, keys are
	// provided by the configuration.
	Keyring struct {
		chainID *big.Int
		keys    map[string]*ecdsa.PrivateKey
		mutex   *KeyMutex
	}

	// Account can sign transactions for the chain of the keyring.
	Account struct {
		Key     string
		Address common.Address
		Opts    *bind.TransactOpts
	}
)

// NewKeyring creates an empty keyring for the given chain.
func NewKeyring(chainID *big.Int) *Keyring {
	return &Keyring{
		chainID: chainID,
		keys:    make(map[string]*ecdsa.PrivateKey),
		mutex:   NewKeyMutex(),
	}
}

// AddHexKey adds the hex encoded private key under the logical key name.
func (k *Keyring) AddHexKey(key string, hexPrivateKey string) error {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(hexPrivateKey, "0x"))
	if err != nil {
		return fmt.Errorf("parse private key %s: %w", key, err)
	}

	k.keys[key] = privateKey
	return nil
}

// AccountForKey returns a new account for the logical key.
// Every call returns fresh transact options, so callers may modify them.
func (k *Keyring) AccountForKey(key string) (*Account, error) {
	privateKey, ok := k.keys[key]
	if !ok {
		return nil, fmt.Errorf("signing key %s: %w", key, types.ErrNotFound)
	}

	opts, err := bind.NewKeyedTransactorWithChainID(privateKey, k.chainID)
	if err != nil {
		return nil, fmt.Errorf("create transactor for %s: %w", key, err)
	}

	return &Account{
		Key:     key,
		Address: opts.From,
		Opts:    opts,
	}, nil
}

// MutexForKey returns the process wide mutex of the logical key.
func (k *Keyring) MutexForKey(key string) *sync.Mutex {
	return k.mutex.ForKey(key)
}
