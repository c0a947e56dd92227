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

package PurchaseOracle

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// PurchaseOracleMetaData contains the part of the PurchaseOracle contract ABI used by the service.
var PurchaseOracleMetaData = &bind.MetaData{
	ABI: `[
		{"type":"function","name":"getMerkleRoot","stateMutability":"view",
		 "inputs":[{"name":"productId","type":"uint256"}],
		 "outputs":[{"name":"","type":"bytes32"}]},
		{"type":"function","name":"updateMerkleRoot","stateMutability":"nonpayable",
		 "inputs":[{"name":"productId","type":"uint256"},{"name":"merkleRoot","type":"bytes32"}],
		 "outputs":[]}
	]`,
}

// PurchaseOracle is a binding of the PurchaseOracle contract.
type PurchaseOracle struct {
	abi      abi.ABI
	contract *bind.BoundContract
}

// NewPurchaseOracle creates a new binding of the contract deployed at the address.
func NewPurchaseOracle(address common.Address, backend bind.ContractBackend) (*PurchaseOracle, error) {
	parsed, err := PurchaseOracleMetaData.GetAbi()
	if err != nil {
		return nil, err
	}

	return &PurchaseOracle{
		abi:      *parsed,
		contract: bind.NewBoundContract(address, *parsed, backend, backend, backend),
	}, nil
}

// GetMerkleRoot is a free data retrieval call binding the contract method getMerkleRoot.
//
// Solidity: function getMerkleRoot(uint256 productId) view returns(bytes32)
func (p *PurchaseOracle) GetMerkleRoot(opts *bind.CallOpts, productId *big.Int) ([32]byte, error) {
	var out []interface{}
	if err := p.contract.Call(opts, &out, "getMerkleRoot", productId); err != nil {
		return [32]byte{}, err
	}

	return *abi.ConvertType(out[0], new([32]byte)).(*[32]byte), nil
}

// UpdateMerkleRoot is a paid mutator transaction binding the contract method updateMerkleRoot.
//
// Solidity: function updateMerkleRoot(uint256 productId, bytes32 merkleRoot) returns()
func (p *PurchaseOracle) UpdateMerkleRoot(opts *bind.TransactOpts, productId *big.Int, merkleRoot [32]byte) (*types.Transaction, error) {
	return p.contract.Transact(opts, "updateMerkleRoot", productId, merkleRoot)
}

// PackUpdateMerkleRoot returns the call data of updateMerkleRoot.
func (p *PurchaseOracle) PackUpdateMerkleRoot(productId *big.Int, merkleRoot [32]byte) ([]byte, error) {
	return p.abi.Pack("updateMerkleRoot", productId, merkleRoot)
}

// PackGetMerkleRoot returns the call data of getMerkleRoot.
func (p *PurchaseOracle) PackGetMerkleRoot(productId *big.Int) ([]byte, error) {
	return p.abi.Pack("getMerkleRoot", productId)
}

// ABI returns the parsed contract ABI.
func (p *PurchaseOracle) ABI() abi.ABI {
	return p.abi
}
