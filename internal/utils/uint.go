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

package utils

import (
	"encoding/binary"
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var ErrInvalidUint256 = errors.New("must be a 256-bit hex or decimal number")

// Uint64ToBigEndian - marshals uint64 to a big endian byte slice, so it can be sorted
func Uint64ToBigEndian(i uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, i)
	return b
}

// BigEndianToUint64 returns an uint64 from big endian encoded bytes. If encoding
// is empty, zero is returned.
func BigEndianToUint64(bz []byte) uint64 {
	if len(bz) == 0 {
		return 0
	}

	return binary.BigEndian.Uint64(bz)
}

// ParseUint256Hash parses a 0x-prefixed hex or a decimal 256-bit number into its 32-byte big-endian form.
// Hex values may have leading zeros and an odd amount of digits.
func ParseUint256Hash(s string) (common.Hash, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		n, ok := new(big.Int).SetString(s[2:], 16)
		if !ok || n.Sign() < 0 || n.BitLen() > 256 {
			return common.Hash{}, ErrInvalidUint256
		}
		return common.BigToHash(n), nil
	}

	if s == "" || strings.HasPrefix(s, "-") {
		return common.Hash{}, ErrInvalidUint256
	}

	n, err := uint256.FromDecimal(s)
	if err != nil {
		return common.Hash{}, ErrInvalidUint256
	}

	return n.Bytes32(), nil
}
