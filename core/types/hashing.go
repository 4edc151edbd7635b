// Copyright 2014 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package types

import (
	"hash"
	"sync"

	"github.com/sunyihoo/go-txpool/common"
	"golang.org/x/crypto/sha3"
)

// hasherPool holds LegacyKeccak256 hashers for transaction ids.
// hasherPool 复用 Keccak256 哈希器，避免每次计算 ID 都重新分配。
var hasherPool = sync.Pool{
	New: func() interface{} { return sha3.NewLegacyKeccak256() },
}

// keccakID hashes the serialized transaction and returns the hex digest.
func keccakID(serialized []byte) string {
	sha := hasherPool.Get().(hash.Hash)
	defer hasherPool.Put(sha)
	sha.Reset()
	sha.Write(serialized)
	return common.Bytes2Hex(sha.Sum(nil))
}
