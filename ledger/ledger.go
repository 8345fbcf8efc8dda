// Copyright 2015 The go-probeum Authors
// This file is part of the go-probeum library.
//
// The go-probeum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-probeum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-probeum library. If not, see <http://www.gnu.org/licenses/>.

// Package ledger holds the partial Ledger a single acquisition reconstructs:
// the base header plus handles to its two SHAMaps.
package ledger

import (
	"encoding/binary"
	"errors"
	"sync"

	"github.com/xrpgo/ledgerd/common"
	"github.com/xrpgo/ledgerd/crypto"
	"github.com/xrpgo/ledgerd/shamap"
)

// baseLen is the size of a serialized base blob: a u32 sequence number
// followed by the two subtree root hashes.
const baseLen = 4 + common.HashLength + common.HashLength

var errMalformedBase = errors.New("ledger: malformed base data")

// Ledger is a versioned snapshot of chain state, identified by a hash over
// its base (sequence number plus the two subtree root hashes). While under
// reconstruction it carries the acquiring flag and its two SHAMaps are
// filled in node-by-node by the owning acquisition.
type Ledger struct {
	mu sync.RWMutex

	hash        common.Hash
	seq         uint32
	transHash   common.Hash
	accountHash common.Hash

	txMap *shamap.Map
	asMap *shamap.Map

	acquiring bool
}

// FromBase parses a serialized base blob, computing its hash. It does not
// compare the result against any expected hash; the caller (Acquisition)
// does that, since only it knows what hash it asked for.
func FromBase(data []byte) (*Ledger, error) {
	if len(data) != baseLen {
		return nil, errMalformedBase
	}
	l := &Ledger{
		seq:         binary.BigEndian.Uint32(data[0:4]),
		transHash:   common.BytesToHash(data[4 : 4+common.HashLength]),
		accountHash: common.BytesToHash(data[4+common.HashLength : baseLen]),
		txMap:       shamap.New(0),
		asMap:       shamap.New(0),
	}
	l.hash = crypto.Keccak256Hash(data)
	return l, nil
}

// EncodeBase is the inverse of FromBase, used by tests and by peers that
// serve a base blob they already hold.
func EncodeBase(seq uint32, transHash, accountHash common.Hash) []byte {
	buf := make([]byte, baseLen)
	binary.BigEndian.PutUint32(buf[0:4], seq)
	copy(buf[4:], transHash.Bytes())
	copy(buf[4+common.HashLength:], accountHash.Bytes())
	return buf
}

func (l *Ledger) Hash() common.Hash        { return l.hash }
func (l *Ledger) Seq() uint32              { return l.seq }
func (l *Ledger) TransHash() common.Hash   { return l.transHash }
func (l *Ledger) AccountHash() common.Hash { return l.accountHash }
func (l *Ledger) TxMap() *shamap.Map       { return l.txMap }
func (l *Ledger) AsMap() *shamap.Map       { return l.asMap }

// MarkAcquiring flags the ledger as under reconstruction; it must not be
// exposed as a normal ledger to the rest of the node until acquisition
// completes.
func (l *Ledger) MarkAcquiring() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acquiring = true
}

func (l *Ledger) IsAcquiring() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.acquiring
}
