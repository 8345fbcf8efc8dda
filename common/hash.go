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

package common

import (
	"encoding/json"
	"fmt"

	"github.com/xrpgo/ledgerd/common/hexutil"
)

// HashLength is the expected length of a ledger hash, a SHAMap node hash,
// or a TX/AS map root hash.
const HashLength = 32

// Hash represents the 32-byte identifier used throughout the acquisition
// engine: a ledger hash, a SHAMap node hash, or a TX/AS root hash.
type Hash [HashLength]byte

// BytesToHash sets the hash to the value of b, left-padding if it's short.
func BytesToHash(b []byte) Hash {
	var h Hash
	h.SetBytes(b)
	return h
}

// HexToHash sets the hash to the value of a "0x"-prefixed hex string.
func HexToHash(s string) Hash {
	b, _ := hexutil.Decode(s)
	return BytesToHash(b)
}

// Bytes returns the raw bytes of the hash.
func (h Hash) Bytes() []byte { return h[:] }

// Hex returns the "0x"-prefixed hex string form of the hash.
func (h Hash) Hex() string { return hexutil.Encode(h[:]) }

// String implements fmt.Stringer.
func (h Hash) String() string { return h.Hex() }

// IsZero reports whether the hash is the zero hash, the SHAMap convention
// for "this subtree is empty, there is nothing to fetch".
func (h Hash) IsZero() bool { return h == (Hash{}) }

// SetBytes sets the hash to the value of b, left-padding if it's short and
// truncating from the left if it's long.
func (h *Hash) SetBytes(b []byte) {
	if len(b) > len(h) {
		b = b[len(b)-HashLength:]
	}
	copy(h[HashLength-len(b):], b)
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(input []byte) error {
	b, err := hexutil.Decode(string(input))
	if err != nil {
		return err
	}
	if len(b) != HashLength {
		return fmt.Errorf("%w: must be %d bytes, got %d", ErrBadHashLength, HashLength, len(b))
	}
	copy(h[:], b)
	return nil
}

var _ json.Marshaler = Hash{}

// MarshalJSON implements json.Marshaler.
func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.Hex())
}

// UnmarshalJSON implements json.Unmarshaler.
func (h *Hash) UnmarshalJSON(input []byte) error {
	var s string
	if err := json.Unmarshal(input, &s); err != nil {
		return err
	}
	return h.UnmarshalText([]byte(s))
}
