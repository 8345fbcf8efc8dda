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

// Package protocol defines the ledger-acquisition wire message shapes.
// Byte-level encoding is left to the transport; these are the shapes a
// codec would marshal.
package protocol

import "github.com/xrpgo/ledgerd/common"

// ItemType selects which piece of a ledger a GetLedger request or
// LedgerData response concerns.
type ItemType int

const (
	// Base is the ledger's header blob.
	Base ItemType = iota
	// TxNode is a node of the transaction SHAMap.
	TxNode
	// AsNode is a node of the account-state SHAMap.
	AsNode
)

func (t ItemType) String() string {
	switch t {
	case Base:
		return "BASE"
	case TxNode:
		return "TX_NODE"
	case AsNode:
		return "AS_NODE"
	default:
		return "UNKNOWN"
	}
}

// GetLedger requests a piece of a ledger from a peer. LedgerSeq and
// NodeIDs are only meaningful for TxNode/AsNode requests.
type GetLedger struct {
	LedgerHash common.Hash
	LedgerSeq  uint32
	IType      ItemType
	NodeIDs    [][]byte
}

// LedgerNode is one entry of a LedgerData response: NodeID is omitted for
// a Base response's single node.
type LedgerNode struct {
	NodeID   []byte
	NodeData []byte
}

// LedgerData is a peer's response to a GetLedger request.
type LedgerData struct {
	LedgerHash common.Hash
	Type       ItemType
	Nodes      []LedgerNode
}
