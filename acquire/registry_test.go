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

package acquire_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xrpgo/ledgerd/acquire"
	"github.com/xrpgo/ledgerd/common"
	"github.com/xrpgo/ledgerd/ledger"
	"github.com/xrpgo/ledgerd/protocol"
)

func TestFindCreateIsIdempotentAndArmsTimerOnce(t *testing.T) {
	dir := newFakeDirectory()
	timers := &manualTimers{}
	reg := newTestRegistry(dir, timers)

	hash := common.HexToHash("0x01")
	a1 := reg.FindCreate(hash)
	a2 := reg.FindCreate(hash)
	assert.Same(t, a1, a2)
	assert.Equal(t, 1, timers.armed)

	found, ok := reg.Find(hash)
	assert.True(t, ok)
	assert.Same(t, a1, found)
	assert.True(t, reg.HasLedger(hash))
}

func TestFindMissing(t *testing.T) {
	reg := newTestRegistry(newFakeDirectory(), &manualTimers{})
	_, ok := reg.Find(common.HexToHash("0xabc"))
	assert.False(t, ok)
	assert.False(t, reg.HasLedger(common.HexToHash("0xabc")))
}

func TestDropLedger(t *testing.T) {
	reg := newTestRegistry(newFakeDirectory(), &manualTimers{})
	hash := common.HexToHash("0x01")
	reg.FindCreate(hash)

	assert.True(t, reg.DropLedger(hash))
	assert.False(t, reg.HasLedger(hash))
	assert.False(t, reg.DropLedger(hash)) // second drop is a no-op
}

func TestGotLedgerDataUnknownHash(t *testing.T) {
	reg := newTestRegistry(newFakeDirectory(), &manualTimers{})
	ok := reg.GotLedgerData(&protocol.LedgerData{
		LedgerHash: common.HexToHash("0xdead"),
		Type:       protocol.Base,
		Nodes:      []protocol.LedgerNode{{NodeData: []byte("x")}},
	})
	assert.False(t, ok)
}

func TestGotLedgerDataBase(t *testing.T) {
	reg := newTestRegistry(newFakeDirectory(), &manualTimers{})
	base := ledger.EncodeBase(1, common.Hash{}, common.Hash{})
	l, err := ledger.FromBase(base)
	require.NoError(t, err)

	a := reg.FindCreate(l.Hash())
	ok := reg.GotLedgerData(&protocol.LedgerData{
		LedgerHash: l.Hash(),
		Type:       protocol.Base,
		Nodes:      []protocol.LedgerNode{{NodeData: base}},
	})
	assert.True(t, ok)
	assert.True(t, a.HaveBase())
}

func TestGotLedgerDataBaseRejectsWrongNodeCount(t *testing.T) {
	reg := newTestRegistry(newFakeDirectory(), &manualTimers{})
	hash := common.HexToHash("0x01")
	reg.FindCreate(hash)

	ok := reg.GotLedgerData(&protocol.LedgerData{
		LedgerHash: hash,
		Type:       protocol.Base,
		Nodes: []protocol.LedgerNode{
			{NodeData: []byte("a")},
			{NodeData: []byte("b")},
		},
	})
	assert.False(t, ok)
}

func TestGotLedgerDataTxNodeRequiresNodeData(t *testing.T) {
	reg := newTestRegistry(newFakeDirectory(), &manualTimers{})
	base := ledger.EncodeBase(1, common.HexToHash("0xaa"), common.Hash{})
	l, err := ledger.FromBase(base)
	require.NoError(t, err)
	a := reg.FindCreate(l.Hash())
	require.True(t, a.TakeBase(base))

	ok := reg.GotLedgerData(&protocol.LedgerData{
		LedgerHash: l.Hash(),
		Type:       protocol.TxNode,
		Nodes:      []protocol.LedgerNode{{NodeID: []byte{0}}}, // missing NodeData
	})
	assert.False(t, ok)
}

func TestGotLedgerDataTxNodeRequiresNodeID(t *testing.T) {
	reg := newTestRegistry(newFakeDirectory(), &manualTimers{})
	base := ledger.EncodeBase(1, common.HexToHash("0xaa"), common.Hash{})
	l, err := ledger.FromBase(base)
	require.NoError(t, err)
	a := reg.FindCreate(l.Hash())
	require.True(t, a.TakeBase(base))

	ok := reg.GotLedgerData(&protocol.LedgerData{
		LedgerHash: l.Hash(),
		Type:       protocol.TxNode,
		Nodes:      []protocol.LedgerNode{{NodeData: []byte("x")}}, // missing NodeID
	})
	assert.False(t, ok)
}

func TestGotLedgerDataRejectsUnknownType(t *testing.T) {
	reg := newTestRegistry(newFakeDirectory(), &manualTimers{})
	hash := common.HexToHash("0x01")
	reg.FindCreate(hash)

	ok := reg.GotLedgerData(&protocol.LedgerData{
		LedgerHash: hash,
		Type:       protocol.ItemType(99),
		Nodes:      []protocol.LedgerNode{{NodeData: []byte("x")}},
	})
	assert.False(t, ok)
}

func TestEventsFireOnceOnCompletion(t *testing.T) {
	dir := newFakeDirectory()
	timers := &manualTimers{}
	reg := newTestRegistry(dir, timers)

	ch := make(chan interface{}, 1)
	reg.Events().Subscribe(ch)

	base := ledger.EncodeBase(1, common.Hash{}, common.Hash{})
	l, err := ledger.FromBase(base)
	require.NoError(t, err)
	a := reg.FindCreate(l.Hash())
	require.True(t, a.TakeBase(base))

	a.Trigger()

	select {
	case v := <-ch:
		result, ok := v.(acquire.AcquisitionResult)
		require.True(t, ok)
		assert.Equal(t, l.Hash(), result.Hash)
		assert.False(t, result.Failed)
	case <-time.After(time.Second):
		t.Fatal("expected an AcquisitionResult on the feed")
	}

	a.Trigger() // already terminal: nothing more is published
	select {
	case v := <-ch:
		t.Fatalf("unexpected second AcquisitionResult: %v", v)
	default:
	}
}
