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
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/xrpgo/ledgerd/acquire"
	"github.com/xrpgo/ledgerd/common"
	"github.com/xrpgo/ledgerd/ledger"
	"github.com/xrpgo/ledgerd/peer"
	"github.com/xrpgo/ledgerd/protocol"
	"github.com/xrpgo/ledgerd/shamap"
)

// fakePeer records every GetLedger it is sent.
type fakePeer struct {
	mu   sync.Mutex
	id   string
	sent []*protocol.GetLedger
}

func (p *fakePeer) ID() string { return p.id }

func (p *fakePeer) Send(req *protocol.GetLedger) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, req)
	return nil
}

func (p *fakePeer) SamePeer(other peer.Peer) bool { return other.ID() == p.id }

func (p *fakePeer) lastRequest() *protocol.GetLedger {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sent) == 0 {
		return nil
	}
	return p.sent[len(p.sent)-1]
}

// fakeDirectory is a peer.Directory over an in-memory set, letting tests
// simulate a peer disconnecting by deleting it.
type fakeDirectory struct {
	mu    sync.Mutex
	peers map[string]peer.Peer
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{peers: make(map[string]peer.Peer)}
}

func (d *fakeDirectory) add(p *fakePeer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.peers[p.id] = p
}

func (d *fakeDirectory) drop(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.peers, id)
}

func (d *fakeDirectory) Peer(id string) (peer.Peer, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.peers[id]
	return p, ok
}

// manualTimers captures every timer armed through it so a test can fire
// them synchronously rather than waiting on a real deadline.
type manualTimers struct {
	mu    sync.Mutex
	last  func()
	armed int
}

func (s *manualTimers) new(_ time.Duration, f func()) acquire.Timer {
	s.mu.Lock()
	s.last = f
	s.armed++
	s.mu.Unlock()
	return noopTimer{}
}

func (s *manualTimers) fire() {
	s.mu.Lock()
	f := s.last
	s.mu.Unlock()
	if f != nil {
		f()
	}
}

type noopTimer struct{}

func (noopTimer) Stop() bool { return true }

func newTestRegistry(dir peer.Directory, timers *manualTimers) *acquire.Registry {
	return acquire.NewRegistry(acquire.Config{
		Directory: dir,
		Timeout:   time.Millisecond,
		NewTimer:  timers.new,
	})
}

// Scenario 1: happy path, empty ledger.
func TestHappyPathEmptyLedger(t *testing.T) {
	dir := newFakeDirectory()
	timers := &manualTimers{}
	reg := newTestRegistry(dir, timers)

	base := ledger.EncodeBase(1, common.Hash{}, common.Hash{})
	a := reg.FindCreate(mustHash(base))

	var fired int
	a.AddOnComplete(func(a *acquire.Acquisition) { fired++ })

	ok := a.TakeBase(base)
	require.True(t, ok)
	assert.True(t, a.HaveTransactions())
	assert.True(t, a.HaveState())

	timers.fire() // one trigger later
	assert.True(t, a.Complete())
	assert.False(t, a.Failed())
	assert.Equal(t, 1, fired)
}

// Scenario 2: base rejected then accepted.
func TestBaseRejectedThenAccepted(t *testing.T) {
	dir := newFakeDirectory()
	timers := &manualTimers{}
	reg := newTestRegistry(dir, timers)

	goodBase := ledger.EncodeBase(1, common.Hash{}, common.Hash{})
	l, err := ledger.FromBase(goodBase)
	require.NoError(t, err)

	a := reg.FindCreate(l.Hash())

	badBase := ledger.EncodeBase(2, common.HexToHash("0xff"), common.HexToHash("0xee"))
	assert.False(t, a.TakeBase(badBase))
	assert.False(t, a.HaveBase())
	assert.ErrorIs(t, a.LastError(), acquire.ErrHashMismatch)

	assert.True(t, a.TakeBase(goodBase))
	assert.True(t, a.HaveBase())

	// Idempotent: applying the accepted base again still returns true.
	assert.True(t, a.TakeBase(goodBase))
}

// Scenario 3: tx root, then one batch of missing nodes.
func TestTxRootThenBatch(t *testing.T) {
	dir := newFakeDirectory()
	timers := &manualTimers{}
	reg := newTestRegistry(dir, timers)

	p := &fakePeer{id: "p1"}
	dir.add(p)

	leaf1Bytes, leaf1Hash := shamap.NewLeaf(common.HexToHash("0xa1"), []byte("tx-1"))
	leaf2Bytes, leaf2Hash := shamap.NewLeaf(common.HexToHash("0xa2"), []byte("tx-2"))
	var children [16]common.Hash
	children[3] = leaf1Hash
	children[9] = leaf2Hash
	rootBytes, rootHash := shamap.NewInner(children)

	base := ledger.EncodeBase(5, rootHash, common.Hash{})
	a := reg.FindCreate(mustHash(base))
	a.PeerHas(p)
	require.True(t, a.TakeBase(base))
	assert.False(t, a.HaveTransactions())
	assert.True(t, a.HaveState()) // account hash was zero

	// First trigger: haveBase but tx root unresolved -> request the root.
	a.Trigger()
	req := p.lastRequest()
	require.NotNil(t, req)
	assert.Equal(t, protocol.TxNode, req.IType)
	require.Len(t, req.NodeIDs, 1)

	rootID, err := shamap.NodeIDFromBytes(req.NodeIDs[0])
	require.NoError(t, err)
	assert.True(t, rootID.IsRoot())

	require.True(t, a.TakeTxNode([][]byte{req.NodeIDs[0]}, [][]byte{rootBytes}))
	assert.False(t, a.HaveTransactions(), "leaves not yet resolved")

	// Second trigger: root known, enumerates the 2 missing leaves.
	a.Trigger()
	req = p.lastRequest()
	require.NotNil(t, req)
	assert.Len(t, req.NodeIDs, 2)

	leafBytesByID := map[string][]byte{}
	for _, raw := range req.NodeIDs {
		id, err := shamap.NodeIDFromBytes(raw)
		require.NoError(t, err)
		switch id {
		case rootID.Child(3):
			leafBytesByID[string(raw)] = leaf1Bytes
		case rootID.Child(9):
			leafBytesByID[string(raw)] = leaf2Bytes
		default:
			t.Fatalf("unexpected missing node id %v", id)
		}
	}
	data := make([][]byte, len(req.NodeIDs))
	for i, raw := range req.NodeIDs {
		data[i] = leafBytesByID[string(raw)]
	}
	require.True(t, a.TakeTxNode(req.NodeIDs, data))
	assert.True(t, a.HaveTransactions())

	a.Trigger()
	assert.True(t, a.Complete())
}

// Scenario 4: peer churn, duplicates suppressed, dropped peers purged on
// the next send.
func TestPeerChurn(t *testing.T) {
	dir := newFakeDirectory()
	timers := &manualTimers{}
	reg := newTestRegistry(dir, timers)

	p1 := &fakePeer{id: "p1"}
	p2 := &fakePeer{id: "p2"}
	dir.add(p1)
	dir.add(p2)

	a := reg.FindCreate(common.HexToHash("0x01"))
	a.PeerHas(p1)
	a.PeerHas(p2)
	a.PeerHas(p1) // duplicate, no-op

	dir.drop("p1")
	a.Trigger() // sendRequest purges p1 in place, sends to p2

	assert.Nil(t, p1.lastRequest())
	assert.NotNil(t, p2.lastRequest())
}

// Scenario 5: an invalid subtree (a structurally-corrupt chain deeper than
// the map tolerates) fails the acquisition terminally.
func TestFailsOnInvalidSubtree(t *testing.T) {
	dir := newFakeDirectory()
	timers := &manualTimers{}
	reg := newTestRegistry(dir, timers)

	rootBytes, rootHash, order, byID := buildOverdeepChain()

	base := ledger.EncodeBase(1, rootHash, common.Hash{})
	a := reg.FindCreate(mustHash(base))
	require.True(t, a.TakeBase(base))

	var failedHandle *acquire.Acquisition
	a.AddOnComplete(func(a *acquire.Acquisition) { failedHandle = a })

	require.True(t, a.TakeTxNode([][]byte{shamap.RootNodeID.RawBytes()}, [][]byte{rootBytes}))
	// Feed strictly in depth order: a node only becomes resolvable once its
	// parent is, so shallow-to-deep is the only order the map will accept.
	for _, id := range order {
		require.True(t, a.TakeTxNode([][]byte{id.RawBytes()}, [][]byte{byID[id]}))
	}

	a.Trigger()
	assert.True(t, a.Failed())
	assert.False(t, a.Complete())
	require.NotNil(t, failedHandle)
	assert.True(t, failedHandle.Failed())
}

// Scenario 6: a timer firing and an inbound LedgerData delivery race; the
// acquisition's lock serializes them so completion is observed at most
// once.
func TestConcurrentTriggerAndTake(t *testing.T) {
	dir := newFakeDirectory()
	timers := &manualTimers{}
	reg := newTestRegistry(dir, timers)

	base := ledger.EncodeBase(1, common.Hash{}, common.Hash{})
	a := reg.FindCreate(mustHash(base))

	var fired atomic.Int32
	a.AddOnComplete(func(a *acquire.Acquisition) { fired.Add(1) })

	var g errgroup.Group
	g.Go(func() error {
		a.TakeBase(base)
		return nil
	})
	g.Go(func() error {
		a.Trigger()
		return nil
	})
	require.NoError(t, g.Wait())

	a.Trigger() // drain: guarantees completion is observed regardless of race order
	assert.True(t, a.Complete())
	assert.LessOrEqual(t, fired.Load(), int32(1))
}

func mustHash(base []byte) common.Hash {
	l, err := ledger.FromBase(base)
	if err != nil {
		panic(err)
	}
	return l.Hash()
}

// buildOverdeepChain builds a chain of nested inner nodes one level deeper
// than the map's position-depth bound, so that resolving it all the way
// down trips the map's structural-corruption check even though no node
// id is ever left unresolved.
func buildOverdeepChain() (rootBytes []byte, rootHash common.Hash, order []shamap.NodeID, byID map[shamap.NodeID][]byte) {
	const chainDepth = 64 // the map's own position-depth bound

	ids := make([]shamap.NodeID, chainDepth+1)
	id := shamap.RootNodeID
	for d := 0; d < chainDepth; d++ {
		ids[d] = id
		id = id.Child(0)
	}
	ids[chainDepth] = id
	order = ids[1:] // shallow to deep, excluding the root (fed separately)

	byID = make(map[shamap.NodeID][]byte)

	var terminal [16]common.Hash // the deepest node: an empty inner node
	terminalBytes, childHash := shamap.NewInner(terminal)
	byID[ids[chainDepth]] = terminalBytes

	for d := chainDepth - 1; d >= 1; d-- {
		var children [16]common.Hash
		children[0] = childHash
		b, h := shamap.NewInner(children)
		byID[ids[d]] = b
		childHash = h
	}

	var rootChildren [16]common.Hash
	rootChildren[0] = childHash
	rootBytes, rootHash = shamap.NewInner(rootChildren)
	return rootBytes, rootHash, order, byID
}
