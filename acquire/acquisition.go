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

// Package acquire drives reconstruction of a single ledger from an
// unreliable set of peers, and the registry that de-duplicates concurrent
// acquisitions of the same ledger hash.
package acquire

import (
	"sync"
	"time"

	"github.com/status-im/keycard-go/hexutils"

	"github.com/xrpgo/ledgerd/common"
	"github.com/xrpgo/ledgerd/ledger"
	"github.com/xrpgo/ledgerd/log"
	"github.com/xrpgo/ledgerd/peer"
	"github.com/xrpgo/ledgerd/protocol"
	"github.com/xrpgo/ledgerd/shamap"
)

// DefaultTimeout is how long an Acquisition waits between triggers.
const DefaultTimeout = 2 * time.Second

// missingNodeBatch bounds how many node-ids a single trigger requests.
const missingNodeBatch = 128

// Timer is the handle returned by a timer source; Stop cancels a pending
// firing.
type Timer interface {
	Stop() bool
}

// newTimerFunc arms a timer that calls f after d elapses. The registry
// injects this rather than reaching for a global reactor, so tests can
// supply a synchronous or fake source.
type newTimerFunc func(d time.Duration, f func()) Timer

func defaultNewTimer(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Acquisition is the state machine reconstructing one ledger, identified
// by hash, from an unreliable set of peers. The zero value is not usable;
// obtain one from a Registry.
type Acquisition struct {
	mu sync.RWMutex

	hash   common.Hash
	ledger *ledger.Ledger

	haveBase, haveTransactions, haveState bool
	complete, failed                      bool
	lastErr                               error

	peers      []peer.Handle
	onComplete []func(*Acquisition)

	timer    Timer
	timeout  time.Duration
	newTimer newTimerFunc
	registry *Registry

	log log.Logger
}

func newAcquisition(hash common.Hash, reg *Registry) *Acquisition {
	return &Acquisition{
		hash:     hash,
		registry: reg,
		timeout:  reg.timeout,
		newTimer: reg.newTimer,
		log:      log.New("acq", hash.Hex()),
	}
}

// Hash returns the acquisition's identity and Merkle target for the base
// blob. Immutable.
func (a *Acquisition) Hash() common.Hash { return a.hash }

// Complete reports whether all three progress flags hold and the maps
// validated.
func (a *Acquisition) Complete() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.complete
}

// Failed reports unrecoverable failure (hash mismatch at the registry
// level is recoverable; an invalid subtree is not).
func (a *Acquisition) Failed() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.failed
}

func (a *Acquisition) HaveBase() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.haveBase
}

func (a *Acquisition) HaveTransactions() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.haveTransactions
}

func (a *Acquisition) HaveState() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.haveState
}

// Ledger returns the partial ledger, or nil if the base has not been
// taken yet.
func (a *Acquisition) Ledger() *ledger.Ledger {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ledger
}

// LastError returns the error recorded by the most recent failing step:
// a take* call that returned false, or a Trigger that found no live peer
// or an invalid subtree. It is nil if nothing failed yet, and a successful
// take* call resets it to nil. TakeTxNode and TakeAsNode called before the
// base is held return false without recording an error.
func (a *Acquisition) LastError() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastErr
}

// PeerHas records that p advertised this ledger. Stale entries are purged
// during the scan; a peer already present (by identity) is a no-op.
func (a *Acquisition) PeerHas(p peer.Peer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := 0; i < len(a.peers); {
		live, ok := a.peers[i].Resolve()
		if !ok {
			a.peers = append(a.peers[:i], a.peers[i+1:]...)
			continue
		}
		if live.SamePeer(p) {
			return
		}
		i++
	}
	a.peers = append(a.peers, peer.NewHandle(p, a.registry.directory))
}

// BadPeer removes p from the peer list if present, purging stale entries
// along the way.
func (a *Acquisition) BadPeer(p peer.Peer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := 0; i < len(a.peers); {
		live, ok := a.peers[i].Resolve()
		if !ok {
			a.peers = append(a.peers[:i], a.peers[i+1:]...)
			continue
		}
		if p.SamePeer(live) {
			a.peers = append(a.peers[:i], a.peers[i+1:]...)
			return
		}
		i++
	}
}

// TakeBase accepts a candidate serialized base blob. Returns true if the
// base was already held, or if it parses into a Ledger whose hash equals
// this acquisition's hash.
func (a *Acquisition) TakeBase(data []byte) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.haveBase {
		return true
	}
	led, err := ledger.FromBase(data)
	if err != nil {
		a.lastErr = ErrBadPayload
		return false
	}
	if led.Hash() != a.hash {
		a.lastErr = ErrHashMismatch
		return false
	}
	a.ledger = led
	a.haveBase = true
	led.MarkAcquiring()
	if led.TransHash().IsZero() {
		a.haveTransactions = true
	}
	if led.AccountHash().IsZero() {
		a.haveState = true
	}
	a.lastErr = nil
	a.log.Debug("took ledger base", "seq", led.Seq())
	return true
}

// TakeTxNode applies a batch of transaction-map node insertions (see
// takeNodeLocked, shared with TakeAsNode). haveTransactions is set once the
// map has no missing nodes and is valid; an invalid map is left for
// Trigger to fail.
func (a *Acquisition) TakeTxNode(nodeIDs, data [][]byte) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.haveBase {
		return false
	}
	ok := a.takeNodeLocked(a.ledger.TxMap(), a.ledger.TransHash(), nodeIDs, data)
	if ok && !a.ledger.TxMap().IsSynching() && a.ledger.TxMap().IsValid() {
		a.haveTransactions = true
	}
	return ok
}

// TakeAsNode applies a batch of account-state-map node insertions.
func (a *Acquisition) TakeAsNode(nodeIDs, data [][]byte) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.haveBase {
		return false
	}
	ok := a.takeNodeLocked(a.ledger.AsMap(), a.ledger.AccountHash(), nodeIDs, data)
	if ok && !a.ledger.AsMap().IsSynching() && a.ledger.AsMap().IsValid() {
		a.haveState = true
	}
	return ok
}

// takeNodeLocked applies paired (nodeID, data) insertions into m. Matches
// the source's behavior of permitting partial effect before a later
// entry in the same batch fails.
func (a *Acquisition) takeNodeLocked(m *shamap.Map, expectedRoot common.Hash, nodeIDs, data [][]byte) bool {
	if len(nodeIDs) != len(data) || len(nodeIDs) == 0 {
		a.lastErr = ErrBadPayload
		return false
	}
	for i, raw := range nodeIDs {
		id, err := shamap.NodeIDFromBytes(raw)
		if err != nil {
			a.lastErr = ErrBadPayload
			return false
		}
		var ok bool
		if id.IsRoot() {
			ok = m.AddRootNode(expectedRoot, data[i])
		} else {
			ok = m.AddKnownNode(id, data[i])
		}
		if !ok {
			a.lastErr = ErrInsertionRejected
			return false
		}
		a.log.Trace("accepted node", "id", hexutils.BytesToHex(raw))
	}
	a.lastErr = nil
	return true
}

// AddOnComplete registers cb to fire exactly once when the acquisition
// reaches a terminal state. If the acquisition is already terminal, cb
// fires synchronously before AddOnComplete returns.
func (a *Acquisition) AddOnComplete(cb func(*Acquisition)) {
	a.mu.Lock()
	if a.complete || a.failed {
		a.mu.Unlock()
		cb(a)
		return
	}
	a.onComplete = append(a.onComplete, cb)
	a.mu.Unlock()
}

// ResetTimer arms the retry timer for a.timeout from now.
func (a *Acquisition) ResetTimer() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resetTimerLocked()
}

func (a *Acquisition) resetTimerLocked() {
	if a.timer != nil {
		a.timer.Stop()
	}
	hash := a.hash
	reg := a.registry
	a.timer = a.newTimer(a.timeout, func() {
		// The weak-self-reference boundary: the closure holds only the hash
		// and the registry and resolves the acquisition when it fires,
		// rather than closing over a strong reference, so a dropped
		// acquisition's timer is a no-op instead of reviving it. If the
		// hash was dropped and created again, the entry now in the
		// registry is the one triggered.
		cur, ok := reg.Find(hash)
		if !ok {
			return
		}
		cur.Trigger()
	})
}

// Trigger computes the next needed piece of the ledger and sends one
// request to one live peer, or promotes the acquisition to a terminal
// state and fires subscribers. Safe to call from the timer or directly
// after a successful take* call.
func (a *Acquisition) Trigger() {
	a.mu.Lock()
	terminal, cbs := a.triggerLocked()
	a.mu.Unlock()

	if !terminal {
		return
	}
	for _, cb := range cbs {
		cb(a)
	}
	if a.registry.events != nil {
		a.mu.RLock()
		result := AcquisitionResult{Hash: a.hash, Ledger: a.ledger, Failed: a.failed}
		a.mu.RUnlock()
		a.registry.events.Send(result)
	}
}

// triggerLocked runs one step of the driver algorithm. It returns whether
// the acquisition just became terminal and, if so, the subscriber list to
// fire (already cleared from a.onComplete). Must be called with a.mu held.
func (a *Acquisition) triggerLocked() (terminal bool, cbs []func(*Acquisition)) {
	if a.complete || a.failed {
		return false, nil
	}

	switch {
	case !a.haveBase:
		a.sendRequestLocked(&protocol.GetLedger{LedgerHash: a.hash, IType: protocol.Base})
	case !a.haveTransactions:
		a.triggerSubtreeLocked(a.ledger.TxMap(), protocol.TxNode, &a.haveTransactions)
	case !a.haveState:
		a.triggerSubtreeLocked(a.ledger.AsMap(), protocol.AsNode, &a.haveState)
	}

	if a.haveTransactions && a.haveState {
		a.complete = true
	}

	if a.complete || a.failed {
		cbs = a.onComplete
		a.onComplete = nil
		a.log.Debug("acquisition terminal", "complete", a.complete, "failed", a.failed)
		return true, cbs
	}
	a.resetTimerLocked()
	return false, nil
}

// triggerSubtreeLocked requests the root of m if unresolved, otherwise
// enumerates missing interior nodes (up to missingNodeBatch) and requests
// them, or sets *have / a.failed once the tree has no more missing nodes.
func (a *Acquisition) triggerSubtreeLocked(m *shamap.Map, itype protocol.ItemType, have *bool) {
	if m.Hash().IsZero() {
		a.sendRequestLocked(&protocol.GetLedger{
			LedgerHash: a.hash,
			LedgerSeq:  a.ledger.Seq(),
			IType:      itype,
			NodeIDs:    [][]byte{shamap.RootNodeID.RawBytes()},
		})
		return
	}

	ids, _ := m.MissingNodes(missingNodeBatch)
	if len(ids) == 0 {
		if !m.IsValid() {
			a.failed = true
			a.lastErr = ErrInvalidSubtree
			return
		}
		*have = true
		return
	}

	nodeIDs := make([][]byte, len(ids))
	for i, id := range ids {
		nodeIDs[i] = id.RawBytes()
	}
	a.log.Trace("requesting missing nodes", "itype", itype, "count", len(nodeIDs), "first", hexutils.BytesToHex(nodeIDs[0]))
	a.sendRequestLocked(&protocol.GetLedger{
		LedgerHash: a.hash,
		LedgerSeq:  a.ledger.Seq(),
		IType:      itype,
		NodeIDs:    nodeIDs,
	})
}

// sendRequestLocked scans peers front-to-back, purging stale entries in
// place; on the first live peer it sends the packet and returns. An empty
// (or emptied-by-purge) peer list drops the request silently; the timer
// retries.
func (a *Acquisition) sendRequestLocked(req *protocol.GetLedger) {
	for i := 0; i < len(a.peers); {
		p, ok := a.peers[i].Resolve()
		if !ok {
			a.peers = append(a.peers[:i], a.peers[i+1:]...)
			continue
		}
		if err := p.Send(req); err != nil {
			a.log.Warn("send failed", "peer", p.ID(), "err", err)
		}
		return
	}
	a.lastErr = ErrNoPeers
}
