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

package acquire

import (
	"sync"
	"time"

	"github.com/xrpgo/ledgerd/common"
	"github.com/xrpgo/ledgerd/event"
	"github.com/xrpgo/ledgerd/ledger"
	"github.com/xrpgo/ledgerd/log"
	"github.com/xrpgo/ledgerd/peer"
	"github.com/xrpgo/ledgerd/protocol"
)

// AcquisitionResult is published on a Registry's event feed exactly once
// per acquisition, alongside (not instead of) its one-shot onComplete
// callbacks.
type AcquisitionResult struct {
	Hash   common.Hash
	Ledger *ledger.Ledger
	Failed bool
}

// Config configures a Registry. Directory is required; Timeout and
// NewTimer default to DefaultTimeout and time.AfterFunc. Everything a
// Registry needs is passed in at construction rather than read from a
// global, so tests can supply a fake directory and a synchronous timer
// source.
type Config struct {
	Directory peer.Directory
	Timeout   time.Duration
	NewTimer  func(d time.Duration, f func()) Timer
}

// Registry is the process-wide directory mapping ledger hash to
// Acquisition: it creates on demand, finds on inbound data, and drops on
// request. Every access to the map happens under a single mutex;
// FindCreate and GotLedgerData release it before calling into the
// Acquisition.
type Registry struct {
	mu           sync.Mutex
	acquisitions map[common.Hash]*Acquisition

	directory peer.Directory
	timeout   time.Duration
	newTimer  newTimerFunc

	events *event.Feed
	log    log.Logger
}

// NewRegistry constructs an empty Registry.
func NewRegistry(cfg Config) *Registry {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	newTimer := cfg.NewTimer
	if newTimer == nil {
		newTimer = defaultNewTimer
	}
	return &Registry{
		acquisitions: make(map[common.Hash]*Acquisition),
		directory:    cfg.Directory,
		timeout:      timeout,
		newTimer:     newTimer,
		events:       new(event.Feed),
		log:          log.New("pkg", "acquire"),
	}
}

// Events returns the feed AcquisitionResults are published on.
func (r *Registry) Events() *event.Feed { return r.events }

// FindCreate returns the existing Acquisition for hash if any; otherwise
// it inserts a new one and arms its timer once creation has completed.
// The timer cannot be armed inside the constructor, since the weak
// self-reference it resolves through (this registry) needs the entry to
// already be present in the map.
func (r *Registry) FindCreate(hash common.Hash) *Acquisition {
	r.mu.Lock()
	if a, ok := r.acquisitions[hash]; ok {
		r.mu.Unlock()
		return a
	}
	a := newAcquisition(hash, r)
	r.acquisitions[hash] = a
	r.mu.Unlock()

	a.ResetTimer()
	r.log.Debug("acquiring ledger", "hash", hash.Hex())
	return a
}

// Find returns the Acquisition for hash, if any.
func (r *Registry) Find(hash common.Hash) (*Acquisition, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.acquisitions[hash]
	return a, ok
}

// HasLedger reports whether an acquisition exists for hash.
func (r *Registry) HasLedger(hash common.Hash) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.acquisitions[hash]
	return ok
}

// DropLedger removes the entry for hash, if present, reporting whether a
// removal occurred.
func (r *Registry) DropLedger(hash common.Hash) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.acquisitions[hash]; !ok {
		return false
	}
	delete(r.acquisitions, hash)
	return true
}

// GotLedgerData routes an inbound response to the matching Acquisition's
// take* method. Returns false if the packet cannot be dispatched: unknown
// hash, wrong node count for the declared type, or a missing required
// field.
func (r *Registry) GotLedgerData(packet *protocol.LedgerData) bool {
	a, ok := r.Find(packet.LedgerHash)
	if !ok {
		return false
	}

	switch packet.Type {
	case protocol.Base:
		if len(packet.Nodes) != 1 || packet.Nodes[0].NodeData == nil {
			return false
		}
		return a.TakeBase(packet.Nodes[0].NodeData)

	case protocol.TxNode, protocol.AsNode:
		if len(packet.Nodes) == 0 {
			return false
		}
		ids := make([][]byte, len(packet.Nodes))
		data := make([][]byte, len(packet.Nodes))
		for i, n := range packet.Nodes {
			if n.NodeID == nil || n.NodeData == nil {
				return false
			}
			ids[i] = n.NodeID
			data[i] = n.NodeData
		}
		if packet.Type == protocol.TxNode {
			return a.TakeTxNode(ids, data)
		}
		return a.TakeAsNode(ids, data)

	default:
		return false
	}
}
