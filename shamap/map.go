// Copyright 2014 The go-probeum Authors
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

// Package shamap implements the authenticated prefix tree (SHAMap) behind a
// ledger's transaction and account-state maps: a radix tree whose interior
// nodes commit to their children by hash, reconstructed node-by-node as a
// remote peer supplies them.
package shamap

import (
	"sync"

	"github.com/VictoriaMetrics/fastcache"
	lru "github.com/hashicorp/golang-lru"

	"github.com/xrpgo/ledgerd/common"
)

const rejectedCacheSize = 4096

// Map is a single SHAMap: either the transaction map or the account-state
// map of some ledger. The zero value is not usable; use New.
type Map struct {
	mu sync.RWMutex

	hash  common.Hash // current root hash; zero until the root node is placed
	nodes map[common.Hash]node

	// pending maps a child hash that some resolved node references to the
	// position it should appear at, refreshed on every MissingNodes call
	// so AddKnownNode can check a supplied (id, data) pair was actually
	// asked for at that position.
	pending map[common.Hash]NodeID

	invalid bool

	cache     *fastcache.Cache // hot cache of node bytes keyed by node hash
	rejected  *lru.Cache       // recently-rejected node hashes, turned away again without re-walking the tree
	cacheSize int
}

// New returns an empty Map with no root placed; it reports IsSynching until
// the root and every node it references have been added. cacheBytes sizes the hot node
// cache; pass 0 for a small default, suitable for tests.
func New(cacheBytes int) *Map {
	if cacheBytes <= 0 {
		cacheBytes = 1 << 20
	}
	rejected, _ := lru.New(rejectedCacheSize)
	return &Map{
		nodes:    make(map[common.Hash]node),
		pending:  make(map[common.Hash]NodeID),
		cache:    fastcache.New(cacheBytes),
		rejected: rejected,
	}
}

// Hash returns the map's current root hash. It is the zero hash until
// AddRootNode has placed a root, which callers use to decide whether to
// request the root or enumerate missing interior nodes.
func (m *Map) Hash() common.Hash {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hash
}

// IsValid reports whether the map, as currently resolved, is structurally
// sound. It is false while no root is placed and once a provably invalid
// subtree has been found; a placed root with nodes still missing is valid
// (that's IsSynching).
func (m *Map) IsValid() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.hash.IsZero() && !m.invalid
}

// IsSynching reports whether the map still needs data: either the root has
// not been placed, or some already-resolved node references a child hash
// this map has not yet seen.
func (m *Map) IsSynching() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hash.IsZero() {
		return true
	}
	m.refreshPendingLocked()
	return len(m.pending) > 0
}

// AddRootNode accepts the serialized root node, verifying it hashes to
// expected. Returns false (BadPayload or HashMismatch) without mutating
// state on any failure.
func (m *Map) AddRootNode(expected common.Hash, data []byte) bool {
	n, err := decodeNode(data)
	if err != nil {
		return false
	}
	h := hashNode(n)
	if h != expected {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes[h] = n
	m.hash = h
	m.cache.Set(h.Bytes(), data)
	return true
}

// AddKnownNode accepts a serialized interior node at a known position.
// Idempotent: re-applying a node already held returns true without
// mutation. Rejects data that doesn't decode, or whose hash was not
// actually requested at id.
func (m *Map) AddKnownNode(id NodeID, data []byte) bool {
	n, err := decodeNode(data)
	if err != nil {
		return false
	}
	h := hashNode(n)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.nodes[h]; ok {
		return true // already have it: idempotent success
	}
	if bad, _ := m.rejected.Get(h); bad == true {
		// Turned away without a walk, unless the last refresh found this
		// hash wanted at exactly this position.
		if want, ok := m.pending[h]; !ok || want != id {
			return false
		}
	}
	m.refreshPendingLocked()
	want, ok := m.pending[h]
	if !ok || want != id {
		m.rejected.Add(h, true)
		return false
	}
	m.nodes[h] = n
	delete(m.pending, h)
	m.cache.Set(h.Bytes(), data)
	return true
}

// MissingNodes enumerates up to limit child node-ids the map cannot yet
// resolve, paired with the hash each is expected to have. limit <= 0 means
// unbounded.
func (m *Map) MissingNodes(limit int) ([]NodeID, []common.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hash.IsZero() {
		return nil, nil
	}
	m.refreshPendingLocked()

	ids := make([]NodeID, 0, len(m.pending))
	hashes := make([]common.Hash, 0, len(m.pending))
	for h, id := range m.pending {
		ids = append(ids, id)
		hashes = append(hashes, h)
		if limit > 0 && len(ids) >= limit {
			break
		}
	}
	return ids, hashes
}

// RawNode returns the cached encoded bytes of the node with the given
// hash, if this map has resolved it. Used to serve nodes back out to peers
// that request them from us.
func (m *Map) RawNode(h common.Hash) ([]byte, bool) {
	buf := m.cache.Get(nil, h.Bytes())
	if buf == nil {
		return nil, false
	}
	return buf, true
}

// refreshPendingLocked recomputes the set of unresolved child hashes by
// walking every resolved inner node. Must be called with mu held.
func (m *Map) refreshPendingLocked() {
	pending := make(map[common.Hash]NodeID)
	root, ok := m.nodes[m.hash]
	if !ok {
		m.pending = pending
		return
	}
	var walk func(n node, id NodeID, depth int)
	walk = func(n node, id NodeID, depth int) {
		inner, ok := n.(*innerNode)
		if !ok {
			return
		}
		if depth >= maxDepth {
			m.invalid = true
			return
		}
		for nibble, childHash := range inner.children {
			if childHash.IsZero() {
				continue
			}
			childID := id.Child(byte(nibble))
			if child, have := m.nodes[childHash]; have {
				walk(child, childID, depth+1)
				continue
			}
			pending[childHash] = childID
		}
	}
	walk(root, RootNodeID, 0)
	m.pending = pending
}
