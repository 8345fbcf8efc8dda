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

// Package peer models the transport-level peer handles an acquisition talks
// to. Handle is the idiomatic Go analogue of a weak peer reference: rather
// than holding a live object that can dangle, it holds an ID and resolves
// through a Directory on every use instead of caching a live peer directly.
package peer

import "github.com/xrpgo/ledgerd/protocol"

// Peer is a connected transport peer able to receive a GetLedger request
// and be compared for identity.
type Peer interface {
	ID() string
	Send(req *protocol.GetLedger) error
	SamePeer(other Peer) bool
}

// Directory resolves a peer ID to a live Peer. It is the seam that lets a
// Handle behave like a weak reference: Resolve reports false once the
// transport has dropped the peer, without the acquisition needing to know
// why or when.
type Directory interface {
	Peer(id string) (Peer, bool)
}

// Handle is a non-owning reference to a peer, carried in an Acquisition's
// peer list. It never prolongs the peer's lifetime; Resolve looks the peer
// up fresh each time.
type Handle struct {
	id  string
	dir Directory
}

// NewHandle wraps p as a weak reference resolved through dir.
func NewHandle(p Peer, dir Directory) Handle {
	return Handle{id: p.ID(), dir: dir}
}

// ID returns the identity this handle refers to, valid even if the peer
// has since disconnected.
func (h Handle) ID() string { return h.id }

// Resolve attempts to upgrade the weak reference to a live Peer. ok is
// false if the directory no longer has a peer with this ID.
func (h Handle) Resolve() (p Peer, ok bool) {
	if h.dir == nil {
		return nil, false
	}
	return h.dir.Peer(h.id)
}
