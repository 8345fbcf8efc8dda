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

package shamap

import (
	"errors"
	"fmt"

	"github.com/xrpgo/ledgerd/common"
	"github.com/xrpgo/ledgerd/crypto"
)

// maxDepth bounds how many nibbles deep a position can go; it exists only
// to reject obviously-malicious or corrupt recursive structures.
const maxDepth = 64

// NodeID is the position of a node within a SHAMap: a path of nibbles from
// the root. The zero value is ROOT.
type NodeID struct {
	depth int
	path  [maxDepth]byte // only path[:depth] is meaningful, one nibble per byte
}

// RootNodeID is the position of the map's root node.
var RootNodeID = NodeID{}

// IsRoot reports whether id names the root position.
func (id NodeID) IsRoot() bool { return id.depth == 0 }

// Child returns the position of the nibble-th child of id. If id is already
// at maxDepth, it is returned unchanged rather than indexing past the end
// of path; the caller's depth check (see refreshPendingLocked) is what
// turns that condition into a structural-corruption failure.
func (id NodeID) Child(nibble byte) NodeID {
	if id.depth >= maxDepth {
		return id
	}
	child := id
	child.path[id.depth] = nibble
	child.depth++
	return child
}

// RawBytes encodes id as a depth byte followed by one byte per nibble, the
// wire-agnostic form a transport can copy verbatim into a nodeids field.
func (id NodeID) RawBytes() []byte {
	b := make([]byte, 1+id.depth)
	b[0] = byte(id.depth)
	copy(b[1:], id.path[:id.depth])
	return b
}

// NodeIDFromBytes decodes the form produced by RawBytes.
func NodeIDFromBytes(b []byte) (NodeID, error) {
	if len(b) == 0 {
		return RootNodeID, nil
	}
	depth := int(b[0])
	if depth > maxDepth || len(b) != 1+depth {
		return NodeID{}, fmt.Errorf("shamap: malformed node id (depth %d, len %d)", depth, len(b))
	}
	var id NodeID
	id.depth = depth
	copy(id.path[:depth], b[1:])
	return id, nil
}

func (id NodeID) String() string {
	return fmt.Sprintf("%x", id.path[:id.depth])
}

// node is the internal representation of a SHAMap tree node: either an
// inner node (16 children addressed by hash) or a leaf carrying a key and
// opaque value bytes.
type node interface {
	encode() []byte
}

const (
	tagInner byte = 0
	tagLeaf  byte = 1
)

type innerNode struct {
	children [16]common.Hash // zero hash == empty slot
}

func (n *innerNode) encode() []byte {
	buf := make([]byte, 1+16*common.HashLength)
	buf[0] = tagInner
	for i, h := range n.children {
		copy(buf[1+i*common.HashLength:], h.Bytes())
	}
	return buf
}

type leafNode struct {
	key   common.Hash
	value []byte
}

func (n *leafNode) encode() []byte {
	buf := make([]byte, 1+common.HashLength+len(n.value))
	buf[0] = tagLeaf
	copy(buf[1:], n.key.Bytes())
	copy(buf[1+common.HashLength:], n.value)
	return buf
}

var errMalformedNode = errors.New("shamap: malformed node data")

// decodeNode parses the raw bytes of a single SHAMap node.
func decodeNode(data []byte) (node, error) {
	if len(data) == 0 {
		return nil, errMalformedNode
	}
	switch data[0] {
	case tagInner:
		if len(data) != 1+16*common.HashLength {
			return nil, errMalformedNode
		}
		var n innerNode
		for i := range n.children {
			n.children[i] = common.BytesToHash(data[1+i*common.HashLength : 1+(i+1)*common.HashLength])
		}
		return &n, nil
	case tagLeaf:
		if len(data) < 1+common.HashLength {
			return nil, errMalformedNode
		}
		return &leafNode{
			key:   common.BytesToHash(data[1 : 1+common.HashLength]),
			value: append([]byte(nil), data[1+common.HashLength:]...),
		}, nil
	default:
		return nil, errMalformedNode
	}
}

func hashNode(n node) common.Hash {
	return crypto.Keccak256Hash(n.encode())
}

// NewLeaf builds the wire form of a leaf node holding value at key,
// returning its encoded bytes and content hash. Tests use it to build
// fixture trees.
func NewLeaf(key common.Hash, value []byte) (encoded []byte, hash common.Hash) {
	n := &leafNode{key: key, value: append([]byte(nil), value...)}
	encoded = n.encode()
	hash = hashNode(n)
	return
}

// NewInner builds the wire form of an interior node with the given child
// hashes (zero hash for an empty slot), returning its encoded bytes and
// content hash.
func NewInner(children [16]common.Hash) (encoded []byte, hash common.Hash) {
	n := &innerNode{children: children}
	encoded = n.encode()
	hash = hashNode(n)
	return
}
