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

import "errors"

// Sentinel errors an Acquisition records alongside its boolean take*
// return value, or when Trigger finds no live peer or an invalid subtree,
// so a caller that wants the reason can read LastError instead of only
// seeing true/false.
var (
	// ErrBadPayload: inbound data malformed (a base that does not parse,
	// node-id and data lists of different or zero length, or an
	// undecodable node-id).
	ErrBadPayload = errors.New("acquire: malformed inbound data")
	// ErrHashMismatch: a candidate base parsed but its computed hash does
	// not equal the acquisition's target hash.
	ErrHashMismatch = errors.New("acquire: base hash does not match target")
	// ErrInvalidSubtree: a SHAMap reports no missing nodes but is not
	// valid. Terminal: the acquisition fails.
	ErrInvalidSubtree = errors.New("acquire: shamap has no missing nodes but is invalid")
	// ErrInsertionRejected: add_root_node / add_known_node returned false.
	ErrInsertionRejected = errors.New("acquire: shamap rejected node insertion")
	// ErrNoPeers: sendRequest had no live peer to send to; the next timer
	// retry will try again.
	ErrNoPeers = errors.New("acquire: no live peers to request from")
)
