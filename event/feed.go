// Copyright 2016 The go-probeum Authors
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

// Package event implements a minimal one-to-many notification primitive:
// a Feed that broadcasts each sent value to every currently-subscribed
// channel, non-blocking.
package event

import "sync"

// Subscription represents a feed subscription; Unsubscribe detaches the
// channel and closes the Err() channel.
type Subscription interface {
	Unsubscribe()
	Err() <-chan error
}

// Feed implements one-to-many notification: a value sent to Send is
// delivered to every currently-subscribed channel. The zero value is ready
// to use.
type Feed struct {
	mu   sync.Mutex
	subs map[*feedSub]struct{}
}

type feedSub struct {
	feed *Feed
	ch   chan<- interface{}
	err  chan error
	once sync.Once
}

// Subscribe adds ch as a recipient of future Send calls.
func (f *Feed) Subscribe(ch chan<- interface{}) Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs == nil {
		f.subs = make(map[*feedSub]struct{})
	}
	sub := &feedSub{feed: f, ch: ch, err: make(chan error, 1)}
	f.subs[sub] = struct{}{}
	return sub
}

func (s *feedSub) Unsubscribe() {
	s.once.Do(func() {
		s.feed.mu.Lock()
		delete(s.feed.subs, s)
		s.feed.mu.Unlock()
		close(s.err)
	})
}

func (s *feedSub) Err() <-chan error { return s.err }

// Send delivers value to every subscriber, non-blocking: a subscriber whose
// channel is full does not delay the others or the caller.
func (f *Feed) Send(value interface{}) (n int) {
	f.mu.Lock()
	subs := make([]*feedSub, 0, len(f.subs))
	for s := range f.subs {
		subs = append(subs, s)
	}
	f.mu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- value:
			n++
		default:
		}
	}
	return n
}
