// Copyright 2026 The gokern Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pfa

import "gokern.dev/gokern/pkg/hostarch"

// List is a run of frames linked through their descriptors. The zero value is
// an empty list.
//
// A List returned by Allocate is owned by the caller until it is passed to
// Free.
type List struct {
	pool *Pool
	head index
}

// Empty returns true iff the list has no frames.
func (l List) Empty() bool {
	return l.pool == nil || l.head == nilIndex
}

// Front returns the first frame of the list. The result is not Valid if the
// list is empty.
func (l List) Front() Frame {
	if l.Empty() {
		return Frame{i: nilIndex}
	}
	return Frame{p: l.pool, i: l.head}
}

// Len walks the list and returns its length.
func (l List) Len() int {
	n := 0
	for f := l.Front(); f.Valid(); f = f.Next() {
		n++
	}
	return n
}

// ForEach calls fn with the address of each frame in list order until fn
// returns false.
func (l List) ForEach(fn func(hostarch.PhysAddr) bool) {
	for f := l.Front(); f.Valid(); f = f.Next() {
		if !fn(f.Addr()) {
			return
		}
	}
}

// Addrs returns the frame addresses in list order.
func (l List) Addrs() []hostarch.PhysAddr {
	var addrs []hostarch.PhysAddr
	l.ForEach(func(a hostarch.PhysAddr) bool {
		addrs = append(addrs, a)
		return true
	})
	return addrs
}

// Frame is a position in a List.
type Frame struct {
	p *Pool
	i index
}

// Valid returns false past the end of a list.
func (f Frame) Valid() bool {
	return f.p != nil && f.i != nilIndex
}

// Index returns the descriptor index of f in its pool.
func (f Frame) Index() int {
	return int(f.i)
}

// Addr returns the physical address of the frame.
func (f Frame) Addr() hostarch.PhysAddr {
	return f.p.pages[f.i].addr
}

// Next returns the following frame.
func (f Frame) Next() Frame {
	return Frame{p: f.p, i: f.p.pages[f.i].next}
}

// Prev returns the preceding frame.
func (f Frame) Prev() Frame {
	return Frame{p: f.p, i: f.p.pages[f.i].prev}
}
