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

// Package pfa implements the physical frame allocator.
//
// The allocator manages a fixed pool of frame descriptors. Descriptors never
// move; only their links change as runs of frames pass between the free list
// and lists held by callers. Every descriptor is a member of exactly one list
// at any time.
//
// A Pool is not synchronized. Callers must not call Allocate or Free
// concurrently.
package pfa

import (
	"errors"
	"fmt"

	"gokern.dev/gokern/pkg/errors/kerr"
	"gokern.dev/gokern/pkg/hostarch"
)

const (
	// MinPoolSize and MaxPoolSize bound the number of descriptors in a pool
	// configured for a real machine. NewPool itself accepts any positive size
	// up to MaxPoolSize so that small pools can be exercised.
	MinPoolSize = 128
	MaxPoolSize = 65536
)

// ErrAllocationFailed is wrapped by every error returned from Allocate,
// together with its cause: kerr.EINVAL or kerr.ENOMEM.
var ErrAllocationFailed = errors.New("frame allocation failed")

// index identifies a descriptor in a pool.
type index int32

// nilIndex terminates a list.
const nilIndex index = -1

// PhysicalPage describes one physical frame.
type PhysicalPage struct {
	addr hostarch.PhysAddr
	next index
	prev index
}

// Pool is a fixed set of frame descriptors and the free list threaded through
// them.
type Pool struct {
	pages []PhysicalPage

	// base is the physical address of the frame described by pages[0].
	base hostarch.PhysAddr

	// free is the head of the free list.
	free index

	// nfree is the length of the free list.
	nfree int
}

// NewPool returns an initialized pool of n descriptors describing the frames
// [base, base + n*PageSize).
func NewPool(n int, base hostarch.PhysAddr) (*Pool, error) {
	if n <= 0 || n > MaxPoolSize {
		return nil, fmt.Errorf("pool size %d out of range [1, %d]: %w", n, MaxPoolSize, kerr.EINVAL)
	}
	if !base.IsPageAligned() {
		return nil, fmt.Errorf("pool base %v is not page aligned: %w", base, kerr.EINVAL)
	}
	if uint64(base)+uint64(n)*hostarch.PageSize > hostarch.MaxAddr+1 {
		return nil, fmt.Errorf("pool of %d frames at %v exceeds the physical address space: %w", n, base, kerr.EINVAL)
	}
	p := &Pool{
		pages: make([]PhysicalPage, n),
		base:  base,
	}
	p.Init()
	return p, nil
}

// Init assigns ascending frame addresses to the descriptors and links all of
// them into the free list, in ascending order.
//
// Calling Init after frames have been handed out resets the pool; lists held
// by callers become invalid and their frames are returned to the free list.
func (p *Pool) Init() {
	last := index(len(p.pages) - 1)
	for i := range p.pages {
		pg := &p.pages[i]
		pg.addr = p.base + hostarch.PhysAddr(i)*hostarch.PageSize
		pg.next = index(i) + 1
		pg.prev = index(i) - 1
	}
	p.pages[last].next = nilIndex
	p.free = 0
	p.nfree = len(p.pages)
}

// Size returns the number of descriptors in the pool.
func (p *Pool) Size() int {
	return len(p.pages)
}

// FreeCount returns the length of the free list.
func (p *Pool) FreeCount() int {
	return p.nfree
}

// Base returns the address of the first frame described by the pool.
func (p *Pool) Base() hostarch.PhysAddr {
	return p.base
}

// Allocate detaches the first n frames of the free list and returns them as
// a list owned by the caller.
//
// Allocation is all or nothing: if fewer than n frames are free, the free
// list is not modified.
func (p *Pool) Allocate(n int) (List, error) {
	if n <= 0 {
		return List{}, fmt.Errorf("%w: request for %d frames: %w", ErrAllocationFailed, n, kerr.EINVAL)
	}
	if p.free == nilIndex {
		return List{}, fmt.Errorf("%w: free list is empty: %w", ErrAllocationFailed, kerr.ENOMEM)
	}

	// Find the last node of the run, stopping early if the list is short.
	tail := p.free
	for count := 1; count < n; count++ {
		next := p.pages[tail].next
		if next == nilIndex {
			return List{}, fmt.Errorf("%w: requested %d frames, %d free: %w", ErrAllocationFailed, n, count, kerr.ENOMEM)
		}
		tail = next
	}

	head := p.free
	p.free = p.pages[tail].next
	if p.free != nilIndex {
		p.pages[p.free].prev = nilIndex
	}
	p.pages[tail].next = nilIndex
	p.pages[head].prev = nilIndex
	p.nfree -= n
	return List{pool: p, head: head}, nil
}

// Free returns every frame of l to the head of the free list, keeping l's
// order. Freeing an empty list is a no-op.
//
// l must have been returned by Allocate on p and not freed since. A list from
// another pool causes a panic; double frees are not detected here (see
// CheckInvariants).
func (p *Pool) Free(l List) {
	if l.Empty() {
		return
	}
	if l.pool != p {
		panic("pfa: freeing a list that belongs to another pool")
	}
	tail := l.head
	n := 1
	for p.pages[tail].next != nilIndex {
		tail = p.pages[tail].next
		n++
	}
	p.pages[tail].next = p.free
	if p.free != nilIndex {
		p.pages[p.free].prev = tail
	}
	p.pages[l.head].prev = nilIndex
	p.free = l.head
	p.nfree += n
}

// FreeList returns a read-only view of the free list.
//
// The view is invalidated by the next call to Allocate, Free or Init.
func (p *Pool) FreeList() List {
	return List{pool: p, head: p.free}
}

// FreeAddrs returns the addresses on the free list, in list order.
func (p *Pool) FreeAddrs() []hostarch.PhysAddr {
	return p.FreeList().Addrs()
}
