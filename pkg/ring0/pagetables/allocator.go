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

package pagetables

import (
	"fmt"

	"gokern.dev/gokern/pkg/errors/kerr"
	"gokern.dev/gokern/pkg/hostarch"
)

// Memory provides access to physical frames.
type Memory interface {
	// Page returns the frame at the page-aligned address addr.
	Page(addr hostarch.PhysAddr) (*[hostarch.PageSize]byte, error)
}

// Allocator is used to allocate and map PTEs.
//
// Note that allocators may be called concurrently.
type Allocator interface {
	// NewPTEs returns a new set of PTEs and its physical address.
	NewPTEs() (*PTEs, hostarch.PhysAddr, error)

	// LookupPTEs looks up PTEs by physical address.
	LookupPTEs(physical hostarch.PhysAddr) (*PTEs, error)

	// Reset makes every table available again. Tables already handed out
	// remain valid memory but are no longer tracked.
	Reset()

	// InUse returns the number of tables handed out since the last Reset.
	InUse() int

	// Capacity returns the number of tables the allocator can hand out.
	Capacity() int
}

// PoolAllocator hands out tables from a fixed, contiguous run of frames by
// advancing a watermark. Tables are never freed individually.
type PoolAllocator struct {
	mem   Memory
	base  hostarch.PhysAddr
	count int
	next  int
}

// NewPoolAllocator returns an allocator for the count frames starting at
// base.
func NewPoolAllocator(mem Memory, base hostarch.PhysAddr, count int) (*PoolAllocator, error) {
	if !base.IsPageAligned() {
		return nil, fmt.Errorf("table pool base %v is not page aligned: %w", base, kerr.EINVAL)
	}
	if count <= 0 || uint64(base)+uint64(count)*hostarch.PageSize > hostarch.MaxAddr+1 {
		return nil, fmt.Errorf("table pool of %d tables at %v is invalid: %w", count, base, kerr.EINVAL)
	}
	return &PoolAllocator{
		mem:   mem,
		base:  base,
		count: count,
	}, nil
}

// NewPTEs implements Allocator.NewPTEs.
//
// The returned table is not zeroed.
func (a *PoolAllocator) NewPTEs() (*PTEs, hostarch.PhysAddr, error) {
	if a.next == a.count {
		return nil, 0, fmt.Errorf("all %d page tables in use: %w", a.count, kerr.EEXHAUSTED)
	}
	phys := a.base + hostarch.PhysAddr(a.next)*hostarch.PageSize
	page, err := a.mem.Page(phys)
	if err != nil {
		return nil, 0, err
	}
	a.next++
	return ptesFromPage(page), phys, nil
}

// LookupPTEs implements Allocator.LookupPTEs.
func (a *PoolAllocator) LookupPTEs(physical hostarch.PhysAddr) (*PTEs, error) {
	if physical < a.base || uint64(physical) >= uint64(a.base)+uint64(a.count)*hostarch.PageSize || !physical.IsPageAligned() {
		return nil, fmt.Errorf("%v is not a table in pool [%v, +%d): %w", physical, a.base, a.count, kerr.EINVAL)
	}
	page, err := a.mem.Page(physical)
	if err != nil {
		return nil, err
	}
	return ptesFromPage(page), nil
}

// Reset implements Allocator.Reset.
func (a *PoolAllocator) Reset() {
	a.next = 0
}

// InUse implements Allocator.InUse.
func (a *PoolAllocator) InUse() int {
	return a.next
}

// Capacity implements Allocator.Capacity.
func (a *PoolAllocator) Capacity() int {
	return a.count
}

// Base returns the physical address of the first table in the pool.
func (a *PoolAllocator) Base() hostarch.PhysAddr {
	return a.base
}
