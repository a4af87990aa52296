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

// Package pagetables provides a generic implementation of 32-bit two-level
// page tables: a page directory of 1024 entries, each pointing at a page
// table of 1024 entries mapping 4KB pages.
//
// Page tables are not synchronized. Callers must not call Map concurrently.
package pagetables

import (
	"fmt"

	"gokern.dev/gokern/pkg/errors/kerr"
	"gokern.dev/gokern/pkg/hostarch"
)

// FrameList is an ordered list of physical frames to be mapped.
type FrameList interface {
	// ForEach calls fn with each frame address in order until fn returns
	// false.
	ForEach(fn func(hostarch.PhysAddr) bool)
}

// Frames is a FrameList backed by a slice.
type Frames []hostarch.PhysAddr

// ForEach implements FrameList.ForEach.
func (f Frames) ForEach(fn func(hostarch.PhysAddr) bool) {
	for _, addr := range f {
		if !fn(addr) {
			return
		}
	}
}

// PageTables is a set of page tables rooted at one page directory.
type PageTables struct {
	// Allocator is used to allocate page tables.
	Allocator Allocator

	// root is the page directory.
	root *PageDirectory

	// rootPhysical is the physical address of root.
	rootPhysical hostarch.PhysAddr
}

// New returns page tables rooted at the directory in the frame at root. The
// directory is zeroed.
func New(mem Memory, root hostarch.PhysAddr, a Allocator) (*PageTables, error) {
	page, err := mem.Page(root)
	if err != nil {
		return nil, fmt.Errorf("page directory at %v: %w", root, err)
	}
	p := &PageTables{
		Allocator:    a,
		root:         directoryFromPage(page),
		rootPhysical: root,
	}
	clear(p.root[:])
	return p, nil
}

// RootPhysical returns the physical address of the page directory, the value
// loaded into CR3.
func (p *PageTables) RootPhysical() hostarch.PhysAddr {
	return p.rootPhysical
}

// Directory returns the page directory.
func (p *PageTables) Directory() *PageDirectory {
	return p.root
}

// TablesInUse returns the number of page tables installed since the last
// Reset.
func (p *PageTables) TablesInUse() int {
	return p.Allocator.InUse()
}

// Reset zeroes every directory entry and resets the table allocator. Tables
// installed before the reset are abandoned.
func (p *PageTables) Reset() {
	clear(p.root[:])
	p.Allocator.Reset()
}

// Map installs mappings for frames at consecutive pages starting at addr, in
// list order. It returns addr and the number of pages mapped.
//
// An unaligned address or frame, or a list that would run past the top of
// the address space, fails with EINVAL before anything is mapped. If the
// allocator runs out of tables, Map stops and returns an error wrapping
// EEXHAUSTED; the mappings already installed remain valid.
func (p *PageTables) Map(addr hostarch.Addr, frames FrameList) (hostarch.Addr, int, error) {
	if !addr.IsPageAligned() {
		return addr, 0, fmt.Errorf("virtual address %v is not page aligned: %w", addr, kerr.EINVAL)
	}
	var (
		n   uint64
		err error
	)
	frames.ForEach(func(phys hostarch.PhysAddr) bool {
		if !phys.IsPageAligned() {
			err = fmt.Errorf("frame %d at %v is not page aligned: %w", n, phys, kerr.EINVAL)
			return false
		}
		n++
		return true
	})
	if err != nil {
		return addr, 0, err
	}
	if uint64(addr)+n*hostarch.PageSize > hostarch.MaxAddr+1 {
		return addr, 0, fmt.Errorf("%d pages at %v overflow the address space: %w", n, addr, kerr.EINVAL)
	}

	va := addr
	mapped := 0
	frames.ForEach(func(phys hostarch.PhysAddr) bool {
		var ptes *PTEs
		ptes, err = p.tableFor(va)
		if err != nil {
			return false
		}
		ptes[TableIndex(va)].Set(phys)
		mapped++
		va += hostarch.PageSize
		return true
	})
	if err != nil {
		return addr, mapped, fmt.Errorf("mapping page %d at %v: %w", mapped, va, err)
	}
	return addr, mapped, nil
}

// tableFor returns the page table covering addr, installing a zeroed table
// from the allocator if the directory slot is empty.
func (p *PageTables) tableFor(addr hostarch.Addr) (*PTEs, error) {
	pde := &p.root[DirectoryIndex(addr)]
	if pde.Valid() {
		return p.Allocator.LookupPTEs(pde.Address())
	}
	ptes, phys, err := p.Allocator.NewPTEs()
	if err != nil {
		return nil, err
	}
	clear(ptes[:])
	pde.SetPageTable(phys)
	return ptes, nil
}

// Lookup returns the physical address addr translates to.
func (p *PageTables) Lookup(addr hostarch.Addr) (hostarch.PhysAddr, bool) {
	pde := p.root[DirectoryIndex(addr)]
	if !pde.Valid() {
		return 0, false
	}
	ptes, err := p.Allocator.LookupPTEs(pde.Address())
	if err != nil {
		return 0, false
	}
	pte := ptes[TableIndex(addr)]
	if !pte.Valid() {
		return 0, false
	}
	return pte.Address() + hostarch.PhysAddr(addr.PageOffset()), true
}

// Walk calls fn for every present table entry in ascending virtual address
// order, until fn returns false.
func (p *PageTables) Walk(fn func(addr hostarch.Addr, pte PTE) bool) error {
	for di := range p.root {
		pde := p.root[di]
		if !pde.Valid() {
			continue
		}
		ptes, err := p.Allocator.LookupPTEs(pde.Address())
		if err != nil {
			return fmt.Errorf("directory entry %d: %w", di, err)
		}
		for ti := range ptes {
			if !ptes[ti].Valid() {
				continue
			}
			addr := hostarch.Addr(uint32(di)<<pdeShift | uint32(ti)<<pteShift)
			if !fn(addr, ptes[ti]) {
				return nil
			}
		}
	}
	return nil
}
