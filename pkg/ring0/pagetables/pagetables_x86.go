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

import "gokern.dev/gokern/pkg/hostarch"

// Entry bits shared by directory and table entries.
const (
	present       = 1 << 0
	writable      = 1 << 1
	user          = 1 << 2
	writeThrough  = 1 << 3
	cacheDisable  = 1 << 4
	accessed      = 1 << 5
	dirty         = 1 << 6 // PTE only.
	largePage     = 1 << 6 // PDE only.
	pat           = 1 << 7 // PTE only.
	global        = 1 << 8 // PTE only.
	frameShift    = hostarch.PageShift
	frameMask     = 0xfffff << frameShift
	availableMask = 0x7 << 9
)

// Address decomposition.
const (
	pdeShift = 22
	pteShift = hostarch.PageShift

	entriesPerPage = 1024
	indexMask      = entriesPerPage - 1

	// pdeSize is the span of one directory entry.
	pdeSize = 1 << pdeShift
)

// DirectoryIndex returns bits [31:22] of addr.
func DirectoryIndex(addr hostarch.Addr) int {
	return int(uint32(addr) >> pdeShift)
}

// TableIndex returns bits [21:12] of addr.
func TableIndex(addr hostarch.Addr) int {
	return int(uint32(addr)>>pteShift) & indexMask
}

// PDE is a page directory entry.
type PDE uint32

// Valid returns true iff the entry is present.
func (d PDE) Valid() bool {
	return d&present != 0
}

// Writable returns true iff the read-write bit is set.
func (d PDE) Writable() bool {
	return d&writable != 0
}

// User returns true iff the entry is accessible from user mode.
func (d PDE) User() bool {
	return d&user != 0
}

// WriteThrough returns the write-through bit.
func (d PDE) WriteThrough() bool {
	return d&writeThrough != 0
}

// CacheDisabled returns the cache-disable bit.
func (d PDE) CacheDisabled() bool {
	return d&cacheDisable != 0
}

// Accessed returns the accessed bit.
func (d PDE) Accessed() bool {
	return d&accessed != 0
}

// IsLarge returns true iff the entry maps a 4MB page. Such entries are never
// created here.
func (d PDE) IsLarge() bool {
	return d&largePage != 0
}

// Available returns the three bits reserved for the operating system.
func (d PDE) Available() uint32 {
	return uint32(d&availableMask) >> 9
}

// Frame returns the frame number of the page table.
func (d PDE) Frame() uint32 {
	return uint32(d) >> frameShift
}

// Address returns the physical address of the page table.
func (d PDE) Address() hostarch.PhysAddr {
	return hostarch.PhysAddr(d & frameMask)
}

// SetAccessed sets the accessed bit, as the MMU does when it walks through
// the entry.
func (d *PDE) SetAccessed() {
	*d |= accessed
}

// SetPageTable points the entry at the table at phys: present, read-write,
// supervisor only, every other flag clear.
func (d *PDE) SetPageTable(phys hostarch.PhysAddr) {
	*d = PDE(uint32(phys)&frameMask | present | writable)
}

// Clear zeroes the entry.
func (d *PDE) Clear() {
	*d = 0
}

// PTE is a page table entry.
type PTE uint32

// Valid returns true iff the entry is present.
func (p PTE) Valid() bool {
	return p&present != 0
}

// Writable returns true iff the read-write bit is set.
func (p PTE) Writable() bool {
	return p&writable != 0
}

// User returns true iff the page is accessible from user mode.
func (p PTE) User() bool {
	return p&user != 0
}

// WriteThrough returns the write-through bit.
func (p PTE) WriteThrough() bool {
	return p&writeThrough != 0
}

// CacheDisabled returns the cache-disable bit.
func (p PTE) CacheDisabled() bool {
	return p&cacheDisable != 0
}

// Accessed returns the accessed bit.
func (p PTE) Accessed() bool {
	return p&accessed != 0
}

// Dirty returns the dirty bit.
func (p PTE) Dirty() bool {
	return p&dirty != 0
}

// PAT returns the page attribute table bit.
func (p PTE) PAT() bool {
	return p&pat != 0
}

// Global returns the global bit.
func (p PTE) Global() bool {
	return p&global != 0
}

// Available returns the three bits reserved for the operating system.
func (p PTE) Available() uint32 {
	return uint32(p&availableMask) >> 9
}

// Frame returns the physical frame number.
func (p PTE) Frame() uint32 {
	return uint32(p) >> frameShift
}

// Address returns the physical address of the frame.
func (p PTE) Address() hostarch.PhysAddr {
	return hostarch.PhysAddr(p & frameMask)
}

// SetAccessed sets the accessed bit and, for a write, the dirty bit. It
// returns the new value.
func (p *PTE) SetAccessed(write bool) PTE {
	*p |= accessed
	if write {
		*p |= dirty
	}
	return *p
}

// Set maps the entry to the frame at phys: present, read-write, supervisor
// only, every other flag clear.
func (p *PTE) Set(phys hostarch.PhysAddr) {
	*p = PTE(uint32(phys)&frameMask | present | writable)
}

// Clear zeroes the entry.
func (p *PTE) Clear() {
	*p = 0
}

// PTEs is a page table.
type PTEs [entriesPerPage]PTE

// PageDirectory is the top-level table.
type PageDirectory [entriesPerPage]PDE
