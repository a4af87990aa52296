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

// Package hostarch describes the 32-bit protected-mode address model used by
// the memory-management core: page geometry, virtual and physical addresses.
package hostarch

import "fmt"

const (
	// PageShift is the binary log of the page size.
	PageShift = 12

	// PageSize is the size of a page and of a physical frame, in bytes.
	PageSize = 1 << PageShift

	// PageMask masks the offset within a page.
	PageMask = PageSize - 1

	// MaxAddr is the highest addressable byte.
	MaxAddr = 1<<32 - 1
)

// Addr represents a 32-bit virtual address.
type Addr uint32

// PhysAddr represents a 32-bit physical address.
type PhysAddr uint32

// String implements fmt.Stringer.String.
func (v Addr) String() string {
	return fmt.Sprintf("%#08x", uint32(v))
}

// RoundDown returns the address rounded down to the nearest page boundary.
func (v Addr) RoundDown() Addr {
	return v &^ PageMask
}

// RoundUp returns the address rounded up to the nearest page boundary. ok is
// true iff rounding up did not wrap around.
func (v Addr) RoundUp() (addr Addr, ok bool) {
	addr = Addr(v + PageMask).RoundDown()
	ok = addr >= v
	return
}

// MustRoundUp is equivalent to RoundUp, but panics if rounding up wraps
// around.
func (v Addr) MustRoundUp() Addr {
	addr, ok := v.RoundUp()
	if !ok {
		panic(fmt.Sprintf("hostarch.Addr(%v).RoundUp() wraps", v))
	}
	return addr
}

// PageOffset returns the offset of v into the current page.
func (v Addr) PageOffset() uint32 {
	return uint32(v & PageMask)
}

// IsPageAligned returns true if v.PageOffset() == 0.
func (v Addr) IsPageAligned() bool {
	return v.PageOffset() == 0
}

// AddLength adds the given length to start and returns the result. ok is true
// iff adding the length did not overflow the 32-bit address space.
func (v Addr) AddLength(length uint64) (end Addr, ok bool) {
	sum := uint64(v) + length
	if sum > MaxAddr+1 {
		return 0, false
	}
	return Addr(sum), sum <= MaxAddr
}

// ToRange returns [v, v+length).
func (v Addr) ToRange(length uint32) (AddrRange, bool) {
	end, ok := v.AddLength(uint64(length))
	return AddrRange{v, end}, ok
}

// String implements fmt.Stringer.String.
func (p PhysAddr) String() string {
	return fmt.Sprintf("%#08x", uint32(p))
}

// RoundDown returns the address rounded down to the nearest frame boundary.
func (p PhysAddr) RoundDown() PhysAddr {
	return p &^ PageMask
}

// RoundUp returns the address rounded up to the nearest frame boundary. ok is
// true iff rounding up did not wrap around.
func (p PhysAddr) RoundUp() (addr PhysAddr, ok bool) {
	addr = PhysAddr(p + PageMask).RoundDown()
	ok = addr >= p
	return
}

// IsPageAligned returns true if p is a frame boundary.
func (p PhysAddr) IsPageAligned() bool {
	return p&PageMask == 0
}

// FrameNumber returns the physical frame number of p, i.e. p >> PageShift.
func (p PhysAddr) FrameNumber() uint32 {
	return uint32(p) >> PageShift
}

// Identity returns the virtual address equal to p.
func (p PhysAddr) Identity() Addr {
	return Addr(p)
}

// FrameAddr returns the physical address of the given frame number.
func FrameAddr(frame uint32) PhysAddr {
	return PhysAddr(frame << PageShift)
}

// AddrRange is a range of virtual addresses [Start, End).
type AddrRange struct {
	Start Addr
	End   Addr
}

// WellFormed returns true if ar.Start <= ar.End.
func (ar AddrRange) WellFormed() bool {
	return ar.Start <= ar.End
}

// Length returns the length of the range.
func (ar AddrRange) Length() uint32 {
	return uint32(ar.End - ar.Start)
}

// Contains returns true if ar contains addr.
func (ar AddrRange) Contains(addr Addr) bool {
	return ar.Start <= addr && addr < ar.End
}

// NumPages returns the number of pages touched by ar.
func (ar AddrRange) NumPages() int {
	if ar.Start >= ar.End {
		return 0
	}
	first := PageRoundDown(uint64(ar.Start))
	last := PageRoundUp(uint64(ar.End))
	return int((last - first) >> PageShift)
}

// String implements fmt.Stringer.String.
func (ar AddrRange) String() string {
	return fmt.Sprintf("[%#08x, %#08x)", uint32(ar.Start), uint32(ar.End))
}
