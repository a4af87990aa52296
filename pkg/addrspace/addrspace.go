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

// Package addrspace manages the single kernel address space: mapping frames
// into it and activating it on the processor.
package addrspace

import (
	"fmt"

	"gokern.dev/gokern/pkg/errors/kerr"
	"gokern.dev/gokern/pkg/hostarch"
	"gokern.dev/gokern/pkg/log"
	"gokern.dev/gokern/pkg/ring0"
	"gokern.dev/gokern/pkg/ring0/pagetables"
)

// State is the activation state of the address space.
type State int

// States, in the order Enable passes through them.
const (
	Uninitialized State = iota
	DirectoryZeroed
	IdentityMapped
	PagingEnabled
)

// String implements fmt.Stringer.String.
func (s State) String() string {
	switch s {
	case Uninitialized:
		return "Uninitialized"
	case DirectoryZeroed:
		return "DirectoryZeroed"
	case IdentityMapped:
		return "IdentityMapped"
	case PagingEnabled:
		return "PagingEnabled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

const (
	// DefaultKernelStart is the kernel load address.
	DefaultKernelStart hostarch.Addr = 0x00100000

	// DefaultVideoAddr is the text-mode video window.
	DefaultVideoAddr hostarch.Addr = 0x000b8000

	// DefaultStackPages is the number of pages identity mapped at and below
	// the stack pointer.
	DefaultStackPages = 4
)

// Layout describes the regions Enable identity maps.
type Layout struct {
	// KernelStart is the load address of the kernel image.
	KernelStart hostarch.Addr

	// KernelEnd is the end of the kernel image. It is rounded up to a page
	// boundary.
	KernelEnd hostarch.Addr

	// VideoAddr is an address inside the text-mode video window.
	VideoAddr hostarch.Addr

	// StackPages is the number of pages mapped at and below the page
	// holding the stack pointer.
	StackPages int
}

// Validate checks the layout.
func (l *Layout) Validate() error {
	if !l.KernelStart.IsPageAligned() {
		return fmt.Errorf("kernel start %v is not page aligned: %w", l.KernelStart, kerr.EINVAL)
	}
	if l.KernelEnd < l.KernelStart {
		return fmt.Errorf("kernel end %v is below kernel start %v: %w", l.KernelEnd, l.KernelStart, kerr.EINVAL)
	}
	if _, ok := l.KernelEnd.RoundUp(); !ok {
		return fmt.Errorf("kernel end %v rounds past the address space: %w", l.KernelEnd, kerr.EINVAL)
	}
	if l.StackPages <= 0 {
		return fmt.Errorf("stack window of %d pages: %w", l.StackPages, kerr.EINVAL)
	}
	return nil
}

// Manager owns the page directory of the kernel address space.
//
// Manager is not synchronized.
type Manager struct {
	pt     *pagetables.PageTables
	cpu    ring0.CPU
	layout Layout
	state  State
	log    log.Logger
}

// New returns a Manager for pt, activated on cpu. Progress is reported to
// logger.
func New(pt *pagetables.PageTables, cpu ring0.CPU, layout Layout, logger log.Logger) (*Manager, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	return &Manager{
		pt:     pt,
		cpu:    cpu,
		layout: layout,
		log:    logger,
	}, nil
}

// State returns the activation state.
func (m *Manager) State() State {
	return m.state
}

// PageTables returns the page tables of the address space.
func (m *Manager) PageTables() *pagetables.PageTables {
	return m.pt
}

// Layout returns the identity-mapped layout.
func (m *Manager) Layout() Layout {
	return m.layout
}

// Map maps frames at consecutive pages starting at addr, in any state. It
// returns addr and the number of pages mapped; see PageTables.Map for the
// failure modes.
func (m *Manager) Map(addr hostarch.Addr, frames pagetables.FrameList) (hostarch.Addr, int, error) {
	return m.pt.Map(addr, frames)
}

// identityMap maps the pages [start, start+pages*PageSize) to themselves.
func (m *Manager) identityMap(start hostarch.Addr, pages int) error {
	frames := make(pagetables.Frames, pages)
	for i := range frames {
		frames[i] = hostarch.PhysAddr(start) + hostarch.PhysAddr(i)*hostarch.PageSize
	}
	if _, n, err := m.pt.Map(start, frames); err != nil {
		return fmt.Errorf("identity mapping %d pages at %v stopped after %d: %w", pages, start, n, err)
	}
	return nil
}

// Enable rebuilds the address space and turns paging on.
//
// The directory is zeroed and the table pool reset, abandoning every
// previously installed table. The kernel image, the stack window and the
// video page are identity mapped, CR3 is loaded with the directory and
// CR0.PE|CR0.PG are set in a single write.
//
// If paging is already on, CR0.PG is cleared first so the directory is
// never zeroed while the processor translates through it.
//
// If the identity map cannot be completed, Enable returns an error before
// loading CR3 or setting CR0.PG.
func (m *Manager) Enable() error {
	if ring0.PagingEnabled(m.cpu) {
		m.cpu.SetCR0(m.cpu.CR0() &^ ring0.CR0PG)
		m.log.Infof("Paging disabled for rebuild")
	}
	m.pt.Reset()
	m.state = DirectoryZeroed

	start := m.layout.KernelStart
	end := m.layout.KernelEnd.MustRoundUp()
	m.log.Infof("Mapping kernel from %x to %x", uint32(start), uint32(end))
	if err := m.identityMap(start, hostarch.AddrRange{Start: start, End: end}.NumPages()); err != nil {
		return fmt.Errorf("mapping kernel: %w", err)
	}

	stackTop := m.cpu.StackPointer().RoundDown()
	for i := 0; i < m.layout.StackPages; i++ {
		page := stackTop - hostarch.Addr(i)*hostarch.PageSize
		if page > stackTop {
			// The window runs below address zero.
			break
		}
		m.log.Infof("Mapping stack page at %x", uint32(page))
		if err := m.identityMap(page, 1); err != nil {
			return fmt.Errorf("mapping stack: %w", err)
		}
	}

	video := m.layout.VideoAddr.RoundDown()
	m.log.Infof("Mapping video memory at %x", uint32(video))
	if err := m.identityMap(video, 1); err != nil {
		return fmt.Errorf("mapping video memory: %w", err)
	}
	m.state = IdentityMapped

	m.cpu.LoadCR3(m.pt.RootPhysical())
	ring0.EnablePaging(m.cpu)
	m.state = PagingEnabled
	m.log.Infof("Paging enabled!")
	return nil
}
