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

package ring0

import (
	"fmt"
	"time"

	"gokern.dev/gokern/pkg/errors/kerr"
	"gokern.dev/gokern/pkg/hostarch"
	"gokern.dev/gokern/pkg/log"
	"gokern.dev/gokern/pkg/ring0/pagetables"
)

// PhysicalMemory is the memory behind a Simulator.
type PhysicalMemory interface {
	Load32(addr hostarch.PhysAddr) (uint32, error)
	Store32(addr hostarch.PhysAddr, v uint32) error
	Slice(addr hostarch.PhysAddr, length uint64) ([]byte, error)
}

// Simulator is a single simulated processor with an MMU that walks the page
// directory held in its physical memory.
//
// The processor starts in protected mode with paging disabled, as it is
// handed over by the boot loader. Once paging is enabled, an access to an
// unmapped page is fatal: the processor halts and every later access fails.
type Simulator struct {
	mem PhysicalMemory

	cr0 uint32
	cr3 uint32
	sp  hostarch.Addr

	// cr0Writes counts writes to CR0.
	cr0Writes int

	// halted is set by the first fault.
	halted    bool
	faultAddr hostarch.Addr

	faults log.Logger
}

// NewSimulator returns a processor whose stack pointer is sp.
func NewSimulator(mem PhysicalMemory, sp hostarch.Addr) *Simulator {
	return &Simulator{
		mem:    mem,
		cr0:    CR0PE,
		sp:     sp,
		faults: log.BasicRateLimitedLogger(time.Second),
	}
}

// SetFaultLogger replaces the logger that reports faults.
func (s *Simulator) SetFaultLogger(l log.Logger) {
	s.faults = l
}

// LoadCR3 implements CPU.LoadCR3.
func (s *Simulator) LoadCR3(root hostarch.PhysAddr) {
	s.cr3 = uint32(root)
}

// CR3 returns the current value of CR3.
func (s *Simulator) CR3() uint32 {
	return s.cr3
}

// CR0 implements CPU.CR0.
func (s *Simulator) CR0() uint32 {
	return s.cr0
}

// SetCR0 implements CPU.SetCR0.
func (s *Simulator) SetCR0(v uint32) {
	s.cr0 = v
	s.cr0Writes++
}

// CR0Writes returns the number of writes to CR0.
func (s *Simulator) CR0Writes() int {
	return s.cr0Writes
}

// StackPointer implements CPU.StackPointer.
func (s *Simulator) StackPointer() hostarch.Addr {
	return s.sp
}

// Halted returns true iff the processor has faulted, and the faulting
// address.
func (s *Simulator) Halted() (hostarch.Addr, bool) {
	return s.faultAddr, s.halted
}

// fault halts the processor.
func (s *Simulator) fault(addr hostarch.Addr, reason string) error {
	s.halted = true
	s.faultAddr = addr
	s.faults.Warningf("Page fault at %v (%s), cr3=%#08x: processor halted", addr, reason, s.cr3)
	return fmt.Errorf("access to %v: %s: %w", addr, reason, kerr.EFAULT)
}

// Translate returns the physical address addr maps to, setting the accessed
// bits of the entries used and, for writes, the dirty bit.
func (s *Simulator) Translate(addr hostarch.Addr, write bool) (hostarch.PhysAddr, error) {
	if s.halted {
		return 0, fmt.Errorf("processor halted by fault at %v: %w", s.faultAddr, kerr.EFAULT)
	}
	if !PagingEnabled(s) {
		return hostarch.PhysAddr(addr), nil
	}

	root := hostarch.PhysAddr(s.cr3).RoundDown()
	pdeAddr := root + hostarch.PhysAddr(pagetables.DirectoryIndex(addr)*4)
	v, err := s.mem.Load32(pdeAddr)
	if err != nil {
		return 0, s.fault(addr, "directory unreadable")
	}
	pde := pagetables.PDE(v)
	if !pde.Valid() {
		return 0, s.fault(addr, "directory entry not present")
	}
	if !pde.Accessed() {
		pde.SetAccessed()
		if err := s.mem.Store32(pdeAddr, uint32(pde)); err != nil {
			return 0, s.fault(addr, "directory unwritable")
		}
	}

	pteAddr := pde.Address() + hostarch.PhysAddr(pagetables.TableIndex(addr)*4)
	v, err = s.mem.Load32(pteAddr)
	if err != nil {
		return 0, s.fault(addr, "table unreadable")
	}
	pte := pagetables.PTE(v)
	if !pte.Valid() {
		return 0, s.fault(addr, "table entry not present")
	}
	if write && !pte.Writable() {
		return 0, s.fault(addr, "write to read-only page")
	}
	if updated := pte; updated.SetAccessed(write) != pte {
		if err := s.mem.Store32(pteAddr, uint32(updated)); err != nil {
			return 0, s.fault(addr, "table unwritable")
		}
	}
	return pte.Address() + hostarch.PhysAddr(addr.PageOffset()), nil
}

// access calls fn with the physical bytes backing [addr, addr+length), one
// page at a time.
func (s *Simulator) access(addr hostarch.Addr, length int, write bool, fn func(done int, b []byte)) error {
	done := 0
	for done < length {
		va := addr + hostarch.Addr(done)
		pa, err := s.Translate(va, write)
		if err != nil {
			return err
		}
		n := min(length-done, int(hostarch.PageSize-va.PageOffset()))
		b, err := s.mem.Slice(pa, uint64(n))
		if err != nil {
			return s.fault(va, "no physical memory")
		}
		fn(done, b)
		done += n
	}
	return nil
}

// Read copies len(dst) bytes at virtual address addr into dst.
func (s *Simulator) Read(addr hostarch.Addr, dst []byte) error {
	return s.access(addr, len(dst), false, func(done int, b []byte) {
		copy(dst[done:], b)
	})
}

// Write copies src to virtual address addr.
func (s *Simulator) Write(addr hostarch.Addr, src []byte) error {
	return s.access(addr, len(src), true, func(done int, b []byte) {
		copy(b, src[done:])
	})
}
