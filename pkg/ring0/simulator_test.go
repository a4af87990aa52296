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
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gokern.dev/gokern/pkg/errors/kerr"
	"gokern.dev/gokern/pkg/hostarch"
	"gokern.dev/gokern/pkg/log"
	"gokern.dev/gokern/pkg/physmem"
	"gokern.dev/gokern/pkg/ring0/pagetables"
)

type machine struct {
	mem *physmem.Memory
	pt  *pagetables.PageTables
	cpu *Simulator
}

func newMachine(t *testing.T) *machine {
	t.Helper()
	mem, err := physmem.New(4 << 20)
	if err != nil {
		t.Fatalf("physmem.New failed: %v", err)
	}
	t.Cleanup(func() { mem.Close() })
	a, err := pagetables.NewPoolAllocator(mem, 0x2000, 4)
	if err != nil {
		t.Fatalf("NewPoolAllocator failed: %v", err)
	}
	pt, err := pagetables.New(mem, 0x1000, a)
	if err != nil {
		t.Fatalf("pagetables.New failed: %v", err)
	}
	cpu := NewSimulator(mem, 0x9ff0)
	cpu.SetFaultLogger(&log.BasicLogger{Level: log.Warning, Emitter: &log.TestEmitter{TestLogger: t}})
	return &machine{mem: mem, pt: pt, cpu: cpu}
}

func TestEnablePaging(t *testing.T) {
	m := newMachine(t)
	if PagingEnabled(m.cpu) {
		t.Fatalf("paging enabled at reset")
	}
	m.cpu.LoadCR3(m.pt.RootPhysical())
	EnablePaging(m.cpu)
	if got, want := m.cpu.CR0(), uint32(0x80000001); got != want {
		t.Errorf("CR0 = %#x, want %#x", got, want)
	}
	if got := m.cpu.CR0Writes(); got != 1 {
		t.Errorf("CR0 written %d times, want 1", got)
	}
	if got := m.cpu.CR3(); got != 0x1000 {
		t.Errorf("CR3 = %#x, want 0x1000", got)
	}
}

func TestTranslateIdentityBeforePaging(t *testing.T) {
	m := newMachine(t)
	got, err := m.cpu.Translate(0x00300123, false)
	if err != nil || got != 0x00300123 {
		t.Errorf("Translate = (%v, %v), want (0x00300123, nil)", got, err)
	}
}

func TestTranslate(t *testing.T) {
	m := newMachine(t)
	if _, _, err := m.pt.Map(0x00000000, pagetables.Frames{0x00000000, 0x00001000, 0x00002000}); err != nil {
		t.Fatalf("identity Map failed: %v", err)
	}
	if _, _, err := m.pt.Map(0x40000000, pagetables.Frames{0x00200000, 0x00300000}); err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	m.cpu.LoadCR3(m.pt.RootPhysical())
	EnablePaging(m.cpu)

	got, err := m.cpu.Translate(0x40001abc, false)
	if err != nil || got != 0x00300abc {
		t.Errorf("Translate = (%v, %v), want (0x00300abc, nil)", got, err)
	}

	// A write spanning both pages lands in both frames.
	msg := []byte("paging")
	if err := m.cpu.Write(0x40000ffd, msg); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	lo, _ := m.mem.Slice(0x00200ffd, 3)
	hi, _ := m.mem.Slice(0x00300000, 3)
	if got := string(lo) + string(hi); got != "paging" {
		t.Errorf("physical memory holds %q, want %q", got, "paging")
	}
	back := make([]byte, len(msg))
	if err := m.cpu.Read(0x40000ffd, back); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if diff := cmp.Diff(msg, back); diff != "" {
		t.Errorf("Read mismatch (-want +got):\n%s", diff)
	}

	var dirty []hostarch.Addr
	m.pt.Walk(func(addr hostarch.Addr, pte pagetables.PTE) bool {
		if pte.Dirty() {
			dirty = append(dirty, addr)
		}
		return true
	})
	if diff := cmp.Diff([]hostarch.Addr{0x40000000, 0x40001000}, dirty); diff != "" {
		t.Errorf("dirty pages mismatch (-want +got):\n%s", diff)
	}
	if !m.pt.Directory()[pagetables.DirectoryIndex(0x40000000)].Accessed() {
		t.Errorf("directory entry not marked accessed")
	}
}

// newPagedMachine returns a machine with paging enabled and only the first
// page mapped.
func newPagedMachine(t *testing.T) *machine {
	t.Helper()
	m := newMachine(t)
	if _, _, err := m.pt.Map(0x00000000, pagetables.Frames{0x00000000}); err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	m.cpu.LoadCR3(m.pt.RootPhysical())
	EnablePaging(m.cpu)
	return m
}

func TestFaultHalts(t *testing.T) {
	for _, addr := range []hostarch.Addr{0x00001000, 0x00400000} {
		m := newPagedMachine(t)
		if _, err := m.cpu.Translate(addr, false); !errors.Is(err, kerr.EFAULT) {
			t.Errorf("Translate(%v) = %v, want EFAULT", addr, err)
		}
		if got, halted := m.cpu.Halted(); !halted || got != addr {
			t.Errorf("Halted() = (%v, %t), want (%v, true)", got, halted, addr)
		}
		// Mapped pages are no longer reachable either.
		if _, err := m.cpu.Translate(0x00000010, false); !errors.Is(err, kerr.EFAULT) {
			t.Errorf("Translate after fault = %v, want EFAULT", err)
		}
	}
}

func TestWriteAcrossUnmappedPage(t *testing.T) {
	m := newPagedMachine(t)
	if err := m.cpu.Write(0x00000ffe, []byte{1, 2, 3}); !errors.Is(err, kerr.EFAULT) {
		t.Errorf("Write across the last mapped page = %v, want EFAULT", err)
	}
	if got, halted := m.cpu.Halted(); !halted || got != 0x00001000 {
		t.Errorf("Halted() = (%v, %t), want (0x00001000, true)", got, halted)
	}
}

// readOnlyMemory rejects stores to the page tables.
type readOnlyMemory struct {
	*physmem.Memory
}

func (readOnlyMemory) Store32(addr hostarch.PhysAddr, v uint32) error {
	return fmt.Errorf("store to %v: %w", addr, kerr.EFAULT)
}

func TestTranslateUnwritableEntries(t *testing.T) {
	for _, tc := range []struct {
		name string
		// accessed pre-sets the accessed bit in the directory entry, so the
		// first store is to the table entry.
		accessed bool
		reason   string
	}{
		{name: "directory", reason: "directory unwritable"},
		{name: "table", accessed: true, reason: "table unwritable"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			m := newMachine(t)
			if _, _, err := m.pt.Map(0x40000000, pagetables.Frames{0x00200000}); err != nil {
				t.Fatalf("Map failed: %v", err)
			}
			if tc.accessed {
				pdeAddr := m.pt.RootPhysical() + hostarch.PhysAddr(pagetables.DirectoryIndex(0x40000000)*4)
				v, err := m.mem.Load32(pdeAddr)
				if err != nil {
					t.Fatalf("Load32 failed: %v", err)
				}
				pde := pagetables.PDE(v)
				pde.SetAccessed()
				if err := m.mem.Store32(pdeAddr, uint32(pde)); err != nil {
					t.Fatalf("Store32 failed: %v", err)
				}
			}
			cpu := NewSimulator(readOnlyMemory{m.mem}, 0x9ff0)
			cpu.SetFaultLogger(&log.BasicLogger{Level: log.Warning, Emitter: &log.TestEmitter{TestLogger: t}})
			cpu.LoadCR3(m.pt.RootPhysical())
			EnablePaging(cpu)

			_, err := cpu.Translate(0x40000000, true)
			if !errors.Is(err, kerr.EFAULT) {
				t.Fatalf("Translate = %v, want EFAULT", err)
			}
			if !strings.Contains(err.Error(), tc.reason) {
				t.Errorf("error %q does not mention %q", err, tc.reason)
			}
			if addr, halted := cpu.Halted(); !halted || addr != 0x40000000 {
				t.Errorf("Halted() = (%v, %v), want (0x40000000, true)", addr, halted)
			}
		})
	}
}
