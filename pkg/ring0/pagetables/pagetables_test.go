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
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gokern.dev/gokern/pkg/errors/kerr"
	"gokern.dev/gokern/pkg/hostarch"
)

// testMemory is a sparse physical memory of the given size.
type testMemory struct {
	size  uint64
	pages map[hostarch.PhysAddr]*[hostarch.PageSize]byte
}

func newTestMemory(size uint64) *testMemory {
	return &testMemory{
		size:  size,
		pages: make(map[hostarch.PhysAddr]*[hostarch.PageSize]byte),
	}
}

func (m *testMemory) Page(addr hostarch.PhysAddr) (*[hostarch.PageSize]byte, error) {
	if !addr.IsPageAligned() {
		return nil, kerr.EINVAL
	}
	if uint64(addr)+hostarch.PageSize > m.size {
		return nil, kerr.EFAULT
	}
	p, ok := m.pages[addr]
	if !ok {
		p = new([hostarch.PageSize]byte)
		m.pages[addr] = p
	}
	return p, nil
}

const (
	testRoot      = 0x1000
	testTableBase = 0x2000
)

func newTestPageTables(t *testing.T, tables int) *PageTables {
	t.Helper()
	mem := newTestMemory(16 << 20)
	a, err := NewPoolAllocator(mem, testTableBase, tables)
	if err != nil {
		t.Fatalf("NewPoolAllocator failed: %v", err)
	}
	pt, err := New(mem, testRoot, a)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return pt
}

type mapping struct {
	start  hostarch.Addr
	length uint32
	target hostarch.PhysAddr
}

func (m mapping) String() string {
	return fmt.Sprintf("%v-%#x->%v", m.start, uint32(m.start)+m.length, m.target)
}

// checkMappings coalesces the present entries of pt into runs and compares
// them with want.
func checkMappings(t *testing.T, pt *PageTables, want []mapping) {
	t.Helper()
	var got []mapping
	err := pt.Walk(func(addr hostarch.Addr, pte PTE) bool {
		if !pte.Writable() || pte.User() {
			t.Errorf("entry for %v has flags %#x, want present|rw", addr, uint32(pte)&0xfff)
		}
		if n := len(got); n > 0 {
			last := &got[n-1]
			if uint32(last.start)+last.length == uint32(addr) && uint32(last.target)+last.length == uint32(pte.Address()) {
				last.length += hostarch.PageSize
				return true
			}
		}
		got = append(got, mapping{start: addr, length: hostarch.PageSize, target: pte.Address()})
		return true
	})
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(mapping{})); diff != "" {
		t.Errorf("mappings mismatch (-want +got):\n%s", diff)
	}
}

func TestEntryBits(t *testing.T) {
	var d PDE
	d.SetPageTable(0x00123000)
	if got, want := uint32(d), uint32(0x00123003); got != want {
		t.Errorf("PDE = %#x, want %#x", got, want)
	}
	if !d.Valid() || !d.Writable() || d.User() || d.IsLarge() || d.Accessed() {
		t.Errorf("PDE %#x has wrong flags", uint32(d))
	}
	if got := d.Frame(); got != 0x123 {
		t.Errorf("PDE.Frame() = %#x, want 0x123", got)
	}

	p := PTE(0xabcde000 | present | accessed | dirty | global | 0x5<<9)
	for _, tc := range []struct {
		name string
		got  bool
		want bool
	}{
		{"Valid", p.Valid(), true},
		{"Writable", p.Writable(), false},
		{"User", p.User(), false},
		{"WriteThrough", p.WriteThrough(), false},
		{"CacheDisabled", p.CacheDisabled(), false},
		{"Accessed", p.Accessed(), true},
		{"Dirty", p.Dirty(), true},
		{"PAT", p.PAT(), false},
		{"Global", p.Global(), true},
	} {
		if tc.got != tc.want {
			t.Errorf("PTE.%s() = %t, want %t", tc.name, tc.got, tc.want)
		}
	}
	if got := p.Available(); got != 5 {
		t.Errorf("PTE.Available() = %d, want 5", got)
	}
	if got := p.Address(); got != 0xabcde000 {
		t.Errorf("PTE.Address() = %v, want 0xabcde000", got)
	}
	p.Set(0x00100000)
	if got := uint32(p); got != 0x00100003 {
		t.Errorf("PTE after Set = %#x, want 0x00100003", got)
	}
	p.Clear()
	if p.Valid() || p != 0 {
		t.Errorf("PTE after Clear = %#x, want 0", uint32(p))
	}
}

func TestIndices(t *testing.T) {
	for _, tc := range []struct {
		addr hostarch.Addr
		dir  int
		tbl  int
	}{
		{0x00000000, 0, 0},
		{0x00100000, 0, 0x100},
		{0x000b8000, 0, 0xb8},
		{0x00400000, 1, 0},
		{0xc0101234, 0x300, 0x101},
		{0xfffff000, 0x3ff, 0x3ff},
	} {
		if got := DirectoryIndex(tc.addr); got != tc.dir {
			t.Errorf("DirectoryIndex(%v) = %#x, want %#x", tc.addr, got, tc.dir)
		}
		if got := TableIndex(tc.addr); got != tc.tbl {
			t.Errorf("TableIndex(%v) = %#x, want %#x", tc.addr, got, tc.tbl)
		}
	}
}

func TestMapKernelPage(t *testing.T) {
	pt := newTestPageTables(t, 4)
	va, n, err := pt.Map(0x00100000, Frames{0x00100000})
	if err != nil || va != 0x00100000 || n != 1 {
		t.Fatalf("Map = (%v, %d, %v), want (0x00100000, 1, nil)", va, n, err)
	}
	pde := pt.Directory()[0]
	if !pde.Valid() || pde.Address() != testTableBase {
		t.Fatalf("directory entry 0 = %#x, want table at %#x", uint32(pde), testTableBase)
	}
	ptes, err := pt.Allocator.LookupPTEs(pde.Address())
	if err != nil {
		t.Fatalf("LookupPTEs failed: %v", err)
	}
	pte := ptes[0x100]
	if !pte.Valid() || pte.Frame() != 0x100 {
		t.Errorf("table entry 0x100 = %#x, want present with frame 0x100", uint32(pte))
	}
	checkMappings(t, pt, []mapping{{0x00100000, hostarch.PageSize, 0x00100000}})
	if got, ok := pt.Lookup(0x00100abc); !ok || got != 0x00100abc {
		t.Errorf("Lookup(0x00100abc) = (%v, %t), want (0x00100abc, true)", got, ok)
	}
	if _, ok := pt.Lookup(0x00101000); ok {
		t.Errorf("Lookup of an unmapped page succeeded")
	}
}

func TestMapReusesTable(t *testing.T) {
	pt := newTestPageTables(t, 4)
	if _, _, err := pt.Map(0x00400000, Frames{0x00800000}); err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	if _, _, err := pt.Map(0x007ff000, Frames{0x00900000}); err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	if got := pt.TablesInUse(); got != 1 {
		t.Errorf("TablesInUse() = %d, want 1", got)
	}
	checkMappings(t, pt, []mapping{
		{0x00400000, hostarch.PageSize, 0x00800000},
		{0x007ff000, hostarch.PageSize, 0x00900000},
	})
}

func TestMapListOrder(t *testing.T) {
	pt := newTestPageTables(t, 4)
	frames := Frames{0x00203000, 0x00200000, 0x00201000}
	va, n, err := pt.Map(0x003ff000, frames)
	if err != nil || va != 0x003ff000 || n != 3 {
		t.Fatalf("Map = (%v, %d, %v), want (0x003ff000, 3, nil)", va, n, err)
	}
	// The run crosses a directory boundary, so it needs two tables.
	if got := pt.TablesInUse(); got != 2 {
		t.Errorf("TablesInUse() = %d, want 2", got)
	}
	checkMappings(t, pt, []mapping{
		{0x003ff000, hostarch.PageSize, 0x00203000},
		{0x00400000, 2 * hostarch.PageSize, 0x00200000},
	})
}

func TestMapExhaustion(t *testing.T) {
	pt := newTestPageTables(t, 2)
	// Each page lands in its own directory slot.
	var frames Frames
	for i := 0; i < 4; i++ {
		frames = append(frames, hostarch.FrameAddr(uint32(0x1000+i)))
	}
	va := hostarch.Addr(0x003ff000)
	var mapped int
	for i, f := range frames {
		_, n, err := pt.Map(va+hostarch.Addr(i)*pdeSize, Frames{f})
		mapped += n
		if i < 2 && err != nil {
			t.Fatalf("Map %d failed: %v", i, err)
		}
		if i >= 2 && !errors.Is(err, kerr.EEXHAUSTED) {
			t.Errorf("Map %d = %v, want EEXHAUSTED", i, err)
		}
	}
	if mapped != 2 {
		t.Errorf("mapped %d pages, want 2", mapped)
	}

	// A single call that runs out part way keeps its prefix.
	pt = newTestPageTables(t, 1)
	got, n, err := pt.Map(0x003fe000, Frames{0x00500000, 0x00501000, 0x00502000})
	if !errors.Is(err, kerr.EEXHAUSTED) || got != 0x003fe000 || n != 2 {
		t.Fatalf("Map = (%v, %d, %v), want (0x003fe000, 2, EEXHAUSTED)", got, n, err)
	}
	checkMappings(t, pt, []mapping{{0x003fe000, 2 * hostarch.PageSize, 0x00500000}})

	// Pages under an installed table can still be mapped.
	if _, n, err := pt.Map(0x00000000, Frames{0x00600000}); err != nil || n != 1 {
		t.Errorf("Map into an existing table = (%d, %v), want (1, nil)", n, err)
	}
}

func TestMapInvalid(t *testing.T) {
	for _, tc := range []struct {
		name   string
		addr   hostarch.Addr
		frames Frames
	}{
		{"unaligned address", 0x00100010, Frames{0x00100000}},
		{"unaligned frame", 0x00100000, Frames{0x00100000, 0x00101800}},
		{"wraps", 0xfffff000, Frames{0x00100000, 0x00101000}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			pt := newTestPageTables(t, 4)
			_, n, err := pt.Map(tc.addr, tc.frames)
			if !errors.Is(err, kerr.EINVAL) || n != 0 {
				t.Errorf("Map = (%d, %v), want (0, EINVAL)", n, err)
			}
			if got := pt.TablesInUse(); got != 0 {
				t.Errorf("TablesInUse() = %d, want 0", got)
			}
		})
	}
}

func TestMapTopPage(t *testing.T) {
	pt := newTestPageTables(t, 4)
	if _, n, err := pt.Map(0xfffff000, Frames{0x00100000}); err != nil || n != 1 {
		t.Fatalf("Map = (%d, %v), want (1, nil)", n, err)
	}
	checkMappings(t, pt, []mapping{{0xfffff000, hostarch.PageSize, 0x00100000}})
}

func TestMapEmpty(t *testing.T) {
	pt := newTestPageTables(t, 4)
	va, n, err := pt.Map(0x00100000, Frames{})
	if err != nil || va != 0x00100000 || n != 0 {
		t.Errorf("Map = (%v, %d, %v), want (0x00100000, 0, nil)", va, n, err)
	}
}

func TestReset(t *testing.T) {
	pt := newTestPageTables(t, 2)
	if _, _, err := pt.Map(0x00400000, Frames{0x00100000}); err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	pt.Reset()
	if got := pt.TablesInUse(); got != 0 {
		t.Errorf("TablesInUse() after Reset = %d, want 0", got)
	}
	checkMappings(t, pt, nil)

	// The watermark restarts, so the first table is handed out again and
	// must come back zeroed.
	if _, _, err := pt.Map(0x00800000, Frames{0x00200000}); err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	checkMappings(t, pt, []mapping{{0x00800000, hostarch.PageSize, 0x00200000}})
}

func TestLookupPTEsOutsidePool(t *testing.T) {
	pt := newTestPageTables(t, 2)
	for _, addr := range []hostarch.PhysAddr{0, testTableBase + 2*hostarch.PageSize, testTableBase + 8} {
		if _, err := pt.Allocator.LookupPTEs(addr); !errors.Is(err, kerr.EINVAL) {
			t.Errorf("LookupPTEs(%v) = %v, want EINVAL", addr, err)
		}
	}
}
