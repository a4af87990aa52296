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

package hostarch

import "testing"

func TestAddrRounding(t *testing.T) {
	for _, tc := range []struct {
		addr     Addr
		down     Addr
		up       Addr
		upOK     bool
		aligned  bool
		pageOffs uint32
	}{
		{addr: 0, down: 0, up: 0, upOK: true, aligned: true},
		{addr: 1, down: 0, up: PageSize, upOK: true, pageOffs: 1},
		{addr: 0x00100000, down: 0x00100000, up: 0x00100000, upOK: true, aligned: true},
		{addr: 0x00124abc, down: 0x00124000, up: 0x00125000, upOK: true, pageOffs: 0xabc},
		{addr: 0xfffff001, down: 0xfffff000, up: 0, upOK: false, pageOffs: 1},
	} {
		if got := tc.addr.RoundDown(); got != tc.down {
			t.Errorf("%v.RoundDown() = %v, want %v", tc.addr, got, tc.down)
		}
		up, ok := tc.addr.RoundUp()
		if ok != tc.upOK || (ok && up != tc.up) {
			t.Errorf("%v.RoundUp() = (%v, %t), want (%v, %t)", tc.addr, up, ok, tc.up, tc.upOK)
		}
		if got := tc.addr.IsPageAligned(); got != tc.aligned {
			t.Errorf("%v.IsPageAligned() = %t, want %t", tc.addr, got, tc.aligned)
		}
		if got := tc.addr.PageOffset(); got != tc.pageOffs {
			t.Errorf("%v.PageOffset() = %#x, want %#x", tc.addr, got, tc.pageOffs)
		}
	}
}

func TestAddLength(t *testing.T) {
	if end, ok := Addr(0xfffff000).AddLength(PageSize); ok || end != 0 {
		t.Errorf("AddLength to top of address space = (%v, %t), want (0, false)", end, ok)
	}
	if _, ok := Addr(0xfffff000).AddLength(2 * PageSize); ok {
		t.Errorf("AddLength past top of address space succeeded")
	}
	if end, ok := Addr(0x1000).AddLength(0x2000); !ok || end != 0x3000 {
		t.Errorf("AddLength = (%v, %t), want (0x3000, true)", end, ok)
	}
}

func TestFrameNumber(t *testing.T) {
	p := PhysAddr(0x00100000)
	if got := p.FrameNumber(); got != 0x100 {
		t.Errorf("FrameNumber() = %#x, want 0x100", got)
	}
	if got := FrameAddr(0x100); got != p {
		t.Errorf("FrameAddr(0x100) = %v, want %v", got, p)
	}
	if got := PhysAddr(0xb8000).Identity(); got != 0xb8000 {
		t.Errorf("Identity() = %v, want 0xb8000", got)
	}
}

func TestAddrRangeNumPages(t *testing.T) {
	for _, tc := range []struct {
		ar   AddrRange
		want int
	}{
		{AddrRange{0, 0}, 0},
		{AddrRange{0, 1}, 1},
		{AddrRange{0x1000, 0x3000}, 2},
		{AddrRange{0x0fff, 0x1001}, 2},
		{AddrRange{0xfffff000, 0xffffffff}, 1},
	} {
		if got := tc.ar.NumPages(); got != tc.want {
			t.Errorf("%v.NumPages() = %d, want %d", tc.ar, got, tc.want)
		}
	}
}

func TestGenericRounding(t *testing.T) {
	if got := PageRoundDown(uint32(0x1fff)); got != 0x1000 {
		t.Errorf("PageRoundDown(0x1fff) = %#x, want 0x1000", got)
	}
	if got := PageRoundUp(uint64(0xffffffff)); got != 0x100000000 {
		t.Errorf("PageRoundUp(uint64(0xffffffff)) = %#x, want 0x100000000", got)
	}
	if got := PageRoundUp(uint32(0xffffffff)); got != 0 {
		t.Errorf("PageRoundUp(uint32(0xffffffff)) = %#x, want 0", got)
	}
	for _, tc := range []struct {
		length uint32
		want   uint64
	}{
		{0, 0},
		{1, 1},
		{PageSize, 1},
		{PageSize + 1, 2},
		{0xffffffff, 1 << 20},
	} {
		if got := PagesFor(tc.length); got != tc.want {
			t.Errorf("PagesFor(%#x) = %d, want %d", tc.length, got, tc.want)
		}
	}
}
