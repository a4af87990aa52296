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

package cmd

import (
	"bytes"
	"errors"
	"flag"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"gokern.dev/gokern/ksim/config"
	"gokern.dev/gokern/pkg/boot"
	"gokern.dev/gokern/pkg/errors/kerr"
	"gokern.dev/gokern/pkg/hostarch"
	"gokern.dev/gokern/pkg/pfa"
)

func newConfig(t *testing.T, args ...string) *config.Config {
	t.Helper()
	flagSet := flag.NewFlagSet("test", flag.ContinueOnError)
	config.RegisterFlags(flagSet)
	if err := flagSet.Parse(args); err != nil {
		t.Fatalf("Parse(%v): %v", args, err)
	}
	conf, err := config.NewFromFlags(flagSet)
	if err != nil {
		t.Fatalf("NewFromFlags: %v", err)
	}
	return conf
}

func bootMachine(t *testing.T, args ...string) *boot.Machine {
	t.Helper()
	m, _, err := startMachine(newConfig(t, args...))
	if m != nil {
		t.Cleanup(func() { m.Close() })
	}
	if err != nil {
		t.Fatalf("startMachine: %v", err)
	}
	return m
}

func TestParseSteps(t *testing.T) {
	got, err := parseSteps([]string{"alloc=2", "alloc=0", "free=1"})
	if err != nil {
		t.Fatalf("parseSteps: %v", err)
	}
	want := []step{{op: opAlloc, n: 2}, {op: opAlloc, n: 0}, {op: opFree, n: 1}}
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(step{})); diff != "" {
		t.Errorf("parseSteps mismatch (-want +got):\n%s", diff)
	}

	for _, args := range [][]string{
		{"alloc"},
		{"alloc=x"},
		{"free=-1"},
		{"map=3"},
	} {
		if _, err := parseSteps(args); err == nil {
			t.Errorf("parseSteps(%v) succeeded, want error", args)
		}
	}
}

func TestRunSteps(t *testing.T) {
	pool, err := pfa.NewPool(4, 0x100000)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	steps := []step{
		{op: opAlloc, n: 2},
		{op: opAlloc, n: 3},
		{op: opFree, n: 0},
	}
	var out bytes.Buffer
	if err := runSteps(pool, steps, &out, true); err != nil {
		t.Fatalf("runSteps: %v", err)
	}
	want := `alloc=2: [0x00100000 0x00101000]
alloc=3: frame allocation failed: requested 3 frames, 2 free: out of memory
free=0: 2 frames returned
Free list:
  Page #0 (descriptor 0) -> phys=0x00100000
  Page #1 (descriptor 1) -> phys=0x00101000
  Page #2 (descriptor 2) -> phys=0x00102000
  Page #3 (descriptor 3) -> phys=0x00103000
(end of free list)
4 of 4 frames free
`
	if diff := cmp.Diff(want, out.String()); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestRunStepsBadFree(t *testing.T) {
	for _, steps := range [][]step{
		{{op: opFree, n: 0}},
		{{op: opAlloc, n: 1}, {op: opFree, n: 0}, {op: opFree, n: 0}},
	} {
		pool, err := pfa.NewPool(4, 0x100000)
		if err != nil {
			t.Fatalf("NewPool: %v", err)
		}
		var out bytes.Buffer
		if err := runSteps(pool, steps, &out, false); err == nil {
			t.Errorf("runSteps(%v) succeeded, want error", steps)
		}
	}
}

func TestCollectRuns(t *testing.T) {
	m := bootMachine(t)
	got, err := collectRuns(m.PageTables)
	if err != nil {
		t.Fatalf("collectRuns: %v", err)
	}
	want := []mappingRun{
		// Video memory, written by the console after paging is enabled.
		{va: 0x000b8000, pa: 0x000b8000, pages: 1, writable: true, accessed: 1, dirty: 1},
		// Kernel image, page directory, table pool and stack.
		{va: 0x00100000, pa: 0x00100000, pages: 0x25, writable: true},
		// Buffer; only its last page is written.
		{va: 0x40000000, pa: 0x00400000, pages: 8, writable: true, accessed: 1, dirty: 1},
	}
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(mappingRun{})); diff != "" {
		t.Errorf("collectRuns mismatch (-want +got):\n%s", diff)
	}

	var out bytes.Buffer
	writeRuns(&out, got)
	if !strings.Contains(out.String(), "0x40000000-0x40008000") {
		t.Errorf("writeRuns output missing buffer range:\n%s", out.String())
	}
}

func TestSortByPhys(t *testing.T) {
	runs := []mappingRun{
		{va: 0x1000, pa: 0x9000, pages: 1},
		{va: 0x2000, pa: 0x3000, pages: 1},
		{va: 0x3000, pa: 0x3000, pages: 1},
		{va: 0x8000, pa: 0x1000, pages: 2},
	}
	want := []mappingRun{
		{va: 0x8000, pa: 0x1000, pages: 2},
		{va: 0x2000, pa: 0x3000, pages: 1},
		{va: 0x3000, pa: 0x3000, pages: 1},
		{va: 0x1000, pa: 0x9000, pages: 1},
	}
	if diff := cmp.Diff(want, sortByPhys(runs), cmp.AllowUnexported(mappingRun{})); diff != "" {
		t.Errorf("sortByPhys mismatch (-want +got):\n%s", diff)
	}
}

func TestTranslateAll(t *testing.T) {
	m := bootMachine(t)
	addrs, err := parseAddrs([]string{"0x40001234", "0x100000", "0x30000000", "0x100000"})
	if err != nil {
		t.Fatalf("parseAddrs: %v", err)
	}
	var out bytes.Buffer
	err = translateAll(&out, m.CPU, addrs, true)
	if !errors.Is(err, kerr.EFAULT) {
		t.Errorf("translateAll() = %v, want EFAULT", err)
	}
	want := `0x40001234 -> 0x00401234
0x00100000 -> 0x00100000
0x30000000 -> fault (processor halted)
`
	if diff := cmp.Diff(want, out.String()); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
	if addr, halted := m.CPU.Halted(); !halted || addr != hostarch.Addr(0x30000000) {
		t.Errorf("Halted() = (%v, %t), want (0x30000000, true)", addr, halted)
	}
}

func TestParseAddrs(t *testing.T) {
	if _, err := parseAddrs([]string{"0x100000000"}); err == nil {
		t.Errorf("parseAddrs accepted a 33-bit address")
	}
	if _, err := parseAddrs([]string{"video"}); err == nil {
		t.Errorf("parseAddrs accepted a name")
	}
}
