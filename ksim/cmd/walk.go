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
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/google/btree"
	"github.com/google/subcommands"

	"gokern.dev/gokern/ksim/config"
	"gokern.dev/gokern/pkg/hostarch"
	"gokern.dev/gokern/pkg/ring0/pagetables"
)

// Walk implements subcommands.Command for the "walk" command.
type Walk struct {
	byPhys bool
}

// Name implements subcommands.Command.Name.
func (*Walk) Name() string {
	return "walk"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Walk) Synopsis() string {
	return "boot a machine and print its page tables"
}

// Usage implements subcommands.Command.Usage.
func (*Walk) Usage() string {
	return `walk [flags] - boot a machine and print the mapped ranges of its page tables.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (w *Walk) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&w.byPhys, "by-phys", false, "order ranges by physical address instead of virtual address.")
}

// Execute implements subcommands.Command.Execute.
func (w *Walk) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	m, _, err := startMachine(conf)
	if m != nil {
		defer m.Close()
	}
	if err != nil {
		Fatalf("boot failed: %v", err)
	}
	runs, err := collectRuns(m.PageTables)
	if err != nil {
		Fatalf("walking page tables: %v", err)
	}
	if w.byPhys {
		runs = sortByPhys(runs)
	}
	writeRuns(os.Stdout, runs)
	return subcommands.ExitSuccess
}

// mappingRun is a run of pages that are contiguous both virtually and
// physically and share their permissions.
type mappingRun struct {
	va       hostarch.Addr
	pa       hostarch.PhysAddr
	pages    int
	writable bool
	user     bool
	accessed int
	dirty    int
}

func (r *mappingRun) extends(va hostarch.Addr, pte pagetables.PTE) bool {
	off := uint64(r.pages) * hostarch.PageSize
	return uint64(r.va)+off == uint64(va) &&
		uint64(r.pa)+off == uint64(pte.Address()) &&
		r.writable == pte.Writable() &&
		r.user == pte.User()
}

func (r *mappingRun) add(pte pagetables.PTE) {
	r.pages++
	if pte.Accessed() {
		r.accessed++
	}
	if pte.Dirty() {
		r.dirty++
	}
}

// collectRuns walks pt and coalesces its entries into runs, in virtual
// address order.
func collectRuns(pt *pagetables.PageTables) ([]mappingRun, error) {
	var runs []mappingRun
	err := pt.Walk(func(va hostarch.Addr, pte pagetables.PTE) bool {
		if n := len(runs); n > 0 && runs[n-1].extends(va, pte) {
			runs[n-1].add(pte)
			return true
		}
		r := mappingRun{va: va, pa: pte.Address(), writable: pte.Writable(), user: pte.User()}
		r.add(pte)
		runs = append(runs, r)
		return true
	})
	return runs, err
}

// sortByPhys returns runs ordered by physical address. Runs mapping the same
// frame are ordered by virtual address.
func sortByPhys(runs []mappingRun) []mappingRun {
	tree := btree.NewG(2, func(a, b mappingRun) bool {
		if a.pa != b.pa {
			return a.pa < b.pa
		}
		return a.va < b.va
	})
	for _, r := range runs {
		tree.ReplaceOrInsert(r)
	}
	sorted := make([]mappingRun, 0, tree.Len())
	tree.Ascend(func(r mappingRun) bool {
		sorted = append(sorted, r)
		return true
	})
	return sorted
}

func writeRuns(out io.Writer, runs []mappingRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "VIRTUAL\tPHYSICAL\tPAGES\tFLAGS\tACCESSED\tDIRTY\n")
	total := 0
	for _, r := range runs {
		flags := []byte("r-s")
		if r.writable {
			flags[1] = 'w'
		}
		if r.user {
			flags[2] = 'u'
		}
		end := uint64(r.va) + uint64(r.pages)*hostarch.PageSize
		fmt.Fprintf(w, "%v-%#08x\t%v\t%d\t%s\t%d\t%d\n", r.va, end, r.pa, r.pages, flags, r.accessed, r.dirty)
		total += r.pages
	}
	fmt.Fprintf(w, "\t\t%d\t\t\t\n", total)
	w.Flush()
}
