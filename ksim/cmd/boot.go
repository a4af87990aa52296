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

	"github.com/google/subcommands"

	"gokern.dev/gokern/ksim/config"
	"gokern.dev/gokern/pkg/boot"
	"gokern.dev/gokern/pkg/hostarch"
	"gokern.dev/gokern/pkg/log"
)

// Boot implements subcommands.Command for the "boot" command.
type Boot struct {
	// screen prints the text-mode console after the start sequence.
	screen bool
}

// Name implements subcommands.Command.Name.
func (*Boot) Name() string {
	return "boot"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Boot) Synopsis() string {
	return "run the kernel start sequence on a simulated machine"
}

// Usage implements subcommands.Command.Usage.
func (*Boot) Usage() string {
	return `boot [flags] - initialize the frame pool, enable paging and map a buffer.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (b *Boot) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&b.screen, "screen", false, "print the video memory contents after boot.")
}

// Execute implements subcommands.Command.Execute.
func (b *Boot) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	m, s, err := startMachine(conf)
	if m != nil {
		defer m.Close()
	}
	if err != nil {
		Fatalf("boot failed: %v", err)
	}
	log.Infof("Machine started: state %v, cr3=%#08x", s.State, s.CR3)

	writeSummary(os.Stdout, s)
	if b.screen {
		lines, err := m.Console.Screen()
		if err != nil {
			Fatalf("reading video memory: %v", err)
		}
		for _, l := range lines {
			if l != "" {
				fmt.Println(l)
			}
		}
	}
	return subcommands.ExitSuccess
}

func writeSummary(out io.Writer, s boot.Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "state\t%v\n", s.State)
	fmt.Fprintf(w, "cr0\t%#08x\n", s.CR0)
	fmt.Fprintf(w, "cr3\t%#08x\n", s.CR3)
	fmt.Fprintf(w, "page tables\t%d of %d\n", s.TablesInUse, s.TablePool)
	fmt.Fprintf(w, "free frames\t%d of %d\n", s.FreeFrames, s.TotalFrames)
	fmt.Fprintf(w, "buffer\t%d pages at %v\n", len(s.BufferFrames), s.BufferVA)
	for i, pa := range s.BufferFrames {
		fmt.Fprintf(w, "\t%v -> %v\n", s.BufferVA+hostarch.Addr(i)*hostarch.PageSize, pa)
	}
	w.Flush()
}
