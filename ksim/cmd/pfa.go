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
	"strconv"
	"strings"

	"github.com/google/subcommands"

	"gokern.dev/gokern/ksim/config"
	"gokern.dev/gokern/pkg/hostarch"
	"gokern.dev/gokern/pkg/log"
	"gokern.dev/gokern/pkg/pfa"
)

// PFA implements subcommands.Command for the "pfa" command.
type PFA struct {
	pages int
	quiet bool
}

// Name implements subcommands.Command.Name.
func (*PFA) Name() string {
	return "pfa"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*PFA) Synopsis() string {
	return "run allocate and free steps against the physical frame allocator"
}

// Usage implements subcommands.Command.Usage.
func (*PFA) Usage() string {
	return `pfa [flags] <step>... - run allocation steps and print the free list after each.

Steps are alloc=N, which allocates N frames, and free=I, which frees the
frames returned by the I-th alloc step (counting from 0). Example:

  ksim pfa -pages 4 alloc=2 alloc=1 free=0
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (p *PFA) SetFlags(f *flag.FlagSet) {
	f.IntVar(&p.pages, "pages", 0, "number of frames in the pool; the configured frame pool size if 0.")
	f.BoolVar(&p.quiet, "quiet", false, "only print the free list after the last step.")
}

// Execute implements subcommands.Command.Execute.
func (p *PFA) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	steps, err := parseSteps(f.Args())
	if err != nil {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config).Copy()
	if p.pages > 0 {
		conf.FramePoolPages = p.pages
	}

	pool, err := pfa.NewPool(conf.FramePoolPages, hostarch.PhysAddr(conf.FramePoolBase))
	if err != nil {
		Fatalf("creating frame pool: %v", err)
	}
	if err := runSteps(pool, steps, os.Stdout, p.quiet); err != nil {
		Fatalf("%v", err)
	}
	return subcommands.ExitSuccess
}

type stepOp int

const (
	opAlloc stepOp = iota
	opFree
)

// step is one allocator operation.
type step struct {
	op stepOp
	n  int
}

func (s step) String() string {
	if s.op == opAlloc {
		return fmt.Sprintf("alloc=%d", s.n)
	}
	return fmt.Sprintf("free=%d", s.n)
}

func parseSteps(args []string) ([]step, error) {
	steps := make([]step, 0, len(args))
	for _, arg := range args {
		name, val, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("invalid step %q", arg)
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return nil, fmt.Errorf("invalid step %q: %w", arg, err)
		}
		switch name {
		case "alloc":
			steps = append(steps, step{op: opAlloc, n: n})
		case "free":
			if n < 0 {
				return nil, fmt.Errorf("invalid step %q: negative index", arg)
			}
			steps = append(steps, step{op: opFree, n: n})
		default:
			return nil, fmt.Errorf("invalid step %q: unknown operation %q", arg, name)
		}
	}
	return steps, nil
}

// runSteps applies steps to pool, writing the outcome of each step and the
// free list to out. Failed allocations are reported and do not stop the
// run; they count as an alloc step that returned no frames. The pool's
// invariants are checked at the end.
func runSteps(pool *pfa.Pool, steps []step, out io.Writer, quiet bool) error {
	logger := &log.BasicLogger{
		Level:   log.Info,
		Emitter: log.ConsoleEmitter{Writer: &log.Writer{Next: out}},
	}

	var (
		lists []pfa.List
		freed []bool
	)
	for i, s := range steps {
		switch s.op {
		case opAlloc:
			l, err := pool.Allocate(s.n)
			if err != nil {
				logger.Infof("%v: %v", s, err)
			} else {
				logger.Infof("%v: %v", s, l.Addrs())
			}
			lists = append(lists, l)
			freed = append(freed, false)
		case opFree:
			if s.n >= len(lists) {
				return fmt.Errorf("step %d (%v): only %d alloc steps so far", i, s, len(lists))
			}
			if freed[s.n] {
				return fmt.Errorf("step %d (%v): frames already freed", i, s)
			}
			n := lists[s.n].Len()
			pool.Free(lists[s.n])
			freed[s.n] = true
			logger.Infof("%v: %d frames returned", s, n)
		}
		if !quiet || i == len(steps)-1 {
			pool.Dump(logger)
		}
	}

	var outstanding []pfa.List
	for i, l := range lists {
		if !freed[i] {
			outstanding = append(outstanding, l)
		}
	}
	if err := pool.CheckInvariants(outstanding...); err != nil {
		return fmt.Errorf("frame pool is inconsistent: %w", err)
	}
	logger.Infof("%d of %d frames free", pool.FreeCount(), pool.Size())
	return nil
}
