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
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/google/subcommands"

	"gokern.dev/gokern/ksim/config"
	"gokern.dev/gokern/pkg/errors/kerr"
	"gokern.dev/gokern/pkg/hostarch"
	"gokern.dev/gokern/pkg/ring0"
)

// Translate implements subcommands.Command for the "translate" command.
type Translate struct {
	write bool
}

// Name implements subcommands.Command.Name.
func (*Translate) Name() string {
	return "translate"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Translate) Synopsis() string {
	return "boot a machine and translate virtual addresses through its MMU"
}

// Usage implements subcommands.Command.Usage.
func (*Translate) Usage() string {
	return `translate [flags] <address>... - translate addresses after paging is enabled.

A fault halts the simulated processor, so addresses after the first fault are
not translated.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (t *Translate) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&t.write, "write", false, "translate as a write access, setting dirty bits.")
}

// Execute implements subcommands.Command.Execute.
func (t *Translate) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	addrs, err := parseAddrs(f.Args())
	if err != nil {
		Fatalf("%v", err)
	}
	conf := args[0].(*config.Config)

	m, _, err := startMachine(conf)
	if m != nil {
		defer m.Close()
	}
	if err != nil {
		Fatalf("boot failed: %v", err)
	}
	if err := translateAll(os.Stdout, m.CPU, addrs, t.write); err != nil {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func parseAddrs(args []string) ([]hostarch.Addr, error) {
	addrs := make([]hostarch.Addr, 0, len(args))
	for _, arg := range args {
		v, err := strconv.ParseUint(arg, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid address %q: %w", arg, err)
		}
		addrs = append(addrs, hostarch.Addr(v))
	}
	return addrs, nil
}

// translateAll prints the translation of each address and stops at the
// first fault, which it returns.
func translateAll(out io.Writer, cpu *ring0.Simulator, addrs []hostarch.Addr, write bool) error {
	for _, addr := range addrs {
		pa, err := cpu.Translate(addr, write)
		if errors.Is(err, kerr.EFAULT) {
			fmt.Fprintf(out, "%v -> fault (processor halted)\n", addr)
			return err
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%v -> %v\n", addr, pa)
	}
	return nil
}
