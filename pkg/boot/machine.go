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

// Package boot assembles a simulated machine and runs the kernel start
// sequence on it: frame allocator initialization, paging enablement and the
// first mapping of freshly allocated frames.
package boot

import (
	"bytes"
	"fmt"

	"gokern.dev/gokern/pkg/addrspace"
	"gokern.dev/gokern/pkg/cleanup"
	"gokern.dev/gokern/pkg/errors/kerr"
	"gokern.dev/gokern/pkg/hostarch"
	"gokern.dev/gokern/pkg/log"
	"gokern.dev/gokern/pkg/pfa"
	"gokern.dev/gokern/pkg/physmem"
	"gokern.dev/gokern/pkg/ring0"
	"gokern.dev/gokern/pkg/ring0/pagetables"
)

// bufferMarker is written through the MMU to the buffer and read back.
var bufferMarker = []byte("gokern buffer")

// Machine is a simulated machine with the memory-management core wired to
// it.
type Machine struct {
	conf   Config
	layout Layout

	Memory       *physmem.Memory
	Frames       *pfa.Pool
	PageTables   *pagetables.PageTables
	CPU          *ring0.Simulator
	AddressSpace *addrspace.Manager
	Console      *Console

	// log receives progress messages. They are printed on the console and
	// forwarded to the global logger.
	log log.Logger

	// buffer holds the frames mapped at BufferVA by Start.
	buffer pfa.List
}

// NewMachine builds a machine from conf. The machine must be closed.
func NewMachine(conf Config) (*Machine, error) {
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid machine configuration: %w", err)
	}
	layout, err := conf.Layout()
	if err != nil {
		return nil, err
	}

	var mem *physmem.Memory
	if conf.MemoryFile != "" {
		mem, err = physmem.NewFile(conf.MemoryFile, conf.MemorySize)
	} else {
		mem, err = physmem.New(conf.MemorySize)
	}
	if err != nil {
		return nil, fmt.Errorf("creating physical memory: %w", err)
	}
	cu := cleanup.Make(mem.Close)
	defer cu.Clean()

	m := &Machine{
		conf:   conf,
		layout: layout,
		Memory: mem,
	}
	if m.Frames, err = pfa.NewPool(conf.FramePoolPages, conf.FramePoolBase); err != nil {
		return nil, fmt.Errorf("creating frame pool: %w", err)
	}
	tables, err := pagetables.NewPoolAllocator(mem, layout.Tables, conf.TablePoolSize)
	if err != nil {
		return nil, fmt.Errorf("creating page-table pool: %w", err)
	}
	if m.PageTables, err = pagetables.New(mem, layout.Directory, tables); err != nil {
		return nil, fmt.Errorf("creating page directory: %w", err)
	}
	m.CPU = ring0.NewSimulator(mem, layout.StackPointer)
	m.Console = NewConsole(m.CPU, conf.VideoAddr.RoundDown())
	m.log = &log.BasicLogger{
		Level:   log.Info,
		Emitter: &log.MultiEmitter{log.NewConsoleEmitter(m.Console.Putc), log.Log().Emitter},
	}
	m.AddressSpace, err = addrspace.New(m.PageTables, m.CPU, addrspace.Layout{
		KernelStart: layout.Kernel.Start,
		KernelEnd:   layout.Kernel.End,
		VideoAddr:   conf.VideoAddr,
		StackPages:  conf.StackPages,
	}, m.log)
	if err != nil {
		return nil, fmt.Errorf("creating address space: %w", err)
	}

	cu.Release()
	return m, nil
}

// Config returns the machine configuration.
func (m *Machine) Config() Config {
	return m.conf
}

// Layout returns the placement of the kernel's memory.
func (m *Machine) Layout() Layout {
	return m.layout
}

// Summary describes the machine after Start.
type Summary struct {
	CR0          uint32
	CR3          uint32
	State        addrspace.State
	TablesInUse  int
	TablePool    int
	FreeFrames   int
	TotalFrames  int
	BufferVA     hostarch.Addr
	BufferFrames []hostarch.PhysAddr
}

// Start runs the kernel start sequence: initialize the frame pool, enable
// paging, allocate the buffer frames, map them at BufferVA and check the
// mapping by writing through the MMU.
func (m *Machine) Start() (Summary, error) {
	m.Frames.Init()
	m.buffer = pfa.List{}
	m.log.Infof("Current execution level: Kernel mode (Ring 0)")

	if err := m.AddressSpace.Enable(); err != nil {
		return Summary{}, fmt.Errorf("enabling paging: %w", err)
	}
	if addr, halted := m.CPU.Halted(); halted {
		return Summary{}, fmt.Errorf("processor halted by fault at %v while enabling paging: %w", addr, kerr.EFAULT)
	}

	if m.conf.BufferPages > 0 {
		if err := m.mapBuffer(); err != nil {
			return Summary{}, err
		}
	}
	if err := m.Console.Err(); err != nil {
		return Summary{}, fmt.Errorf("console: %w", err)
	}
	return m.Summary(), nil
}

func (m *Machine) mapBuffer() error {
	buf, err := m.Frames.Allocate(m.conf.BufferPages)
	if err != nil {
		return fmt.Errorf("allocating %d buffer frames: %w", m.conf.BufferPages, err)
	}
	m.buffer = buf

	va, n, err := m.AddressSpace.Map(m.conf.BufferVA, buf)
	if err != nil {
		return fmt.Errorf("mapping buffer: %d of %d pages mapped: %w", n, m.conf.BufferPages, err)
	}
	m.log.Infof("Mapped %d pages at %x", n, uint32(va))

	// Write the marker at the start of the last page and find it in the
	// last frame.
	last := va + hostarch.Addr(n-1)*hostarch.PageSize
	if err := m.CPU.Write(last, bufferMarker); err != nil {
		return fmt.Errorf("writing buffer: %w", err)
	}
	addrs := buf.Addrs()
	phys, err := m.Memory.Slice(addrs[len(addrs)-1], uint64(len(bufferMarker)))
	if err != nil {
		return err
	}
	if !bytes.Equal(phys, bufferMarker) {
		return fmt.Errorf("buffer page %v does not reach frame %v", last, addrs[len(addrs)-1])
	}
	got := make([]byte, len(bufferMarker))
	if err := m.CPU.Read(last, got); err != nil {
		return fmt.Errorf("reading buffer: %w", err)
	}
	if !bytes.Equal(got, bufferMarker) {
		return fmt.Errorf("buffer read back %q, want %q", got, bufferMarker)
	}
	return nil
}

// Summary returns the current state of the machine.
func (m *Machine) Summary() Summary {
	return Summary{
		CR0:          m.CPU.CR0(),
		CR3:          m.CPU.CR3(),
		State:        m.AddressSpace.State(),
		TablesInUse:  m.PageTables.TablesInUse(),
		TablePool:    m.PageTables.Allocator.Capacity(),
		FreeFrames:   m.Frames.FreeCount(),
		TotalFrames:  m.Frames.Size(),
		BufferVA:     m.conf.BufferVA,
		BufferFrames: m.buffer.Addrs(),
	}
}

// Buffer returns the frames mapped at BufferVA.
func (m *Machine) Buffer() pfa.List {
	return m.buffer
}

// Close returns the buffer to the frame pool and releases physical memory.
func (m *Machine) Close() error {
	m.Frames.Free(m.buffer)
	m.buffer = pfa.List{}
	return m.Memory.Close()
}
