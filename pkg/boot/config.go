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

package boot

import (
	"fmt"

	"gokern.dev/gokern/pkg/addrspace"
	"gokern.dev/gokern/pkg/errors/kerr"
	"gokern.dev/gokern/pkg/hostarch"
	"gokern.dev/gokern/pkg/pfa"
)

// Config describes a simulated machine.
type Config struct {
	// MemorySize is the size of physical memory in bytes.
	MemorySize uint64

	// MemoryFile, if set, backs physical memory with this file.
	MemoryFile string

	// FramePoolPages is the number of frames managed by the frame allocator.
	FramePoolPages int

	// FramePoolBase is the physical address of the first managed frame.
	FramePoolBase hostarch.PhysAddr

	// TablePoolSize is the number of page tables available to the address
	// space.
	TablePoolSize int

	// KernelStart is the kernel load address.
	KernelStart hostarch.Addr

	// KernelImageSize is the size of the kernel text and data. The page
	// directory, the page-table pool and the boot stack are placed after
	// it, as the kernel's bss.
	KernelImageSize uint32

	// StackSize is the size of the boot stack.
	StackSize uint32

	// VideoAddr is the text-mode video window.
	VideoAddr hostarch.Addr

	// StackPages is the number of pages identity mapped around the stack
	// pointer.
	StackPages int

	// BufferPages is the number of frames mapped at BufferVA after paging
	// is enabled.
	BufferPages int

	// BufferVA is where the buffer frames are mapped.
	BufferVA hostarch.Addr
}

// DefaultConfig returns the configuration of the reference machine.
func DefaultConfig() Config {
	return Config{
		MemorySize:      16 << 20,
		FramePoolPages:  pfa.MinPoolSize,
		FramePoolBase:   0x00400000,
		TablePoolSize:   16,
		KernelStart:     addrspace.DefaultKernelStart,
		KernelImageSize: 0x10000,
		StackSize:       16 << 10,
		VideoAddr:       addrspace.DefaultVideoAddr,
		StackPages:      addrspace.DefaultStackPages,
		BufferPages:     8,
		BufferVA:        0x40000000,
	}
}

// Layout is the physical placement of the kernel's memory.
type Layout struct {
	// Kernel is the whole kernel image including its bss, identity mapped
	// by Enable.
	Kernel hostarch.AddrRange

	// Directory is the physical address of the page directory.
	Directory hostarch.PhysAddr

	// Tables is the physical address of the first page table in the pool.
	Tables hostarch.PhysAddr

	// Stack is the boot stack.
	Stack hostarch.AddrRange

	// StackPointer is the initial stack pointer.
	StackPointer hostarch.Addr
}

// Layout computes the placement of the kernel's memory.
func (c *Config) Layout() (Layout, error) {
	if !c.KernelStart.IsPageAligned() {
		return Layout{}, fmt.Errorf("kernel start %v is not page aligned: %w", c.KernelStart, kerr.EINVAL)
	}
	if c.TablePoolSize <= 0 {
		return Layout{}, fmt.Errorf("table pool of %d tables: %w", c.TablePoolSize, kerr.EINVAL)
	}
	if c.StackSize < 16 {
		return Layout{}, fmt.Errorf("stack of %d bytes is too small: %w", c.StackSize, kerr.EINVAL)
	}
	size := hostarch.PagesFor(c.KernelImageSize) * hostarch.PageSize
	stack := hostarch.PageRoundUp(uint64(c.StackSize))
	start := uint64(c.KernelStart)
	dir := start + size
	tables := dir + hostarch.PageSize
	stackBase := tables + uint64(c.TablePoolSize)*hostarch.PageSize
	end := stackBase + stack
	if end > hostarch.MaxAddr {
		return Layout{}, fmt.Errorf("kernel ending at %#x overflows the address space: %w", end, kerr.EINVAL)
	}
	return Layout{
		Kernel:       hostarch.AddrRange{Start: hostarch.Addr(start), End: hostarch.Addr(end)},
		Directory:    hostarch.PhysAddr(dir),
		Tables:       hostarch.PhysAddr(tables),
		Stack:        hostarch.AddrRange{Start: hostarch.Addr(stackBase), End: hostarch.Addr(end)},
		StackPointer: hostarch.Addr(end - 16),
	}, nil
}

func overlaps(a, b hostarch.AddrRange) bool {
	return a.Start < b.End && b.Start < a.End
}

// Validate checks that the machine can be built.
func (c *Config) Validate() error {
	l, err := c.Layout()
	if err != nil {
		return err
	}
	if c.MemorySize%hostarch.PageSize != 0 || c.MemorySize > hostarch.MaxAddr+1 {
		return fmt.Errorf("memory size %#x: %w", c.MemorySize, kerr.EINVAL)
	}
	if uint64(l.Kernel.End) > c.MemorySize {
		return fmt.Errorf("kernel %v does not fit in %#x bytes of memory: %w", l.Kernel, c.MemorySize, kerr.EINVAL)
	}
	video := c.VideoAddr.RoundDown()
	if uint64(video)+hostarch.PageSize > c.MemorySize {
		return fmt.Errorf("video memory at %v is outside physical memory: %w", c.VideoAddr, kerr.EINVAL)
	}
	if c.FramePoolPages < pfa.MinPoolSize || c.FramePoolPages > pfa.MaxPoolSize {
		return fmt.Errorf("frame pool of %d frames outside [%d, %d]: %w", c.FramePoolPages, pfa.MinPoolSize, pfa.MaxPoolSize, kerr.EINVAL)
	}
	if !c.FramePoolBase.IsPageAligned() {
		return fmt.Errorf("frame pool base %v is not page aligned: %w", c.FramePoolBase, kerr.EINVAL)
	}
	poolEnd := uint64(c.FramePoolBase) + uint64(c.FramePoolPages)*hostarch.PageSize
	if poolEnd > c.MemorySize {
		return fmt.Errorf("frame pool ending at %#x does not fit in %#x bytes of memory: %w", poolEnd, c.MemorySize, kerr.EINVAL)
	}
	pool := hostarch.AddrRange{Start: c.FramePoolBase.Identity()}
	if poolEnd > hostarch.MaxAddr {
		pool.End = hostarch.MaxAddr
	} else {
		pool.End = hostarch.Addr(poolEnd)
	}
	if overlaps(pool, l.Kernel) {
		return fmt.Errorf("frame pool %v overlaps the kernel %v: %w", pool, l.Kernel, kerr.EINVAL)
	}
	if overlaps(pool, hostarch.AddrRange{Start: video, End: video + hostarch.PageSize}) {
		return fmt.Errorf("frame pool %v overlaps video memory at %v: %w", pool, video, kerr.EINVAL)
	}
	if c.StackPages <= 0 {
		return fmt.Errorf("stack window of %d pages: %w", c.StackPages, kerr.EINVAL)
	}
	if c.BufferPages < 0 || c.BufferPages > c.FramePoolPages {
		return fmt.Errorf("buffer of %d pages from a pool of %d: %w", c.BufferPages, c.FramePoolPages, kerr.EINVAL)
	}
	if !c.BufferVA.IsPageAligned() {
		return fmt.Errorf("buffer address %v is not page aligned: %w", c.BufferVA, kerr.EINVAL)
	}
	return nil
}
