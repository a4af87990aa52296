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

// Package physmem provides simulated physical memory for the hosted machine.
//
// Physical address p corresponds to byte p of a host mapping. The mapping is
// anonymous by default, or backed by a file so that a memory image survives
// the simulator and can be inspected.
package physmem

import (
	"encoding/binary"
	"fmt"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"gokern.dev/gokern/pkg/cleanup"
	"gokern.dev/gokern/pkg/errors/kerr"
	"gokern.dev/gokern/pkg/hostarch"
)

// Memory is a contiguous range of simulated physical memory starting at
// physical address zero.
type Memory struct {
	data []byte

	// lock is held for the lifetime of a file-backed Memory.
	lock *flock.Flock
}

func checkSize(size uint64) error {
	if size == 0 || size%hostarch.PageSize != 0 || size > hostarch.MaxAddr+1 {
		return fmt.Errorf("memory size %#x must be a non-zero multiple of %#x no larger than 4GiB: %w", size, hostarch.PageSize, kerr.EINVAL)
	}
	return nil
}

// New returns size bytes of zeroed anonymous memory.
func New(size uint64) (*Memory, error) {
	if err := checkSize(size); err != nil {
		return nil, err
	}
	data, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("mmap of %#x bytes: %w", size, err)
	}
	return &Memory{data: data}, nil
}

// NewFile returns size bytes of memory backed by the file at path, which is
// created or truncated. The file is locked exclusively until Close so that
// two machines never share an image.
func NewFile(path string, size uint64) (*Memory, error) {
	if err := checkSize(size); err != nil {
		return nil, err
	}
	lock := flock.NewFlock(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking %q: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("memory image %q is in use by another machine", path)
	}

	cu := cleanup.Make(lock.Unlock)
	defer cu.Clean()

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_TRUNC|unix.O_CLOEXEC, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening %q: %w", path, err)
	}
	defer unix.Close(fd)
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		return nil, fmt.Errorf("truncating %q to %#x bytes: %w", path, size, err)
	}
	data, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap of %q: %w", path, err)
	}
	cu.Release()
	return &Memory{data: data, lock: lock}, nil
}

// Close releases the memory. The Memory must not be used afterwards.
func (m *Memory) Close() error {
	if m.data == nil {
		return nil
	}
	err := unix.Munmap(m.data)
	m.data = nil
	if m.lock != nil {
		if uerr := m.lock.Unlock(); err == nil {
			err = uerr
		}
	}
	return err
}

// Size returns the size of the memory in bytes.
func (m *Memory) Size() uint64 {
	return uint64(len(m.data))
}

// Contains returns true if [addr, addr+length) lies within the memory.
func (m *Memory) Contains(addr hostarch.PhysAddr, length uint64) bool {
	end := uint64(addr) + length
	return end >= uint64(addr) && end <= uint64(len(m.data))
}

// Slice returns the bytes [addr, addr+length). Writes to the slice are
// writes to physical memory.
func (m *Memory) Slice(addr hostarch.PhysAddr, length uint64) ([]byte, error) {
	if !m.Contains(addr, length) {
		return nil, fmt.Errorf("physical range [%v, +%#x) outside memory of size %#x: %w", addr, length, len(m.data), kerr.EFAULT)
	}
	return m.data[addr : uint64(addr)+length : uint64(addr)+length], nil
}

// Zero clears the bytes [addr, addr+length).
func (m *Memory) Zero(addr hostarch.PhysAddr, length uint64) error {
	b, err := m.Slice(addr, length)
	if err != nil {
		return err
	}
	clear(b)
	return nil
}

// Discard zeroes whole frames in [addr, addr+length) by returning them to
// the host. addr and length must be page aligned.
func (m *Memory) Discard(addr hostarch.PhysAddr, length uint64) error {
	if !addr.IsPageAligned() || length%hostarch.PageSize != 0 {
		return fmt.Errorf("discard of [%v, +%#x) is not page aligned: %w", addr, length, kerr.EINVAL)
	}
	b, err := m.Slice(addr, length)
	if err != nil || len(b) == 0 {
		return err
	}
	if m.lock != nil {
		// MADV_DONTNEED on a shared file mapping does not zero it.
		clear(b)
		return nil
	}
	return unix.Madvise(b, unix.MADV_DONTNEED)
}

// Load32 reads the little-endian word at addr, which must be 4-byte aligned.
func (m *Memory) Load32(addr hostarch.PhysAddr) (uint32, error) {
	if addr%4 != 0 {
		return 0, fmt.Errorf("word address %v is not aligned: %w", addr, kerr.EINVAL)
	}
	b, err := m.Slice(addr, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// Store32 writes the little-endian word v at addr, which must be 4-byte
// aligned.
func (m *Memory) Store32(addr hostarch.PhysAddr, v uint32) error {
	if addr%4 != 0 {
		return fmt.Errorf("word address %v is not aligned: %w", addr, kerr.EINVAL)
	}
	b, err := m.Slice(addr, 4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b, v)
	return nil
}

// Page returns the frame at addr, which must be page aligned.
func (m *Memory) Page(addr hostarch.PhysAddr) (*[hostarch.PageSize]byte, error) {
	if !addr.IsPageAligned() {
		return nil, fmt.Errorf("frame address %v is not page aligned: %w", addr, kerr.EINVAL)
	}
	b, err := m.Slice(addr, hostarch.PageSize)
	if err != nil {
		return nil, err
	}
	return (*[hostarch.PageSize]byte)(b), nil
}
