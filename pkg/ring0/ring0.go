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

// Package ring0 provides the privileged CPU surface used to turn on paging,
// either on the real processor or on a simulated one.
package ring0

import "gokern.dev/gokern/pkg/hostarch"

// CR0 bits.
const (
	// CR0PE enables protected mode.
	CR0PE = 1 << 0

	// CR0PG enables paging.
	CR0PG = 1 << 31
)

// CPU is the set of privileged operations needed to activate an address
// space.
type CPU interface {
	// LoadCR3 installs the page directory at root.
	LoadCR3(root hostarch.PhysAddr)

	// CR0 returns the current value of CR0.
	CR0() uint32

	// SetCR0 writes CR0.
	SetCR0(v uint32)

	// StackPointer returns the current stack pointer.
	StackPointer() hostarch.Addr
}

// EnablePaging sets CR0.PE and CR0.PG in a single write. From then on every
// access is translated through the directory in CR3.
func EnablePaging(c CPU) {
	c.SetCR0(c.CR0() | CR0PE | CR0PG)
}

// PagingEnabled returns true iff CR0.PG is set.
func PagingEnabled(c CPU) bool {
	return c.CR0()&CR0PG != 0
}
