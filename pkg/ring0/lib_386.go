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

//go:build 386 && baremetal

package ring0

import "gokern.dev/gokern/pkg/hostarch"

// loadCR3 writes CR3.
func loadCR3(root uint32)

// readCR0 reads CR0.
func readCR0() uint32

// writeCR0 writes CR0.
func writeCR0(v uint32)

// readESP returns the stack pointer.
func readESP() uint32

// Hardware is the processor this code is running on.
type Hardware struct{}

// LoadCR3 implements CPU.LoadCR3.
func (Hardware) LoadCR3(root hostarch.PhysAddr) {
	loadCR3(uint32(root))
}

// CR0 implements CPU.CR0.
func (Hardware) CR0() uint32 {
	return readCR0()
}

// SetCR0 implements CPU.SetCR0.
//
//go:nosplit
func (Hardware) SetCR0(v uint32) {
	writeCR0(v)
}

// StackPointer implements CPU.StackPointer.
//
//go:nosplit
func (Hardware) StackPointer() hostarch.Addr {
	return hostarch.Addr(readESP())
}
