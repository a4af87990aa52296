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

package pagetables

import (
	"unsafe"

	"gokern.dev/gokern/pkg/hostarch"
)

// ptesFromPage reinterprets a frame as a page table.
func ptesFromPage(page *[hostarch.PageSize]byte) *PTEs {
	return (*PTEs)(unsafe.Pointer(page))
}

// directoryFromPage reinterprets a frame as a page directory.
func directoryFromPage(page *[hostarch.PageSize]byte) *PageDirectory {
	return (*PageDirectory)(unsafe.Pointer(page))
}
