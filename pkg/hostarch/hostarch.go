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

package hostarch

import "golang.org/x/exp/constraints"

// Word is an unsigned type wide enough to hold a page offset.
type Word interface {
	~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// PageRoundDown returns x rounded down to the nearest page boundary.
func PageRoundDown[T Word](x T) T {
	return x &^ PageMask
}

// PageRoundUp returns x rounded up to the nearest page boundary. The result
// wraps to zero if x is within a page of T's maximum value; callers that
// care should widen first.
func PageRoundUp[T Word](x T) T {
	return (x + PageMask) &^ PageMask
}

// PagesFor returns the number of pages needed to hold length bytes.
func PagesFor[T constraints.Unsigned](length T) uint64 {
	return PageRoundUp(uint64(length)) >> PageShift
}
