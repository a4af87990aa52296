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

package bitmap

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestAddRemove(t *testing.T) {
	b := New(130)
	if !b.IsEmpty() {
		t.Fatalf("new bitmap is not empty")
	}
	for _, i := range []uint32{0, 63, 64, 129} {
		if !b.Add(i) {
			t.Errorf("Add(%d) = false on unset bit", i)
		}
	}
	if b.Add(64) {
		t.Errorf("Add(64) = true on set bit")
	}
	if got := b.GetNumOnes(); got != 4 {
		t.Errorf("GetNumOnes() = %d, want 4", got)
	}
	if diff := cmp.Diff([]uint32{0, 63, 64, 129}, b.ToSlice()); diff != "" {
		t.Errorf("ToSlice() mismatch (-want +got):\n%s", diff)
	}
	b.Remove(63)
	b.Remove(63)
	if b.Contains(63) {
		t.Errorf("Contains(63) after Remove")
	}
	if got := b.GetNumOnes(); got != 3 {
		t.Errorf("GetNumOnes() = %d, want 3", got)
	}
	b.Reset()
	if !b.IsEmpty() || b.Contains(0) {
		t.Errorf("bitmap not empty after Reset")
	}
}

func TestFirstZero(t *testing.T) {
	b := New(70)
	for i := uint32(0); i < 66; i++ {
		b.Add(i)
	}
	if got, err := b.FirstZero(0); err != nil || got != 66 {
		t.Errorf("FirstZero(0) = (%d, %v), want (66, nil)", got, err)
	}
	if got, err := b.FirstZero(68); err != nil || got != 68 {
		t.Errorf("FirstZero(68) = (%d, %v), want (68, nil)", got, err)
	}
	for i := uint32(66); i < 70; i++ {
		b.Add(i)
	}
	if _, err := b.FirstZero(0); err == nil {
		t.Errorf("FirstZero on full bitmap succeeded")
	}
	if _, err := b.FirstZero(70); err == nil {
		t.Errorf("FirstZero past the end succeeded")
	}
}
