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

package pfa

import (
	"fmt"

	"gokern.dev/gokern/pkg/bitmap"
	"gokern.dev/gokern/pkg/log"
)

// CheckInvariants verifies that every descriptor is a member of exactly one
// of the free list and the given outstanding lists, that links are symmetric,
// that list ends are nulled, and that the free count matches the free list.
func (p *Pool) CheckInvariants(outstanding ...List) error {
	seen := bitmap.New(uint32(len(p.pages)))
	walk := func(name string, l List) (int, error) {
		if l.Empty() {
			return 0, nil
		}
		if l.pool != p {
			return 0, fmt.Errorf("%s belongs to another pool", name)
		}
		if prev := p.pages[l.head].prev; prev != nilIndex {
			return 0, fmt.Errorf("%s: head %d has back link %d", name, l.head, prev)
		}
		n := 0
		for i, prev := l.head, nilIndex; i != nilIndex; prev, i = i, p.pages[i].next {
			if i < 0 || int(i) >= len(p.pages) {
				return n, fmt.Errorf("%s: link to descriptor %d out of range", name, i)
			}
			if p.pages[i].prev != prev {
				return n, fmt.Errorf("%s: descriptor %d has back link %d, want %d", name, i, p.pages[i].prev, prev)
			}
			if !seen.Add(uint32(i)) {
				return n, fmt.Errorf("%s: descriptor %d (%v) is on more than one list", name, i, p.pages[i].addr)
			}
			n++
		}
		return n, nil
	}

	nfree, err := walk("free list", p.FreeList())
	if err != nil {
		return err
	}
	if nfree != p.nfree {
		return fmt.Errorf("free list has %d frames, free count is %d", nfree, p.nfree)
	}
	for i, l := range outstanding {
		if _, err := walk(fmt.Sprintf("list %d", i), l); err != nil {
			return err
		}
	}
	if missing, err := seen.FirstZero(0); err == nil {
		return fmt.Errorf("descriptor %d (%v) is on no list", missing, p.pages[missing].addr)
	}
	return nil
}

// Dump writes the free list to logger, one line per frame.
func (p *Pool) Dump(logger log.Logger) {
	logger.Infof("Free list:")
	n := 0
	for f := p.FreeList().Front(); f.Valid(); f = f.Next() {
		logger.Infof("  Page #%d (descriptor %d) -> phys=0x%08x", n, f.Index(), uint32(f.Addr()))
		n++
	}
	logger.Infof("(end of free list)")
}
