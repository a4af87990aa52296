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
	"strings"

	"gokern.dev/gokern/pkg/hostarch"
)

// Text-mode screen geometry.
const (
	ScreenWidth  = 80
	ScreenHeight = 25

	// defaultColor is light grey on black.
	defaultColor = 7
)

// VirtualMemory is memory accessed through the MMU.
type VirtualMemory interface {
	Read(addr hostarch.Addr, dst []byte) error
	Write(addr hostarch.Addr, src []byte) error
}

// Console is a text-mode console writing character cells to the video
// window. It is the character sink progress messages are printed to.
type Console struct {
	mem  VirtualMemory
	base hostarch.Addr
	x, y int

	// err is the first write failure. Putc cannot report errors, so once
	// the video window is unreachable output is dropped.
	err error
}

// NewConsole returns a console drawing at base.
func NewConsole(mem VirtualMemory, base hostarch.Addr) *Console {
	return &Console{mem: mem, base: base}
}

func (c *Console) cell(x, y int) hostarch.Addr {
	return c.base + hostarch.Addr((y*ScreenWidth+x)*2)
}

// Putc writes one character, handling newline and carriage return and
// scrolling at the bottom of the screen.
func (c *Console) Putc(ch byte) {
	if c.err != nil {
		return
	}
	switch ch {
	case '\n':
		c.x = 0
		c.y++
	case '\r':
		c.x = 0
	default:
		if err := c.mem.Write(c.cell(c.x, c.y), []byte{ch, defaultColor}); err != nil {
			c.err = err
			return
		}
		c.x++
	}
	if c.x >= ScreenWidth {
		c.x = 0
		c.y++
	}
	if c.y >= ScreenHeight {
		c.scrollUp()
		c.y = ScreenHeight - 1
	}
}

// scrollUp moves every row up by one and blanks the last row.
func (c *Console) scrollUp() {
	rows := make([]byte, (ScreenHeight-1)*ScreenWidth*2)
	if err := c.mem.Read(c.cell(0, 1), rows); err != nil {
		c.err = err
		return
	}
	if err := c.mem.Write(c.cell(0, 0), rows); err != nil {
		c.err = err
		return
	}
	blank := make([]byte, ScreenWidth*2)
	for i := 0; i < len(blank); i += 2 {
		blank[i] = ' '
		blank[i+1] = defaultColor
	}
	if err := c.mem.Write(c.cell(0, ScreenHeight-1), blank); err != nil {
		c.err = err
	}
}

// Err returns the first error hit while drawing.
func (c *Console) Err() error {
	return c.err
}

// Screen returns the text of each row, with trailing blanks removed.
func (c *Console) Screen() ([]string, error) {
	cells := make([]byte, ScreenHeight*ScreenWidth*2)
	if err := c.mem.Read(c.base, cells); err != nil {
		return nil, err
	}
	rows := make([]string, ScreenHeight)
	var b strings.Builder
	for y := range rows {
		b.Reset()
		for x := 0; x < ScreenWidth; x++ {
			ch := cells[(y*ScreenWidth+x)*2]
			if ch == 0 {
				ch = ' '
			}
			b.WriteByte(ch)
		}
		rows[y] = strings.TrimRight(b.String(), " ")
	}
	return rows, nil
}
