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

package log

import "time"

// ConsoleWriter adapts a character sink, such as the kernel text console, to
// io.Writer. It never fails.
type ConsoleWriter struct {
	// Putc writes one character to the console.
	Putc func(byte)
}

// Write implements io.Writer.Write.
func (c ConsoleWriter) Write(data []byte) (int, error) {
	for _, ch := range data {
		c.Putc(ch)
	}
	return len(data), nil
}

// ConsoleEmitter emits bare messages, one per line, the way the kernel prints
// progress to the screen.
type ConsoleEmitter struct {
	*Writer
}

// NewConsoleEmitter returns an emitter that writes to putc.
func NewConsoleEmitter(putc func(byte)) ConsoleEmitter {
	return ConsoleEmitter{&Writer{Next: ConsoleWriter{Putc: putc}}}
}

// Emit implements Emitter.Emit.
func (e ConsoleEmitter) Emit(depth int, level Level, timestamp time.Time, format string, v ...any) {
	e.Writer.Emit(depth+1, level, timestamp, format+"\n", v...)
}
