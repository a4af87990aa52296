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

// Package config provides basic infrastructure to set configuration settings
// for ksim. Each setting that can be changed from the command line or from a
// configuration file must be added to Config and a corresponding flag must
// be registered in RegisterFlags.
package config

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/mohae/deepcopy"

	"gokern.dev/gokern/pkg/boot"
	"gokern.dev/gokern/pkg/hostarch"
	"gokern.dev/gokern/pkg/log"
)

// Config holds configuration that is not part of the machine's command line
// arguments.
//
// Follow these steps to add a new flag:
//  1. Create a new field in Config.
//  2. Add a field tag with the flag name, and the key used in configuration
//     files.
//  3. Register a new flag in flags.go, with same name and add a description.
//  4. Add any necessary validation into validate().
type Config struct {
	// MemorySize is the size of simulated physical memory in bytes.
	MemorySize uint64 `flag:"memory-size" toml:"memory_size" yaml:"memory_size"`

	// MemoryFile backs physical memory with a file instead of anonymous
	// memory.
	MemoryFile string `flag:"memory-file" toml:"memory_file" yaml:"memory_file"`

	// FramePoolPages is the number of frames managed by the frame allocator.
	FramePoolPages int `flag:"frame-pool-pages" toml:"frame_pool_pages" yaml:"frame_pool_pages"`

	// FramePoolBase is the physical address of the first managed frame.
	FramePoolBase Hex32 `flag:"frame-pool-base" toml:"frame_pool_base" yaml:"frame_pool_base"`

	// TablePoolSize is the number of page tables in the pool.
	TablePoolSize int `flag:"table-pool-size" toml:"table_pool_size" yaml:"table_pool_size"`

	// KernelStart is the kernel load address.
	KernelStart Hex32 `flag:"kernel-start" toml:"kernel_start" yaml:"kernel_start"`

	// KernelImageSize is the size of the kernel text and data.
	KernelImageSize Hex32 `flag:"kernel-image-size" toml:"kernel_image_size" yaml:"kernel_image_size"`

	// StackSize is the size of the boot stack.
	StackSize Hex32 `flag:"stack-size" toml:"stack_size" yaml:"stack_size"`

	// VideoAddr is the text-mode video window.
	VideoAddr Hex32 `flag:"video-addr" toml:"video_addr" yaml:"video_addr"`

	// StackPages is the number of pages identity mapped around the stack
	// pointer.
	StackPages int `flag:"stack-pages" toml:"stack_pages" yaml:"stack_pages"`

	// BufferPages is the number of frames mapped at BufferVA during boot.
	BufferPages int `flag:"buffer-pages" toml:"buffer_pages" yaml:"buffer_pages"`

	// BufferVA is where the buffer is mapped.
	BufferVA Hex32 `flag:"buffer-va" toml:"buffer_va" yaml:"buffer_va"`

	// LogFilename is the filename to log to, if not empty.
	LogFilename string `flag:"log" toml:"log" yaml:"log"`

	// LogFormat is the log format.
	LogFormat string `flag:"log-format" toml:"log_format" yaml:"log_format"`

	// Debug indicates that debug logging should be enabled.
	Debug bool `flag:"debug" toml:"debug" yaml:"debug"`

	// DebugLog is the path to log debug information to, if not empty. The
	// variables %COMMAND% and %TIMESTAMP% are expanded.
	DebugLog string `flag:"debug-log" toml:"debug_log" yaml:"debug_log"`
}

func (c *Config) validate() error {
	switch c.LogFormat {
	case "text", "json", "json-k8s":
	default:
		return fmt.Errorf("invalid log format %q, must be 'text', 'json', or 'json-k8s'", c.LogFormat)
	}
	b := c.Boot()
	return b.Validate()
}

// Boot returns the machine configuration.
func (c *Config) Boot() boot.Config {
	return boot.Config{
		MemorySize:      c.MemorySize,
		MemoryFile:      c.MemoryFile,
		FramePoolPages:  c.FramePoolPages,
		FramePoolBase:   hostarch.PhysAddr(c.FramePoolBase),
		TablePoolSize:   c.TablePoolSize,
		KernelStart:     hostarch.Addr(c.KernelStart),
		KernelImageSize: uint32(c.KernelImageSize),
		StackSize:       uint32(c.StackSize),
		VideoAddr:       hostarch.Addr(c.VideoAddr),
		StackPages:      c.StackPages,
		BufferPages:     c.BufferPages,
		BufferVA:        hostarch.Addr(c.BufferVA),
	}
}

// Copy returns a deep copy of c.
func (c *Config) Copy() *Config {
	return deepcopy.Copy(c).(*Config)
}

// Log logs important aspects of the configuration to the given log function.
func (c *Config) Log() {
	log.Infof("Config:")
	obj := reflect.ValueOf(c).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		name, ok := st.Field(i).Tag.Lookup("flag")
		if !ok {
			continue
		}
		log.Infof("\t%s: %s", name, getVal(obj.Field(i)))
	}
}

// Hex32 is a 32-bit value written in hexadecimal, such as an address.
type Hex32 uint32

// String implements fmt.Stringer.String and flag.Value.String.
func (h Hex32) String() string {
	return fmt.Sprintf("%#x", uint32(h))
}

// Get implements flag.Getter.Get.
func (h *Hex32) Get() any {
	return *h
}

// Set implements flag.Value.Set. Any base accepted by strconv is allowed.
func (h *Hex32) Set(s string) error {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return fmt.Errorf("invalid 32-bit value %q: %w", s, err)
	}
	*h = Hex32(v)
	return nil
}

// UnmarshalText implements encoding.TextUnmarshaler.UnmarshalText, used by
// TOML decoding.
func (h *Hex32) UnmarshalText(b []byte) error {
	return h.Set(string(b))
}

// MarshalText implements encoding.TextMarshaler.MarshalText.
func (h Hex32) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func hex32Ptr(v uint32) *Hex32 {
	h := Hex32(v)
	return &h
}
