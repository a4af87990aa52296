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

package config

import (
	"flag"
	"fmt"
	"reflect"
	"strconv"

	"gokern.dev/gokern/pkg/boot"
)

// configFlagName is the flag naming a configuration file. It is not a
// Config field.
const configFlagName = "config"

// RegisterFlags registers flags used to populate Config.
func RegisterFlags(flagSet *flag.FlagSet) {
	d := boot.DefaultConfig()

	flagSet.String(configFlagName, "", "configuration file (.toml, .yaml or .yml). Flags set on the command line take precedence.")

	// Logging flags.
	flagSet.String("log", "", "file path where internal debug information is written, default is stderr.")
	flagSet.String("log-format", "text", "log format: text (default), json, or json-k8s.")
	flagSet.Bool("debug", false, "enable debug logging.")
	flagSet.String("debug-log", "", "additional location for logs. The following variables are available: %TIMESTAMP%, %COMMAND%.")

	// Machine flags.
	flagSet.Uint64("memory-size", d.MemorySize, "size of simulated physical memory in bytes.")
	flagSet.String("memory-file", "", "back physical memory with this file, which is created or truncated and locked while in use.")
	flagSet.Int("frame-pool-pages", d.FramePoolPages, "number of physical frames managed by the frame allocator (128-65536).")
	flagSet.Var(hex32Ptr(uint32(d.FramePoolBase)), "frame-pool-base", "physical address of the first managed frame.")
	flagSet.Int("table-pool-size", d.TablePoolSize, "number of page tables available to the address space.")
	flagSet.Var(hex32Ptr(uint32(d.KernelStart)), "kernel-start", "kernel load address.")
	flagSet.Var(hex32Ptr(d.KernelImageSize), "kernel-image-size", "size of the kernel text and data, before the page directory, table pool and stack.")
	flagSet.Var(hex32Ptr(d.StackSize), "stack-size", "size of the boot stack.")
	flagSet.Var(hex32Ptr(uint32(d.VideoAddr)), "video-addr", "text-mode video memory window.")
	flagSet.Int("stack-pages", d.StackPages, "number of pages identity mapped at and below the stack pointer.")
	flagSet.Int("buffer-pages", d.BufferPages, "number of frames allocated and mapped after paging is enabled.")
	flagSet.Var(hex32Ptr(uint32(d.BufferVA)), "buffer-va", "virtual address the buffer frames are mapped at.")
}

// get returns the value held by a flag.
func get(v flag.Value) any {
	return v.(flag.Getter).Get()
}

// flagFields returns the index of the Config field for each flag name.
func flagFields() map[string]int {
	fields := make(map[string]int)
	st := reflect.TypeOf(Config{})
	for i := 0; i < st.NumField(); i++ {
		if name, ok := st.Field(i).Tag.Lookup("flag"); ok {
			fields[name] = i
		}
	}
	return fields
}

// NewFromFlags creates a new Config with values coming from command line
// flags and, if --config is set, from a configuration file. Flags set
// explicitly on the command line override the file.
func NewFromFlags(flagSet *flag.FlagSet) (*Config, error) {
	conf := &Config{}
	obj := reflect.ValueOf(conf).Elem()
	fields := flagFields()

	set := func(fl *flag.Flag) {
		if i, ok := fields[fl.Name]; ok {
			obj.Field(i).Set(reflect.ValueOf(get(fl.Value)))
		}
	}
	for name := range fields {
		fl := flagSet.Lookup(name)
		if fl == nil {
			panic(fmt.Sprintf("Flag %q not found", name))
		}
		set(fl)
	}

	if fl := flagSet.Lookup(configFlagName); fl != nil && fl.Value.String() != "" {
		if err := conf.loadFile(fl.Value.String()); err != nil {
			return nil, err
		}
		flagSet.Visit(set)
	}

	if err := conf.validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// ToFlags returns a slice of flags that correspond to the given Config.
func (c *Config) ToFlags() []string {
	var rv []string

	// Construct a temporary set for default plumbing.
	flagSet := flag.NewFlagSet("tmp", flag.ContinueOnError)
	RegisterFlags(flagSet)

	obj := reflect.ValueOf(c).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		name, ok := f.Tag.Lookup("flag")
		if !ok {
			// No flag set for this field.
			continue
		}
		val := getVal(obj.Field(i))

		flag := flagSet.Lookup(name)
		if flag == nil {
			panic(fmt.Sprintf("Flag %q not found", name))
		}
		if val == flag.DefValue {
			continue
		}
		rv = append(rv, fmt.Sprintf("--%s=%s", flag.Name, val))
	}
	return rv
}

// Override writes a new value to a flag and validates the result.
func (c *Config) Override(flagSet *flag.FlagSet, name string, value string) error {
	i, ok := flagFields()[name]
	if !ok {
		return fmt.Errorf("flag %q not found. Cannot set it to %q", name, value)
	}
	fl := flagSet.Lookup(name)
	if fl == nil {
		// Flag must exist if there is a field match above.
		panic(fmt.Sprintf("Flag %q not found", name))
	}

	// Use flag to convert the string value to the underlying flag type, using
	// the same rules as the command-line for consistency.
	if err := fl.Value.Set(value); err != nil {
		return fmt.Errorf("error setting flag %s=%q: %w", name, value, err)
	}
	reflect.ValueOf(c).Elem().Field(i).Set(reflect.ValueOf(get(fl.Value)))

	// Validates the config again to ensure it's left in a consistent state.
	return c.validate()
}

func getVal(field reflect.Value) string {
	if str, ok := field.Addr().Interface().(fmt.Stringer); ok {
		return str.String()
	}
	switch field.Kind() {
	case reflect.Bool:
		return strconv.FormatBool(field.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(field.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(field.Uint(), 10)
	case reflect.String:
		return field.String()
	default:
		panic("unknown type " + field.Kind().String())
	}
}
