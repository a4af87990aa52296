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

// Package cmd holds implementations of the ksim commands.
package cmd

import (
	"fmt"
	"io"
	"os"

	"gokern.dev/gokern/ksim/config"
	"gokern.dev/gokern/pkg/boot"
	"gokern.dev/gokern/pkg/log"
)

// ErrorLogger is where error messages should be written to. These messages
// are consumed by the caller, in addition to the debug log.
var ErrorLogger io.Writer

// Fatalf logs to stderr and the error log, and exits with error code 128.
func Fatalf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Warningf("FATAL ERROR: %s", msg)
	fmt.Fprintf(os.Stderr, "ksim: %s\n", msg)
	if ErrorLogger != nil {
		fmt.Fprintf(ErrorLogger, "%s\n", msg)
	}
	os.Exit(128)
}

// startMachine builds a machine from conf and runs the start sequence. The
// machine must be closed even if an error is returned.
func startMachine(conf *config.Config) (*boot.Machine, boot.Summary, error) {
	m, err := boot.NewMachine(conf.Boot())
	if err != nil {
		return nil, boot.Summary{}, err
	}
	s, err := m.Start()
	return m, s, err
}
