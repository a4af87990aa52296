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

// Package kerr contains the canonical errors returned by the frame allocator,
// the page tables and the simulated MMU.
package kerr

import (
	"errors"

	kerrors "gokern.dev/gokern/pkg/errors"
)

// The following variables are the only values of each Code. Callers compare
// against them with errors.Is.
var (
	EINVAL     = kerrors.New(kerrors.InvalidArgument, "invalid argument")
	ENOMEM     = kerrors.New(kerrors.OutOfMemory, "out of memory")
	EEXHAUSTED = kerrors.New(kerrors.ResourceExhausted, "resource exhausted")
	EFAULT     = kerrors.New(kerrors.FatalHardwareFault, "fatal hardware fault")
)

// CodeOf returns the Code of the first *errors.Error found in err's chain.
func CodeOf(err error) (kerrors.Code, bool) {
	var e *kerrors.Error
	if errors.As(err, &e) {
		return e.Code(), true
	}
	return 0, false
}

// Equals returns true if err's chain contains target.
func Equals(err error, target *kerrors.Error) bool {
	return errors.Is(err, target)
}
