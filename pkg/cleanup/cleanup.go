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

// Package cleanup runs undo steps on error paths.
package cleanup

import "errors"

// Cleanup holds undo steps to run on defers unless released. Usage:
//
//	cu := cleanup.Make(mem.Close)
//	defer cu.Clean() // Closes the memory if Release() is not called.
//	...
//	// Everything went well, release the cleanup.
//	cu.Release()
type Cleanup struct {
	steps []func() error
}

// Make creates a new Cleanup with a first step.
func Make(f func() error) Cleanup {
	return Cleanup{steps: []func() error{f}}
}

// Add adds a step, which runs before the steps already added.
func (c *Cleanup) Add(f func() error) {
	c.steps = append(c.steps, f)
}

// Clean runs every step, last added first, and returns their errors joined.
// Steps run at most once.
func (c *Cleanup) Clean() error {
	steps := c.steps
	c.steps = nil
	return run(steps)
}

// Release drops the steps without running them and returns a function that
// runs them, in case the caller has use for it.
func (c *Cleanup) Release() func() error {
	steps := c.steps
	c.steps = nil
	return func() error { return run(steps) }
}

func run(steps []func() error) error {
	var errs []error
	for i := len(steps) - 1; i >= 0; i-- {
		if err := steps[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
