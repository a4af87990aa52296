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

// Package errors holds the standardized error definition for the
// memory-management core.
package errors

import "fmt"

// Code classifies an Error.
type Code int

const (
	// InvalidArgument indicates a malformed request, such as a zero-count
	// allocation or an unaligned address.
	InvalidArgument Code = iota + 1

	// OutOfMemory indicates the free list cannot satisfy a request.
	OutOfMemory

	// ResourceExhausted indicates a fixed pool, such as the page-table
	// pool, ran out. Work done before the exhaustion is not rolled back.
	ResourceExhausted

	// FatalHardwareFault indicates an access to unmapped memory after
	// paging has been enabled.
	FatalHardwareFault
)

// String implements fmt.Stringer.String.
func (c Code) String() string {
	switch c {
	case InvalidArgument:
		return "InvalidArgument"
	case OutOfMemory:
		return "OutOfMemory"
	case ResourceExhausted:
		return "ResourceExhausted"
	case FatalHardwareFault:
		return "FatalHardwareFault"
	default:
		return fmt.Sprintf("Code(%d)", int(c))
	}
}

// Error represents a classified error with a descriptive message.
type Error struct {
	code    Code
	message string
}

// New creates a new *Error.
func New(code Code, message string) *Error {
	return &Error{
		code:    code,
		message: message,
	}
}

// Error implements error.Error.
func (e *Error) Error() string { return e.message }

// Code returns the underlying Code value.
func (e *Error) Code() Code { return e.code }
