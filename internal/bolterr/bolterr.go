// Copyright 2024 The Bolt Authors.
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

// Package bolterr defines the structured error taxonomy shared by every
// component of the GPU and firewall subsystems.
package bolterr

import (
	"errors"
	"fmt"
)

// Kind identifies one of the error classes from the error handling design.
type Kind string

// The error kinds the core can surface to a caller.
const (
	KindNoNvidia      Kind = "no_nvidia"
	KindInvalidSpec   Kind = "invalid_spec"
	KindDeviceMissing Kind = "device_missing"
	KindUnsupported   Kind = "unsupported"
	KindPortInUse     Kind = "port_in_use"
	KindApplyFailed   Kind = "apply_failed"
	KindTransient     Kind = "transient"
)

// Error is a structured error carrying a Kind plus a wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is a *Error with the same Kind, so callers can
// write errors.Is(err, bolterr.NoNvidia) style checks against the sentinel
// values below.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// New builds an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error of the given kind around cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf returns the Kind of err if it is (or wraps) a *Error, and ok=false
// otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// sentinel returns a zero-message *Error of the given kind, suitable for use
// with errors.Is(err, bolterr.NoNvidia).
func sentinel(kind Kind) *Error { return &Error{Kind: kind} }

// Sentinel values for errors.Is comparisons against a Kind regardless of
// message/cause.
var (
	NoNvidia      = sentinel(KindNoNvidia)
	InvalidSpec   = sentinel(KindInvalidSpec)
	DeviceMissing = sentinel(KindDeviceMissing)
	Unsupported   = sentinel(KindUnsupported)
	PortInUse     = sentinel(KindPortInUse)
	ApplyFailed   = sentinel(KindApplyFailed)
	Transient     = sentinel(KindTransient)
)
