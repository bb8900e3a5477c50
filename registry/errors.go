// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package registry

import (
	"errors"
	"fmt"
)

// Configuration errors. They are always raised before any device work is
// submitted and wrapped in a *ConfigError.
var (
	// ErrDuplicateLabel is returned when a label is already registered for
	// the kind being created.
	ErrDuplicateLabel = errors.New("registry: duplicate label")

	// ErrLabelNotFound is returned when a lookup names an unregistered label.
	ErrLabelNotFound = errors.New("registry: label not found")

	// ErrSizeMismatch is returned when a resource is smaller than a binding
	// requires or an upload does not match the resource dimensions.
	ErrSizeMismatch = errors.New("registry: size mismatch")

	// ErrLayoutMismatch is returned when a resource cannot be bound the way
	// a binding set or pipeline declares.
	ErrLayoutMismatch = errors.New("registry: layout mismatch")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("registry: closed")
)

// ConfigError describes a failed construction step.
type ConfigError struct {
	Op    string // operation, e.g. "create buffer"
	Kind  Kind   // kind of the resource involved
	Label string // offending label
	Err   error  // one of the sentinel errors above, possibly wrapped
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s %s %q: %v", e.Op, e.Kind, e.Label, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func configErr(op string, kind Kind, label string, err error) error {
	return &ConfigError{Op: op, Kind: kind, Label: label, Err: err}
}
