// Package problems defines the typed failures a party mutation can report.
package problems

import (
	"errors"
	"fmt"
)

// ConflictError reports a mutation that collided with another party's
// identity: a distinct uuid claiming an already-used legacy id or
// person/organization identifier. Never retried automatically.
type ConflictError struct {
	Constraint string
	Column     string
}

func (e *ConflictError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("party conflict on %s (constraint %s)", e.Column, e.Constraint)
	}
	return fmt.Sprintf("party conflict (constraint %s)", e.Constraint)
}

// NewConflict reports a conflict on the named unique constraint.
func NewConflict(constraint, column string) error {
	return &ConflictError{Constraint: constraint, Column: column}
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	_, ok := errors.AsType[*ConflictError](err)
	return ok
}

// InvalidUpdateError reports an update that attempted to change an
// immutable identity field, or that the store's business-rule check
// rejected. Never retried.
type InvalidUpdateError struct {
	Column string
	Detail string
}

func (e *InvalidUpdateError) Error() string {
	switch {
	case e.Column != "" && e.Detail != "":
		return fmt.Sprintf("invalid party update on %s: %s", e.Column, e.Detail)
	case e.Column != "":
		return fmt.Sprintf("invalid party update on %s", e.Column)
	case e.Detail != "":
		return fmt.Sprintf("invalid party update: %s", e.Detail)
	default:
		return "invalid party update"
	}
}

// NewInvalidUpdate reports a rejected update, with optional column and
// detail taken from the store error when available.
func NewInvalidUpdate(column, detail string) error {
	return &InvalidUpdateError{Column: column, Detail: detail}
}

// IsInvalidUpdate reports whether err is an InvalidUpdateError.
func IsInvalidUpdate(err error) bool {
	_, ok := errors.AsType[*InvalidUpdateError](err)
	return ok
}
