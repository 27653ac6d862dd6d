// Copyright (C) 2026 Kestrel Works. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package errors carries the upgrader's error taxonomy. Each failure is
// tagged with the pipeline stage it belongs to, so the orchestrator can
// branch exhaustively on the kind rather than on error strings.
package errors

import (
	"errors"
	"fmt"
)

// Kind defines the category of error.
type Kind int

const (
	KindUnknown Kind = iota
	KindInternal
	// KindValidation covers bad input and unmet pre-flight conditions.
	// Nothing on the system has been touched.
	KindValidation
	// KindFetch covers transport and artifact-integrity failures.
	// Nothing on the system has been touched.
	KindFetch
	// KindServiceControl covers stop/start failures against the managed unit.
	KindServiceControl
	// KindBackup covers archive store failures.
	KindBackup
	// KindInstall covers extraction, ownership and version-mismatch failures.
	KindInstall
	// KindHealthCheck covers post-start verification failures.
	KindHealthCheck
	// KindRollback covers failures while attempting recovery. It is never
	// downgraded; the system may be in neither the old nor the new state.
	KindRollback
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindInternal:
		return "internal"
	case KindValidation:
		return "validation"
	case KindFetch:
		return "fetch"
	case KindServiceControl:
		return "service_control"
	case KindBackup:
		return "backup"
	case KindInstall:
		return "install"
	case KindHealthCheck:
		return "health_check"
	case KindRollback:
		return "rollback"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error represents a structured error in the upgrader.
type Error struct {
	Kind       Kind
	Message    string
	Underlying error
	Attributes map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Underlying)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Underlying
}

// New creates a new Error of the specified kind.
func New(kind Kind, msg string) error {
	return &Error{
		Kind:    kind,
		Message: msg,
	}
}

// Errorf creates a new Error of the specified kind with a formatted message.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error as a new Error of the specified kind.
func Wrap(err error, kind Kind, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:       kind,
		Message:    msg,
		Underlying: err,
	}
}

// Wrapf wraps an existing error as a new Error of the specified kind with a
// formatted message.
func Wrapf(err error, kind Kind, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:       kind,
		Message:    fmt.Sprintf(format, args...),
		Underlying: err,
	}
}

// Attr attaches an attribute to an error. If the error is not an *Error, it
// wraps it as KindInternal.
func Attr(err error, key string, val any) error {
	if err == nil {
		return nil
	}

	var e *Error
	if !errors.As(err, &e) {
		e = &Error{
			Kind:       KindInternal,
			Message:    err.Error(),
			Underlying: err,
		}
	}

	if e.Attributes == nil {
		e.Attributes = make(map[string]any)
	}
	e.Attributes[key] = val
	return e
}

// GetAttributes returns all attributes associated with the error and its chain.
func GetAttributes(err error) map[string]any {
	attrs := make(map[string]any)
	var e *Error

	tempErr := err
	for tempErr != nil {
		if errors.As(tempErr, &e) {
			for k, v := range e.Attributes {
				if _, ok := attrs[k]; !ok {
					attrs[k] = v
				}
			}
			tempErr = e.Underlying
		} else {
			break
		}
	}

	return attrs
}

// GetKind returns the Kind of the error, or KindUnknown if it's not one of ours.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsPreMutation reports whether the error occurred before the first mutating
// step. Such errors abort cleanly with no rollback.
func IsPreMutation(err error) bool {
	switch GetKind(err) {
	case KindValidation, KindFetch:
		return true
	}
	return false
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target, and if so,
// sets target to that error value and returns true.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Unwrap returns the result of calling the Unwrap method on err, if any.
func Unwrap(err error) error {
	return errors.Unwrap(err)
}
