// Package errors provides the error taxonomy used across mvtreport.
//
// Only load and render failures abort a report run. Parse and section
// failures are recovered locally and surface as warnings or inline notices.
package errors

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"syscall"
)

// =============================================================================
// Base Error Types
// =============================================================================

// Error is the base error type for all mvtreport errors.
type Error struct {
	// Kind indicates the category of error
	Kind Kind

	// Op is the operation being performed (e.g., "artifact.Load")
	Op string

	// Message is a human-readable description
	Message string

	// Err is the underlying error
	Err error
}

// Kind represents the kind/category of error.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindInvalidInput
	KindLoad
	KindParse
	KindSection
	KindRender
	KindConfig
	KindStorage
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindLoad:
		return "load"
	case KindParse:
		return "parse"
	case KindSection:
		return "section"
	case KindRender:
		return "render"
	case KindConfig:
		return "config"
	case KindStorage:
		return "storage"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Fatal reports whether errors of this kind abort report generation.
func (k Kind) Fatal() bool {
	return k == KindLoad || k == KindRender
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		if e.Message == "" {
			if e.Err != nil {
				return fmt.Sprintf("%s: %v", e.Op, e.Err)
			}
			return e.Op
		}
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	if e.Err != nil {
		if e.Message == "" {
			return e.Err.Error()
		}
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// =============================================================================
// Constructors
// =============================================================================

// E constructs an Error from the given arguments.
// Arguments can be: Kind, string (Op then Message), error.
// A wrapped *Error donates its Kind when none is given.
func E(args ...interface{}) error {
	e := &Error{}
	for _, arg := range args {
		switch a := arg.(type) {
		case Kind:
			e.Kind = a
		case string:
			if e.Op == "" {
				e.Op = a
			} else {
				e.Message = a
			}
		case error:
			e.Err = a
		}
	}
	if e.Kind == KindUnknown && e.Err != nil {
		e.Kind = GetKind(e.Err)
	}
	return e
}

// New creates a new simple error.
func New(message string) error {
	return &Error{Message: message}
}

// Errorf creates an error of the given kind with a formatted message.
func Errorf(kind Kind, op, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an error with additional context, keeping its Kind.
func Wrap(err error, op string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: GetKind(err), Op: op, Err: err}
}

// WrapWithMessage wraps an error with a message, keeping its Kind.
func WrapWithMessage(err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: GetKind(err), Message: message, Err: err}
}

// =============================================================================
// Error Checkers
// =============================================================================

// GetKind returns the Kind of the error, or KindUnknown.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsLoadError reports whether no artifacts could be loaded.
func IsLoadError(err error) bool {
	return GetKind(err) == KindLoad
}

// IsParseError reports whether a single artifact failed to parse.
func IsParseError(err error) bool {
	return GetKind(err) == KindParse
}

// IsSectionError reports whether a report section failed to build.
func IsSectionError(err error) bool {
	return GetKind(err) == KindSection
}

// IsRenderError reports whether the output document could not be produced.
func IsRenderError(err error) bool {
	return GetKind(err) == KindRender
}

// IsFatal reports whether err aborts report generation.
func IsFatal(err error) bool {
	return err != nil && GetKind(err).Fatal()
}

// transientMarkers are the SQLite conditions that clear once the other
// writer finishes.
var transientMarkers = []string{
	"database is locked",
	"database table is locked",
	"sqlite_busy",
	"sqlite_locked",
}

// IsRetryable reports whether err is a storage error worth another
// attempt: a busy or locked database. Permission, read-only and disk-full
// errors are never retryable.
func IsRetryable(err error) bool {
	if GetKind(err) != KindStorage {
		return false
	}
	if errors.Is(err, fs.ErrPermission) || errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EROFS) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// =============================================================================
// Common Errors
// =============================================================================

var (
	// ErrNoArtifacts is returned when a directory holds no parseable artifact.
	ErrNoArtifacts = &Error{Kind: KindLoad, Message: "no parseable artifacts found"}

	// ErrEmptyPath is returned when a required path is empty.
	ErrEmptyPath = &Error{Kind: KindInvalidInput, Message: "path is required"}

	// ErrInvalidConfig is returned for invalid configuration.
	ErrInvalidConfig = &Error{Kind: KindConfig, Message: "invalid configuration"}

	// ErrArchiveClosed is returned when the history archive is used after Close.
	ErrArchiveClosed = &Error{Kind: KindStorage, Message: "archive is closed"}
)
