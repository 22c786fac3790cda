package errors

import (
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrorTypeFileNotFound   ErrorType = "FILE_NOT_FOUND"
	ErrorTypeObjectNotFound ErrorType = "OBJECT_NOT_FOUND"
	ErrorTypeCorruptCommit  ErrorType = "CORRUPT_COMMIT"
	ErrorTypeCommitNotFound ErrorType = "COMMIT_NOT_FOUND"
	ErrorTypeCorruptIndex   ErrorType = "CORRUPT_INDEX"
	ErrorTypeNotInitialized ErrorType = "NOT_INITIALIZED"
	ErrorTypeValidation     ErrorType = "VALIDATION"
)

// Sentinels for errors.Is. They match any *Error of the same type.
var (
	ErrFileNotFound   = &Error{Type: ErrorTypeFileNotFound}
	ErrObjectNotFound = &Error{Type: ErrorTypeObjectNotFound}
	ErrCorruptCommit  = &Error{Type: ErrorTypeCorruptCommit}
	ErrCommitNotFound = &Error{Type: ErrorTypeCommitNotFound}
	ErrCorruptIndex   = &Error{Type: ErrorTypeCorruptIndex}
	ErrNotInitialized = &Error{Type: ErrorTypeNotInitialized}
	ErrValidation     = &Error{Type: ErrorTypeValidation}
)

type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    int       `json:"code"`
	Details any       `json:"details,omitempty"`
	Err     error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Message == "" {
		return string(e.Type)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a sentinel (or error) of the same type.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

func FileNotFound(path string, cause error) *Error {
	return &Error{
		Type:    ErrorTypeFileNotFound,
		Message: fmt.Sprintf("cannot read file %s", path),
		Code:    http.StatusNotFound,
		Details: map[string]string{"path": path},
		Err:     cause,
	}
}

func ObjectNotFound(digest string, cause error) *Error {
	return &Error{
		Type:    ErrorTypeObjectNotFound,
		Message: fmt.Sprintf("object %s not found", digest),
		Code:    http.StatusNotFound,
		Details: map[string]string{"digest": digest},
		Err:     cause,
	}
}

func CorruptCommit(digest string, cause error) *Error {
	return &Error{
		Type:    ErrorTypeCorruptCommit,
		Message: fmt.Sprintf("object %s is not a valid commit", digest),
		Code:    http.StatusUnprocessableEntity,
		Details: map[string]string{"digest": digest},
		Err:     cause,
	}
}

func CommitNotFound(digest string, cause error) *Error {
	return &Error{
		Type:    ErrorTypeCommitNotFound,
		Message: fmt.Sprintf("commit %s not found", digest),
		Code:    http.StatusNotFound,
		Details: map[string]string{"digest": digest},
		Err:     cause,
	}
}

func CorruptIndex(cause error) *Error {
	return &Error{
		Type:    ErrorTypeCorruptIndex,
		Message: "staging index is corrupt",
		Code:    http.StatusInternalServerError,
		Err:     cause,
	}
}

func NotInitialized(message string) *Error {
	return &Error{
		Type:    ErrorTypeNotInitialized,
		Message: message,
		Code:    http.StatusServiceUnavailable,
	}
}

func ValidationError(message string, details any) *Error {
	return &Error{
		Type:    ErrorTypeValidation,
		Message: message,
		Code:    http.StatusBadRequest,
		Details: details,
	}
}

// CodeOf returns the HTTP status carried by err, or 500.
func CodeOf(err error) int {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Code != 0 {
			return e.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return http.StatusInternalServerError
}
