package domain

import (
	"errors"
	"strings"
)

type ErrorKind string

const (
	KindSchemaMissingColumns ErrorKind = "schema_missing_columns"
	KindUnsupportedFileType  ErrorKind = "unsupported_file_type"
	KindFileTooLarge         ErrorKind = "file_too_large"
	KindEncodingError        ErrorKind = "encoding_error"
	KindTimeout              ErrorKind = "timeout"
	KindNoAgents             ErrorKind = "no_agents"
	KindUploadInProgress     ErrorKind = "upload_in_progress"
	KindNotFound             ErrorKind = "not_found"
	KindInternal             ErrorKind = "internal"
)

// Error labels a failure with its kind and the pipeline step that produced it.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

var (
	ErrSchemaMissingColumns = &Error{Kind: KindSchemaMissingColumns}
	ErrUnsupportedFileType  = &Error{Kind: KindUnsupportedFileType}
	ErrFileTooLarge         = &Error{Kind: KindFileTooLarge}
	ErrEncoding             = &Error{Kind: KindEncodingError}
	ErrTimeout              = &Error{Kind: KindTimeout}
	ErrNoAgents             = &Error{Kind: KindNoAgents}
	ErrUploadInProgress     = &Error{Kind: KindUploadInProgress}
	ErrNotFound             = &Error{Kind: KindNotFound}
)

func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	parts := make([]string, 0, 3)
	if e.Op != "" {
		parts = append(parts, e.Op)
	}
	parts = append(parts, string(e.Kind))
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound)
// works regardless of the step label.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.Kind == e.Kind
}

// KindOf reports the kind of the first *Error in the chain, or KindInternal.
func KindOf(err error) ErrorKind {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Kind
	}
	return KindInternal
}
