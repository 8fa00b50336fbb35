// Package domain defines the MDL entity types, the catalog interface and the
// error taxonomy shared by the rewriter packages.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ValidationError indicates invalid input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError indicates a conflict (e.g., duplicate resource).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// RewriteCode classifies a rewrite failure.
type RewriteCode string

// Rewrite error codes. The first five are user errors; RENDER_ERROR and
// INTERNAL mean a broken invariant inside the rewriter.
const (
	CodeRelationshipNotFound    RewriteCode = "RELATIONSHIP_NOT_FOUND"
	CodeUnsupportedExpression   RewriteCode = "UNSUPPORTED_EXPRESSION"
	CodeMalformedTemplate       RewriteCode = "MALFORMED_TEMPLATE"
	CodeCircularCalculatedField RewriteCode = "CIRCULAR_CALCULATED_FIELD"
	CodeNotFound                RewriteCode = "NOT_FOUND"
	CodeRenderError             RewriteCode = "RENDER_ERROR"
	CodeInternal                RewriteCode = "INTERNAL"
)

// RewriteError is returned by the resolver, renderer, rollup expander and
// macro processor. Model, Column and Relationship name the offending object
// when known.
type RewriteError struct {
	Code         RewriteCode
	Message      string
	Model        string
	Column       string
	Relationship string
	Err          error
}

func (e *RewriteError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)

	var ctx []string
	if e.Model != "" {
		ctx = append(ctx, "model="+e.Model)
	}
	if e.Column != "" {
		ctx = append(ctx, "column="+e.Column)
	}
	if e.Relationship != "" {
		ctx = append(ctx, "relationship="+e.Relationship)
	}
	if len(ctx) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(ctx, ", "))
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *RewriteError) Unwrap() error { return e.Err }

// ErrRewrite creates a RewriteError with a formatted message.
func ErrRewrite(code RewriteCode, format string, args ...interface{}) *RewriteError {
	return &RewriteError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithModel sets the model name unless one is already recorded.
func (e *RewriteError) WithModel(name string) *RewriteError {
	if e.Model == "" {
		e.Model = name
	}
	return e
}

// WithColumn sets the column name unless one is already recorded.
func (e *RewriteError) WithColumn(name string) *RewriteError {
	if e.Column == "" {
		e.Column = name
	}
	return e
}

// WithRelationship sets the relationship name unless one is already recorded.
func (e *RewriteError) WithRelationship(name string) *RewriteError {
	if e.Relationship == "" {
		e.Relationship = name
	}
	return e
}

// Wrap records the underlying cause.
func (e *RewriteError) Wrap(err error) *RewriteError {
	e.Err = err
	return e
}

// IsUserError reports whether err is caused by the caller's input (bad
// manifest, bad query or bad template) rather than a rewriter bug.
func IsUserError(err error) bool {
	var rwErr *RewriteError
	if errors.As(err, &rwErr) {
		return rwErr.Code != CodeInternal && rwErr.Code != CodeRenderError
	}
	var valErr *ValidationError
	var nfErr *NotFoundError
	return errors.As(err, &valErr) || errors.As(err, &nfErr)
}

// RewriteCodeOf returns the code of the RewriteError in err's chain, or "".
func RewriteCodeOf(err error) RewriteCode {
	var rwErr *RewriteError
	if errors.As(err, &rwErr) {
		return rwErr.Code
	}
	return ""
}
