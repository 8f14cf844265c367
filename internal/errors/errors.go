// Package errors provides structured error handling for the templater.
// Errors carry a stable code and category so callers can branch on the
// failure kind and front ends can render them as text or JSON.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode is a unique, stable identifier for a failure kind
type ErrorCode string

// ErrorCategory groups error codes by the subsystem that raises them
type ErrorCategory string

const (
	// CategoryBundle covers archive decoding and encoding (BND100-199)
	CategoryBundle ErrorCategory = "bundle"
	// CategoryText covers structural text parsing (TXT100-199)
	CategoryText ErrorCategory = "text"
	// CategoryConvert covers document and input format detection (CNV200-299)
	CategoryConvert ErrorCategory = "convert"
	// CategoryCompose covers feature application and removal (CMP300-399)
	CategoryCompose ErrorCategory = "compose"
	// CategoryGenerate covers the generation pipeline (GEN400-499)
	CategoryGenerate ErrorCategory = "generate"
	// CategoryStore covers template and feature persistence (STO500-599)
	CategoryStore ErrorCategory = "store"
)

const (
	MalformedBundle       ErrorCode = "BND100"
	MalformedText         ErrorCode = "TXT100"
	NoConvertingFormat    ErrorCode = "CNV200"
	FeatureAlreadyApplied ErrorCode = "CMP300"
	FeatureNotApplied     ErrorCode = "CMP301"
	UnknownProfile        ErrorCode = "GEN400"
	UnknownExtensionType  ErrorCode = "GEN401"
	PluginFailure         ErrorCode = "GEN402"
	NotFound              ErrorCode = "STO500"
	AlreadyExists         ErrorCode = "STO501"
)

// TemplaterError is a structured error raised by the core packages
type TemplaterError struct {
	// Code is the unique error code (e.g., "BND100")
	Code ErrorCode `json:"code"`
	// Type is a machine-readable error type identifier
	Type string `json:"type"`
	// Category is the error category
	Category ErrorCategory `json:"category"`
	// Message is the primary error message
	Message string `json:"message"`
	// Entity names the template, feature, file or plugin involved
	Entity string `json:"entity,omitempty"`
	// Stage names the pipeline phase or codec step that failed
	Stage string `json:"stage,omitempty"`
	// Suggestion provides a hint for fixing the error (optional)
	Suggestion string `json:"suggestion,omitempty"`
	// Cause is the underlying error, if any
	Cause error `json:"-"`
}

// Error implements the error interface
func (e *TemplaterError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s]: %s", e.Type, e.Code, e.Message)
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *TemplaterError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a TemplaterError with the same code, so
// sentinel values like ErrFeatureAlreadyApplied match with errors.Is.
func (e *TemplaterError) Is(target error) bool {
	t, ok := target.(*TemplaterError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// ToJSON returns the error as an indented JSON document
func (e *TemplaterError) ToJSON() (string, error) {
	type alias TemplaterError
	payload := struct {
		*alias
		Cause string `json:"cause,omitempty"`
	}{alias: (*alias)(e)}
	if e.Cause != nil {
		payload.Cause = e.Cause.Error()
	}
	bytes, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// WithSuggestion sets a suggestion for fixing the error
func (e *TemplaterError) WithSuggestion(suggestion string) *TemplaterError {
	e.Suggestion = suggestion
	return e
}

// WithStage sets the stage the error occurred in
func (e *TemplaterError) WithStage(stage string) *TemplaterError {
	e.Stage = stage
	return e
}

// WithCause attaches an underlying error
func (e *TemplaterError) WithCause(cause error) *TemplaterError {
	e.Cause = cause
	return e
}

// Sentinels for use with errors.Is.
var (
	ErrMalformedBundle       = &TemplaterError{Code: MalformedBundle}
	ErrMalformedText         = &TemplaterError{Code: MalformedText}
	ErrNoConvertingFormat    = &TemplaterError{Code: NoConvertingFormat}
	ErrFeatureAlreadyApplied = &TemplaterError{Code: FeatureAlreadyApplied}
	ErrFeatureNotApplied     = &TemplaterError{Code: FeatureNotApplied}
	ErrUnknownProfile        = &TemplaterError{Code: UnknownProfile}
	ErrUnknownExtensionType  = &TemplaterError{Code: UnknownExtensionType}
	ErrPluginFailure         = &TemplaterError{Code: PluginFailure}
	ErrNotFound              = &TemplaterError{Code: NotFound}
	ErrAlreadyExists         = &TemplaterError{Code: AlreadyExists}
)

// HasCode reports whether err (or anything it wraps) carries code.
func HasCode(err error, code ErrorCode) bool {
	var te *TemplaterError
	for err != nil {
		if !stderrors.As(err, &te) {
			return false
		}
		if te.Code == code {
			return true
		}
		err = te.Cause
	}
	return false
}

// CodeOf returns the code of the outermost TemplaterError in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var te *TemplaterError
	if stderrors.As(err, &te) {
		return te.Code, true
	}
	return "", false
}
