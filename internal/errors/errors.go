// Package errors defines the typed error kinds used across the training
// pipeline (spec §7). Each kind carries enough context for the CLI to
// print a diagnostic naming the offending document, bucket, or field,
// and composes with errors.Is/errors.As via Unwrap.
package errors

import (
	"fmt"
	"time"
)

// ErrorType tags which of the pipeline's error kinds an error belongs to.
type ErrorType string

const (
	ErrorTypeConfig          ErrorType = "config"
	ErrorTypeEmptyCorpus     ErrorType = "empty_corpus"
	ErrorTypeIO              ErrorType = "io"
	ErrorTypeScannerOverflow ErrorType = "scanner_overflow"
	ErrorTypeFormat          ErrorType = "format"
	ErrorTypeNumeric         ErrorType = "numeric"
)

// ConfigError reports mutually exclusive flags, missing required paths,
// or non-positive numeric parameters.
type ConfigError struct {
	Field      string
	Value      string
	Underlying error
}

// NewConfigError creates a new config error for the named field.
func NewConfigError(field, value string, err error) *ConfigError {
	return &ConfigError{Field: field, Value: value, Underlying: err}
}

func (e *ConfigError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("config error: field %s (value %q): %v", e.Field, e.Value, e.Underlying)
	}
	return fmt.Sprintf("config error: field %s (value %q)", e.Field, e.Value)
}

func (e *ConfigError) Unwrap() error { return e.Underlying }

// EmptyCorpusError reports that no documents survived indexing/pruning.
type EmptyCorpusError struct {
	Root      string
	MinDomain int
}

// NewEmptyCorpusError creates an EmptyCorpusError for the given root.
func NewEmptyCorpusError(root string, minDomain int) *EmptyCorpusError {
	return &EmptyCorpusError{Root: root, MinDomain: minDomain}
}

func (e *EmptyCorpusError) Error() string {
	return fmt.Sprintf("empty corpus: no documents remain under %s after min_domain=%d pruning", e.Root, e.MinDomain)
}

// IOError wraps a filesystem operation failure. Op names the failing
// operation ("read", "append", "rename", "walk"); Path is the file or
// directory involved. Callers do not retry the operation; the error is
// returned as is, transient or not.
type IOError struct {
	Op         string
	Path       string
	Underlying error
	Timestamp  time.Time
}

// NewIOError creates a new IOError for op on path.
func NewIOError(op, path string, err error) *IOError {
	return &IOError{Op: op, Path: path, Underlying: err, Timestamp: time.Now()}
}

func (e *IOError) Error() string {
	return fmt.Sprintf("io %s failed for %s: %v", e.Op, e.Path, e.Underlying)
}

func (e *IOError) Unwrap() error { return e.Underlying }

// ScannerOverflowError reports that the Aho-Corasick state count
// exceeded the widened index type. Fatal; the caller must reduce the
// feature count.
type ScannerOverflowError struct {
	NumStates int
	Limit     int
}

// NewScannerOverflowError creates a ScannerOverflowError.
func NewScannerOverflowError(numStates, limit int) *ScannerOverflowError {
	return &ScannerOverflowError{NumStates: numStates, Limit: limit}
}

func (e *ScannerOverflowError) Error() string {
	return fmt.Sprintf("scanner overflow: %d states exceeds limit %d; reduce the feature count", e.NumStates, e.Limit)
}

// FormatError reports a malformed feature file or unreadable bucket
// record.
type FormatError struct {
	Path       string
	Underlying error
}

// NewFormatError creates a FormatError for the given source.
func NewFormatError(path string, err error) *FormatError {
	return &FormatError{Path: path, Underlying: err}
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("format error in %s: %v", e.Path, e.Underlying)
}

func (e *FormatError) Unwrap() error { return e.Underlying }

// NumericError reports a non-finite value produced during IG or NB
// computation.
type NumericError struct {
	Context string
	Value   float64
}

// NewNumericError creates a NumericError.
func NewNumericError(context string, value float64) *NumericError {
	return &NumericError{Context: context, Value: value}
}

func (e *NumericError) Error() string {
	return fmt.Sprintf("numeric error in %s: non-finite value %v", e.Context, e.Value)
}

// MultiError aggregates multiple errors, e.g. per-document read
// failures collected across a chunk.
type MultiError struct {
	Errors []error
}

// NewMultiError creates a MultiError, dropping any nil entries.
func NewMultiError(errs []error) *MultiError {
	filtered := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	return &MultiError{Errors: filtered}
}

func (e *MultiError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "no errors"
	case 1:
		return e.Errors[0].Error()
	default:
		return fmt.Sprintf("%d errors: %v", len(e.Errors), e.Errors)
	}
}

func (e *MultiError) Unwrap() []error { return e.Errors }
