package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrorKind classifies a ProcessingError into one of the four failure
// categories a pipeline execution can end in.
type ErrorKind string

const (
	ErrFileRead             ErrorKind = "file-read"
	ErrGeneration           ErrorKind = "generation"
	ErrOutputWrite          ErrorKind = "output-write"
	ErrFileTooLargeForTransport ErrorKind = "file-too-large-for-transport"
)

// ProcessingError is the pipeline's error envelope. Once a stage produces
// one, every downstream stage forwards it verbatim until the notify stage
// renders it. Retryable is always set explicitly by the constructors; the
// retrying invoker treats it as authoritative.
type ProcessingError struct {
	Kind      ErrorKind         `json:"errorType"`
	Message   string            `json:"errorMessage"`
	Timestamp time.Time         `json:"timestamp"`
	Key       string            `json:"key,omitempty"`
	Retryable bool              `json:"retryable"`
	Details   map[string]string `json:"details,omitempty"`
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewSizeLimitError reports a file over the storage size ceiling.
func NewSizeLimitError(key string, actualSize, maxSize int64) *ProcessingError {
	return &ProcessingError{
		Kind:      ErrFileRead,
		Message:   fmt.Sprintf("file size %d bytes exceeds maximum of %d bytes", actualSize, maxSize),
		Timestamp: time.Now().UTC(),
		Key:       key,
		Retryable: false,
		Details: map[string]string{
			"actualSize": strconv.FormatInt(actualSize, 10),
			"maxSize":    strconv.FormatInt(maxSize, 10),
		},
	}
}

// NewTransportLimitError reports a file the store accepts but the
// orchestration payload ceiling rejects. Deliberately a distinct kind from
// the storage size check.
func NewTransportLimitError(key string, actualSize, maxSize int64) *ProcessingError {
	return &ProcessingError{
		Kind:      ErrFileTooLargeForTransport,
		Message:   fmt.Sprintf("file size %d bytes exceeds transport payload limit of %d bytes", actualSize, maxSize),
		Timestamp: time.Now().UTC(),
		Key:       key,
		Retryable: false,
		Details: map[string]string{
			"actualSize": strconv.FormatInt(actualSize, 10),
			"maxSize":    strconv.FormatInt(maxSize, 10),
		},
	}
}

// NewFormatError reports an unsupported file extension.
func NewFormatError(key, actualFormat string, supported []FileType) *ProcessingError {
	names := make([]string, len(supported))
	for i, t := range supported {
		names[i] = string(t)
	}
	return &ProcessingError{
		Kind:      ErrFileRead,
		Message:   fmt.Sprintf("unsupported file format %q", actualFormat),
		Timestamp: time.Now().UTC(),
		Key:       key,
		Retryable: false,
		Details: map[string]string{
			"actualFormat":     actualFormat,
			"supportedFormats": strings.Join(names, ", "),
		},
	}
}

// NewContentLengthError reports extracted text outside the allowed bounds.
func NewContentLengthError(key string, actualLength, bound int, tooShort bool) *ProcessingError {
	boundName, rel := "minLength", "below minimum"
	if !tooShort {
		boundName, rel = "maxLength", "above maximum"
	}
	return &ProcessingError{
		Kind:      ErrFileRead,
		Message:   fmt.Sprintf("extracted content length %d is %s of %d characters", actualLength, rel, bound),
		Timestamp: time.Now().UTC(),
		Key:       key,
		Retryable: false,
		Details: map[string]string{
			"actualLength": strconv.Itoa(actualLength),
			boundName:      strconv.Itoa(bound),
		},
	}
}

// NewReadError reports a fetch or extraction failure.
func NewReadError(key, message string, cause error) *ProcessingError {
	e := &ProcessingError{
		Kind:      ErrFileRead,
		Message:   message,
		Timestamp: time.Now().UTC(),
		Key:       key,
		Retryable: false,
	}
	if cause != nil {
		e.Details = map[string]string{"cause": cause.Error()}
	}
	return e
}

// NewGenerationError reports a completion-capability or response-quality
// failure. Retryability is decided by the caller at the point of detection.
func NewGenerationError(key, message string, retryable bool) *ProcessingError {
	return &ProcessingError{
		Kind:      ErrGeneration,
		Message:   message,
		Timestamp: time.Now().UTC(),
		Key:       key,
		Retryable: retryable,
	}
}

// NewWriteError reports a persistence failure.
func NewWriteError(key, message string, retryable bool, cause error) *ProcessingError {
	e := &ProcessingError{
		Kind:      ErrOutputWrite,
		Message:   message,
		Timestamp: time.Now().UTC(),
		Key:       key,
		Retryable: retryable,
	}
	if cause != nil {
		e.Details = map[string]string{"cause": cause.Error()}
	}
	return e
}

// WithDetail returns e after recording one extra detail entry. Intended for
// the constructor call site only; inherited errors are never mutated.
func (e *ProcessingError) WithDetail(k, v string) *ProcessingError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[k] = v
	return e
}
