package syncerr

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Error codes, used as the "code" field of run reports and log events
const (
	CodeMalformedExport = "MALFORMED_EXPORT"
	CodeUnreadableInput = "UNREADABLE_INPUT"
	CodeUnknownDataset  = "UNKNOWN_DATASET"
	CodeValidation      = "VALIDATION"
	CodeExecutorTimeout = "EXECUTOR_TIMEOUT"
)

// MalformedExportError reports a document that parsed but is missing a
// required field. It aborts the whole batch.
type MalformedExportError struct {
	Batch        string
	ResourceType string
	Key          string
	Field        string
	Index        int
}

func (e *MalformedExportError) Error() string {
	return fmt.Sprintf("malformed export: batch=%s resource_type=%s key=%s index=%d: missing field %q",
		e.Batch, e.ResourceType, e.Key, e.Index, e.Field)
}

// UnreadableInputError reports provider content that could not be decoded.
type UnreadableInputError struct {
	Source string
	Err    error
}

func (e *UnreadableInputError) Error() string {
	return fmt.Sprintf("unreadable input from %s: %v", e.Source, e.Err)
}

func (e *UnreadableInputError) Unwrap() error { return e.Err }

// UnknownDatasetError records a dataset link that is not in the active
// repositories table. Never fatal; transformers collect these.
type UnknownDatasetError struct {
	Batch     string
	DatasetID string
	Key       string
}

func (e *UnknownDatasetError) Error() string {
	return fmt.Sprintf("unknown dataset %q linked from %s (batch %s)", e.DatasetID, e.Key, e.Batch)
}

// ValidationError is fatal and raised before any diff work.
type ValidationError struct {
	Field string
	Value string
	// Row is 1-based; zero when the error is not about a row.
	Row int
	Msg string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("validation failed")
	if e.Field != "" {
		fmt.Fprintf(&b, ": field %q", e.Field)
	}
	if e.Row > 0 {
		fmt.Fprintf(&b, " on row %d", e.Row)
	}
	if e.Value != "" {
		fmt.Fprintf(&b, " (value %q)", e.Value)
	}
	if e.Msg != "" {
		b.WriteString(": " + e.Msg)
	}
	return b.String()
}

// ExecutorTimeoutError means the import was submitted but did not reach a
// terminal state within the wait budget.
type ExecutorTimeoutError struct {
	TaskID string
	Waited time.Duration
}

func (e *ExecutorTimeoutError) Error() string {
	return fmt.Sprintf("import task %s not finished after %s", e.TaskID, e.Waited)
}

// Code maps an error to its taxonomy code, or "" when it is none of ours.
func Code(err error) string {
	var (
		me *MalformedExportError
		ue *UnreadableInputError
		de *UnknownDatasetError
		ve *ValidationError
		te *ExecutorTimeoutError
	)
	switch {
	case errors.As(err, &me):
		return CodeMalformedExport
	case errors.As(err, &ue):
		return CodeUnreadableInput
	case errors.As(err, &de):
		return CodeUnknownDataset
	case errors.As(err, &ve):
		return CodeValidation
	case errors.As(err, &te):
		return CodeExecutorTimeout
	}
	return ""
}

// IsFatal reports whether err must abort the run.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	switch Code(err) {
	case CodeUnknownDataset, CodeExecutorTimeout:
		return false
	}
	return true
}
