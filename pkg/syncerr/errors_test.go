package syncerr

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCode_Wrapped(t *testing.T) {
	tests := []struct {
		err   error
		code  string
		fatal bool
	}{
		{&MalformedExportError{Batch: "MER", ResourceType: "Concept", Key: "de1", Field: "code"}, CodeMalformedExport, true},
		{&UnreadableInputError{Source: "dhis2:MER", Err: errors.New("eof")}, CodeUnreadableInput, true},
		{&UnknownDatasetError{Batch: "MER", DatasetID: "ds9"}, CodeUnknownDataset, false},
		{&ValidationError{Field: "period", Value: "FY99"}, CodeValidation, true},
		{&ExecutorTimeoutError{TaskID: "t1", Waited: time.Second}, CodeExecutorTimeout, false},
		{errors.New("boom"), "", true},
	}
	for _, tt := range tests {
		wrapped := fmt.Errorf("batch MER: %w", tt.err)
		assert.Equal(t, tt.code, Code(wrapped), tt.err.Error())
		assert.Equal(t, tt.fatal, IsFatal(wrapped), tt.err.Error())
	}
	assert.False(t, IsFatal(nil))
}

func TestValidationError_Message(t *testing.T) {
	err := &ValidationError{Field: "MOH_Disag_ID", Row: 3, Msg: "missing field"}
	assert.Equal(t, `validation failed: field "MOH_Disag_ID" on row 3: missing field`, err.Error())
}

func TestMalformedExportError_Context(t *testing.T) {
	err := &MalformedExportError{Batch: "MER", ResourceType: "Concept", Key: "abc", Field: "categoryCombo", Index: 4}
	assert.Contains(t, err.Error(), "batch=MER")
	assert.Contains(t, err.Error(), "key=abc")
	assert.Contains(t, err.Error(), `"categoryCombo"`)
}
