package syncer

import (
	"fmt"
	"time"

	"datimsync/pkg/dhis2"
	"datimsync/pkg/diff"
	"datimsync/pkg/ocl"

	"github.com/dustin/go-humanize"
)

type Status string

const (
	StatusNoChanges     Status = "no_changes"
	StatusDataCheckOnly Status = "data_check_only"
	StatusTestMode      Status = "test_mode"
	StatusComplete      Status = "complete"
	// StatusUnknown means the script was submitted but the import did not
	// finish within the wait budget.
	StatusUnknown Status = "submitted_status_unknown"
	StatusFailed  Status = "failed"
)

// severity orders statuses so a run reports its worst batch.
func (s Status) severity() int {
	switch s {
	case StatusNoChanges:
		return 0
	case StatusDataCheckOnly:
		return 1
	case StatusTestMode:
		return 2
	case StatusComplete:
		return 3
	case StatusUnknown:
		return 4
	case StatusFailed:
		return 5
	}
	return -1
}

// Report describes one run.
type Report struct {
	RunID    string        `json:"run_id"`
	Status   Status        `json:"status"`
	Period   string        `json:"period"`
	Started  time.Time     `json:"started"`
	Finished time.Time     `json:"finished"`
	Batches  []BatchReport `json:"batches"`
	Error    string        `json:"error,omitempty"`
}

// BatchReport describes one batch of a run.
type BatchReport struct {
	Name string `json:"name"`
	// Skipped is set when the DHIS2 export matched the cached previous one.
	Skipped     bool         `json:"skipped,omitempty"`
	Status      Status       `json:"status"`
	DHIS2       dhis2.Counts `json:"dhis2"`
	OCL         ocl.Stats    `json:"ocl"`
	Diff        diff.Counts  `json:"diff"`
	Mutations   int          `json:"mutations"`
	TaskID      string       `json:"task_id,omitempty"`
	FailedItems int          `json:"failed_items,omitempty"`
	Files       []string     `json:"files,omitempty"`
	Error       string       `json:"error,omitempty"`
}

func (b *BatchReport) addFile(f string) {
	if f != "" {
		b.Files = append(b.Files, f)
	}
}

func (r *Report) Duration() time.Duration { return r.Finished.Sub(r.Started) }

// SummaryLines renders the report for logger.LogSummary.
func (r *Report) SummaryLines() []string {
	out := []string{
		fmt.Sprintf("run %s: %s in %s", r.RunID, r.Status, r.Duration().Round(time.Millisecond)),
	}
	for _, b := range r.Batches {
		line := fmt.Sprintf("%s: %s, %s indicators, %s disaggregates, %s mappings, %s create, %s update, %s orphaned, %s mutations",
			b.Name, b.Status,
			humanize.Comma(int64(b.DHIS2.Indicators)),
			humanize.Comma(int64(b.DHIS2.Disaggregates)),
			humanize.Comma(int64(b.DHIS2.Mappings)),
			humanize.Comma(int64(b.Diff.Create)),
			humanize.Comma(int64(b.Diff.Update)),
			humanize.Comma(int64(b.Diff.Orphaned)),
			humanize.Comma(int64(b.Mutations)),
		)
		if b.DHIS2.UnknownDatasets > 0 {
			line += fmt.Sprintf(", %d unknown dataset links", b.DHIS2.UnknownDatasets)
		}
		if b.Error != "" {
			line += ": " + b.Error
		}
		out = append(out, line)
	}
	if r.Error != "" {
		out = append(out, "error: "+r.Error)
	}
	return out
}

func worst(batches []BatchReport) Status {
	st := StatusNoChanges
	for _, b := range batches {
		if b.Status.severity() > st.severity() {
			st = b.Status
		}
	}
	return st
}
