package importer

import (
	"context"
	"time"

	"datimsync/pkg/script"
	"datimsync/pkg/syncerr"
)

type State string

const (
	StatePending  State = "pending"
	StateComplete State = "complete"
	StateFailed   State = "failed"
)

// Item is the per mutation outcome reported by an executor.
type Item struct {
	Key     string `json:"key"`
	Type    string `json:"type"`
	Status  int    `json:"status"`
	Message string `json:"message,omitempty"`
}

func (i Item) OK() bool { return i.Status >= 200 && i.Status < 300 }

type Status struct {
	TaskID string `json:"task_id"`
	State  State  `json:"state"`
	Items  []Item `json:"items,omitempty"`
}

// Failed counts items that did not succeed.
func (s *Status) Failed() int {
	n := 0
	for _, it := range s.Items {
		if !it.OK() {
			n++
		}
	}
	return n
}

func (s *Status) Terminal() bool {
	return s.State == StateComplete || s.State == StateFailed
}

// Executor applies an import script out of process. Submit must not block
// until the import finishes.
type Executor interface {
	Submit(ctx context.Context, muts []script.Mutation) (string, error)
	Poll(ctx context.Context, taskID string) (*Status, error)
}

// Wait polls taskID every interval until it reaches a terminal state. When
// timeout passes first it returns the last status along with an
// ExecutorTimeoutError.
func Wait(ctx context.Context, exec Executor, taskID string, interval, timeout time.Duration) (*Status, error) {
	start := time.Now()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		st, err := exec.Poll(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if st.Terminal() {
			return st, nil
		}
		waited := time.Since(start)
		if waited >= timeout {
			return st, &syncerr.ExecutorTimeoutError{TaskID: taskID, Waited: waited}
		}
		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-ticker.C:
		}
	}
}
