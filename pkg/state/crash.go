package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"datimsync/pkg/importer"
	"datimsync/pkg/logger"
)

// FailedItem is one rejected bulk import item, kept for later inspection.
type FailedItem struct {
	Timestamp time.Time     `json:"timestamp"`
	RunID     string        `json:"run_id"`
	Batch     string        `json:"batch"`
	TaskID    string        `json:"task_id"`
	Item      importer.Item `json:"item"`
}

// FailedItemWriter appends failed items to a daily jsonl file.
type FailedItemWriter struct {
	mu          sync.Mutex
	basePath    string
	current     *os.File
	currentDate string
	now         func() time.Time
}

func NewFailedItemWriter(basePath string) *FailedItemWriter {
	return &FailedItemWriter{basePath: basePath, now: time.Now}
}

// Write records every non-2xx item of st and returns how many were written.
func (fw *FailedItemWriter) Write(runID, batch string, st *importer.Status) (int, error) {
	if fw == nil || st == nil {
		return 0, nil
	}
	fw.mu.Lock()
	defer fw.mu.Unlock()

	n := 0
	for _, it := range st.Items {
		if it.OK() {
			continue
		}
		if err := fw.open(); err != nil {
			return n, err
		}
		data, err := json.Marshal(FailedItem{
			Timestamp: fw.now(),
			RunID:     runID,
			Batch:     batch,
			TaskID:    st.TaskID,
			Item:      it,
		})
		if err != nil {
			return n, fmt.Errorf("marshal failed item: %w", err)
		}
		if _, err := fw.current.Write(append(data, '\n')); err != nil {
			return n, fmt.Errorf("write failed item: %w", err)
		}
		n++
	}
	if n > 0 {
		logger.Warn("failed_items_written", "batch", batch, "task", st.TaskID, "count", n)
	}
	return n, nil
}

func (fw *FailedItemWriter) open() error {
	date := fw.now().Format("2006-01-02")
	if fw.current != nil && fw.currentDate == date {
		return nil
	}
	if fw.current != nil {
		fw.current.Close()
	}
	if err := os.MkdirAll(fw.basePath, 0o755); err != nil {
		return fmt.Errorf("create failed items directory: %w", err)
	}
	name := filepath.Join(fw.basePath, fmt.Sprintf("failed_items_%s.jsonl", date))
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open failed items file: %w", err)
	}
	fw.current = f
	fw.currentDate = date
	return nil
}

func (fw *FailedItemWriter) Close() error {
	if fw == nil {
		return nil
	}
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.current != nil {
		err := fw.current.Close()
		fw.current = nil
		return err
	}
	return nil
}

// Crash writes a crash dump to the crash folder with diagnostics and terminates the process.
func Crash(reason string, err error) {
	crashDir := PathsVar.Crash
	if crashDir == "" {
		logger.Error("crash_path_not_initialized", "reason", reason, "error", err)
		os.Exit(1)
	}
	if e := os.MkdirAll(crashDir, 0o700); e != nil {
		logger.Error("failed_to_create_crash_dir", "error", e, "reason", reason)
		os.Exit(1)
	}

	dumpPath := filepath.Join(crashDir, fmt.Sprintf("crash-%d.log", time.Now().UnixNano()))
	f, ferr := os.Create(dumpPath)
	if ferr != nil {
		logger.Error("failed_to_create_crash_dump", "error", ferr, "reason", reason)
		os.Exit(1)
	}

	fmt.Fprintf(f, "time: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(f, "reason: %s\n", reason)
	if err != nil {
		fmt.Fprintf(f, "error: %v\n", err)
	}
	fmt.Fprintf(f, "\n--- goroutine stacks ---\n")
	buf := make([]byte, 1<<20)
	n := runtime.Stack(buf, true)
	f.Write(buf[:n])
	f.Close()

	logger.Error("crash_dump_written_exiting", "path", dumpPath, "reason", reason, "error", err)
	logger.Sync()
	os.Exit(1)
}
