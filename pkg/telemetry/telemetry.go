package telemetry

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type Step struct {
	Name     string  `json:"name"`
	Duration float64 `json:"duration_ms"`
}

// Trace times the steps of one sync run or one batch.
type Trace struct {
	Name     string            `json:"name"`
	Start    time.Time         `json:"start"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Steps    []Step            `json:"steps"`
	TotalMS  float64           `json:"total_ms"`
	lastMark time.Time
	mu       sync.Mutex
	tel      *Telemetry
}

// Telemetry writes finished traces to one jsonl file per trace name.
type Telemetry struct {
	dir         string
	mu          sync.Mutex
	files       map[string]*os.File
	buffers     map[string]*bufio.Writer
	traces      chan *Trace
	stopCh      chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
	flushInt    time.Duration
	maxFileSize int64
	bufferSize  int
}

// New starts the background writer. Files land in dir.
func New(dir string, bufferSize, queueCapacity int, flushInterval time.Duration, maxFileSize int64) (*Telemetry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if flushInterval <= 0 {
		flushInterval = 2 * time.Second
	}
	if queueCapacity <= 0 {
		queueCapacity = 256
	}
	t := &Telemetry{
		dir:         dir,
		files:       make(map[string]*os.File),
		buffers:     make(map[string]*bufio.Writer),
		traces:      make(chan *Trace, queueCapacity),
		stopCh:      make(chan struct{}),
		flushInt:    flushInterval,
		maxFileSize: maxFileSize,
		bufferSize:  bufferSize,
	}
	t.wg.Add(1)
	go t.writerLoop()
	return t, nil
}

// Track starts a trace. A nil Telemetry returns a trace that records marks
// but is never written.
func (t *Telemetry) Track(name string, attrs ...string) *Trace {
	now := time.Now()
	tr := &Trace{Name: name, Start: now, lastMark: now, tel: t}
	for i := 0; i+1 < len(attrs); i += 2 {
		if tr.Attrs == nil {
			tr.Attrs = map[string]string{}
		}
		tr.Attrs[attrs[i]] = attrs[i+1]
	}
	return tr
}

// Mark records the elapsed duration since last mark.
func (tr *Trace) Mark(label string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	now := time.Now()
	tr.Steps = append(tr.Steps, Step{Name: label, Duration: now.Sub(tr.lastMark).Seconds() * 1000})
	tr.lastMark = now
}

// Finish finalizes the trace and enqueues it for background writing.
// Safe to call multiple times or via defer.
func (tr *Trace) Finish() {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.TotalMS = time.Since(tr.Start).Seconds() * 1000
	if tr.tel == nil {
		return
	}
	var sum float64
	for _, s := range tr.Steps {
		sum += s.Duration
	}
	if remaining := tr.TotalMS - sum; remaining > 0.001 {
		tr.Steps = append(tr.Steps, Step{Name: "unmarked", Duration: remaining})
	}
	select {
	case tr.tel.traces <- tr:
	case <-tr.tel.stopCh:
	}
	tr.tel = nil
}

func (t *Telemetry) writerLoop() {
	defer t.wg.Done()
	ticker := time.NewTicker(t.flushInt)
	defer ticker.Stop()

	for {
		select {
		case tr := <-t.traces:
			t.write(tr)
		case <-ticker.C:
			t.flush()
		case <-t.stopCh:
		drain:
			for {
				select {
				case tr := <-t.traces:
					t.write(tr)
				default:
					break drain
				}
			}
			t.mu.Lock()
			for _, b := range t.buffers {
				b.Flush()
			}
			for _, f := range t.files {
				f.Sync()
				f.Close()
			}
			t.mu.Unlock()
			return
		}
	}
}

func (t *Telemetry) write(tr *Trace) {
	if tr == nil {
		return
	}
	data, err := json.Marshal(tr)
	if err != nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	b := t.bufferFor(tr.Name)
	b.Write(data)
	b.WriteByte('\n')
}

// flush writes buffers out and truncates files that grew past maxFileSize.
func (t *Telemetry) flush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for name, b := range t.buffers {
		b.Flush()
		f := t.files[name]
		if f == nil || t.maxFileSize <= 0 {
			continue
		}
		if fi, err := f.Stat(); err == nil && fi.Size() > t.maxFileSize {
			f.Close()
			newF, err := os.OpenFile(f.Name(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
			if err != nil {
				delete(t.files, name)
				delete(t.buffers, name)
				continue
			}
			t.files[name] = newF
			t.buffers[name] = bufio.NewWriterSize(newF, t.bufferSize)
			fmt.Fprintf(os.Stderr, "telemetry: truncated %s (size exceeded %d bytes)\n", name, t.maxFileSize)
		}
	}
}

func (t *Telemetry) bufferFor(name string) *bufio.Writer {
	if b, ok := t.buffers[name]; ok {
		return b
	}
	path := filepath.Join(t.dir, name+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "telemetry: failed to open %s: %v\n", path, err)
		return bufio.NewWriter(os.Stderr)
	}
	b := bufio.NewWriterSize(f, t.bufferSize)
	t.files[name] = f
	t.buffers[name] = b
	return b
}

// Close stops the background writer and flushes all remaining data.
func (t *Telemetry) Close() {
	if t == nil {
		return
	}
	t.stopOnce.Do(func() {
		close(t.stopCh)
		t.wg.Wait()
	})
}
