package logger

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

var Log *slog.Logger

// Audit records one line per sync run. Falls back to Log when nil.
var Audit *slog.Logger

type asyncWriter struct {
	ch chan []byte
}

func (a *asyncWriter) Write(p []byte) (n int, err error) {
	cp := make([]byte, len(p))
	copy(cp, p)
	select {
	case a.ch <- cp:
	default:
		// drop if queue full to avoid blocking
	}
	return len(p), nil
}

var (
	logCh     chan []byte
	logStopCh chan struct{}
	logWG     sync.WaitGroup
)

// ParseLevel maps "debug", "info", "warn" and "error" to a slog level.
// Anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Init sets up the global logger with an async buffered text handler.
// sink is empty for stdout or "file:/path" (a bare path also works).
// DATIMSYNC_LOG_SINK overrides sink.
func Init(level, sink string) {
	if v := os.Getenv("DATIMSYNC_LOG_SINK"); v != "" {
		sink = v
	}
	logCh = make(chan []byte, 10000)
	logStopCh = make(chan struct{})
	Log = slog.New(slog.NewTextHandler(&asyncWriter{ch: logCh}, &slog.HandlerOptions{Level: ParseLevel(level)}))

	logWG.Add(1)
	go func() {
		defer logWG.Done()
		out, closer := openSink(sink)
		buf := bufio.NewWriterSize(out, 8192)
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case b := <-logCh:
				buf.Write(b)
			case <-ticker.C:
				buf.Flush()
			case <-logStopCh:
			drain:
				for {
					select {
					case b := <-logCh:
						buf.Write(b)
					default:
						break drain
					}
				}
				buf.Flush()
				if closer != nil {
					closer.Close()
				}
				return
			}
		}
	}()
}

func openSink(sink string) (io.Writer, io.Closer) {
	path := strings.TrimPrefix(sink, "file:")
	if path == "" {
		return os.Stdout, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create log dir for %s: %v\n", path, err)
		return os.Stdout, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log file %s: %v\n", path, err)
		return os.Stdout, nil
	}
	return f, f
}

// New returns a synchronous logger writing to w. Used where a logger is
// injected, and in tests.
func New(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

// Default returns Log, or a discard logger before Init.
func Default() *slog.Logger {
	if Log == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return Log
}

// AttachAuditFileSink configures a JSON audit logger writing to
// <auditDir>/audit.log, rotating the file once it passes 10MB.
func AttachAuditFileSink(auditDir string) error {
	if auditDir == "" {
		return fmt.Errorf("empty audit dir")
	}
	if fi, err := os.Lstat(auditDir); err == nil {
		if fi.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("audit path is a symlink: %s", auditDir)
		}
		if !fi.IsDir() {
			return fmt.Errorf("audit path exists and is not a directory: %s", auditDir)
		}
	}
	if err := os.MkdirAll(auditDir, 0o700); err != nil {
		return fmt.Errorf("failed to create audit directory: %w", err)
	}
	fname := filepath.Join(auditDir, "audit.log")
	if fi, err := os.Stat(fname); err == nil {
		const maxSize = 10 * 1024 * 1024
		if fi.Size() > maxSize {
			bak := fname + "." + fi.ModTime().UTC().Format("20060102T150405Z")
			_ = os.Rename(fname, bak)
		}
	}
	f, err := os.OpenFile(fname, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open audit log file: %w", err)
	}
	Audit = slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelInfo}))
	Audit.Info("audit_sink_attached", "path", fname)
	return nil
}

// AuditLogger returns Audit, falling back to Default.
func AuditLogger() *slog.Logger {
	if Audit != nil {
		return Audit
	}
	return Default()
}

// Sync flushes any buffered logs and stops the writer.
func Sync() {
	if logStopCh != nil {
		close(logStopCh)
		logWG.Wait()
		logStopCh = nil
	}
}

// Debug logs with slog-style key/value pairs.
func Debug(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Debug(msg, args...)
}

// Info logs with slog-style key/value pairs.
func Info(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Info(msg, args...)
}

// Warn logs with slog-style key/value pairs.
func Warn(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Warn(msg, args...)
}

// Error logs with slog-style key/value pairs.
func Error(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Error(msg, args...)
}

// LogSummary prints a titled, hyphenated block to w for terminal readers,
// e.g. the per batch counts at the end of a run.
func LogSummary(w io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	human := strings.ReplaceAll(title, "_", " ")
	if human != "" {
		human = strings.ToUpper(human[:1]) + human[1:]
	}
	header := "== " + human + " "
	const width = 60
	if len(header) < width {
		header += strings.Repeat("=", width-len(header))
	}
	fmt.Fprintln(w, header)
	for _, it := range items {
		fmt.Fprintln(w, "- "+it)
	}
	fmt.Fprintln(w)
}
