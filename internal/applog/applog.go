package applog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	maxFileSize = 5 << 20 // 5 MB
	maxValueLen = 200
	truncSuffix = "…"
	fileName    = "tabgruppen.log"
)

var (
	mu   sync.Mutex
	file *os.File
	echo io.Writer
)

// Init opens the log file for appending. Call once at startup.
// If the file exceeds 5 MB, it is rotated (renamed to .log.1) before opening.
// Safe to skip: all log calls become no-ops if not initialized.
func Init(dir string) error {
	path := filepath.Join(dir, fileName)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	if info, err := os.Stat(path); err == nil && info.Size() > maxFileSize {
		os.Rename(path, path+".1")
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	mu.Lock()
	file = f
	mu.Unlock()
	return nil
}

// DefaultDir returns ~/.local/share/tabgruppen.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "share", "tabgruppen")
}

// SetEcho mirrors every log line to w (nil disables). Used by `serve --verbose`.
func SetEcho(w io.Writer) {
	mu.Lock()
	echo = w
	mu.Unlock()
}

// Close flushes and closes the log file.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		file.Close()
		file = nil
	}
}

// Logger carries key/value pairs that are prepended to every line it writes.
type Logger struct {
	kv []any
}

// With returns a Logger bound to the given key/value pairs.
//
//	log := applog.With("tab", tab.ID, "url", tab.URL)
//	log.Error("organize.group", err, "rule", rule.Name)
func With(kv ...any) Logger {
	return Logger{kv: kv}
}

// With returns a copy of l with more pairs bound.
func (l Logger) With(kv ...any) Logger {
	merged := make([]any, 0, len(l.kv)+len(kv))
	merged = append(merged, l.kv...)
	merged = append(merged, kv...)
	return Logger{kv: merged}
}

func (l Logger) Info(event string, kv ...any) {
	write("INFO", event, nil, append(l.kv[:len(l.kv):len(l.kv)], kv...))
}

func (l Logger) Warn(event string, err error, kv ...any) {
	write("WARN", event, err, append(l.kv[:len(l.kv):len(l.kv)], kv...))
}

func (l Logger) Error(event string, err error, kv ...any) {
	write("ERROR", event, err, append(l.kv[:len(l.kv):len(l.kv)], kv...))
}

// Info logs a structured event line.
//
//	applog.Info("ws.connected", "remote", addr)
//	applog.Info("rules.saved", "count", 3)
func Info(event string, kv ...any) {
	write("INFO", event, nil, kv)
}

// Warn logs an expected failure, such as a tab closing mid-operation.
func Warn(event string, err error, kv ...any) {
	write("WARN", event, err, kv)
}

// Error logs an event with an error.
//
//	applog.Error("ws.send", err, "action", "moveGroup")
func Error(event string, err error, kv ...any) {
	write("ERROR", event, err, kv)
}

// Format renders one log line without the trailing newline. Exposed for tests.
func Format(ts time.Time, level, event string, err error, kv []any) string {
	var b strings.Builder
	b.WriteString(ts.UTC().Format("2006-01-02T15:04:05.000Z"))
	b.WriteByte(' ')
	b.WriteString(level)
	b.WriteByte(' ')
	b.WriteString(event)

	if err != nil {
		b.WriteString(" err=")
		b.WriteString(quote(err.Error()))
	}

	for i := 0; i+1 < len(kv); i += 2 {
		b.WriteByte(' ')
		b.WriteString(fmt.Sprint(kv[i]))
		b.WriteByte('=')
		b.WriteString(quote(fmt.Sprint(kv[i+1])))
	}
	return b.String()
}

func write(level, event string, err error, kv []any) {
	mu.Lock()
	f, w := file, echo
	mu.Unlock()
	if f == nil && w == nil {
		return
	}

	line := Format(time.Now(), level, event, err, kv) + "\n"

	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		file.WriteString(line)
	}
	if echo != nil {
		io.WriteString(echo, line)
	}
}

func quote(s string) string {
	if len(s) > maxValueLen {
		s = s[:maxValueLen] + truncSuffix
	}
	if s == "" {
		return `""`
	}
	if strings.ContainsAny(s, " \t\n\"") {
		return "\"" + strings.ReplaceAll(s, "\"", "\\\"") + "\""
	}
	return s
}
