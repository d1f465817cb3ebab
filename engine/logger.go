package engine

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	defaultLogLines = 1000
	fileQueueLen    = 256
	flushEvery      = 100 * time.Millisecond
)

// Logger is the session log shared by the console and the drones. It keeps
// the last N lines for display and mirrors every line to an optional file.
// Being an io.Writer, it sits under a slog handler.
type Logger struct {
	mu     sync.Mutex
	ring   []string
	next   int
	full   bool
	closed bool

	file   *os.File
	lines  chan string
	notify chan struct{}
	done   chan struct{}
}

// NewLogger returns a logger holding up to capacity lines. A non-empty path
// is opened for append; if that fails the logger stays memory-only.
func NewLogger(path string, capacity int) *Logger {
	if capacity <= 0 {
		capacity = defaultLogLines
	}

	l := &Logger{
		ring:   make([]string, capacity),
		lines:  make(chan string, fileQueueLen),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	if path != "" {
		l.file, _ = openLogFile(path)
	}

	go l.mirror()
	return l
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
}

// Slog returns a text-format slog.Logger writing into l.
func (l *Logger) Slog(level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(l, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.String(slog.TimeKey, a.Value.Time().Format(time.TimeOnly))
			}
			return a
		},
	}))
}

func (l *Logger) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		l.Append(line)
	}
	return len(p), nil
}

// Append records one line. Lines written after Close are dropped.
func (l *Logger) Append(line string) {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}

	l.ring[l.next] = line
	l.next++
	if l.next == len(l.ring) {
		l.next = 0
		l.full = true
	}

	// The file mirror is best effort; a burst beyond the queue is only kept
	// in memory.
	select {
	case l.lines <- line:
	default:
	}
	select {
	case l.notify <- struct{}{}:
	default:
	}
}

// ReadAll returns the buffered lines oldest first, newline terminated.
func (l *Logger) ReadAll() string {
	if l == nil {
		return ""
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var sb strings.Builder
	emit := func(lines []string) {
		for _, s := range lines {
			sb.WriteString(s)
			sb.WriteByte('\n')
		}
	}
	if l.full {
		emit(l.ring[l.next:])
	}
	emit(l.ring[:l.next])
	return sb.String()
}

// Updated delivers one token after any burst of new lines and is closed by
// Close.
func (l *Logger) Updated() <-chan struct{} {
	if l == nil {
		return nil
	}
	return l.notify
}

func (l *Logger) mirror() {
	defer close(l.done)

	if l.file == nil {
		for range l.lines {
		}
		return
	}

	w := bufio.NewWriter(l.file)
	ticker := time.NewTicker(flushEvery)
	defer ticker.Stop()

	for {
		select {
		case line, ok := <-l.lines:
			if !ok {
				w.Flush()
				return
			}
			w.WriteString(line)
			w.WriteByte('\n')
		case <-ticker.C:
			w.Flush()
		}
	}
}

// Close flushes the file mirror and releases it. It is safe to call twice.
func (l *Logger) Close() {
	if l == nil {
		return
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	close(l.lines)
	close(l.notify)
	l.mu.Unlock()

	<-l.done
	if l.file != nil {
		l.file.Close()
	}
}
