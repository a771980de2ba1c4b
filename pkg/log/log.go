package log

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Logger is the minimal leveled logger accepted by every component config.
type Logger interface {
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)
}

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unrecognized log level %q", s)
}

type ConsoleLogger struct {
	mu     *sync.Mutex
	out    io.Writer
	level  Level
	prefix string
	labels map[Level]func(a ...interface{}) string
	now    func() time.Time
}

// NewConsoleLogger writes one line per message to w, dropping anything below
// level. Labels are colored when w is a terminal.
func NewConsoleLogger(w io.Writer, level Level) *ConsoleLogger {
	return &ConsoleLogger{
		mu:    &sync.Mutex{},
		out:   w,
		level: level,
		labels: map[Level]func(a ...interface{}) string{
			LevelDebug: color.New(color.FgCyan).SprintFunc(),
			LevelInfo:  color.New(color.FgGreen, color.Bold).SprintFunc(),
			LevelWarn:  color.New(color.FgYellow, color.Bold).SprintFunc(),
			LevelError: color.New(color.FgRed, color.Bold).SprintFunc(),
		},
		now: time.Now,
	}
}

// WithPrefix returns a logger sharing the same output that tags every line
// with prefix.
func (l *ConsoleLogger) WithPrefix(prefix string) *ConsoleLogger {
	return &ConsoleLogger{
		mu:     l.mu,
		out:    l.out,
		level:  l.level,
		prefix: prefix,
		labels: l.labels,
		now:    l.now,
	}
}

func (l *ConsoleLogger) Debug(msg string) { l.write(LevelDebug, msg) }
func (l *ConsoleLogger) Info(msg string)  { l.write(LevelInfo, msg) }
func (l *ConsoleLogger) Warn(msg string)  { l.write(LevelWarn, msg) }
func (l *ConsoleLogger) Error(msg string) { l.write(LevelError, msg) }

func (l *ConsoleLogger) write(level Level, msg string) {
	if level < l.level {
		return
	}

	var sb strings.Builder
	sb.WriteString(l.now().Format("15:04:05.000"))
	sb.WriteString(" ")
	sb.WriteString(l.labels[level]("[" + level.String() + "]"))
	sb.WriteString(" ")
	if l.prefix != "" {
		sb.WriteString(l.prefix)
		sb.WriteString(": ")
	}
	sb.WriteString(msg)
	sb.WriteString("\n")

	l.mu.Lock()
	defer l.mu.Unlock()
	io.WriteString(l.out, sb.String())
}

type nopLogger struct{}

func (nopLogger) Debug(string) {}
func (nopLogger) Info(string)  {}
func (nopLogger) Warn(string)  {}
func (nopLogger) Error(string) {}

// Nop discards everything.
var Nop Logger = nopLogger{}
