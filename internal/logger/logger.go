package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
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
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps LOG_LEVEL values onto a Level, falling back to INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	case "FATAL":
		return LevelFatal
	default:
		return LevelInfo
	}
}

// Logger writes component-tagged lines, coloured by level when the output is a terminal.
type Logger struct {
	out   io.Writer
	mu    sync.Mutex
	level Level
	exit  func(int)

	colors map[Level]*color.Color
	tag    *color.Color
}

func NewLogger() *Logger {
	return New(os.Stdout, LevelInfo)
}

func New(out io.Writer, level Level) *Logger {
	return &Logger{
		out:   out,
		level: level,
		exit:  os.Exit,
		colors: map[Level]*color.Color{
			LevelDebug: color.New(color.FgHiBlack),
			LevelInfo:  color.New(color.FgGreen),
			LevelWarn:  color.New(color.FgYellow),
			LevelError: color.New(color.FgRed),
			LevelFatal: color.New(color.FgHiRed, color.Bold),
		},
		tag: color.New(color.FgCyan),
	}
}

// Discard returns a logger that drops everything; used by tests.
func Discard() *Logger {
	return New(io.Discard, LevelFatal+1)
}

func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

func (l *Logger) Debug(component, msg string) { l.write(LevelDebug, component, msg) }
func (l *Logger) Info(component, msg string)  { l.write(LevelInfo, component, msg) }
func (l *Logger) Warn(component, msg string)  { l.write(LevelWarn, component, msg) }
func (l *Logger) Error(component, msg string) { l.write(LevelError, component, msg) }

func (l *Logger) Fatal(component, msg string) {
	l.write(LevelFatal, component, msg)
	l.exit(1)
}

func (l *Logger) LogProcess(component, msg string) {
	l.write(LevelInfo, component, "⚙️  "+msg)
}

func (l *Logger) LogDatabase(op, db, msg string) {
	l.write(LevelDebug, "DB:"+db, fmt.Sprintf("[%s] %s", op, msg))
}

func (l *Logger) LogKafka(op, topic, msg string) {
	l.write(LevelInfo, "KAFKA:"+topic, fmt.Sprintf("[%s] %s", op, msg))
}

func (l *Logger) LogAPI(method, path, status, duration string) {
	l.write(LevelInfo, "API", fmt.Sprintf("%s %s - %s (%s)", method, path, status, duration))
}

func (l *Logger) LogSecurity(event, msg string) {
	l.write(LevelWarn, "SECURITY", fmt.Sprintf("🔒 [%s] %s", event, msg))
}

func (l *Logger) LogPayment(op, id, msg string) {
	l.write(LevelInfo, "PAYMENT", fmt.Sprintf("[%s] %s: %s", op, id, msg))
}

func (l *Logger) LogInventory(op, id, msg string) {
	l.write(LevelInfo, "INVENTORY", fmt.Sprintf("[%s] %s: %s", op, id, msg))
}

func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if f, ok := l.out.(*os.File); ok && f != os.Stdout && f != os.Stderr {
		_ = f.Close()
	}
}

func (l *Logger) write(level Level, component, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}

	ts := time.Now().Format("2006-01-02 15:04:05.000")
	levelStr := l.colors[level].Sprintf("%-5s", level.String())
	tagStr := l.tag.Sprintf("[%s]", component)
	fmt.Fprintf(l.out, "%s %s %s %s\n", ts, levelStr, tagStr, msg)
}
