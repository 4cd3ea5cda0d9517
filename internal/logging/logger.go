// Package logging provides structured logging for purge runs. Each run is
// tagged with a run ID that travels through the context so every phase of a
// cascade can be correlated in the output.
package logging

import (
	"encoding/json"
	"io"
	"os"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"time"
)

// Level represents the severity of a log message.
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
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseLevel converts a string to a Level. Unknown values map to LevelInfo.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Format represents the output format for log messages.
type Format int

const (
	FormatJSON Format = iota
	FormatText
)

// ParseFormat converts a string to a Format. Unknown values map to FormatJSON.
func ParseFormat(s string) Format {
	if s == "text" {
		return FormatText
	}
	return FormatJSON
}

// Fields carries structured key/value pairs attached to a log line.
type Fields map[string]any

// Entry is a single log line as written in JSON format.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	RunID     string    `json:"runId,omitempty"`
	File      string    `json:"file,omitempty"`
	Line      int       `json:"line,omitempty"`
	Fields    Fields    `json:"fields,omitempty"`
}

// Config holds configuration for a Logger.
type Config struct {
	Level     Level
	Format    Format
	Output    io.Writer
	AddCaller bool
}

// Logger writes leveled, structured log lines. Loggers derived with With or
// WithRunID share the parent's writer and its lock.
type Logger struct {
	out       *lockedWriter
	level     Level
	format    Format
	addCaller bool
	fields    Fields
	runID     string
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (lw *lockedWriter) write(p []byte) {
	lw.mu.Lock()
	_, _ = lw.w.Write(p)
	lw.mu.Unlock()
}

// New creates a Logger. A nil Output writes to stderr.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	return &Logger{
		out:       &lockedWriter{w: out},
		level:     cfg.Level,
		format:    cfg.Format,
		addCaller: cfg.AddCaller,
	}
}

// DefaultLogger returns an info-level JSON logger on stderr.
func DefaultLogger() *Logger {
	return New(Config{Level: LevelInfo, Format: FormatJSON})
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return New(Config{Level: LevelError + 1, Output: io.Discard})
}

// Level returns the minimum level this logger writes.
func (l *Logger) Level() Level {
	return l.level
}

// With returns a child logger that adds fields to every line.
func (l *Logger) With(fields Fields) *Logger {
	merged := make(Fields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	child := *l
	child.fields = merged
	return &child
}

// WithRunID returns a child logger stamped with the given run ID.
func (l *Logger) WithRunID(id string) *Logger {
	child := *l
	child.runID = id
	return &child
}

func (l *Logger) Debug(msg string)                 { l.log(LevelDebug, msg, nil) }
func (l *Logger) Debugf(msg string, fields Fields) { l.log(LevelDebug, msg, fields) }
func (l *Logger) Info(msg string)                  { l.log(LevelInfo, msg, nil) }
func (l *Logger) Infof(msg string, fields Fields)  { l.log(LevelInfo, msg, fields) }
func (l *Logger) Warn(msg string)                  { l.log(LevelWarn, msg, nil) }
func (l *Logger) Warnf(msg string, fields Fields)  { l.log(LevelWarn, msg, fields) }
func (l *Logger) Error(msg string)                 { l.log(LevelError, msg, nil) }
func (l *Logger) Errorf(msg string, fields Fields) { l.log(LevelError, msg, fields) }

func (l *Logger) log(level Level, msg string, extra Fields) {
	if level < l.level {
		return
	}

	entry := Entry{
		Timestamp: time.Now().UTC(),
		Level:     level.String(),
		Message:   msg,
		RunID:     l.runID,
	}
	if l.addCaller {
		if _, file, line, ok := runtime.Caller(2); ok {
			entry.File = file
			entry.Line = line
		}
	}
	if len(l.fields)+len(extra) > 0 {
		entry.Fields = make(Fields, len(l.fields)+len(extra))
		for k, v := range l.fields {
			entry.Fields[k] = v
		}
		for k, v := range extra {
			entry.Fields[k] = v
		}
	}

	var data []byte
	if l.format == FormatText {
		data = formatText(entry)
	} else {
		for k, v := range entry.Fields {
			if err, ok := v.(error); ok {
				entry.Fields[k] = err.Error()
			}
		}
		data, _ = json.Marshal(entry)
		data = append(data, '\n')
	}
	l.out.write(data)
}

// formatText renders an entry as one line; fields are sorted by key so the
// output is stable.
func formatText(e Entry) []byte {
	buf := make([]byte, 0, 256)
	buf = e.Timestamp.AppendFormat(buf, time.RFC3339)
	buf = append(buf, " ["...)
	buf = append(buf, e.Level...)
	buf = append(buf, "] "...)
	buf = append(buf, e.Message...)

	if e.RunID != "" {
		buf = append(buf, " run_id="...)
		buf = append(buf, e.RunID...)
	}
	if e.File != "" {
		buf = append(buf, " caller="...)
		buf = append(buf, e.File...)
		buf = append(buf, ':')
		buf = strconv.AppendInt(buf, int64(e.Line), 10)
	}

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		buf = append(buf, ' ')
		buf = append(buf, k...)
		buf = append(buf, '=')
		switch v := e.Fields[k].(type) {
		case string:
			buf = append(buf, v...)
		case error:
			buf = strconv.AppendQuote(buf, v.Error())
		default:
			b, _ := json.Marshal(v)
			buf = append(buf, b...)
		}
	}
	return append(buf, '\n')
}
