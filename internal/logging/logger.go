/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
Package logging provides the structured logger used by every zipbench
component.

OUTPUT FORMATS:
===============
Text (default):

	2026-01-02T15:04:05.000Z [INFO ] [worker] session freed worker=3 iterations=812

JSON (SetJSONMode(true)):

	{"timestamp":"...","level":"INFO","component":"worker","message":"session freed","fields":{"worker":3}}

FIELDS:
=======
Arguments after the message are key/value pairs. Child loggers created with
With carry their fields on every entry, which is how workers and pollers tag
their output with worker and context ids. Fields are written in the order they
were supplied, bound fields first.
*/
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log message.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a string into a Level. Unknown names map to INFO.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return DEBUG
	case "info":
		return INFO
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

// Entry is a single log record.
type Entry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Component string                 `json:"component"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

type field struct {
	key   string
	value interface{}
}

// Logger writes leveled entries for one component.
type Logger struct {
	component string
	bound     []field
	mu        *sync.Mutex
}

// Config holds the process-wide logger settings.
type Config struct {
	Level    Level
	Output   io.Writer
	JSONMode bool
	Color    bool
}

// DefaultConfig returns the default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  INFO,
		Output: os.Stdout,
		Color:  true,
	}
}

var (
	globalConfig = DefaultConfig()
	globalMu     sync.RWMutex
)

// SetGlobalLevel sets the minimum level written by all loggers.
func SetGlobalLevel(level Level) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalConfig.Level = level
}

// SetGlobalOutput sets the writer shared by all loggers.
func SetGlobalOutput(w io.Writer) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalConfig.Output = w
}

// SetJSONMode enables or disables JSON output.
func SetJSONMode(enabled bool) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalConfig.JSONMode = enabled
}

// SetColor toggles ANSI colors in text mode.
func SetColor(enabled bool) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalConfig.Color = enabled
}

// Configure applies a complete Config at once.
func Configure(cfg Config) {
	globalMu.Lock()
	defer globalMu.Unlock()
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	globalConfig = cfg
}

// NewLogger creates a Logger for the named component.
func NewLogger(component string) *Logger {
	return &Logger{component: component, mu: &sync.Mutex{}}
}

// With returns a child logger that adds the given key/value pairs to every
// entry. The child shares the parent's write lock.
func (l *Logger) With(args ...interface{}) *Logger {
	child := &Logger{
		component: l.component,
		bound:     make([]field, 0, len(l.bound)+len(args)/2),
		mu:        l.mu,
	}
	child.bound = append(child.bound, l.bound...)
	child.bound = append(child.bound, pairs(args)...)
	return child
}

// Component returns the component name.
func (l *Logger) Component() string {
	return l.component
}

func pairs(args []interface{}) []field {
	out := make([]field, 0, len(args)/2+1)
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprintf("arg%d", i)
		}
		out = append(out, field{key: key, value: args[i+1]})
	}
	if len(args)%2 != 0 {
		out = append(out, field{key: "extra", value: args[len(args)-1]})
	}
	return out
}

func (l *Logger) log(level Level, msg string, args ...interface{}) {
	globalMu.RLock()
	cfg := globalConfig
	globalMu.RUnlock()

	if level < cfg.Level {
		return
	}

	fields := append(append([]field(nil), l.bound...), pairs(args)...)
	now := time.Now().UTC()

	l.mu.Lock()
	defer l.mu.Unlock()

	if cfg.JSONMode {
		writeJSON(cfg.Output, now, level, l.component, msg, fields)
		return
	}
	writeText(cfg.Output, now, level, l.component, msg, fields, cfg.Color)
}

func writeJSON(w io.Writer, ts time.Time, level Level, component, msg string, fields []field) {
	entry := Entry{
		Timestamp: ts,
		Level:     level.String(),
		Component: component,
		Message:   msg,
	}
	if len(fields) > 0 {
		entry.Fields = make(map[string]interface{}, len(fields))
		for _, f := range fields {
			if err, ok := f.value.(error); ok {
				entry.Fields[f.key] = err.Error()
				continue
			}
			entry.Fields[f.key] = f.value
		}
	}
	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(w, "ERROR: failed to marshal log entry: %v\n", err)
		return
	}
	fmt.Fprintln(w, string(data))
}

func levelColor(level Level) string {
	switch level {
	case DEBUG:
		return "\033[36m"
	case INFO:
		return "\033[32m"
	case WARN:
		return "\033[33m"
	case ERROR:
		return "\033[31m"
	default:
		return "\033[0m"
	}
}

func writeText(w io.Writer, ts time.Time, level Level, component, msg string, fields []field, color bool) {
	var sb strings.Builder
	sb.WriteString(ts.Format("2006-01-02T15:04:05.000Z"))
	sb.WriteByte(' ')
	if color {
		fmt.Fprintf(&sb, "%s[%-5s]\033[0m", levelColor(level), level.String())
	} else {
		fmt.Fprintf(&sb, "[%-5s]", level.String())
	}
	fmt.Fprintf(&sb, " [%s] %s", component, msg)
	for _, f := range fields {
		fmt.Fprintf(&sb, " %s=%v", f.key, f.value)
	}
	fmt.Fprintln(w, sb.String())
}

// Debug logs a message at DEBUG level.
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.log(DEBUG, msg, args...)
}

// Info logs a message at INFO level.
func (l *Logger) Info(msg string, args ...interface{}) {
	l.log(INFO, msg, args...)
}

// Warn logs a message at WARN level.
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.log(WARN, msg, args...)
}

// Error logs a message at ERROR level.
func (l *Logger) Error(msg string, args ...interface{}) {
	l.log(ERROR, msg, args...)
}
