package logger

import (
	"os"
	"strconv"
	"strings"
)

const jobBufferSize = 100
const logSinkPathEnvVar = "MONGODB_LOG_PATH"
const maxDocumentLengthEnvVar = "MONGODB_LOG_MAX_DOCUMENT_LENGTH"

// DefaultMaxDocumentLength is the default maximum length, in bytes, of a
// stringified document value logged as part of a command/reply key.
const DefaultMaxDocumentLength = 1000

// TruncationSuffix is appended to a truncated value to signal to the reader
// that truncation occurred. It does not count toward the max length.
const TruncationSuffix = "..."

// LogSink represents a logging implementation. It is deliberately a subset
// of go-logr/logr's LogSink interface so a caller can plug in logr, zerolog,
// or anything else that can adapt to this one method.
type LogSink interface {
	Info(level int, msg string, keysAndValues ...interface{})
}

// Message is one structured log record: a short message plus an even-length
// list of key/value pairs.
type Message struct {
	Component Component
	Text      string
	KeyValues []interface{}
}

type job struct {
	level Level
	msg   Message
}

// Logger is the driver's internal logger. Every component logs through one
// shared instance so verbosity is controlled uniformly.
type Logger struct {
	ComponentLevels   map[Component]Level
	Sink              LogSink
	MaxDocumentLength uint

	jobs chan job
}

// New constructs a Logger. componentLevels takes precedence over whatever
// the environment specifies; a nil/empty map falls back to the environment,
// and an absent environment setting falls back to LevelOff. A nil sink falls
// back to the sink named by the environment, which defaults to os.Stderr.
func New(sink LogSink, maxDocumentLength uint, componentLevels map[Component]Level) *Logger {
	return &Logger{
		ComponentLevels: selectComponentLevels(
			func() map[Component]Level { return componentLevels },
			getEnvComponentLevels,
		),
		MaxDocumentLength: selectMaxDocumentLength(
			func() uint { return maxDocumentLength },
			getEnvMaxDocumentLength,
		),
		Sink: selectLogSink(
			func() LogSink { return sink },
			getEnvLogSink,
		),
		jobs: make(chan job, jobBufferSize),
	}
}

// Close stops the printer goroutine started by StartPrintListener.
func (logger *Logger) Close() {
	close(logger.jobs)
}

// Is reports whether the given Level is enabled for the given Component.
func (logger *Logger) Is(level Level, component Component) bool {
	return logger.ComponentLevels[component] >= level
}

// Print enqueues a message for asynchronous delivery to the sink. If the
// queue is full the message is dropped rather than blocking the caller —
// logging must never add backpressure to the hot path.
func (logger *Logger) Print(level Level, msg Message) {
	select {
	case logger.jobs <- job{level, msg}:
	default:
	}
}

// StartPrintListener starts the goroutine that drains queued messages to the
// configured sink and returns immediately. The goroutine exits once
// logger.Close is called and the channel drains.
func StartPrintListener(logger *Logger) {
	go func() {
		for j := range logger.jobs {
			if !logger.Is(j.level, j.msg.Component) {
				continue
			}
			sink := logger.Sink
			if sink == nil {
				continue
			}
			kv := truncateDocumentValues(j.msg.KeyValues, logger.MaxDocumentLength)
			sink.Info(int(j.level)-DiffToInfo, j.msg.Text, kv...)
		}
	}()
}

func truncate(str string, width uint) string {
	if width == 0 || len(str) <= int(width) {
		return str
	}
	return str[:width] + TruncationSuffix
}

// truncateDocumentValues truncates the "command" and "reply" values (which
// are expected to already be stringified) so that voluminous payloads don't
// blow out log storage.
func truncateDocumentValues(keysAndValues []interface{}, width uint) []interface{} {
	out := make([]interface{}, len(keysAndValues))
	copy(out, keysAndValues)
	for i := 0; i+1 < len(out); i += 2 {
		key, _ := out[i].(string)
		if key != "command" && key != "reply" {
			continue
		}
		if s, ok := out[i+1].(string); ok {
			out[i+1] = truncate(s, width)
		}
	}
	return out
}

func getEnvMaxDocumentLength() uint {
	max := os.Getenv(maxDocumentLengthEnvVar)
	if max == "" {
		return 0
	}
	maxUint, err := strconv.ParseUint(max, 10, 32)
	if err != nil {
		return 0
	}
	return uint(maxUint)
}

func selectMaxDocumentLength(getLen ...func() uint) uint {
	for _, get := range getLen {
		if l := get(); l != 0 {
			return l
		}
	}
	return DefaultMaxDocumentLength
}

func getEnvLogSink() LogSink {
	path := strings.ToLower(os.Getenv(logSinkPathEnvVar))
	switch path {
	case "stderr", "":
		return newOSSink(os.Stderr)
	case "stdout":
		return newOSSink(os.Stdout)
	default:
		if f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644); err == nil {
			return newOSSink(f)
		}
		return newOSSink(os.Stderr)
	}
}

func selectLogSink(getSink ...func() LogSink) LogSink {
	for _, get := range getSink {
		if sink := get(); sink != nil {
			return sink
		}
	}
	return newOSSink(os.Stderr)
}

func getEnvComponentLevels() map[Component]Level {
	componentLevels := make(map[Component]Level)
	globalLevel := ParseLevel(os.Getenv(componentEnvVarAll))

	for _, component := range allComponents {
		level := globalLevel
		if globalLevel == LevelOff {
			level = ParseLevel(os.Getenv(componentEnvVars[component]))
		}
		componentLevels[component] = level
	}

	return componentLevels
}

func selectComponentLevels(getters ...func() map[Component]Level) map[Component]Level {
	selected := make(map[Component]Level)
	set := make(map[Component]struct{})

	for _, get := range getters {
		for component, level := range get() {
			if _, ok := set[component]; !ok {
				selected[component] = level
			}
			set[component] = struct{}{}
		}
	}

	return selected
}
