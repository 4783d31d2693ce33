package logger

import "strings"

// DiffToInfo is the number of levels that come before the "Info" level. This
// keeps "Info" at the 0th level passed to a LogSink, matching the
// logr.LogSink convention where InfoLevel defaults to 0.
const DiffToInfo = 1

// Level is the severity of a single log record.
type Level int

const (
	// LevelOff suppresses logging entirely.
	LevelOff Level = iota

	// LevelInfo enables high-level information about normal driver
	// behavior, e.g. client creation or topology changes.
	LevelInfo

	// LevelDebug enables voluminous detail intended for debugging a
	// running application, e.g. individual commands starting and
	// finishing.
	LevelDebug
)

var levelLiteralMap = map[string]Level{
	"off":   LevelOff,
	"error": LevelInfo,
	"warn":  LevelInfo,
	"info":  LevelInfo,
	"debug": LevelDebug,
	"trace": LevelDebug,
}

// ParseLevel returns the Level named by str, defaulting to LevelOff if the
// string names no known level.
func ParseLevel(str string) Level {
	for literal, level := range levelLiteralMap {
		if strings.EqualFold(literal, str) {
			return level
		}
	}
	return LevelOff
}

// Component scopes a log record to one subsystem, so verbosity can be tuned
// independently per subsystem.
type Component string

// Components the driver logs against.
const (
	ComponentCommand         Component = "command"
	ComponentTopology        Component = "topology"
	ComponentServerSelection Component = "serverSelection"
	ComponentConnection      Component = "connection"
)

var allComponents = []Component{
	ComponentCommand,
	ComponentTopology,
	ComponentServerSelection,
	ComponentConnection,
}

var componentEnvVars = map[Component]string{
	ComponentCommand:         "MONGODB_LOG_COMMAND",
	ComponentTopology:        "MONGODB_LOG_TOPOLOGY",
	ComponentServerSelection: "MONGODB_LOG_SERVER_SELECTION",
	ComponentConnection:      "MONGODB_LOG_CONNECTION",
}

const componentEnvVarAll = "MONGODB_LOG_ALL"
