package logger

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// osSink is the default LogSink, writing newline-delimited key=value records
// to the given writer (typically os.Stderr or os.Stdout).
type osSink struct {
	mu sync.Mutex
	w  io.Writer
}

func newOSSink(w io.Writer) *osSink {
	return &osSink{w: w}
}

func (s *osSink) Info(level int, msg string, keysAndValues ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fmt.Fprintf(s.w, "%s\tlevel=%d\tmessage=%q", time.Now().UTC().Format(time.RFC3339Nano), level, msg)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fmt.Fprintf(s.w, "\t%v=%v", keysAndValues[i], keysAndValues[i+1])
	}
	fmt.Fprintln(s.w)
}
