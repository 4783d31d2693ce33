package logger

import (
	"os"
	"testing"
)

type mockLogSink struct {
	msgs []string
}

func (m *mockLogSink) Info(level int, msg string, keysAndValues ...interface{}) {
	m.msgs = append(m.msgs, msg)
}

func BenchmarkLoggerPrint(b *testing.B) {
	logger := New(&mockLogSink{}, 0, map[Component]Level{ComponentCommand: LevelDebug})
	StartPrintListener(logger)
	defer logger.Close()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Print(LevelInfo, Message{Component: ComponentCommand, Text: "hello"})
	}
}

func TestSelectMaxDocumentLength(t *testing.T) {
	t.Setenv(maxDocumentLengthEnvVar, "")

	for _, tcase := range []struct {
		name     string
		arg      uint
		expected uint
		env      string
	}{
		{name: "default", arg: 0, expected: DefaultMaxDocumentLength},
		{name: "non-zero", arg: 100, expected: 100},
		{name: "valid env", arg: 0, expected: 100, env: "100"},
		{name: "invalid env", arg: 0, expected: DefaultMaxDocumentLength, env: "foo"},
	} {
		t.Run(tcase.name, func(t *testing.T) {
			if tcase.env != "" {
				t.Setenv(maxDocumentLengthEnvVar, tcase.env)
			} else {
				t.Setenv(maxDocumentLengthEnvVar, "")
			}

			actual := selectMaxDocumentLength(
				func() uint { return tcase.arg },
				getEnvMaxDocumentLength,
			)
			if actual != tcase.expected {
				t.Errorf("expected %d, got %d", tcase.expected, actual)
			}
		})
	}
}

func TestSelectLogSink(t *testing.T) {
	t.Setenv(logSinkPathEnvVar, "")

	custom := &mockLogSink{}
	actual := selectLogSink(func() LogSink { return custom }, getEnvLogSink)
	if actual != LogSink(custom) {
		t.Errorf("expected the explicit sink to take priority")
	}

	actual = selectLogSink(func() LogSink { return nil }, getEnvLogSink)
	if _, ok := actual.(*osSink); !ok {
		t.Errorf("expected default sink to be an *osSink, got %T", actual)
	}
}

func TestSelectComponentLevels(t *testing.T) {
	for _, v := range componentEnvVars {
		t.Setenv(v, "")
	}
	t.Setenv(componentEnvVarAll, "")

	t.Run("explicit overrides win", func(t *testing.T) {
		actual := selectComponentLevels(
			func() map[Component]Level { return map[Component]Level{ComponentCommand: LevelDebug} },
			getEnvComponentLevels,
		)
		if actual[ComponentCommand] != LevelDebug {
			t.Errorf("expected LevelDebug, got %v", actual[ComponentCommand])
		}
		if actual[ComponentTopology] != LevelOff {
			t.Errorf("expected LevelOff, got %v", actual[ComponentTopology])
		}
	})

	t.Run("env populates remaining components", func(t *testing.T) {
		t.Setenv(componentEnvVars[ComponentTopology], "info")
		actual := selectComponentLevels(getEnvComponentLevels)
		if actual[ComponentTopology] != LevelInfo {
			t.Errorf("expected LevelInfo, got %v", actual[ComponentTopology])
		}
	})
}

func TestOSSinkWritesMessage(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	sink := newOSSink(w)
	sink.Info(0, "hello", "key", "value")
	w.Close()

	buf := make([]byte, 256)
	n, _ := r.Read(buf)
	out := string(buf[:n])
	if !contains(out, "hello") || !contains(out, "key=value") {
		t.Errorf("unexpected sink output: %q", out)
	}
}

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
