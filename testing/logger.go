package testing

import (
	"fmt"
	"testing"

	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/types"
)

// NewTestLogger returns a types.Logger that writes through t.Logf, so
// engine logs show up interleaved with test output on failure.
func NewTestLogger(t *testing.T) types.Logger {
	return &testLogger{t: t}
}

type testLogger struct {
	t *testing.T
}

func (l *testLogger) Debug(msg string, keysAndValues ...any) { l.log("DEBUG", msg, keysAndValues) }
func (l *testLogger) Info(msg string, keysAndValues ...any)  { l.log("INFO", msg, keysAndValues) }
func (l *testLogger) Warn(msg string, keysAndValues ...any)  { l.log("WARN", msg, keysAndValues) }
func (l *testLogger) Error(msg string, keysAndValues ...any) { l.log("ERROR", msg, keysAndValues) }

func (l *testLogger) Fatal(msg string, keysAndValues ...any) {
	l.log("FATAL", msg, keysAndValues)
	l.t.FailNow()
}

func (l *testLogger) log(level, msg string, keysAndValues []any) {
	l.t.Helper()

	fields := ""
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields += fmt.Sprintf(" %v=%v", keysAndValues[i], keysAndValues[i+1])
	}
	l.t.Logf("[%s] %s%s", level, msg, fields)
}

var _ types.Logger = (*testLogger)(nil)
