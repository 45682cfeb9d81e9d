package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/ZebulonRouseFrantzich/machport/internal/config"
)

// stderrLogger writes structured key-value lines to stderr for --verbose.
type stderrLogger struct{}

func newStderrLogger() config.Logger {
	return &stderrLogger{}
}

func (l *stderrLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.write("DEBUG", msg, keysAndValues)
}

func (l *stderrLogger) Info(msg string, keysAndValues ...interface{}) {
	l.write("INFO", msg, keysAndValues)
}

func (l *stderrLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.write("WARN", msg, keysAndValues)
}

func (l *stderrLogger) Error(msg string, keysAndValues ...interface{}) {
	l.write("ERROR", msg, keysAndValues)
}

func (l *stderrLogger) write(level, msg string, keysAndValues []interface{}) {
	var sb strings.Builder
	sb.WriteString(level)
	sb.WriteString(" ")
	sb.WriteString(msg)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		sb.WriteString(fmt.Sprintf(" %v=%v", keysAndValues[i], keysAndValues[i+1]))
	}
	fmt.Fprintln(os.Stderr, sb.String())
}
