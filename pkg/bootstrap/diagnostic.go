package bootstrap

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// DiagnosticMessage is the fixed text of the fallback line
const DiagnosticMessage = "integration requested but prerequisites missing"

// TimestampLayout is the diagnostic timestamp layout, always rendered in UTC
const TimestampLayout = "2006/01/2 15:04:05 MST"

// DiagnosticLine formats one fallback line for t
func DiagnosticLine(t time.Time) string {
	return fmt.Sprintf("[%s] %s\n", t.UTC().Format(TimestampLayout), DiagnosticMessage)
}

// DiagnosticPath substitutes site into the path template
func DiagnosticPath(template, site string) string {
	return strings.ReplaceAll(template, "{site}", site)
}

// appendLine appends line to the file at path, creating the file but not
// its directory.
func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open diagnostic log: %w", err)
	}
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return fmt.Errorf("failed to write diagnostic log: %w", err)
	}
	return f.Close()
}
