package identity

import (
	"context"
	"fmt"
)

// Logger is the minimal logging surface the engine depends on. Collaborators
// receive it by injection; there is no package-level logger.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Mail is a rendered message handed to the dispatcher.
type Mail struct {
	To      string
	Subject string
	HTML    string
}

// Mailer dispatches rendered mail. Transport and delivery policy live
// outside this module; the engine only depends on this signature.
// Dispatch always happens after the surrounding transaction commits.
type Mailer interface {
	Send(ctx context.Context, mail Mail) error
}

// DefaultLogger returns the stdout logger used when none is injected.
func DefaultLogger() Logger {
	return defLogger{}
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] IDENTITY "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] IDENTITY "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] IDENTITY "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] IDENTITY "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
