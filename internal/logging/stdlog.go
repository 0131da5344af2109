package logging

import (
	"bytes"
	"log"
	"log/slog"
)

// stdLogWriter turns lines printed through the standard log package by
// dependencies such as go-rod into slog records.
type stdLogWriter struct {
	component string
}

func (w stdLogWriter) Write(p []byte) (int, error) {
	if msg := string(bytes.TrimSpace(p)); msg != "" {
		current().Info(msg, slog.String("component", w.component))
	}
	return len(p), nil
}

// RedirectStdLog routes the standard library logger through slog under the
// given component.
func RedirectStdLog(component string) {
	log.SetFlags(0)
	log.SetOutput(stdLogWriter{component: component})
}
