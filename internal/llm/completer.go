package llm

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
)

// Request is a single structured-output call: an optional system instruction, the
// rendered prompt, and the schema the reply is expected to satisfy.
type Request struct {
	System string
	Prompt string
	Schema *Schema
}

// Completer submits a rendered prompt to a text-generation backend and returns the
// raw reply text. Callers parse the reply themselves.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
	Name() string
}

var (
	// ErrRequestFailed marks transport or service failures: the backend could not be
	// reached or answered with an error status.
	ErrRequestFailed = eris.New("llm request failed")

	// ErrUnusableReply marks replies that arrived but carry no usable content: no
	// choices, a refusal, a content filter stop, or empty text.
	ErrUnusableReply = eris.New("llm reply unusable")
)

func logError(logger *logrus.Logger, fields logrus.Fields, err error, message string) {
	if logger == nil || err == nil {
		return
	}

	entry := logger.WithField("error", err.Error())
	if len(fields) > 0 {
		entry = entry.WithFields(fields)
	}
	entry.Error(message)
}
