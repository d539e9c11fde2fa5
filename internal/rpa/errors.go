package rpa

import (
	"context"
	"errors"

	"multi-platform-rpa/internal/model"
)

var (
	ErrUnsupportedPlatform = errors.New("not supported")
	ErrUnknownPlatform     = errors.New("unknown platform")
	ErrScriptNotFound      = errors.New("automation script not found")
	ErrProtocolTimeout     = errors.New("upload timed out")
	ErrNotInitialized      = errors.New("engine not initialized")
	ErrSessionClosed       = errors.New("browser session closed")
)

// PageError is an exception raised by the in-page script. Its message is
// reported unchanged.
type PageError struct {
	Op      string
	Message string
}

func (e *PageError) Error() string { return e.Message }

// navigationError marks failures of the navigation phase itself.
type navigationError struct{ err error }

func (e *navigationError) Error() string { return e.err.Error() }
func (e *navigationError) Unwrap() error { return e.err }

// Kind maps an execution error to the category reported in results.
func Kind(err error) model.ErrorKind {
	var pageErr *PageError
	var navErr *navigationError
	switch {
	case err == nil:
		return model.ErrorKindNone
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return model.ErrorKindCanceled
	case errors.Is(err, ErrUnsupportedPlatform),
		errors.Is(err, ErrUnknownPlatform),
		errors.Is(err, ErrScriptNotFound),
		errors.Is(err, ErrNotInitialized),
		errors.Is(err, ErrSessionClosed):
		return model.ErrorKindConfig
	case errors.Is(err, ErrProtocolTimeout):
		return model.ErrorKindTimeout
	case errors.As(err, &navErr):
		return model.ErrorKindNavigation
	case errors.As(err, &pageErr):
		return model.ErrorKindPage
	}
	return model.ErrorKindPage
}
