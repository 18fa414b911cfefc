package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure returned by the use cases matches exactly one of
// them with errors.Is.
var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrConflict       = errors.New("conflict")
	ErrNotFound       = errors.New("not found")
	ErrInfrastructure = errors.New("infrastructure failure")
)

// Error is a classified failure. Kind is one of the Err* sentinels; Err is
// the optional underlying cause (typically a storage error).
type Error struct {
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func InvalidInputf(format string, args ...any) error {
	return &Error{Kind: ErrInvalidInput, Msg: fmt.Sprintf(format, args...)}
}

func Conflictf(format string, args ...any) error {
	return &Error{Kind: ErrConflict, Msg: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...any) error {
	return &Error{Kind: ErrNotFound, Msg: fmt.Sprintf(format, args...)}
}

// Infrastructure classifies err as a storage/transport failure. Errors that
// already carry a kind are returned unchanged.
func Infrastructure(op string, err error) error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return err
	}
	return &Error{Kind: ErrInfrastructure, Msg: op, Err: err}
}

// Message returns the caller-facing text of err: the message of a classified
// error, or the kind for infrastructure failures so storage details stay
// internal.
func Message(err error) string {
	var classified *Error
	if !errors.As(err, &classified) {
		return ErrInfrastructure.Error()
	}
	if errors.Is(classified.Kind, ErrInfrastructure) {
		return ErrInfrastructure.Error()
	}
	if classified.Msg == "" {
		return classified.Kind.Error()
	}
	return classified.Msg
}
