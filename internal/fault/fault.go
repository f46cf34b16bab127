// Package fault classifies the fatal errors a run can end with.
package fault

import (
	"errors"
	"fmt"
)

type Kind int

const (
	Unknown Kind = iota
	Config
	IO
	Parse
	Remote
)

func (k Kind) String() string {
	switch k {
	case Config:
		return "config"
	case IO:
		return "io"
	case Parse:
		return "parse"
	case Remote:
		return "remote"
	default:
		return "unknown"
	}
}

// Error is a fatal error tagged with the stage that produced it.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

func Configf(op, format string, args ...any) *Error {
	return New(Config, op, "", fmt.Errorf(format, args...))
}

func IOError(op, path string, err error) *Error {
	return New(IO, op, path, err)
}

func ParseError(op, path string, err error) *Error {
	return New(Parse, op, path, err)
}

func RemoteError(op string, err error) *Error {
	return New(Remote, op, "", err)
}

// KindOf returns the kind of the outermost *Error in the chain, or Unknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}
