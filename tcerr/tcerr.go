// Package tcerr classifies the errors produced by the compiler pipeline,
// the annotator and the predictor runtime.
package tcerr

import (
	"github.com/pkg/errors"
)

//Kind labels the broad failure category of an error.
type Kind int

const (
	//KindUnknown marks an error that was not produced by this module.
	KindUnknown Kind = iota
	//KindInvalidParam marks malformed compiler parameters: bad JSON, unknown key, type mismatch, negative value.
	KindInvalidParam
	//KindInvalidModel marks an inconsistent input model: bad leaf-vector shape, unrecognized postprocessor.
	KindInvalidModel
	//KindInvalidState marks a pass-ordering violation, e.g. quantizing twice.
	KindInvalidState
	//KindIO marks a filesystem failure.
	KindIO
	//KindABI marks a shared-library contract violation: missing symbol, unrecognized type string.
	KindABI
	//KindConcurrency marks an error captured from a worker thread.
	KindConcurrency
)

func (k Kind) String() string {
	switch k {
	case KindInvalidParam:
		return "InvalidParam"
	case KindInvalidModel:
		return "InvalidModel"
	case KindInvalidState:
		return "InvalidState"
	case KindIO:
		return "IO"
	case KindABI:
		return "ABI"
	case KindConcurrency:
		return "Concurrency"
	}
	return "Unknown"
}

//Error carries a failure kind together with the wrapped cause.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

//New creates a classified error from a plain message.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Err: errors.New(msg)}
}

//Errorf creates a classified error from a format string.
func Errorf(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Err: errors.Errorf(format, args...)}
}

//Wrap attaches a kind and a message to an existing error. A nil error stays nil.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: errors.Wrap(err, msg)}
}

//Wrapf attaches a kind and a formatted message to an existing error. A nil error stays nil.
func Wrapf(kind Kind, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: errors.Wrapf(err, format, args...)}
}

//KindOf reports the kind recorded in err, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return KindUnknown
}
