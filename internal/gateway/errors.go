package gateway

import (
	"errors"
	"fmt"
)

var (
	ErrNotRegistered = errors.New("not registered")
	ErrInvalidParams = errors.New("invalid params")
	ErrPersistence   = errors.New("persistence failed")
	ErrNotification  = errors.New("notification failed")
)

// Ack error codes returned to send_message callers.
const (
	codeNotRegistered     = "not_registered"
	codeInvalidParams     = "invalid_params"
	codeSendMessageFailed = "send_message_failed"
)

// opError ties a failed operation to its error kind and cause.
type opError struct {
	op   string
	kind error
	err  error
}

func (e *opError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("%s: %v", e.op, e.kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.op, e.kind, e.err)
}

func (e *opError) Unwrap() []error {
	if e.err == nil {
		return []error{e.kind}
	}
	return []error{e.kind, e.err}
}

func opErr(op string, kind, err error) error {
	return &opError{op: op, kind: kind, err: err}
}
