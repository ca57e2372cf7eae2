package rpc

import (
	"fmt"

	"github.com/juju/errors"

	"nvim-rpc/codec"
)

// ErrClosed matches every error caused by the connection going away, whether
// the caller closed it or the stream broke. Use errors.Is.
const ErrClosed = errors.ConstError("connection closed")

const errClosedByCaller = errors.ConstError("closed by caller")

// closedError carries the reason the reader stopped while still matching
// ErrClosed.
type closedError struct {
	cause error
}

func (e *closedError) Error() string {
	return "connection closed: " + e.cause.Error()
}

func (e *closedError) Is(target error) bool { return target == ErrClosed }
func (e *closedError) Unwrap() error        { return e.cause }

// Error is a failure reported by the peer in a response. It only concerns the
// call it was returned from; the connection stays healthy.
//
// The editor sends errors as [type, message] where type indexes the error
// types listed in its API info.
type Error struct {
	Value any
}

func (e *Error) Error() string {
	if msg, ok := e.Message(); ok {
		return "rpc error: " + msg
	}
	return fmt.Sprintf("rpc error: %v", e.Value)
}

// Message is the human readable part of a [type, message] error.
func (e *Error) Message() (string, bool) {
	arr, ok := e.Value.([]any)
	if !ok || len(arr) != 2 {
		return "", false
	}
	msg, ok := arr[1].(string)
	return msg, ok
}

// Type is the error type index of a [type, message] error.
func (e *Error) Type() (int64, bool) {
	arr, ok := e.Value.([]any)
	if !ok || len(arr) != 2 {
		return 0, false
	}
	return codec.AsInt64(arr[0])
}

// IsRPCError reports whether err came from the peer rather than the transport.
func IsRPCError(err error) bool {
	var re *Error
	return errors.As(err, &re)
}
