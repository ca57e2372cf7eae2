// Package message defines the envelopes exchanged with the editor.
//
// Every envelope is one of three kinds. On the wire each one is an ordered tuple
// whose first element is the kind:
//
//   - Request:      [0, id, method, params]
//   - Response:     [1, id, error, result]
//   - Notification: [2, method, params]
//
// The tuple shape lives in the protocol package; this package only carries the data.
package message

import "fmt"

// Kind is the first element of every envelope tuple.
type Kind int

const (
	KindRequest      Kind = 0 // Caller → peer; the peer may also send these to us
	KindResponse     Kind = 1 // Answer to a request, matched by id
	KindNotification Kind = 2 // Fire-and-forget, no id
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	case KindNotification:
		return "notification"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Message is implemented by Request, Response and Notification.
type Message interface {
	Kind() Kind
}

// Request asks the peer to run Method with Params. ID is unique among the
// requests in flight on one session.
type Request struct {
	ID     uint32
	Method string
	Params []any
}

func (*Request) Kind() Kind { return KindRequest }

// Response carries the outcome of the request with the same ID.
//
//   - On success: Error is nil and Result holds the value (which may itself be nil).
//   - On failure: Error holds whatever the peer sent, typically [code, message].
type Response struct {
	ID     uint32
	Error  any
	Result any
}

func (*Response) Kind() Kind { return KindResponse }

// Failed reports whether the peer rejected the request.
func (r *Response) Failed() bool {
	return r.Error != nil
}

// Notification is an event pushed by the peer (or sent by us) without an id.
type Notification struct {
	Method string
	Params []any
}

func (*Notification) Kind() Kind { return KindNotification }
