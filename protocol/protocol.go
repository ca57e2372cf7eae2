// Package protocol maps envelopes to and from the ordered tuples that go on the wire.
//
// Envelope shapes:
//
//	Request       [0, id, method, params]
//	Response      [1, id, error, result]
//	Notification  [2, method, params]
//
// The codec turns tuples into bytes; this package owns only the shape, so a
// malformed envelope (wrong arity, non-integer id, ...) is reported as *Error
// and never confused with an I/O failure.
package protocol

import (
	"fmt"
	"io"
	"math"

	"github.com/juju/errors"

	"nvim-rpc/codec"
	"nvim-rpc/message"
)

// Error reports an envelope whose shape does not match any known kind.
type Error struct {
	Reason string
}

func (e *Error) Error() string {
	return "malformed envelope: " + e.Reason
}

func malformed(format string, args ...any) error {
	return &Error{Reason: fmt.Sprintf(format, args...)}
}

// IsMalformed reports whether err is a shape violation.
func IsMalformed(err error) bool {
	var pe *Error
	return errors.As(err, &pe)
}

// Tuple returns the wire shape of msg. Nil params are sent as an empty array,
// the peer rejects a nil in that position.
func Tuple(msg message.Message) ([]any, error) {
	switch m := msg.(type) {
	case *message.Request:
		return []any{int(message.KindRequest), m.ID, m.Method, params(m.Params)}, nil
	case *message.Response:
		return []any{int(message.KindResponse), m.ID, m.Error, m.Result}, nil
	case *message.Notification:
		return []any{int(message.KindNotification), m.Method, params(m.Params)}, nil
	default:
		return nil, errors.Errorf("unsupported message type %T", msg)
	}
}

func params(p []any) []any {
	if p == nil {
		return []any{}
	}
	return p
}

// FromTuple validates a decoded value and converts it to an envelope.
func FromTuple(v any) (message.Message, error) {
	tuple, ok := v.([]any)
	if !ok {
		return nil, malformed("expected array, got %T", v)
	}
	if len(tuple) == 0 {
		return nil, malformed("empty array")
	}
	kind, ok := codec.AsInt64(tuple[0])
	if !ok {
		return nil, malformed("kind is %T, not an integer", tuple[0])
	}

	switch message.Kind(kind) {
	case message.KindRequest:
		if len(tuple) != 4 {
			return nil, malformed("request has %d elements, want 4", len(tuple))
		}
		id, err := parseID(tuple[1])
		if err != nil {
			return nil, err
		}
		method, err := parseMethod(tuple[2])
		if err != nil {
			return nil, err
		}
		p, err := parseParams(tuple[3])
		if err != nil {
			return nil, err
		}
		return &message.Request{ID: id, Method: method, Params: p}, nil

	case message.KindResponse:
		if len(tuple) != 4 {
			return nil, malformed("response has %d elements, want 4", len(tuple))
		}
		id, err := parseID(tuple[1])
		if err != nil {
			return nil, err
		}
		return &message.Response{ID: id, Error: tuple[2], Result: tuple[3]}, nil

	case message.KindNotification:
		if len(tuple) != 3 {
			return nil, malformed("notification has %d elements, want 3", len(tuple))
		}
		method, err := parseMethod(tuple[1])
		if err != nil {
			return nil, err
		}
		p, err := parseParams(tuple[2])
		if err != nil {
			return nil, err
		}
		return &message.Notification{Method: method, Params: p}, nil

	default:
		return nil, malformed("unknown kind %d", kind)
	}
}

func parseID(v any) (uint32, error) {
	id, ok := codec.AsUint64(v)
	if !ok || id > math.MaxUint32 {
		return 0, malformed("id %v (%T) is not a 32-bit unsigned integer", v, v)
	}
	return uint32(id), nil
}

func parseMethod(v any) (string, error) {
	switch m := v.(type) {
	case string:
		return m, nil
	case []byte:
		return string(m), nil
	default:
		return "", malformed("method is %T, not a string", v)
	}
}

func parseParams(v any) ([]any, error) {
	switch p := v.(type) {
	case []any:
		if p == nil {
			return []any{}, nil
		}
		return p, nil
	case nil:
		return []any{}, nil
	default:
		return nil, malformed("params is %T, not an array", v)
	}
}

// Encoder writes envelopes to w. It is not safe for concurrent use; callers
// serialize access (see rpc.Conn).
type Encoder struct {
	w     io.Writer
	codec codec.Codec
}

func NewEncoder(w io.Writer, c codec.Codec) *Encoder {
	return &Encoder{w: w, codec: c}
}

// Encode serializes msg completely before touching w, then writes it with a
// single Write so a failed encode never leaves a partial envelope on the stream.
func (e *Encoder) Encode(msg message.Message) error {
	data, err := Marshal(e.codec, msg)
	if err != nil {
		return err
	}
	_, err = e.w.Write(data)
	return err
}

// Marshal returns the encoded bytes of msg.
func Marshal(c codec.Codec, msg message.Message) ([]byte, error) {
	tuple, err := Tuple(msg)
	if err != nil {
		return nil, err
	}
	return c.Encode(tuple)
}

// Decoder reads envelopes from a stream.
type Decoder struct {
	dec codec.Decoder
}

func NewDecoder(r io.Reader, c codec.Codec) *Decoder {
	return &Decoder{dec: c.NewDecoder(r)}
}

// Decode reads the next envelope. Both codec errors and shape violations are
// returned. A peer that sends a malformed envelope speaks a different protocol
// version, so the reader in rpc treats both as fatal.
func (d *Decoder) Decode() (message.Message, error) {
	v, err := d.dec.Decode()
	if err != nil {
		return nil, err
	}
	return FromTuple(v)
}
