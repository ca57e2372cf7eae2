// Package codec is the boundary to the wire format. The rest of the module only
// needs two things from it: turn a value into bytes, and pull the next complete
// value off a byte stream.
package codec

import (
	"bytes"
	"io"
	"math"
)

type Codec interface {
	// Encode serializes one value. The returned bytes are written to the
	// transport in a single call so concurrent writers never interleave.
	Encode(v any) ([]byte, error)
	// NewDecoder returns a decoder that reads consecutive values from r.
	NewDecoder(r io.Reader) Decoder
	Name() string
}

// Decoder reads one complete value per call. After an error the stream
// position is undefined and the decoder must not be reused.
type Decoder interface {
	Decode() (any, error)
}

// Ext is an extension value whose meaning is assigned by the peer. The editor
// uses these for buffer, window and tabpage handles; the type codes are learned
// from the handshake.
type Ext struct {
	Type int8
	Data []byte
}

// Unmarshal decodes a single value from b.
func Unmarshal(c Codec, b []byte) (any, error) {
	return c.NewDecoder(bytes.NewReader(b)).Decode()
}

// AsInt64 accepts any integer kind a decoder may produce.
func AsInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	default:
		return 0, false
	}
}

// AsUint64 is AsInt64 for values that must not be negative.
func AsUint64(v any) (uint64, bool) {
	if n, ok := v.(uint64); ok {
		return n, true
	}
	if n, ok := v.(uint); ok {
		return uint64(n), true
	}
	n, ok := AsInt64(v)
	if !ok || n < 0 {
		return 0, false
	}
	return uint64(n), true
}
