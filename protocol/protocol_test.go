package protocol

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nvim-rpc/codec"
	"nvim-rpc/message"
)

func TestRoundTrip(t *testing.T) {
	c := codec.Msgpack()

	cases := []struct {
		name string
		msg  message.Message
	}{
		{"request", &message.Request{ID: 7, Method: "nvim_get_vvar", Params: []any{"version"}}},
		{"request without params", &message.Request{ID: 0, Method: "nvim_get_api_info", Params: []any{}}},
		{"request max id", &message.Request{ID: 1<<32 - 1, Method: "nvim_command", Params: []any{"echo 1"}}},
		{"response result", &message.Response{ID: 7, Error: nil, Result: "v0.10.0"}},
		{"response error", &message.Response{ID: 8, Error: []any{"Exception", "boom"}, Result: nil}},
		{"notification", &message.Notification{Method: "redraw", Params: []any{"flush", true}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, NewEncoder(&buf, c).Encode(tc.msg))

			got, err := NewDecoder(&buf, c).Decode()
			require.NoError(t, err)
			assert.Equal(t, tc.msg, got)
		})
	}
}

func TestTupleShapes(t *testing.T) {
	req, err := Tuple(&message.Request{ID: 1, Method: "m"})
	require.NoError(t, err)
	assert.Equal(t, []any{0, uint32(1), "m", []any{}}, req)

	resp, err := Tuple(&message.Response{ID: 2, Result: "r"})
	require.NoError(t, err)
	assert.Equal(t, []any{1, uint32(2), nil, "r"}, resp)

	note, err := Tuple(&message.Notification{Method: "n", Params: []any{1}})
	require.NoError(t, err)
	assert.Equal(t, []any{2, "n", []any{1}}, note)
}

func TestFromTupleMalformed(t *testing.T) {
	cases := []struct {
		name string
		in   any
	}{
		{"scalar", int64(42)},
		{"empty", []any{}},
		{"kind not integer", []any{"0", int64(1), "m", []any{}}},
		{"unknown kind", []any{int64(3), int64(1)}},
		{"short request", []any{int64(0), int64(1), "m"}},
		{"long response", []any{int64(1), int64(1), nil, nil, nil}},
		{"short notification", []any{int64(2), "m"}},
		{"negative id", []any{int64(1), int64(-1), nil, nil}},
		{"huge id", []any{int64(1), int64(1 << 33), nil, nil}},
		{"string id", []any{int64(1), "1", nil, nil}},
		{"method not string", []any{int64(2), int64(5), []any{}}},
		{"params not array", []any{int64(0), int64(1), "m", "p"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromTuple(tc.in)
			require.Error(t, err)
			assert.True(t, IsMalformed(err), "expected a shape error, got %v", err)
		})
	}
}

func TestFromTupleLenient(t *testing.T) {
	// Peers written against the old msgpack spec send methods as raw bytes and
	// may send nil instead of an empty params array.
	msg, err := FromTuple([]any{uint64(2), []byte("redraw"), nil})
	require.NoError(t, err)
	assert.Equal(t, &message.Notification{Method: "redraw", Params: []any{}}, msg)
}

func TestDecodeEOF(t *testing.T) {
	_, err := NewDecoder(bytes.NewReader(nil), codec.Msgpack()).Decode()
	assert.ErrorIs(t, err, io.EOF)
}

func TestEncodeSingleWrite(t *testing.T) {
	w := &countingWriter{}
	enc := NewEncoder(w, codec.Msgpack())

	require.NoError(t, enc.Encode(&message.Request{ID: 1, Method: "nvim_eval", Params: []any{"1+1"}}))
	require.NoError(t, enc.Encode(&message.Notification{Method: "nvim_subscribe", Params: []any{"ev"}}))
	assert.Equal(t, 2, w.writes)
}

type countingWriter struct {
	bytes.Buffer
	writes int
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.writes++
	return w.Buffer.Write(p)
}
