package codec

import (
	"bytes"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMsgpackScalars(t *testing.T) {
	c := Msgpack()

	cases := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"bool", true, true},
		{"string", "nvim_get_api_info", "nvim_get_api_info"},
		{"empty string", "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := c.Encode(tc.in)
			require.NoError(t, err)

			got, err := Unmarshal(c, data)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestMsgpackIntegers(t *testing.T) {
	c := Msgpack()

	for _, n := range []int64{0, 1, 127, 128, 255, 65535, 1 << 40, -1, -33, -1 << 40} {
		data, err := c.Encode(n)
		require.NoError(t, err)

		got, err := Unmarshal(c, data)
		require.NoError(t, err)

		v, ok := AsInt64(got)
		require.Truef(t, ok, "decoded %v (%T) is not an integer", got, got)
		assert.Equal(t, n, v)
	}
}

func TestMsgpackContainers(t *testing.T) {
	c := Msgpack()

	in := map[string]any{
		"types": map[string]any{
			"Buffer": map[string]any{"id": 0},
		},
		"list": []any{"a", "b"},
	}
	data, err := c.Encode(in)
	require.NoError(t, err)

	got, err := Unmarshal(c, data)
	require.NoError(t, err)

	m, ok := got.(map[any]any)
	require.Truef(t, ok, "expected map[any]any, got %T", got)
	assert.Equal(t, []any{"a", "b"}, m["list"])

	types, ok := m["types"].(map[any]any)
	require.True(t, ok)
	buffer, ok := types["Buffer"].(map[any]any)
	require.True(t, ok)
	id, ok := AsInt64(buffer["id"])
	require.True(t, ok)
	assert.Equal(t, int64(0), id)
}

func TestMsgpackExtension(t *testing.T) {
	c := Msgpack()

	// fixext1, type 1, payload 0x05: a window handle on a stock editor.
	got, err := Unmarshal(c, []byte{0xd4, 0x01, 0x05})
	require.NoError(t, err)
	assert.Equal(t, Ext{Type: 1, Data: []byte{0x05}}, got)

	// Extensions nested in arrays are converted as well.
	got, err = Unmarshal(c, []byte{0x92, 0xd4, 0x00, 0x01, 0xc0})
	require.NoError(t, err)
	assert.Equal(t, []any{Ext{Type: 0, Data: []byte{0x01}}, nil}, got)
}

func TestMsgpackStream(t *testing.T) {
	c := Msgpack()

	var buf bytes.Buffer
	for _, v := range []any{"one", []any{"two"}, "three"} {
		data, err := c.Encode(v)
		require.NoError(t, err)
		buf.Write(data)
	}

	dec := c.NewDecoder(&buf)
	first, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, "one", first)

	second, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, []any{"two"}, second)

	third, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, "three", third)

	_, err = dec.Decode()
	assert.ErrorIs(t, err, io.EOF)
}

func TestAsInt64(t *testing.T) {
	cases := []struct {
		in   any
		want int64
		ok   bool
	}{
		{int(3), 3, true},
		{int8(-3), -3, true},
		{int32(1 << 20), 1 << 20, true},
		{uint8(200), 200, true},
		{uint64(42), 42, true},
		{uint64(math.MaxUint64), 0, false},
		{"42", 0, false},
		{nil, 0, false},
		{1.5, 0, false},
	}

	for _, tc := range cases {
		got, ok := AsInt64(tc.in)
		assert.Equalf(t, tc.ok, ok, "AsInt64(%v)", tc.in)
		assert.Equalf(t, tc.want, got, "AsInt64(%v)", tc.in)
	}
}

func TestAsUint64(t *testing.T) {
	n, ok := AsUint64(uint64(math.MaxUint64))
	assert.True(t, ok)
	assert.Equal(t, uint64(math.MaxUint64), n)

	_, ok = AsUint64(int64(-1))
	assert.False(t, ok)

	n, ok = AsUint64(int64(7))
	assert.True(t, ok)
	assert.Equal(t, uint64(7), n)
}
