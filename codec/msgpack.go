package codec

import (
	"bufio"
	"io"
	"reflect"

	"github.com/juju/errors"

	msgpack "github.com/hashicorp/go-msgpack/codec"
)

// MsgpackCodec speaks the msgpack format the editor uses on every transport.
//
// Decoded values use plain Go types: string for str, []byte for bin, int64 or
// uint64 for integers, []any for arrays, map[any]any for maps and Ext for
// extension values. Ext is only produced by decoding; higher layers that need
// to send handles encode them with the peer-assigned type codes themselves.
type MsgpackCodec struct {
	handle *msgpack.MsgpackHandle
}

// Msgpack returns a codec with the settings the editor expects: new-spec
// str/bin types on the way out and strings (not raw bytes) on the way in.
func Msgpack() *MsgpackCodec {
	h := &msgpack.MsgpackHandle{
		RawToString: true,
		WriteExt:    true,
	}
	h.MapType = reflect.TypeOf(map[any]any(nil))
	return &MsgpackCodec{handle: h}
}

func (c *MsgpackCodec) Encode(v any) ([]byte, error) {
	var b []byte
	if err := msgpack.NewEncoderBytes(&b, c.handle).Encode(v); err != nil {
		return nil, errors.Annotate(err, "msgpack encode")
	}
	return b, nil
}

func (c *MsgpackCodec) NewDecoder(r io.Reader) Decoder {
	// bufio.Reader gives the decoder an io.ByteReader, which avoids a read
	// syscall per byte on pipes and sockets.
	if _, ok := r.(io.ByteReader); !ok {
		r = bufio.NewReader(r)
	}
	return &msgpackDecoder{dec: msgpack.NewDecoder(r, c.handle)}
}

func (c *MsgpackCodec) Name() string {
	return "msgpack"
}

type msgpackDecoder struct {
	dec *msgpack.Decoder
}

func (d *msgpackDecoder) Decode() (any, error) {
	var v any
	if err := d.dec.Decode(&v); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, err
		}
		return nil, errors.Annotate(err, "msgpack decode")
	}
	return normalize(v), nil
}

// normalize replaces the library's extension representation with Ext so
// callers never import the msgpack package.
func normalize(v any) any {
	switch x := v.(type) {
	case msgpack.RawExt:
		return Ext{Type: int8(x.Tag), Data: x.Data}
	case *msgpack.RawExt:
		return Ext{Type: int8(x.Tag), Data: x.Data}
	case []any:
		for i := range x {
			x[i] = normalize(x[i])
		}
		return x
	case map[any]any:
		for k, e := range x {
			x[k] = normalize(e)
		}
		return x
	default:
		return v
	}
}
