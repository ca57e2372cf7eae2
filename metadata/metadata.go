// Package metadata validates the editor's handshake answer and extracts the
// extension type ids of its handle types.
package metadata

import (
	"fmt"

	"github.com/juju/errors"

	"nvim-rpc/codec"
)

// HandshakeMethod is the request a session sends right after connecting.
const HandshakeMethod = "nvim_get_api_info"

const (
	// ErrNotAMap is returned when the capability value is not a map.
	ErrNotAMap = errors.ConstError("metadata is not a map")
	// ErrNoTypeInformation is returned when the map has no "types" entry.
	ErrNoTypeInformation = errors.ConstError("metadata has no type information")
	// ErrMalformedHandshake is returned when the handshake result is not a
	// [channel, metadata] pair.
	ErrMalformedHandshake = errors.ConstError("malformed handshake result")
)

// MissingError reports a required type without an entry, or whose entry is
// not a map.
type MissingError struct {
	Name string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("metadata is missing type %q", e.Name)
}

// InvalidError reports a type whose id is absent or not an integer.
type InvalidError struct {
	Name string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("metadata has an invalid id for type %q", e.Name)
}

// ObjectType names the handle types the editor sends as extension values.
type ObjectType int

const (
	Buffer ObjectType = iota
	Window
	Tabpage
)

func (t ObjectType) String() string {
	switch t {
	case Buffer:
		return "Buffer"
	case Window:
		return "Window"
	case Tabpage:
		return "Tabpage"
	default:
		return fmt.Sprintf("ObjectType(%d)", int(t))
	}
}

// requiredTypes is also the validation order.
var requiredTypes = []ObjectType{Buffer, Window, Tabpage}

// Metadata holds the extension type ids the editor assigned to its handles.
type Metadata struct {
	BufferID  int64
	WindowID  int64
	TabpageID int64
}

// Parse validates a capability map. Failures are checked in a fixed order: the
// map itself, its "types" entry, then Buffer, Window and Tabpage in turn.
func Parse(v any) (Metadata, error) {
	m, ok := asMap(v)
	if !ok {
		return Metadata{}, ErrNotAMap
	}
	rawTypes, ok := m["types"]
	if !ok {
		return Metadata{}, ErrNoTypeInformation
	}
	// A "types" value that is not a map has no entries at all.
	types, _ := asMap(rawTypes)

	var ids [3]int64
	for i, t := range requiredTypes {
		entry, ok := asMap(types[t.String()])
		if !ok {
			return Metadata{}, &MissingError{Name: t.String()}
		}
		id, ok := codec.AsInt64(entry["id"])
		if !ok {
			return Metadata{}, &InvalidError{Name: t.String()}
		}
		ids[i] = id
	}
	return Metadata{BufferID: ids[0], WindowID: ids[1], TabpageID: ids[2]}, nil
}

// FromHandshake parses the result of HandshakeMethod, which is
// [channel id, capability map]. It also returns the channel id.
func FromHandshake(result any) (Metadata, int64, error) {
	arr, ok := result.([]any)
	if !ok || len(arr) != 2 {
		return Metadata{}, 0, ErrMalformedHandshake
	}
	channel, ok := codec.AsInt64(arr[0])
	if !ok {
		return Metadata{}, 0, errors.Annotatef(ErrMalformedHandshake, "channel id %v", arr[0])
	}
	md, err := Parse(arr[1])
	if err != nil {
		return Metadata{}, 0, err
	}
	return md, channel, nil
}

// Classify tells which handle type an extension value carries.
func (m Metadata) Classify(ext codec.Ext) (ObjectType, bool) {
	switch int64(ext.Type) {
	case m.BufferID:
		return Buffer, true
	case m.WindowID:
		return Window, true
	case m.TabpageID:
		return Tabpage, true
	}
	return 0, false
}

// IsMissing reports whether err is a *MissingError for any type.
func IsMissing(err error) bool {
	var me *MissingError
	return errors.As(err, &me)
}

// IsInvalid reports whether err is an *InvalidError for any type.
func IsInvalid(err error) bool {
	var ie *InvalidError
	return errors.As(err, &ie)
}

// asMap accepts both decoded maps and maps built in Go.
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			switch key := k.(type) {
			case string:
				out[key] = val
			case []byte:
				out[string(key)] = val
			}
		}
		return out, true
	default:
		return nil, false
	}
}
