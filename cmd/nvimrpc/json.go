package main

import (
	"encoding/base64"
	"fmt"

	"nvim-rpc/codec"
	"nvim-rpc/metadata"
)

// jsonValue turns a decoded result into something encoding/json accepts:
// maps get string keys and handles become {"Buffer": "<base64>"} objects.
func jsonValue(v any, md metadata.Metadata) any {
	switch x := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[fmt.Sprint(k)] = jsonValue(val, md)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = jsonValue(val, md)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = jsonValue(val, md)
		}
		return out
	case []byte:
		return string(x)
	case codec.Ext:
		name := fmt.Sprintf("ext%d", x.Type)
		if typ, ok := md.Classify(x); ok {
			name = typ.String()
		}
		return map[string]any{name: base64.StdEncoding.EncodeToString(x.Data)}
	default:
		return v
	}
}
