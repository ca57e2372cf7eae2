package metadata

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/juju/errors"

	"nvim-rpc/codec"
	"nvim-rpc/transport"
)

// ErrMalformedAPIInfo is returned when the function list cannot be read.
const ErrMalformedAPIInfo = errors.ConstError("malformed api info")

// Parameter is one (type, name) pair of a function signature.
type Parameter struct {
	Type string
	Name string
}

// Function describes one API function the editor exposes.
type Function struct {
	Name       string
	Parameters []Parameter
	ReturnType string
	// Async functions do not block the editor; older editors call this flag
	// "async", newer ones only report "method".
	Async   bool
	Method  bool
	CanFail bool
	Since   int64
}

// String renders the signature, e.g.
// "vim_get_vvar(String name) -> Object [can fail]".
func (f Function) String() string {
	params := make([]string, len(f.Parameters))
	for i, p := range f.Parameters {
		params[i] = p.Type + " " + p.Name
	}
	s := fmt.Sprintf("%s(%s) -> %s", f.Name, strings.Join(params, ", "), f.ReturnType)
	if f.CanFail {
		s += " [can fail]"
	}
	if f.Async {
		s += " async"
	}
	return s
}

// APIInfo is the function list from the capability map, plus the handle ids.
type APIInfo struct {
	Metadata  Metadata
	Functions []Function
}

// Lookup finds a function by name.
func (a *APIInfo) Lookup(name string) (Function, bool) {
	for _, f := range a.Functions {
		if f.Name == name {
			return f, true
		}
	}
	return Function{}, false
}

// ParseAPIInfo reads the function list of a capability map. The map must also
// pass Parse.
func ParseAPIInfo(v any) (*APIInfo, error) {
	md, err := Parse(v)
	if err != nil {
		return nil, err
	}
	m, _ := asMap(v)

	rawFuncs, ok := m["functions"].([]any)
	if !ok {
		return nil, errors.Annotate(ErrMalformedAPIInfo, "functions is not an array")
	}

	info := &APIInfo{Metadata: md, Functions: make([]Function, 0, len(rawFuncs))}
	for i, raw := range rawFuncs {
		f, err := parseFunction(raw)
		if err != nil {
			return nil, errors.Annotatef(err, "function %d", i)
		}
		info.Functions = append(info.Functions, f)
	}
	return info, nil
}

func parseFunction(v any) (Function, error) {
	m, ok := asMap(v)
	if !ok {
		return Function{}, errors.Annotate(ErrMalformedAPIInfo, "not a map")
	}

	var f Function
	if f.Name, ok = asString(m["name"]); !ok {
		return Function{}, errors.Annotate(ErrMalformedAPIInfo, "no name")
	}
	if f.ReturnType, ok = asString(m["return_type"]); !ok {
		return Function{}, errors.Annotatef(ErrMalformedAPIInfo, "%s: no return type", f.Name)
	}

	params, _ := m["parameters"].([]any)
	for _, p := range params {
		pair, ok := p.([]any)
		if !ok || len(pair) != 2 {
			return Function{}, errors.Annotatef(ErrMalformedAPIInfo, "%s: bad parameter %v", f.Name, p)
		}
		typ, ok1 := asString(pair[0])
		name, ok2 := asString(pair[1])
		if !ok1 || !ok2 {
			return Function{}, errors.Annotatef(ErrMalformedAPIInfo, "%s: bad parameter %v", f.Name, p)
		}
		f.Parameters = append(f.Parameters, Parameter{Type: typ, Name: name})
	}

	f.Async, _ = m["async"].(bool)
	f.Method, _ = m["method"].(bool)
	f.CanFail, _ = m["can_fail"].(bool)
	f.Since, _ = codec.AsInt64(m["since"])
	return f, nil
}

func asString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	}
	return "", false
}

// LoadAPIInfo runs "<executable> --api-info" and parses what it prints. An
// empty executable is resolved like a child session's.
func LoadAPIInfo(ctx context.Context, executable string) (*APIInfo, error) {
	exe := transport.Executable(executable)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, exe, "--api-info")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, errors.Annotatef(err, "running %s --api-info: %s", exe, msg)
		}
		return nil, errors.Annotatef(err, "running %s --api-info", exe)
	}

	v, err := codec.Unmarshal(codec.Msgpack(), stdout.Bytes())
	if err != nil {
		return nil, errors.Annotatef(err, "decoding %s --api-info output", exe)
	}
	return ParseAPIInfo(v)
}
