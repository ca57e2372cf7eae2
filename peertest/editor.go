package peertest

import (
	"fmt"
	"io"
	"net"
	"os"
)

// Type ids a stock editor assigns to its handle types.
const (
	BufferTypeID  = 0
	WindowTypeID  = 1
	TabpageTypeID = 2
)

// ChannelID is what the fake editor reports as the client's channel.
const ChannelID = 1

// APIInfo builds the capability map the editor returns from nvim_get_api_info.
func APIInfo(bufferID, windowID, tabpageID int) map[string]any {
	return map[string]any{
		"version": map[string]any{
			"major":          0,
			"minor":          10,
			"patch":          0,
			"api_level":      12,
			"api_compatible": 0,
		},
		"types": map[string]any{
			"Buffer":  map[string]any{"id": bufferID, "prefix": "nvim_buf_"},
			"Window":  map[string]any{"id": windowID, "prefix": "nvim_win_"},
			"Tabpage": map[string]any{"id": tabpageID, "prefix": "nvim_tabpage_"},
		},
		"error_types": map[string]any{
			"Exception":  map[string]any{"id": 0},
			"Validation": map[string]any{"id": 1},
		},
		"functions": []any{
			map[string]any{
				"name":        "nvim_get_api_info",
				"parameters":  []any{},
				"return_type": "Array",
				"method":      false,
				"since":       1,
			},
			map[string]any{
				"name": "nvim_buf_get_lines",
				"parameters": []any{
					[]any{"Buffer", "buffer"},
					[]any{"Integer", "start"},
					[]any{"Integer", "end"},
					[]any{"Boolean", "strict_indexing"},
				},
				"return_type": "ArrayOf(String)",
				"method":      true,
				"since":       1,
			},
			map[string]any{
				"name":        "vim_get_vvar",
				"parameters":  []any{[]any{"String", "name"}},
				"return_type": "Object",
				"async":       false,
				"can_fail":    true,
			},
		},
	}
}

// Editor returns handlers that behave like a small editor: the handshake, a
// version variable, an eval that echoes its argument and a command that fails
// on anything but "echo".
func Editor() map[string]HandlerFunc {
	return map[string]HandlerFunc{
		"nvim_get_api_info": func(params []any) (any, any) {
			return []any{ChannelID, APIInfo(BufferTypeID, WindowTypeID, TabpageTypeID)}, nil
		},
		"nvim_get_vvar": vvar,
		"vim_get_vvar":  vvar,
		"nvim_eval": func(params []any) (any, any) {
			if len(params) != 1 {
				return nil, []any{1, "Wrong number of arguments"}
			}
			return params[0], nil
		},
		"nvim_command": func(params []any) (any, any) {
			if len(params) == 1 {
				if cmd, ok := params[0].(string); ok && len(cmd) >= 4 && cmd[:4] == "echo" {
					return nil, nil
				}
			}
			return nil, []any{0, fmt.Sprintf("Vim:E492: Not an editor command: %v", params)}
		},
	}
}

func vvar(params []any) (any, any) {
	if len(params) == 1 && params[0] == "version" {
		return 1000, nil
	}
	return nil, []any{1, fmt.Sprintf("Key not found: %v", params)}
}

// Pipe connects a client stream to a serving Peer in memory.
func Pipe(hs map[string]HandlerFunc) (io.ReadWriteCloser, *Peer) {
	client, server := net.Pipe()
	p := New(server)
	p.HandleAll(hs)
	go p.Serve()
	return client, p
}

type stdio struct {
	io.Reader
	io.Writer
}

func (stdio) Close() error { return nil }

// ServeStdio runs a Peer on this process's standard streams until stdin is
// closed. Test binaries call it to act as an embedded editor child process.
func ServeStdio(hs map[string]HandlerFunc) error {
	p := New(stdio{Reader: os.Stdin, Writer: os.Stdout})
	p.HandleAll(hs)
	return p.Serve()
}
