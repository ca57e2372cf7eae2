package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nvim-rpc/codec"
	"nvim-rpc/metadata"
	"nvim-rpc/peertest"
)

func TestParseArgs(t *testing.T) {
	got := parseArgs([]string{`"1+1"`, "0", "-1", "false", "1.5", "echo hi", `[1,"a"]`})
	assert.Equal(t, []any{"1+1", int64(0), int64(-1), false, 1.5, "echo hi", []any{float64(1), "a"}}, got)
}

func TestJSONValue(t *testing.T) {
	md := metadata.Metadata{BufferID: 0, WindowID: 1, TabpageID: 2}
	v := jsonValue(map[any]any{
		"buf":   codec.Ext{Type: 0, Data: []byte{1}},
		"other": codec.Ext{Type: 7, Data: []byte{2}},
		"raw":   []byte("text"),
		"list":  []any{map[string]any{"n": int64(1)}},
	}, md)

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"buf":{"Buffer":"AQ=="},"other":{"ext7":"Ag=="},"raw":"text","list":[{"n":1}]}`, string(out))
}

func TestCallCommand(t *testing.T) {
	svr := peertest.NewServer()
	svr.HandleAll(peertest.Editor())
	addr, err := svr.Start("127.0.0.1:0")
	require.NoError(t, err)
	defer svr.Shutdown(3 * time.Second)

	root, err := newRootCmd()
	require.NoError(t, err)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--server", addr, "call", "nvim_eval", `{"a":[1,2]}`})

	require.NoError(t, root.Execute())
	assert.JSONEq(t, `{"a":[1,2]}`, out.String())
}

func TestVersionCommand(t *testing.T) {
	svr := peertest.NewServer()
	svr.HandleAll(peertest.Editor())
	addr, err := svr.Start("127.0.0.1:0")
	require.NoError(t, err)
	defer svr.Shutdown(3 * time.Second)

	root, err := newRootCmd()
	require.NoError(t, err)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--server", addr, "version"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "nvimrpc dev")
	assert.Contains(t, out.String(), "editor version 1000\n")
}

func TestVersionCommandClientOnly(t *testing.T) {
	root, err := newRootCmd()
	require.NoError(t, err)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version", "--client-only"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "nvimrpc dev")
	assert.NotContains(t, out.String(), "editor version")
}

func TestVersionCommandEditorUnreachable(t *testing.T) {
	root, err := newRootCmd()
	require.NoError(t, err)
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	// Nothing is listening on port 1.
	root.SetArgs([]string{"--server", "127.0.0.1:1", "version"})

	assert.Error(t, root.Execute())
}
