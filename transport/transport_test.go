package transport

import (
	"bytes"
	"context"
	"io"
	"net"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		io.Copy(conn, conn)
	}()

	tr, err := DialTCP(context.Background(), ln.Addr().String())
	require.NoError(t, err)
	assert.Equal(t, KindTCP, tr.Kind())

	_, err = tr.Write([]byte("ping"))
	require.NoError(t, err)

	buf := make([]byte, 4)
	_, err = io.ReadFull(tr, buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))

	require.NoError(t, tr.Close())
	// Closing twice is harmless and reports the first result.
	require.NoError(t, tr.Close())
}

func TestDialTCPRefused(t *testing.T) {
	addr := freeAddr(t)

	_, err := DialTCP(context.Background(), addr, WithDialTimeout(time.Second))
	require.Error(t, err)
	assert.Contains(t, err.Error(), addr)
}

func TestDialTCPRetryUntilListening(t *testing.T) {
	addr := freeAddr(t)

	go func() {
		time.Sleep(200 * time.Millisecond)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return
		}
		defer ln.Close()
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	tr, err := DialTCP(context.Background(), addr, WithRetry(5*time.Second))
	require.NoError(t, err)
	tr.Close()
}

func TestDialTCPRetryHonorsContext(t *testing.T) {
	addr := freeAddr(t)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := DialTCP(ctx, addr, WithRetry(time.Minute))
	require.Error(t, err)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestStandardIO(t *testing.T) {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	s := NewStandardIO(inR, outW)
	assert.Equal(t, KindStandardIO, s.Kind())

	go inW.Write([]byte("hello"))
	buf := make([]byte, 5)
	_, err := io.ReadFull(s, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))

	go s.Write([]byte("world"))
	_, err = io.ReadFull(outR, buf)
	require.NoError(t, err)
	assert.Equal(t, "world", string(buf))

	require.NoError(t, s.Close())

	// The peer sees EOF and our reads fail once closed.
	_, err = outR.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
	_, err = s.Read(buf)
	assert.Error(t, err)
}

func TestSpawnChildEcho(t *testing.T) {
	cat := lookPath(t, "cat")

	c, err := SpawnChild(context.Background(), cat, nil)
	require.NoError(t, err)
	assert.Equal(t, KindChildProcess, c.Kind())
	assert.Greater(t, c.Pid(), 0)

	_, err = c.Write([]byte("round trip"))
	require.NoError(t, err)

	buf := make([]byte, len("round trip"))
	_, err = io.ReadFull(c, buf)
	require.NoError(t, err)
	assert.Equal(t, "round trip", string(buf))

	require.NoError(t, c.Close())
	select {
	case <-c.Exited():
	default:
		t.Fatal("process should be reaped after Close")
	}
	// cat exits cleanly on stdin EOF.
	assert.NoError(t, c.Wait())
}

func TestSpawnChildKilledAfterGrace(t *testing.T) {
	sh := lookPath(t, "sh")

	// Ignores stdin, so only the kill ends it.
	c, err := SpawnChild(context.Background(), sh, []string{"-c", "sleep 30"}, WithExitGrace(100*time.Millisecond))
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, c.Close())
	assert.Less(t, time.Since(start), 10*time.Second)

	select {
	case <-c.Exited():
	default:
		t.Fatal("process should be reaped after Close")
	}
	assert.Error(t, c.Wait(), "killed process reports a non-zero status")
}

func TestSpawnChildReapsWithoutClose(t *testing.T) {
	sh := lookPath(t, "sh")

	c, err := SpawnChild(context.Background(), sh, []string{"-c", "exit 0"})
	require.NoError(t, err)
	defer c.Close()

	select {
	case <-c.Exited():
	case <-time.After(10 * time.Second):
		t.Fatal("exited process was not reaped")
	}

	// Our end of its stdout reports EOF once it is gone.
	_, err = io.ReadAll(c)
	assert.NoError(t, err)
}

func TestSpawnChildErrors(t *testing.T) {
	cat := lookPath(t, "cat")

	cases := []struct {
		name       string
		executable string
		opts       []SpawnOption
		reason     SpawnFailure
	}{
		{
			name:       "missing executable",
			executable: "/nonexistent/nvim",
			reason:     SpawnStartFailed,
		},
		{
			name:       "stdin taken",
			executable: cat,
			opts: []SpawnOption{WithCommand(func(cmd *exec.Cmd) {
				cmd.Stdin = strings.NewReader("")
			})},
			reason: SpawnNoStdin,
		},
		{
			name:       "stdout taken",
			executable: cat,
			opts: []SpawnOption{WithCommand(func(cmd *exec.Cmd) {
				cmd.Stdout = &bytes.Buffer{}
			})},
			reason: SpawnNoStdout,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := SpawnChild(context.Background(), tc.executable, nil, tc.opts...)
			require.Error(t, err)
			assert.Nil(t, c)

			var se *SpawnError
			require.True(t, errors.As(err, &se), "expected *SpawnError, got %T", err)
			assert.Equal(t, tc.reason, se.Reason)
			assert.Equal(t, tc.executable, se.Executable)
		})
	}
}

func TestDialUnixNotImplemented(t *testing.T) {
	_, err := DialUnix(context.Background(), "/tmp/nvim.sock")
	assert.ErrorIs(t, err, ErrNotImplemented)
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func lookPath(t *testing.T, name string) string {
	t.Helper()
	p, err := exec.LookPath(name)
	if err != nil {
		t.Skipf("%s not available: %v", name, err)
	}
	return p
}

func TestExecutable(t *testing.T) {
	t.Setenv(ExecutableEnv, "")
	assert.Equal(t, "nvim", Executable(""))

	t.Setenv(ExecutableEnv, "/opt/nvim/bin/nvim")
	assert.Equal(t, "/opt/nvim/bin/nvim", Executable(""))
	assert.Equal(t, "/usr/bin/nvim", Executable("/usr/bin/nvim"))
}
