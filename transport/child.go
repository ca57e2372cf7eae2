package transport

import (
	"context"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/juju/errors"
)

// SpawnFailure says which step of SpawnChild went wrong.
type SpawnFailure int

const (
	SpawnStartFailed SpawnFailure = iota // The process could not be started
	SpawnNoStdin                         // Its standard input could not be piped
	SpawnNoStdout                        // Its standard output could not be piped
)

func (f SpawnFailure) String() string {
	switch f {
	case SpawnStartFailed:
		return "start failed"
	case SpawnNoStdin:
		return "stdin unavailable"
	case SpawnNoStdout:
		return "stdout unavailable"
	default:
		return "unknown"
	}
}

// SpawnError is returned by SpawnChild. No process is left running when it is
// returned.
type SpawnError struct {
	Reason     SpawnFailure
	Executable string
	Err        error
}

func (e *SpawnError) Error() string {
	msg := "spawning " + e.Executable + ": " + e.Reason.String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Child is an editor process we started. Its stdin and stdout carry the
// protocol; stderr goes wherever the command was configured to send it.
type Child struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	log    logr.Logger
	grace  time.Duration

	exited  chan struct{} // Closed once the process has been reaped
	waitErr error         // Set before exited is closed

	closeOnce sync.Once
	closeErr  error
}

type spawnOptions struct {
	customize func(*exec.Cmd)
	grace     time.Duration
	log       logr.Logger
}

// SpawnOption configures SpawnChild.
type SpawnOption func(*spawnOptions)

// WithCommand lets the caller adjust the command (environment, working
// directory, stderr) before it starts. Setting Stdin or Stdout makes
// SpawnChild fail, both streams belong to the protocol.
func WithCommand(f func(*exec.Cmd)) SpawnOption {
	return func(o *spawnOptions) { o.customize = f }
}

// WithExitGrace is how long Close waits for the process to exit on its own
// after its stdin is closed before killing it.
func WithExitGrace(d time.Duration) SpawnOption {
	return func(o *spawnOptions) { o.grace = d }
}

// WithSpawnLogger sets the logger used for process lifecycle events.
func WithSpawnLogger(log logr.Logger) SpawnOption {
	return func(o *spawnOptions) { o.log = log }
}

// SpawnChild starts executable with args and pipes its standard streams.
//
// The pipes are plain os.Pipe pairs rather than exec.Cmd's StdinPipe and
// StdoutPipe: the process is reaped by a background goroutine as soon as it
// exits, so it never lingers as a zombie, and reaping must not close the
// read end while unread output is still buffered in it.
func SpawnChild(ctx context.Context, executable string, args []string, opts ...SpawnOption) (*Child, error) {
	o := spawnOptions{
		grace: 3 * time.Second,
		log:   logr.Discard(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	cmd := exec.Command(executable, args...)
	if o.customize != nil {
		o.customize(cmd)
	}
	if cmd.Stdin != nil {
		return nil, &SpawnError{Reason: SpawnNoStdin, Executable: executable, Err: errors.New("stdin already redirected")}
	}
	if cmd.Stdout != nil {
		return nil, &SpawnError{Reason: SpawnNoStdout, Executable: executable, Err: errors.New("stdout already redirected")}
	}
	if err := ctx.Err(); err != nil {
		return nil, &SpawnError{Reason: SpawnStartFailed, Executable: executable, Err: err}
	}

	inR, inW, err := os.Pipe()
	if err != nil {
		return nil, &SpawnError{Reason: SpawnNoStdin, Executable: executable, Err: err}
	}
	outR, outW, err := os.Pipe()
	if err != nil {
		closeAll(inR, inW)
		return nil, &SpawnError{Reason: SpawnNoStdout, Executable: executable, Err: err}
	}
	cmd.Stdin = inR
	cmd.Stdout = outW

	if err := cmd.Start(); err != nil {
		closeAll(inR, inW, outR, outW)
		return nil, &SpawnError{Reason: SpawnStartFailed, Executable: executable, Err: err}
	}
	// The child holds its own copies now.
	closeAll(inR, outW)

	c := &Child{
		cmd:    cmd,
		stdin:  inW,
		stdout: outR,
		log:    o.log.WithValues("pid", cmd.Process.Pid),
		grace:  o.grace,
		exited: make(chan struct{}),
	}
	go c.reap()
	c.log.V(1).Info("child process started", "executable", executable, "args", args)
	return c, nil
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}

func (c *Child) reap() {
	c.waitErr = c.cmd.Wait()
	close(c.exited)
	c.log.V(1).Info("child process exited", "state", c.cmd.ProcessState.String())
}

func (c *Child) Read(p []byte) (int, error)  { return c.stdout.Read(p) }
func (c *Child) Write(p []byte) (int, error) { return c.stdin.Write(p) }
func (c *Child) Kind() Kind                  { return KindChildProcess }

// Pid is the operating system process id.
func (c *Child) Pid() int { return c.cmd.Process.Pid }

// Exited is closed once the process has exited and been reaped.
func (c *Child) Exited() <-chan struct{} { return c.exited }

// Wait blocks until the process exits and returns its exit status.
func (c *Child) Wait() error {
	<-c.exited
	return c.waitErr
}

// Close closes the child's stdin, which makes an embedded editor quit, waits
// up to the grace period and then kills it. The process is always reaped
// before Close returns.
func (c *Child) Close() error {
	c.closeOnce.Do(func() {
		_ = c.stdin.Close()

		timer := time.NewTimer(c.grace)
		defer timer.Stop()
		select {
		case <-c.exited:
		case <-timer.C:
			c.log.Info("child process did not exit after stdin was closed, killing it")
			if err := c.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				c.closeErr = errors.Annotate(err, "killing child process")
			}
			<-c.exited
		}
		_ = c.stdout.Close()
	})
	return c.closeErr
}

// ExecutableEnv names the environment variable that overrides the editor
// executable.
const ExecutableEnv = "NVIM_BIN"

// Executable resolves the editor to run: override if set, else $NVIM_BIN,
// else "nvim" from PATH.
func Executable(override string) string {
	if override != "" {
		return override
	}
	if exe := os.Getenv(ExecutableEnv); exe != "" {
		return exe
	}
	return "nvim"
}
