package transport

import (
	"io"
	"os"
	"sync"

	"github.com/juju/errors"
)

// StandardIO talks to the editor over this process's own standard streams,
// which is how the editor runs remote plugins and jobs started with rpc=true.
type StandardIO struct {
	in        io.ReadCloser
	out       io.WriteCloser
	closeOnce sync.Once
	closeErr  error
}

// Stdio uses os.Stdin and os.Stdout. Nothing else in the process may use them
// while the transport is open.
func Stdio() *StandardIO {
	return NewStandardIO(os.Stdin, os.Stdout)
}

// NewStandardIO builds the variant from arbitrary streams, e.g. pipes in tests.
func NewStandardIO(in io.ReadCloser, out io.WriteCloser) *StandardIO {
	return &StandardIO{in: in, out: out}
}

func (s *StandardIO) Read(p []byte) (int, error)  { return s.in.Read(p) }
func (s *StandardIO) Write(p []byte) (int, error) { return s.out.Write(p) }
func (s *StandardIO) Kind() Kind                  { return KindStandardIO }

// Close closes both streams: the peer sees EOF and a blocked Read returns.
func (s *StandardIO) Close() error {
	s.closeOnce.Do(func() {
		outErr := s.out.Close()
		inErr := s.in.Close()
		if outErr != nil {
			s.closeErr = errors.Annotate(outErr, "closing stdout")
		} else if inErr != nil {
			s.closeErr = errors.Annotate(inErr, "closing stdin")
		}
	})
	return s.closeErr
}
