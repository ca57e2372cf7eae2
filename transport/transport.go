// Package transport provides the duplex byte streams a session runs over.
//
// There is a closed set of variants, all exposing the same capability:
//
//	TCP           DialTCP      socket to an editor listening on host:port
//	StandardIO    Stdio        this process's stdin/stdout (we are the embedded plugin host)
//	ChildProcess  SpawnChild   a spawned editor with piped stdin/stdout
//	Unix          DialUnix     declared only, see ErrNotImplemented
//
// Each transport exclusively owns its OS resources; Close releases them and is
// safe to call more than once.
package transport

import (
	"io"

	"github.com/juju/errors"
)

// Kind identifies the variant behind a Transport.
type Kind int

const (
	KindTCP Kind = iota
	KindStandardIO
	KindChildProcess
	KindUnix
)

func (k Kind) String() string {
	switch k {
	case KindTCP:
		return "tcp"
	case KindStandardIO:
		return "stdio"
	case KindChildProcess:
		return "child"
	case KindUnix:
		return "unix"
	default:
		return "unknown"
	}
}

// Transport is a duplex byte stream. Only one goroutine may Read at a time;
// concurrent Writes must be serialized by the caller.
type Transport interface {
	io.ReadWriteCloser
	Kind() Kind
}

// ErrNotImplemented is returned by variants that are part of the surface but
// not available yet.
const ErrNotImplemented = errors.ConstError("transport not implemented")
