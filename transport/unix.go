package transport

import (
	"context"

	"github.com/juju/errors"
)

// DialUnix would connect to an editor listening on a Unix domain socket
// (nvim --listen /path/to/sock).
//
// TODO: implement once TCP and Unix share a net.Conn backed variant; until then
// callers get ErrNotImplemented instead of a silent fallback.
func DialUnix(ctx context.Context, path string) (Transport, error) {
	return nil, errors.Annotatef(ErrNotImplemented, "unix socket %s", path)
}
