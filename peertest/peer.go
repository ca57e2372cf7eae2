// Package peertest is a scriptable stand-in for the editor, used by tests.
//
// A Peer speaks the protocol over any io.ReadWriteCloser. Requests whose
// method has a handler are answered automatically, each on its own goroutine
// (a slow handler never blocks other requests). Requests without a handler are
// delivered on Requests() so a test can answer them by hand, in any order.
//
//	client ──request──→ Peer.Serve (single reader)
//	                      ├─ handler found → go answer → write response
//	                      └─ no handler    → Requests() → test calls Respond
package peertest

import (
	"io"
	"sync"

	"github.com/juju/errors"

	"nvim-rpc/codec"
	"nvim-rpc/message"
	"nvim-rpc/protocol"
)

// HandlerFunc answers one request. A non-nil rpcErr is sent in the error slot
// of the response and result is ignored.
type HandlerFunc func(params []any) (result any, rpcErr any)

// Peer is the fake editor end of one connection.
type Peer struct {
	rw    io.ReadWriteCloser
	codec codec.Codec

	writeMu sync.Mutex // Shared by all goroutines answering on this connection

	mu       sync.Mutex
	handlers map[string]HandlerFunc

	requests  chan *message.Request
	responses chan *message.Response
	wg        sync.WaitGroup // In-flight handler goroutines
	done      chan struct{}
	closeOnce sync.Once
}

// New wraps rw. Call Serve (usually with go) to start answering.
func New(rw io.ReadWriteCloser) *Peer {
	return &Peer{
		rw:        rw,
		codec:     codec.Msgpack(),
		handlers:  make(map[string]HandlerFunc),
		requests:  make(chan *message.Request, 64),
		responses: make(chan *message.Response, 64),
		done:      make(chan struct{}),
	}
}

// Handle registers h for method, replacing any previous handler.
func (p *Peer) Handle(method string, h HandlerFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[method] = h
}

// HandleAll registers every handler in hs.
func (p *Peer) HandleAll(hs map[string]HandlerFunc) {
	for method, h := range hs {
		p.Handle(method, h)
	}
}

// Serve reads envelopes until the stream ends. It returns nil on a clean EOF.
func (p *Peer) Serve() error {
	defer close(p.done)
	defer p.wg.Wait()

	dec := protocol.NewDecoder(p.rw, p.codec)
	for {
		msg, err := dec.Decode()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return err
		}

		switch m := msg.(type) {
		case *message.Request:
			p.mu.Lock()
			h, ok := p.handlers[m.Method]
			p.mu.Unlock()
			if !ok {
				select {
				case p.requests <- m:
				default:
					// Nobody is scripting this peer; do not hang the client.
					_ = p.Respond(m.ID, []any{0, "no handler for " + m.Method}, nil)
				}
				continue
			}
			p.wg.Add(1)
			go func(req *message.Request) {
				defer p.wg.Done()
				result, rpcErr := h(req.Params)
				if rpcErr != nil {
					result = nil
				}
				_ = p.Respond(req.ID, rpcErr, result)
			}(m)
		case *message.Response:
			select {
			case p.responses <- m:
			default:
			}
		case *message.Notification:
			// Client notifications need no answer.
		}
	}
}

// Done is closed when Serve has returned.
func (p *Peer) Done() <-chan struct{} {
	return p.done
}

// Requests delivers requests that have no handler.
func (p *Peer) Requests() <-chan *message.Request {
	return p.requests
}

// Responses delivers the client's answers to requests sent with Request.
func (p *Peer) Responses() <-chan *message.Response {
	return p.responses
}

// Respond answers request id.
func (p *Peer) Respond(id uint32, rpcErr, result any) error {
	return p.send(&message.Response{ID: id, Error: rpcErr, Result: result})
}

// Notify pushes a notification to the client.
func (p *Peer) Notify(method string, params ...any) error {
	return p.send(&message.Notification{Method: method, Params: params})
}

// Request sends a request to the client, as the editor does for rpcrequest().
func (p *Peer) Request(id uint32, method string, params ...any) error {
	return p.send(&message.Request{ID: id, Method: method, Params: params})
}

// WriteRaw writes bytes as-is, e.g. garbage to break the client's decoder.
func (p *Peer) WriteRaw(b []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_, err := p.rw.Write(b)
	return err
}

func (p *Peer) send(msg message.Message) error {
	data, err := protocol.Marshal(p.codec, msg)
	if err != nil {
		return err
	}
	return p.WriteRaw(data)
}

// Close closes the underlying stream, which ends Serve.
func (p *Peer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		err = p.rw.Close()
	})
	return err
}
