// Package rpc correlates calls and responses over a single duplex stream.
//
// A Conn lets many goroutines issue calls over one transport. Each request gets a
// unique id, and a single background goroutine (readLoop) reads every incoming
// envelope and routes responses to the caller waiting on that id:
//
//	goroutine-1 ──Call(id=1)──┐
//	goroutine-2 ──Call(id=2)──┼──→ one transport ──→ editor
//	goroutine-3 ──Call(id=3)──┘
//
//	readLoop:  ←── response(id=2) → pending[2] → goroutine-2 wakes up
//	           ←── notification   → inbox (Notifications)
//
// Responses may arrive in any order; routing is strictly by id.
package rpc

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/juju/errors"
	"github.com/smallnest/chanx"

	"nvim-rpc/codec"
	"nvim-rpc/message"
	"nvim-rpc/protocol"
)

// Conn multiplexes calls over one transport. It is safe for concurrent use.
type Conn struct {
	rw      io.ReadWriteCloser
	codec   codec.Codec
	log     logr.Logger
	metrics *Metrics

	sending sync.Mutex // Serializes writes; an envelope is always written whole

	mu      sync.Mutex       // Guards the fields below, shared by callers and readLoop
	seq     uint32           // Next id candidate; wraps after 2^32 ids
	pending map[uint32]*Call // In-flight calls by id
	broken  error            // Why the connection stopped; nil while healthy

	inbox       *chanx.UnboundedChan[*message.Notification]
	inboxLimit  int
	cancelInbox context.CancelFunc

	closing      chan struct{} // Closed by Close
	done         chan struct{} // Closed when readLoop has returned
	closeOnce    sync.Once
	closeErr     error
	closeTimeout time.Duration
}

// NewConn takes ownership of rw and starts the reader goroutine. The caller
// must eventually call Close.
func NewConn(rw io.ReadWriteCloser, opts ...Option) *Conn {
	o := options{
		codec:        codec.Msgpack(),
		log:          logr.Discard(),
		closeTimeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = NewMetrics()
	}

	inboxCtx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		rw:           rw,
		codec:        o.codec,
		log:          o.log,
		metrics:      o.metrics,
		pending:      make(map[uint32]*Call),
		inbox:        chanx.NewUnboundedChan[*message.Notification](inboxCtx, 16),
		inboxLimit:   o.notificationLimit,
		cancelInbox:  cancel,
		closing:      make(chan struct{}),
		done:         make(chan struct{}),
		closeTimeout: o.closeTimeout,
	}
	go c.readLoop()
	return c
}

// NextID reserves a fresh id. Ids increase by one per call and wrap only after
// the whole uint32 space is used; an id still pending is never handed out again.
func (c *Conn) NextID() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.allocID()
}

// allocID must be called with mu held.
func (c *Conn) allocID() uint32 {
	for {
		id := c.seq
		c.seq++
		if _, busy := c.pending[id]; !busy {
			return id
		}
	}
}

// Call sends a request and returns a handle to wait on.
//
// The pending slot is registered before the request is written, otherwise a
// fast response could reach readLoop before the slot exists. If encoding or
// writing fails, the slot is removed again and the error returned, so a failed
// Call leaves nothing behind.
func (c *Conn) Call(ctx context.Context, method string, params []any) (*Call, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.broken != nil {
		err := c.closedError()
		c.mu.Unlock()
		return nil, err
	}
	id := c.allocID()
	call := newCall(id, method)
	c.pending[id] = call
	c.metrics.Pending.Inc()
	c.mu.Unlock()

	data, err := protocol.Marshal(c.codec, &message.Request{ID: id, Method: method, Params: params})
	if err != nil {
		c.forget(id)
		return nil, errors.Annotatef(err, "encoding %s request", method)
	}
	if err := c.write(data); err != nil {
		c.forget(id)
		return nil, errors.Annotatef(err, "sending %s request", method)
	}

	c.metrics.Calls.Inc()
	c.log.V(2).Info("request sent", "id", id, "method", method)
	return call, nil
}

// CallSync is Call followed by Wait. ctx bounds both; a caller that gives up
// leaves the slot pending until the response arrives or the Conn is closed.
func (c *Conn) CallSync(ctx context.Context, method string, params []any) (any, error) {
	call, err := c.Call(ctx, method, params)
	if err != nil {
		return nil, err
	}
	return call.Wait(ctx)
}

// Notify sends a notification; the peer never answers it.
func (c *Conn) Notify(method string, params []any) error {
	c.mu.Lock()
	if c.broken != nil {
		err := c.closedError()
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	data, err := protocol.Marshal(c.codec, &message.Notification{Method: method, Params: params})
	if err != nil {
		return errors.Annotatef(err, "encoding %s notification", method)
	}
	return errors.Annotatef(c.write(data), "sending %s notification", method)
}

func (c *Conn) write(data []byte) error {
	c.sending.Lock()
	defer c.sending.Unlock()
	_, err := c.rw.Write(data)
	return err
}

// forget drops a slot whose request never made it onto the wire.
func (c *Conn) forget(id uint32) {
	c.mu.Lock()
	if _, ok := c.pending[id]; ok {
		delete(c.pending, id)
		c.metrics.Pending.Dec()
	}
	c.mu.Unlock()
}

// Notifications is the inbox for envelopes the peer pushes without an id. It is
// unordered with respect to responses and closed after the Conn stops. The
// inbox grows without bound unless WithNotificationLimit was given; a client
// that only makes calls and never subscribes receives next to nothing here.
func (c *Conn) Notifications() <-chan *message.Notification {
	return c.inbox.Out
}

// Pending is the number of calls still waiting for a response.
func (c *Conn) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Done is closed once the reader has stopped, for whatever reason.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err reports why the Conn stopped, or nil while it is healthy.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken == nil {
		return nil
	}
	return c.closedError()
}

// readLoop is the only reader of the transport. Reads must be sequential to
// find envelope boundaries, so there is exactly one of these per Conn.
func (c *Conn) readLoop() {
	defer close(c.done)
	defer close(c.inbox.In)

	dec := protocol.NewDecoder(c.rw, c.codec)
	for {
		msg, err := dec.Decode()
		if err != nil {
			c.shutdown(err)
			return
		}

		switch m := msg.(type) {
		case *message.Response:
			c.handleResponse(m)
		case *message.Notification:
			c.handleNotification(m)
		case *message.Request:
			c.handleRequest(m)
		}
	}
}

func (c *Conn) handleResponse(resp *message.Response) {
	c.mu.Lock()
	call, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
		c.metrics.Pending.Dec()
	}
	c.mu.Unlock()

	if !ok {
		// Stale or bogus id: a peer bug, or a response to a call whose
		// write failed. Never fatal.
		c.metrics.UnknownResponses.Inc()
		c.log.Info("dropping response for unknown request", "id", resp.ID)
		return
	}

	if resp.Failed() {
		c.metrics.CallErrors.Inc()
		call.complete(nil, &Error{Value: resp.Error})
		return
	}
	call.complete(resp.Result, nil)
}

func (c *Conn) handleNotification(n *message.Notification) {
	c.metrics.Notifications.Inc()
	if c.inboxLimit > 0 && c.inbox.Len() >= c.inboxLimit {
		c.metrics.DroppedNotifications.Inc()
		c.log.V(1).Info("notification inbox full, dropping", "method", n.Method)
		return
	}
	select {
	case c.inbox.In <- n:
	case <-c.closing:
	}
}

// handleRequest answers requests from the peer. This client serves no methods,
// so every request gets an error response and the peer is never left waiting.
func (c *Conn) handleRequest(req *message.Request) {
	c.metrics.PeerRequests.Inc()
	c.log.Info("peer sent a request, which is not supported", "id", req.ID, "method", req.Method)

	data, err := protocol.Marshal(c.codec, &message.Response{
		ID:    req.ID,
		Error: []any{0, "method not supported: " + req.Method},
	})
	if err == nil {
		err = c.write(data)
	}
	if err != nil {
		c.log.Error(err, "could not reject peer request", "id", req.ID)
	}
}

// shutdown is called when the connection breaks. Every pending caller gets a
// closed-connection error so nobody blocks forever, and later calls fail fast.
func (c *Conn) shutdown(cause error) {
	c.mu.Lock()
	if c.broken == nil {
		c.broken = cause
	}
	err := c.closedError()
	pending := c.pending
	c.pending = make(map[uint32]*Call)
	c.metrics.Pending.Sub(float64(len(pending)))
	c.mu.Unlock()

	select {
	case <-c.closing:
		c.log.V(1).Info("reader stopped", "failedCalls", len(pending))
	default:
		c.log.Error(cause, "connection lost", "failedCalls", len(pending))
	}

	for _, call := range pending {
		call.complete(nil, err)
	}
}

// closedError must be called with mu held and broken set.
func (c *Conn) closedError() error {
	return &closedError{cause: c.broken}
}

// Close shuts the transport down, fails every pending call with ErrClosed and
// waits (bounded) for the reader to stop. The standard input of this process
// cannot always be interrupted, so after the timeout Close returns anyway;
// the reader exits on its own once the peer goes away.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closing)
		c.shutdown(errClosedByCaller)
		c.closeErr = c.rw.Close()

		timer := time.NewTimer(c.closeTimeout)
		defer timer.Stop()
		select {
		case <-c.done:
		case <-timer.C:
			c.log.Info("reader did not stop after the transport was closed")
		}
		c.cancelInbox()
	})
	return c.closeErr
}
