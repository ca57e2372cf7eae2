package peertest

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Server accepts TCP connections and runs a Peer with the same handlers on
// each one, like an editor started with --listen.
type Server struct {
	mu       sync.Mutex
	handlers map[string]HandlerFunc
	peers    []*Peer
	listener net.Listener
	wg       sync.WaitGroup // One per connection being served
	shutdown atomic.Bool    // Set before the listener is closed to silence Accept errors
	accepted chan *Peer
}

func NewServer() *Server {
	return &Server{
		handlers: make(map[string]HandlerFunc),
		accepted: make(chan *Peer, 16),
	}
}

// Handle registers h on every connection accepted from now on.
func (s *Server) Handle(method string, h HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

// HandleAll registers every handler in hs.
func (s *Server) HandleAll(hs map[string]HandlerFunc) {
	for method, h := range hs {
		s.Handle(method, h)
	}
}

// Start listens on address (use "127.0.0.1:0" for a free port) and serves in
// the background. It returns the address clients should dial.
func (s *Server) Start(address string) (string, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return "", err
	}
	s.listener = listener
	go s.serve()
	return listener.Addr().String(), nil
}

// Accepted delivers the Peer of each new connection, for tests that want to
// script a particular client's connection.
func (s *Server) Accepted() <-chan *Peer {
	return s.accepted
}

func (s *Server) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			// During Shutdown the listener is closed on purpose.
			return
		}

		p := New(conn)
		s.mu.Lock()
		if s.shutdown.Load() {
			s.mu.Unlock()
			conn.Close()
			return
		}
		for method, h := range s.handlers {
			p.Handle(method, h)
		}
		s.peers = append(s.peers, p)
		s.mu.Unlock()

		select {
		case s.accepted <- p:
		default:
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer p.Close()
			_ = p.Serve()
		}()
	}
}

// Shutdown stops accepting, closes every connection and waits for the
// per-connection goroutines to finish.
func (s *Server) Shutdown(timeout time.Duration) error {
	if !s.shutdown.CompareAndSwap(false, true) {
		return nil
	}
	if s.listener != nil {
		s.listener.Close()
	}

	s.mu.Lock()
	for _, p := range s.peers {
		p.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for connections to finish")
	}
}
