// Package nltest provides an in-memory netlink socket and helpers to craft
// the frames a kernel would send back.
package nltest

import (
	"context"
	"errors"
	"sync"

	"github.com/mdlayher/netlink"
)

var ErrClosed = errors.New("nltest: socket closed")

// Responder computes the frames a kernel would send back for a request.
type Responder func(req netlink.Message) [][]byte

// Socket is a non-blocking in-memory socket. Inbound data is queued with
// Feed and handed out by Read as a byte stream: a chunk bigger than the
// caller's buffer is split across reads.
type Socket struct {
	mu sync.Mutex

	pid uint32
	in  [][]byte

	written [][]byte

	writeBlocked bool
	writeLimit   int
	writeErr     error
	readErr      error
	responder    Responder
	closed       bool

	readable chan struct{}
	writable chan struct{}
}

func NewSocket(pid uint32) *Socket {
	return &Socket{
		pid:      pid,
		readable: make(chan struct{}, 1),
		writable: make(chan struct{}, 1),
	}
}

func signal(c chan struct{}) {
	select {
	case c <- struct{}{}:
	default:
	}
}

func (s *Socket) PortID() uint32 {
	return s.pid
}

// Feed queues inbound chunks. Each chunk is returned by a separate Read.
func (s *Socket) Feed(chunks ...[]byte) {
	s.mu.Lock()
	for _, c := range chunks {
		s.in = append(s.in, append([]byte(nil), c...))
	}
	s.mu.Unlock()
	signal(s.readable)
}

func (s *Socket) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}
	if s.readErr != nil {
		err := s.readErr
		s.readErr = nil
		return 0, err
	}
	if len(s.in) == 0 {
		return 0, nil
	}

	n := copy(p, s.in[0])
	if n < len(s.in[0]) {
		s.in[0] = s.in[0][n:]
	} else {
		s.in = s.in[1:]
	}
	return n, nil
}

func (s *Socket) Write(p []byte) (int, error) {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return 0, ErrClosed
	}
	if s.writeErr != nil {
		err := s.writeErr
		s.writeErr = nil
		s.mu.Unlock()
		return 0, err
	}
	if s.writeBlocked {
		s.mu.Unlock()
		return 0, nil
	}

	n := len(p)
	if s.writeLimit > 0 && n > s.writeLimit {
		n = s.writeLimit
	}
	s.written = append(s.written, append([]byte(nil), p[:n]...))
	responder := s.responder
	s.mu.Unlock()

	if responder != nil && n == len(p) {
		var m netlink.Message
		if err := m.UnmarshalBinary(p); err == nil {
			s.Feed(responder(m)...)
		}
	}

	return n, nil
}

// Written returns a copy of every chunk accepted by Write so far.
func (s *Socket) Written() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.written...)
}

// Requests decodes the messages written so far.
func (s *Socket) Requests() ([]netlink.Message, error) {
	var msgs []netlink.Message
	for _, b := range s.Written() {
		var m netlink.Message
		if err := m.UnmarshalBinary(b); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// SetWriteBlocked makes Write report that the socket isn't ready.
func (s *Socket) SetWriteBlocked(blocked bool) {
	s.mu.Lock()
	s.writeBlocked = blocked
	s.mu.Unlock()
	if !blocked {
		signal(s.writable)
	}
}

// SetWriteLimit caps the number of bytes a single Write accepts. Zero lifts
// the cap.
func (s *Socket) SetWriteLimit(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeLimit = n
}

// FailNextWrite makes the next Write return err.
func (s *Socket) FailNextWrite(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

// FailNextRead makes the next Read return err.
func (s *Socket) FailNextRead(err error) {
	s.mu.Lock()
	s.readErr = err
	s.mu.Unlock()
	signal(s.readable)
}

// Respond installs a responder invoked for every fully written request.
func (s *Socket) Respond(r Responder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responder = r
}

func (s *Socket) WaitReadable(ctx context.Context) error {
	for {
		s.mu.Lock()
		ready := len(s.in) > 0 || s.readErr != nil
		closed := s.closed
		s.mu.Unlock()

		if closed {
			return ErrClosed
		}
		if ready {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.readable:
		}
	}
}

func (s *Socket) WaitWritable(ctx context.Context) error {
	for {
		s.mu.Lock()
		ready := !s.writeBlocked
		closed := s.closed
		s.mu.Unlock()

		if closed {
			return ErrClosed
		}
		if ready {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.writable:
		}
	}
}

func (s *Socket) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	signal(s.readable)
	signal(s.writable)
	return nil
}
