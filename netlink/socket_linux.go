//go:build linux

package netlink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sys/unix"
)

const (
	socketBufferSize = 1 << 20

	// pollIntervalMs bounds how long a readiness wait can miss a cancelled
	// context or a closed socket.
	pollIntervalMs = 100
)

// Conn is a non-blocking AF_NETLINK socket.
type Conn struct {
	mu     sync.RWMutex
	fd     int
	pid    uint32
	closed bool
}

// Dial opens a netlink socket for proto (e.g. unix.NETLINK_GENERIC) and joins
// the given multicast groups.
func Dial(proto int, groups ...uint32) (*Conn, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, proto)
	if err != nil {
		return nil, fmt.Errorf("couldn't open netlink socket: %w", err)
	}

	c := &Conn{fd: fd}
	if err := c.init(groups); err != nil {
		unix.Close(fd)
		return nil, err
	}

	return c, nil
}

func (c *Conn) init(groups []uint32) error {
	if err := unix.SetsockoptInt(c.fd, unix.SOL_SOCKET, unix.SO_RCVBUF, socketBufferSize); err != nil {
		return fmt.Errorf("couldn't set the receive buffer size: %w", err)
	}
	if err := unix.SetsockoptInt(c.fd, unix.SOL_SOCKET, unix.SO_SNDBUF, socketBufferSize); err != nil {
		return fmt.Errorf("couldn't set the send buffer size: %w", err)
	}

	// Extended ACKs are supported since 4.12. Without them we simply lose
	// the kernel's error messages.
	if err := unix.SetsockoptInt(c.fd, unix.SOL_NETLINK, unix.NETLINK_EXT_ACK, 1); err != nil {
		slog.Warn("could not enable extended acknowledgements", "err", err)
	}

	if err := unix.Bind(c.fd, &unix.SockaddrNetlink{Family: unix.AF_NETLINK}); err != nil {
		return fmt.Errorf("couldn't bind netlink socket: %w", err)
	}

	sa, err := unix.Getsockname(c.fd)
	if err != nil {
		return fmt.Errorf("couldn't get the socket's port id: %w", err)
	}
	nsa, ok := sa.(*unix.SockaddrNetlink)
	if !ok {
		return fmt.Errorf("unexpected socket address %T", sa)
	}
	c.pid = nsa.Pid

	for _, g := range groups {
		if err := c.JoinGroup(g); err != nil {
			return err
		}
	}

	return nil
}

// JoinGroup subscribes the socket to a multicast group.
func (c *Conn) JoinGroup(group uint32) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}

	if err := unix.SetsockoptInt(c.fd, unix.SOL_NETLINK, unix.NETLINK_ADD_MEMBERSHIP, int(group)); err != nil {
		return fmt.Errorf("couldn't join multicast group %d: %w", group, err)
	}
	return nil
}

func (c *Conn) PortID() uint32 {
	return c.pid
}

func (c *Conn) Read(p []byte) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return 0, ErrClosed
	}

	n, err := unix.Read(c.fd, p)
	if err != nil {
		if notReady(err) {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}

func (c *Conn) Write(p []byte) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return 0, ErrClosed
	}

	if err := unix.Sendto(c.fd, p, 0, &unix.SockaddrNetlink{Family: unix.AF_NETLINK}); err != nil {
		if notReady(err) {
			return 0, nil
		}
		return 0, err
	}
	return len(p), nil
}

func (c *Conn) WaitReadable(ctx context.Context) error {
	return c.wait(ctx, unix.POLLIN)
}

func (c *Conn) WaitWritable(ctx context.Context) error {
	return c.wait(ctx, unix.POLLOUT)
}

func (c *Conn) wait(ctx context.Context, events int16) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		c.mu.RLock()
		if c.closed {
			c.mu.RUnlock()
			return ErrClosed
		}
		fds := []unix.PollFd{{Fd: int32(c.fd), Events: events}}
		n, err := unix.Poll(fds, pollIntervalMs)
		c.mu.RUnlock()

		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case err != nil:
			return fmt.Errorf("poll failed: %w", err)
		case n == 0:
			continue
		case fds[0].Revents&unix.POLLNVAL != 0:
			return ErrClosed
		default:
			return nil
		}
	}
}

// Close closes the socket. Pending waits notice within a poll interval.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return unix.Close(c.fd)
}

func notReady(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EINTR)
}

