//go:build !linux

package netlink

import (
	"context"
	"errors"
)

var errUnsupported = errors.New("netlink sockets are only available on linux")

// Conn is only backed by a real socket on Linux.
type Conn struct{}

func Dial(proto int, groups ...uint32) (*Conn, error) {
	return nil, errUnsupported
}

func (c *Conn) JoinGroup(group uint32) error               { return errUnsupported }
func (c *Conn) PortID() uint32                             { return 0 }
func (c *Conn) Read(p []byte) (int, error)                 { return 0, errUnsupported }
func (c *Conn) Write(p []byte) (int, error)                { return 0, errUnsupported }
func (c *Conn) WaitReadable(ctx context.Context) error     { return errUnsupported }
func (c *Conn) WaitWritable(ctx context.Context) error     { return errUnsupported }
func (c *Conn) Close() error                               { return nil }
