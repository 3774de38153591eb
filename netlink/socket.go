package netlink

import "context"

// Socket is the duplex channel an engine drives. Read and Write must not
// block: when the socket isn't ready they return (0, nil).
type Socket interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)

	// PortID is the local port id placed in outgoing headers.
	PortID() uint32
}

// PollableSocket can report readiness, which is all Engine.Run needs to
// drive the engine on its own.
type PollableSocket interface {
	Socket

	// WaitReadable blocks until a read may make progress.
	WaitReadable(ctx context.Context) error

	// WaitWritable blocks until a write may make progress.
	WaitWritable(ctx context.Context) error
}
