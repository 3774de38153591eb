package netlink

import (
	"errors"
	"time"

	"github.com/mdlayher/netlink"
)

// Command identifies what a request asks the kernel to do. Family catalogs
// implement it; the engine never looks past these three numbers.
//
// For messages built without the generic netlink header FamilyID doubles as
// the wire message type and CommandID and Version are ignored.
type Command interface {
	FamilyID() uint16
	CommandID() uint8
	Version() uint8
}

// Result is the single outcome of a request: either a value or an error. The
// error is always an *Error.
type Result[T any] struct {
	Value T
	Err   error
}

// Callback receives the outcome of a request exactly once.
type Callback[T any] func(Result[T])

// Translator turns the payloads of the reply frames (everything after the
// wire header, in arrival order) into a value. It's given no frames when the
// request is completed by a bare ACK.
//
// Frames may live in the engine's read buffer: a translator must not retain
// them past its return. Errors that aren't an *Error already are wrapped in an
// encoding error.
type Translator[T any] func(frames [][]byte) (T, error)

// AlwaysTrue is the translator of commands whose only interesting outcome is
// success.
func AlwaysTrue(_ [][]byte) (bool, error) {
	return true, nil
}

// RequestBuilder collects the parameters of a request. It is consumed by Send
// or Future.
type RequestBuilder[T any] struct {
	e       *Engine
	cmd     Command
	flags   netlink.HeaderFlags
	msg     *Message
	cb      Callback[T]
	tr      Translator[T]
	timeout time.Duration
}

// NewRequest starts a request for cmd on e.
func NewRequest[T any](e *Engine, cmd Command) *RequestBuilder[T] {
	return &RequestBuilder[T]{e: e, cmd: cmd}
}

// WithFlags adds wire header flags. FlagRequest is always set.
func (r *RequestBuilder[T]) WithFlags(flags netlink.HeaderFlags) *RequestBuilder[T] {
	r.flags |= flags
	return r
}

// WithPayload attaches a built message. Without a payload the request is sent
// as a bare generic netlink header.
func (r *RequestBuilder[T]) WithPayload(msg *Message) *RequestBuilder[T] {
	r.msg = msg
	return r
}

func (r *RequestBuilder[T]) WithCallback(cb Callback[T], tr Translator[T]) *RequestBuilder[T] {
	r.cb = cb
	r.tr = tr
	return r
}

// WithTimeout overrides the engine's default reply timeout.
func (r *RequestBuilder[T]) WithTimeout(d time.Duration) *RequestBuilder[T] {
	r.timeout = d
	return r
}

// Send submits the request. Admission failures are reported through the
// callback before Send returns.
func (r *RequestBuilder[T]) Send() {
	cb := r.cb
	if cb == nil {
		cb = func(Result[T]) {}
	}
	tr := r.tr
	if tr == nil {
		tr = func([][]byte) (T, error) {
			var zero T
			return zero, nil
		}
	}

	resolve := func(frames [][]byte, err error) func() {
		var res Result[T]
		if err != nil {
			res.Err = err
		} else {
			res.Value, err = tr(frames)
			var nlErr *Error
			if err != nil && !errors.As(err, &nlErr) {
				err = encodingError(err, "couldn't translate reply")
			}
			res.Err = err
		}
		return func() { cb(res) }
	}

	reject := func(err error) {
		cb(Result[T]{Err: err})
	}

	r.e.submit(r.cmd, r.flags, r.msg, r.timeout, resolve, reject)
	r.msg = nil
}

// Future sends the request and returns a future resolved with its outcome.
// A callback set through WithCallback is replaced; its translator is kept.
func (r *RequestBuilder[T]) Future() *Future[T] {
	f := NewFuture[T]()
	r.cb = f.Callback()
	r.Send()
	return f
}

// GenlAttrs returns the attributes of a generic netlink reply payload,
// skipping the generic header and hdrLen bytes of family header.
func GenlAttrs(payload []byte, hdrLen int) (Attrs, error) {
	off := GenlHeaderLen + alignLen(hdrLen)
	if len(payload) < off {
		return nil, encodingError(ErrTruncated, "payload of %d bytes is shorter than its %d bytes of headers", len(payload), off)
	}
	return Attrs(payload[off:]), nil
}
