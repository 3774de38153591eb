package netlink

import (
	"errors"
	"fmt"
	"syscall"
	"time"
)

//go:generate go tool stringer -type=ErrorKind -trimprefix=Kind

// ErrorKind classifies the way a request (or a local encoding step) failed.
type ErrorKind int

const (
	// KindEncoding signals a malformed or truncated attribute or message.
	KindEncoding ErrorKind = iota

	// KindTransport signals a socket read or write failure.
	KindTransport

	// KindProtocol signals a non-zero error code returned by the kernel.
	KindProtocol

	// KindTimeout signals no reply arrived within the request's window.
	KindTimeout

	// KindAdmission signals the request was rejected before being queued.
	KindAdmission
)

// Kind sentinels. Every *Error matches the sentinel of its kind through
// errors.Is, so callers can branch on the category without a type assertion.
var (
	ErrEncoding  = errors.New("netlink encoding error")
	ErrTransport = errors.New("netlink transport error")
	ErrProtocol  = errors.New("netlink protocol error")
	ErrTimeout   = errors.New("netlink request timed out")
	ErrAdmission = errors.New("netlink request rejected")
)

// Specific causes, wrapped by *Error.
var (
	ErrPoolExhausted  = errors.New("buffer pool exhausted")
	ErrTooManyPending = errors.New("too many pending netlink requests")
	ErrQueueFull      = errors.New("netlink write queue full")
	ErrDuplicateSeq   = errors.New("sequence number already in flight")
	ErrClosed         = errors.New("netlink engine closed")
	ErrNoPayload      = errors.New("request has no payload")

	ErrTruncated   = errors.New("attribute truncated")
	ErrAttrLength  = errors.New("attribute length doesn't match its type")
	ErrBufferFull  = errors.New("not enough room left in buffer")
	ErrBuilderDone = errors.New("message builder already built")
)

var kindSentinels = map[ErrorKind]error{
	KindEncoding:  ErrEncoding,
	KindTransport: ErrTransport,
	KindProtocol:  ErrProtocol,
	KindTimeout:   ErrTimeout,
	KindAdmission: ErrAdmission,
}

// Error is the single error type delivered through request callbacks.
// Protocol errors carry the positive errno reported by the kernel in Code
// alongside its description.
type Error struct {
	Kind    ErrorKind
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindProtocol:
		return fmt.Sprintf("netlink: %s (errno %d)", e.Message, e.Code)
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("netlink %s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("netlink %s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("netlink %s: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

func encodingError(err error, format string, args ...any) *Error {
	return &Error{Kind: KindEncoding, Message: fmt.Sprintf(format, args...), Err: err}
}

func admissionError(err error) *Error {
	return &Error{Kind: KindAdmission, Code: ErrorSendingRequest, Err: err}
}

func transportError(err error) *Error {
	return &Error{Kind: KindTransport, Code: ErrorSendingRequest, Err: err}
}

func timeoutError(d time.Duration) *Error {
	return &Error{Kind: KindTimeout, Message: fmt.Sprintf("no reply received within %s", d)}
}

// protocolError maps the (negative) error field of an NLMSG_ERROR frame to a
// platform independent code plus its description.
func protocolError(code int32, extAck string) *Error {
	errno := int(-code)
	msg := syscall.Errno(errno).Error()
	if extAck != "" {
		msg = msg + ": " + extAck
	}
	return &Error{Kind: KindProtocol, Code: errno, Message: msg}
}
