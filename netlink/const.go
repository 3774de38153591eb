package netlink

import (
	"github.com/mdlayher/netlink"
)

// Wire header flags and message types. We borrow mdlayher's definitions so
// that callers can mix both packages without conversions.
const (
	FlagRequest     = netlink.Request
	FlagMulti       = netlink.Multi
	FlagAcknowledge = netlink.Acknowledge
	FlagEcho        = netlink.Echo
	FlagDumpIntr    = netlink.DumpInterrupted
	FlagRoot        = netlink.Root
	FlagMatch       = netlink.Match
	FlagAtomic      = netlink.Atomic
	FlagDump        = netlink.Dump
	FlagReplace     = netlink.Replace
	FlagExcl        = netlink.Excl
	FlagCreate      = netlink.Create

	TypeNoop    = netlink.Noop
	TypeError   = netlink.Error
	TypeDone    = netlink.Done
	TypeOverrun = netlink.Overrun
)

// Flags carried by error frames when the kernel appends extended ACK
// attributes (NLM_F_CAPPED and NLM_F_ACK_TLVS). Not defined by
// mdlayher/netlink.
const (
	flagCapped  netlink.HeaderFlags = 0x100
	flagAckTLVs netlink.HeaderFlags = 0x200

	// NLMSGERR_ATTR_MSG
	extAckAttrMsg uint16 = 1
)

// ProtoGeneric is NETLINK_GENERIC, the protocol generic families live on.
const ProtoGeneric = 16

const (
	// HeaderLen is the size of struct nlmsghdr.
	HeaderLen = 16

	// GenlHeaderLen is the size of struct genlmsghdr.
	GenlHeaderLen = 4

	// AttrHeaderLen is the size of struct nlattr.
	AttrHeaderLen = 4

	// NLA_F_NESTED and NLA_F_NET_BYTEORDER
	attrFlagNested    uint16 = 0x8000
	attrFlagByteOrder uint16 = 0x4000
	attrTypeMask             = ^(attrFlagNested | attrFlagByteOrder)

	align = 4
)

const (
	// DefaultMaxBatchIOOps caps the number of reads or writes performed on
	// a single readiness event.
	DefaultMaxBatchIOOps = 200

	// DefaultReadBufferSize is large enough for the biggest message the
	// kernel will hand us in a single datagram.
	DefaultReadBufferSize = 0x10000

	DefaultBufferSize     = 0x1000
	DefaultBufferPoolSize = 512

	DefaultMaxPendingRequests      = 512
	DefaultWriteQueueSize          = 512
	DefaultMaxPendingNotifications = 256

	// DefaultTimeoutMs is the reply timeout applied when a request doesn't
	// specify one.
	DefaultTimeoutMs = 1000
)

// ErrorSendingRequest is the code attached to requests that could not be
// handed to the socket.
const ErrorSendingRequest = -1

func alignLen(n int) int {
	return (n + align - 1) &^ (align - 1)
}
