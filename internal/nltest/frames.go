package nltest

import (
	"github.com/josharian/native"
	"github.com/mdlayher/netlink"
)

const (
	headerLen = 16

	// NLMSG_ERROR flags and attribute carrying the extended ACK message.
	flagCapped  netlink.HeaderFlags = 0x100
	flagAckTLVs netlink.HeaderFlags = 0x200
	extAckMsg   uint16              = 1
)

func align(n int) int {
	return (n + 3) &^ 3
}

// Frame encodes a single netlink message.
func Frame(typ netlink.HeaderType, flags netlink.HeaderFlags, seq, pid uint32, payload []byte) []byte {
	m := netlink.Message{
		Header: netlink.Header{
			Length:   uint32(headerLen + align(len(payload))),
			Type:     typ,
			Flags:    flags,
			Sequence: seq,
			PID:      pid,
		},
		Data: payload,
	}
	b, err := m.MarshalBinary()
	if err != nil {
		panic(err)
	}
	return b
}

// Genl prepends a generic netlink header to attrs.
func Genl(cmd, version uint8, attrs []byte) []byte {
	return append([]byte{cmd, version, 0, 0}, attrs...)
}

// Attrs encodes attributes with mdlayher's encoder.
func Attrs(fn func(ae *netlink.AttributeEncoder)) []byte {
	ae := netlink.NewAttributeEncoder()
	fn(ae)
	b, err := ae.Encode()
	if err != nil {
		panic(err)
	}
	return b
}

// Reply is a single message reply to seq.
func Reply(family uint16, seq, pid uint32, payload []byte) []byte {
	return Frame(netlink.HeaderType(family), 0, seq, pid, payload)
}

// Part is one fragment of a multi-part reply.
func Part(family uint16, seq, pid uint32, payload []byte) []byte {
	return Frame(netlink.HeaderType(family), netlink.Multi, seq, pid, payload)
}

// Done terminates a multi-part reply.
func Done(seq, pid uint32) []byte {
	return Frame(netlink.Done, netlink.Multi, seq, pid, make([]byte, 4))
}

// Ack acknowledges the request with sequence number seq.
func Ack(seq, pid uint32) []byte {
	return Error(seq, pid, 0, "")
}

// Error builds an NLMSG_ERROR frame with the given (negative) code. A non
// empty msg is attached as an extended ACK, the way the kernel does it when
// NETLINK_EXT_ACK is enabled on the socket.
func Error(seq, pid uint32, code int32, msg string) []byte {
	payload := make([]byte, 4+headerLen)
	native.Endian.PutUint32(payload[0:4], uint32(code))

	// The offending request's header.
	native.Endian.PutUint32(payload[4:8], headerLen)
	native.Endian.PutUint32(payload[12:16], seq)
	native.Endian.PutUint32(payload[16:20], pid)

	var flags netlink.HeaderFlags
	if code != 0 {
		flags |= flagCapped
	}
	if msg != "" {
		flags |= flagAckTLVs
		payload = append(payload, Attrs(func(ae *netlink.AttributeEncoder) {
			ae.String(extAckMsg, msg)
		})...)
	}

	return Frame(netlink.Error, flags, seq, pid, payload)
}

// Notification is a frame the kernel sent on its own (sequence number 0).
func Notification(typ uint16, payload []byte) []byte {
	return Frame(netlink.HeaderType(typ), 0, 0, 0, payload)
}

// Concat glues frames together the way several messages arrive in a single
// datagram.
func Concat(frames ...[]byte) []byte {
	var b []byte
	for _, f := range frames {
		b = append(b, f...)
	}
	return b
}
