package ovs

import (
	"log/slog"

	"github.com/vrouter/nlengine/netlink"
)

// Upcall is a packet the datapath handed up to userspace, either because no
// flow matched it or because a userspace action asked for it.
type Upcall struct {
	Command  uint8
	Index    uint32
	Packet   []byte
	Key      netlink.Attrs
	UserData []byte
}

// Miss reports whether the upcall comes from a flow table miss.
func (u Upcall) Miss() bool {
	return u.Command == CmdPacketMiss
}

// Cookie returns the 64 bit user data set by a UserspaceAction.
func (u Upcall) Cookie() (uint64, bool) {
	if len(u.UserData) != 8 {
		return 0, false
	}
	return nativeEndian.Uint64(u.UserData), true
}

// ParseUpcall decodes the payload of a packet family message.
func ParseUpcall(payload []byte) (Upcall, error) {
	var u Upcall

	attrs, err := netlink.GenlAttrs(payload, headerLen)
	if err != nil {
		return u, err
	}
	u.Command = payload[0]
	u.Index = nativeEndian.Uint32(payload[netlink.GenlHeaderLen:])

	if u.Packet, _, err = netlink.Get(attrs, attrPacketPacket); err != nil {
		return u, err
	}
	if u.Key, _, err = netlink.Get(attrs, attrPacketKey); err != nil {
		return u, err
	}
	if u.UserData, _, err = netlink.Get(attrs, attrPacketUserdata); err != nil {
		return u, err
	}

	return u, nil
}

// UpcallHandler adapts fn into an engine notification handler. Messages of
// other families are handed to next when it isn't nil.
func UpcallHandler(fs Families, fn func(Upcall), next netlink.NotificationHandler) netlink.NotificationHandler {
	logger := slog.Default().With("t", "ovs")

	return func(n netlink.Notification) {
		if n.Type != fs.Packet.ID {
			if next != nil {
				next(n)
			}
			return
		}

		u, err := ParseUpcall(n.Payload)
		if err != nil {
			logger.Warn("dropping malformed upcall", "err", err)
			return
		}
		fn(u)
	}
}
