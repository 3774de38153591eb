package ovs

import (
	"fmt"

	"github.com/vrouter/nlengine/netlink"
)

// UserspaceAction sends matching packets to the socket identified by PID,
// tagged with an optional cookie echoed back in the upcall.
type UserspaceAction struct {
	PID      uint32
	UserData *uint64
}

// Put encodes a as a nested attribute of b.
func (a UserspaceAction) Put(b *netlink.Builder) *netlink.Builder {
	return b.Nest(ActionUserspace, func(b *netlink.Builder) {
		netlink.Put(b, attrUserspacePID, a.PID)
		if a.UserData != nil {
			netlink.Put(b, attrUserspaceUserdata, *a.UserData)
		}
	})
}

// ParseUserspaceAction decodes the payload of a userspace action.
func ParseUserspaceAction(attrs netlink.Attrs) (UserspaceAction, error) {
	var a UserspaceAction

	pid, ok, err := netlink.Get(attrs, attrUserspacePID)
	if err != nil {
		return a, err
	}
	if !ok {
		return a, fmt.Errorf("userspace action without a pid")
	}
	a.PID = pid

	cookie, ok, err := netlink.Get(attrs, attrUserspaceUserdata)
	if err != nil {
		return a, err
	}
	if ok {
		a.UserData = &cookie
	}

	return a, nil
}

func (a UserspaceAction) String() string {
	if a.UserData == nil {
		return fmt.Sprintf("userspace(pid=%d)", a.PID)
	}
	return fmt.Sprintf("userspace(pid=%d,userdata=%#x)", a.PID, *a.UserData)
}
