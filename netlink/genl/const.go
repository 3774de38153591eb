package genl

import (
	"time"

	"github.com/vrouter/nlengine/netlink"
)

// The controller family is the only one with a fixed id. Every other family
// is looked up by name through it.
const (
	CtrlID      uint16 = 0x10
	CtrlName           = "nlctrl"
	CtrlVersion uint8  = 1
)

// Controller commands.
const (
	CmdNewFamily uint8 = 1
	CmdDelFamily uint8 = 2
	CmdGetFamily uint8 = 3
)

var (
	attrFamilyID     = netlink.Attr[uint16](1)
	attrFamilyName   = netlink.Attr[string](2)
	attrVersion      = netlink.Attr[uint32](3)
	attrHdrSize      = netlink.Attr[uint32](4)
	attrMaxAttr      = netlink.Attr[uint32](5)
	attrMcastGroups  = netlink.Attr[netlink.Attrs](7)
	attrMcastGrpName = netlink.Attr[string](1)
	attrMcastGrpID   = netlink.Attr[uint32](2)
)

const (
	DefaultTimeout = time.Second

	defaultResolveAttempts = 5
	defaultBackoffMin      = 10 * time.Millisecond
	defaultBackoffMax      = 500 * time.Millisecond
)
