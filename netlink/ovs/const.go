package ovs

import "github.com/vrouter/nlengine/netlink"

const (
	DatapathFamily = "ovs_datapath"
	VportFamily    = "ovs_vport"
	FlowFamily     = "ovs_flow"
	PacketFamily   = "ovs_packet"

	// Multicast group every datapath family announces changes on.
	NotifyGroup = "ovs_datapath"
)

// headerLen is the size of struct ovs_header, the dp_ifindex preceding the
// attributes of every datapath family message.
const headerLen = 4

const (
	CmdDatapathNew uint8 = 1
	CmdDatapathDel uint8 = 2
	CmdDatapathGet uint8 = 3
	CmdDatapathSet uint8 = 4
)

const (
	CmdPacketMiss    uint8 = 1
	CmdPacketAction  uint8 = 2
	CmdPacketExecute uint8 = 3
)

// Datapath user features.
const (
	FeatureUnaligned uint32 = 1
	FeatureVportPIDs uint32 = 2
)

var (
	attrDpName         = netlink.Attr[string](1)
	attrDpUpcallPID    = netlink.Attr[uint32](2)
	attrDpStats        = netlink.Attr[[]byte](3)
	attrDpUserFeatures = netlink.Attr[uint32](5)
)

var (
	attrPacketPacket   = netlink.Attr[[]byte](1)
	attrPacketKey      = netlink.Attr[netlink.Attrs](2)
	attrPacketUserdata = netlink.Attr[[]byte](4)
)

var (
	attrUserspacePID      = netlink.Attr[uint32](1)
	attrUserspaceUserdata = netlink.Attr[uint64](2)
)

// ActionUserspace is the action type sending packets up to a socket.
var ActionUserspace = netlink.Attr[netlink.Attrs](2)
