// Package ovs drives the kernel datapath families of Open vSwitch: it
// manages datapaths and turns packet upcalls into Go values.
package ovs

import (
	"context"
	"fmt"

	"github.com/josharian/native"

	"github.com/vrouter/nlengine/netlink"
	"github.com/vrouter/nlengine/netlink/genl"
)

var nativeEndian = native.Endian

// Families holds the resolved datapath families.
type Families struct {
	Datapath genl.Family
	Vport    genl.Family
	Flow     genl.Family
	Packet   genl.Family
}

// ResolveFamilies looks every datapath family up. It fails when the
// openvswitch module isn't loaded.
func ResolveFamilies(ctx context.Context, c *genl.Client) (Families, error) {
	var (
		fs  Families
		err error
	)
	for _, f := range []struct {
		name string
		dst  *genl.Family
	}{
		{DatapathFamily, &fs.Datapath},
		{VportFamily, &fs.Vport},
		{FlowFamily, &fs.Flow},
		{PacketFamily, &fs.Packet},
	} {
		if *f.dst, err = c.Resolve(ctx, f.name); err != nil {
			return fs, err
		}
	}
	return fs, nil
}

type Client struct {
	e  *netlink.Engine
	fs Families
}

func NewClient(e *netlink.Engine, fs Families) *Client {
	return &Client{e: e, fs: fs}
}

func (c *Client) Families() Families {
	return c.fs
}

// request builds a datapath family message. fill may add attributes after
// the ovs header.
func request[T any](c *Client, cmd uint8, ifindex uint32, fill func(*netlink.Builder), cb netlink.Callback[T], tr netlink.Translator[T]) *netlink.RequestBuilder[T] {
	b, err := c.e.NewMessage()
	if err != nil {
		cb(netlink.Result[T]{Err: err})
		return nil
	}
	b.Raw(header(ifindex))
	if fill != nil {
		fill(b)
	}
	msg, err := b.Build()
	if err != nil {
		cb(netlink.Result[T]{Err: err})
		return nil
	}

	return netlink.NewRequest[T](c.e, c.fs.Datapath.Command(cmd)).
		WithPayload(msg).
		WithCallback(cb, tr)
}

func byName(name string) func(*netlink.Builder) {
	return func(b *netlink.Builder) {
		netlink.Put(b, attrDpName, name)
	}
}

// GetDatapath looks a datapath up by name.
func (c *Client) GetDatapath(name string, cb netlink.Callback[Datapath]) {
	if r := request(c, CmdDatapathGet, 0, byName(name), cb, datapathTranslator); r != nil {
		r.Send()
	}
}

// Datapaths dumps every datapath of the host.
func (c *Client) Datapaths(cb netlink.Callback[[]Datapath]) {
	if r := request(c, CmdDatapathGet, 0, nil, cb, datapathsTranslator); r != nil {
		r.WithFlags(netlink.FlagDump).Send()
	}
}

// CreateDatapath creates a datapath sending its upcalls to upcallPID.
func (c *Client) CreateDatapath(name string, upcallPID uint32, cb netlink.Callback[bool]) {
	fill := func(b *netlink.Builder) {
		netlink.Put(b, attrDpName, name)
		netlink.Put(b, attrDpUpcallPID, upcallPID)
		netlink.Put(b, attrDpUserFeatures, FeatureUnaligned)
	}
	if r := request(c, CmdDatapathNew, 0, fill, cb, netlink.AlwaysTrue); r != nil {
		r.WithFlags(netlink.FlagAcknowledge).Send()
	}
}

func (c *Client) DeleteDatapath(name string, cb netlink.Callback[bool]) {
	if r := request(c, CmdDatapathDel, 0, byName(name), cb, netlink.AlwaysTrue); r != nil {
		r.WithFlags(netlink.FlagAcknowledge).Send()
	}
}

func (c *Client) GetDatapathFuture(name string) *netlink.Future[Datapath] {
	f := netlink.NewFuture[Datapath]()
	c.GetDatapath(name, f.Callback())
	return f
}

func (c *Client) DatapathsFuture() *netlink.Future[[]Datapath] {
	f := netlink.NewFuture[[]Datapath]()
	c.Datapaths(f.Callback())
	return f
}

func (c *Client) CreateDatapathFuture(name string, upcallPID uint32) *netlink.Future[bool] {
	f := netlink.NewFuture[bool]()
	c.CreateDatapath(name, upcallPID, f.Callback())
	return f
}

func (c *Client) DeleteDatapathFuture(name string) *netlink.Future[bool] {
	f := netlink.NewFuture[bool]()
	c.DeleteDatapath(name, f.Callback())
	return f
}

func (dp Datapath) String() string {
	return fmt.Sprintf("%s@%d (hit %d, missed %d, lost %d, flows %d)",
		dp.Name, dp.Index, dp.Stats.Hit, dp.Stats.Missed, dp.Stats.Lost, dp.Stats.Flows)
}
