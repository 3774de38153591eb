package netlink

import (
	"testing"

	"github.com/vishvananda/netlink/nl"
)

// vishvananda's route attribute helpers are an independent implementation of
// the same TLV layout.
func TestAttrMatchesRouteAttrs(t *testing.T) {
	foreign := nl.NewRtAttr(3, nl.Uint32Attr(0xfeedface)).Serialize()
	foreign = append(foreign, nl.NewRtAttr(4, nl.ZeroTerminated("vport0")).Serialize()...)

	v, ok, err := Get(Attrs(foreign), Attr[uint32](3))
	if err != nil || !ok || v != 0xfeedface {
		t.Errorf("got %#x ok=%v err=%v; want 0xfeedface", v, ok, err)
	}
	s, ok, err := Get(Attrs(foreign), Attr[string](4))
	if err != nil || !ok || s != "vport0" {
		t.Errorf("got %q ok=%v err=%v; want %q", s, ok, err, "vport0")
	}

	b := newTestBuilder(t, 128)
	Put(b, Attr[uint32](3), 0xfeedface)
	Put(b, Attr[[]byte](5), []byte{1, 2, 3})
	msg, err := b.Build()
	if err != nil {
		t.Fatalf("couldn't build message: %v", err)
	}
	defer msg.Release()

	parsed, err := nl.ParseRouteAttr(msg.Attrs(0))
	if err != nil {
		t.Fatalf("couldn't parse our attributes: %v", err)
	}
	if len(parsed) != 2 {
		t.Fatalf("got %d attributes; want 2", len(parsed))
	}
	if parsed[0].Attr.Type != 3 || nativeEndian.Uint32(parsed[0].Value) != 0xfeedface {
		t.Errorf("first attribute: got type %d value %x", parsed[0].Attr.Type, parsed[0].Value)
	}
	if parsed[1].Attr.Type != 5 || string(parsed[1].Value) != "\x01\x02\x03" {
		t.Errorf("second attribute: got type %d value %x", parsed[1].Attr.Type, parsed[1].Value)
	}
}
