package genl

import (
	"errors"
	"fmt"

	"github.com/vrouter/nlengine/netlink"
)

var (
	ErrNoFamilyID  = errors.New("reply carries no family id")
	ErrNoSuchGroup = errors.New("no such multicast group")
)

// Family is a generic netlink family as the controller describes it.
type Family struct {
	Name    string
	ID      uint16
	Version uint8

	// HeaderSize is the length of the fixed header the family puts in
	// front of its attributes.
	HeaderSize int
	MaxAttr    uint32

	// Groups maps multicast group names to their ids.
	Groups map[string]uint32
}

// Ctrl is the controller family itself.
var Ctrl = Family{Name: CtrlName, ID: CtrlID, Version: CtrlVersion}

// Command returns the command id of f, ready to be sent.
func (f Family) Command(id uint8) Command {
	return Command{family: f.ID, id: id, version: f.Version}
}

func (f Family) String() string {
	return fmt.Sprintf("%s(%d) v%d", f.Name, f.ID, f.Version)
}

// Command satisfies netlink.Command.
type Command struct {
	family  uint16
	id      uint8
	version uint8
}

func (c Command) FamilyID() uint16 { return c.family }
func (c Command) CommandID() uint8 { return c.id }
func (c Command) Version() uint8   { return c.version }

// parseFamily decodes a CTRL_CMD_NEWFAMILY message.
func parseFamily(payload []byte) (Family, error) {
	attrs, err := netlink.GenlAttrs(payload, 0)
	if err != nil {
		return Family{}, err
	}

	var f Family

	id, ok, err := netlink.Get(attrs, attrFamilyID)
	if err != nil {
		return f, err
	}
	if !ok {
		return f, ErrNoFamilyID
	}
	f.ID = id

	if f.Name, _, err = netlink.Get(attrs, attrFamilyName); err != nil {
		return f, err
	}

	version, _, err := netlink.Get(attrs, attrVersion)
	if err != nil {
		return f, err
	}
	f.Version = uint8(version)

	hdrSize, _, err := netlink.Get(attrs, attrHdrSize)
	if err != nil {
		return f, err
	}
	f.HeaderSize = int(hdrSize)

	if f.MaxAttr, _, err = netlink.Get(attrs, attrMaxAttr); err != nil {
		return f, err
	}

	groups, err := attrs.List(attrMcastGroups)
	if err != nil {
		return f, err
	}
	if len(groups) > 0 {
		f.Groups = make(map[string]uint32, len(groups))
	}
	for _, g := range groups {
		name, _, err := netlink.Get(g, attrMcastGrpName)
		if err != nil {
			return f, err
		}
		gid, _, err := netlink.Get(g, attrMcastGrpID)
		if err != nil {
			return f, err
		}
		f.Groups[name] = gid
	}

	return f, nil
}

func familyTranslator(frames [][]byte) (Family, error) {
	if len(frames) == 0 {
		return Family{}, ErrNoFamilyID
	}
	return parseFamily(frames[len(frames)-1])
}
