package ovs

import (
	"errors"
	"fmt"

	"github.com/vrouter/nlengine/netlink"
)

var ErrNoDatapath = errors.New("reply describes no datapath")

// DatapathStats mirrors struct ovs_dp_stats.
type DatapathStats struct {
	Hit    uint64
	Missed uint64
	Lost   uint64
	Flows  uint64
}

type Datapath struct {
	Name      string
	Index     uint32
	UpcallPID uint32
	Features  uint32
	Stats     DatapathStats
}

func header(ifindex uint32) []byte {
	b := make([]byte, headerLen)
	nativeEndian.PutUint32(b, ifindex)
	return b
}

func parseDatapath(payload []byte) (Datapath, error) {
	var dp Datapath

	attrs, err := netlink.GenlAttrs(payload, headerLen)
	if err != nil {
		return dp, err
	}
	dp.Index = nativeEndian.Uint32(payload[netlink.GenlHeaderLen:])

	name, ok, err := netlink.Get(attrs, attrDpName)
	if err != nil {
		return dp, err
	}
	if !ok {
		return dp, ErrNoDatapath
	}
	dp.Name = name

	if dp.UpcallPID, _, err = netlink.Get(attrs, attrDpUpcallPID); err != nil {
		return dp, err
	}
	if dp.Features, _, err = netlink.Get(attrs, attrDpUserFeatures); err != nil {
		return dp, err
	}

	stats, ok, err := netlink.Get(attrs, attrDpStats)
	if err != nil {
		return dp, err
	}
	if ok {
		if len(stats) < 32 {
			return dp, fmt.Errorf("datapath stats are %d bytes long: %w", len(stats), netlink.ErrAttrLength)
		}
		dp.Stats = DatapathStats{
			Hit:    nativeEndian.Uint64(stats[0:8]),
			Missed: nativeEndian.Uint64(stats[8:16]),
			Lost:   nativeEndian.Uint64(stats[16:24]),
			Flows:  nativeEndian.Uint64(stats[24:32]),
		}
	}

	return dp, nil
}

func datapathTranslator(frames [][]byte) (Datapath, error) {
	if len(frames) == 0 {
		return Datapath{}, ErrNoDatapath
	}
	return parseDatapath(frames[len(frames)-1])
}

func datapathsTranslator(frames [][]byte) ([]Datapath, error) {
	dps := make([]Datapath, 0, len(frames))
	for _, f := range frames {
		dp, err := parseDatapath(f)
		if err != nil {
			return nil, err
		}
		dps = append(dps, dp)
	}
	return dps, nil
}
