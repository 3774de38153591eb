package main

import (
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/vrouter/nlengine/backends/prometheus"
	"github.com/vrouter/nlengine/netlink"
	"github.com/vrouter/nlengine/plugins/api"
)

func TestYAMLAndJSON(t *testing.T) {
	testDir := "testdata/yaml_json"
	d, err := os.ReadDir(testDir)
	if err != nil {
		t.Fatalf("error reading testdata: %v", err)
	}

	confs := []*Config{}
	for _, n := range d {
		c, err := ReadConf(testDir + "/" + n.Name())
		if err != nil {
			t.Fatalf("error parsing %q: %v", n.Name(), err)
		}
		t.Logf("%s:\n%s", n.Name(), c)
		confs = append(confs, c)
	}

	if len(confs) != 2 {
		t.Fatalf("expected two configurations but got %d", len(confs))
	}

	if diff := cmp.Diff(confs[0], confs[1]); diff != "" {
		t.Errorf("configurations are not equal (-json +yaml):\n%s", diff)
	}

	if confs[0].Engine.MaxPendingRequests != 64 || confs[0].Engine.WriteQueueSize != netlink.DefaultWriteQueueSize {
		t.Errorf("engine defaults weren't layered: %+v", confs[0].Engine)
	}
	if confs[0].Plugins.Api.BindAddress != api.DefaultConfig.BindAddress || confs[0].Plugins.Api.BindPort != 7777 {
		t.Errorf("api defaults weren't layered: %+v", confs[0].Plugins.Api)
	}
}

func TestDefaults(t *testing.T) {
	testDir := "testdata/conf"

	populatedEngine := netlink.Config{
		Log:                     false,
		MaxBatchIOOps:           10,
		ReadBufferSize:          8192,
		BufferSize:              1024,
		BufferPoolSize:          32,
		PoisonBuffers:           true,
		MaxPendingRequests:      16,
		MaxPendingNotifications: 8,
		WriteQueueSize:          16,
		TimeoutMs:               100,
		BypassSendQueue:         true,
		DispatchWorkers:         2,
	}
	populatedProm := prometheus.DefaultConfig
	populatedProm.BindAddress = "0.0.0.0"

	tests := map[string]struct {
		level  string
		engine *netlink.Config
		api    *api.Config
		prom   *prometheus.Config
	}{
		"empty.yaml": {
			engine: &netlink.DefaultConfig,
		},
		"populated.yaml": {
			level:  "trace",
			engine: &populatedEngine,
			api:    &api.DefaultConfig,
			prom:   &populatedProm,
		},
	}

	for name, tc := range tests {
		c, err := ReadConf(testDir + "/" + name)
		if err != nil {
			t.Fatalf("error parsing %q: %v", name, err)
		}

		if c.LogLevel != tc.level {
			t.Errorf("%s: got log level %q; want %q", name, c.LogLevel, tc.level)
		}
		if diff := cmp.Diff(tc.engine, c.Engine); diff != "" {
			t.Errorf("%s: engine mismatch (-want +got):\n%s", name, diff)
		}

		var gotApi *api.Config
		if c.Plugins != nil {
			gotApi = c.Plugins.Api
		}
		if diff := cmp.Diff(tc.api, gotApi); diff != "" {
			t.Errorf("%s: api mismatch (-want +got):\n%s", name, diff)
		}

		var gotProm *prometheus.Config
		if c.Backends != nil {
			gotProm = c.Backends.Prometheus
		}
		if diff := cmp.Diff(tc.prom, gotProm); diff != "" {
			t.Errorf("%s: prometheus mismatch (-want +got):\n%s", name, diff)
		}
	}

	if netlink.DefaultConfig.MaxPendingRequests != netlink.DefaultMaxPendingRequests {
		t.Errorf("parsing configurations altered the engine defaults")
	}
}

func TestMissingConf(t *testing.T) {
	c, err := readConfOrDefaults("testdata/nope.yaml")
	if err != nil {
		t.Fatalf("missing configuration not defaulted: %v", err)
	}
	if diff := cmp.Diff(&netlink.DefaultConfig, c.Engine); diff != "" {
		t.Errorf("engine mismatch (-want +got):\n%s", diff)
	}

	if _, err := ReadConf("testdata/nope.yaml"); err == nil {
		t.Errorf("missing configuration read without error")
	}
}
