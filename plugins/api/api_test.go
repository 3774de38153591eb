package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/vrouter/nlengine/internal/nltest"
	"github.com/vrouter/nlengine/netlink"
	"github.com/vrouter/nlengine/types"
)

var _ types.Service = &ApiPlugin{}

type fakeResolver map[string]types.FamilyInfo

func (r fakeResolver) ResolveFamily(_ context.Context, name string) (types.FamilyInfo, error) {
	switch name {
	case "busy":
		return types.FamilyInfo{}, fmt.Errorf("couldn't resolve family %q: %w", name,
			&netlink.Error{Kind: netlink.KindAdmission, Code: netlink.ErrorSendingRequest, Err: netlink.ErrTooManyPending})
	case "slow":
		return types.FamilyInfo{}, &netlink.Error{Kind: netlink.KindTimeout, Message: "no reply"}
	}

	f, ok := r[name]
	if !ok {
		return f, &netlink.Error{Kind: netlink.KindProtocol, Code: 2, Message: "no such file or directory"}
	}
	return f, nil
}

var resolver = fakeResolver{
	"my_family": {Name: "my_family", ID: 17, Version: 2, Groups: map[string]uint32{"events": 5}},
}

func newTestServer(t *testing.T) (*httptest.Server, *netlink.Engine) {
	t.Helper()

	conf := netlink.DefaultConfig
	conf.BypassSendQueue = true
	e, err := netlink.New(nltest.NewSocket(4242), &conf)
	if err != nil {
		t.Fatalf("couldn't create engine: %v", err)
	}
	t.Cleanup(func() { e.Close() })

	c := DefaultConfig
	c.Log = false
	srv := httptest.NewServer(New(&c, e, resolver).Handler())
	t.Cleanup(srv.Close)

	return srv, e
}

func get(t *testing.T, url string) (int, []byte) {
	t.Helper()

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("error querying %q: %v", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("error reading the response: %v", err)
	}
	return resp.StatusCode, body
}

type testCmd struct{}

func (testCmd) FamilyID() uint16 { return 17 }
func (testCmd) CommandID() uint8 { return 1 }
func (testCmd) Version() uint8   { return 1 }

func TestStatsValidation(t *testing.T) {
	c := jsonschema.NewCompiler()
	sch, err := c.Compile("testdata/stats-schema.json")
	if err != nil {
		t.Fatalf("error compiling the schema: %v", err)
	}

	srv, e := newTestServer(t)
	netlink.NewRequest[bool](e, testCmd{}).WithTimeout(time.Minute).Send()

	for _, verbosity := range []string{"", "lean", "wrong"} {
		status, body := get(t, srv.URL+"/stats?verbosity="+verbosity)
		if status != http.StatusOK {
			t.Errorf("got status %d for verbosity %q", status, verbosity)
			continue
		}

		inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
		if err != nil {
			t.Errorf("error unmarshalling the stats [%q]: %v", verbosity, err)
			continue
		}
		if err := sch.Validate(inst); err != nil {
			t.Errorf("error validating the stats [%q]: %v", verbosity, err)
		}

		stats := map[string]any{}
		if err := json.Unmarshal(body, &stats); err != nil {
			t.Fatalf("error unmarshalling: %v", err)
		}
		if stats["sent"] != float64(1) || stats["pending"] != float64(1) {
			t.Errorf("got %v; want one pending request", stats)
		}
		if _, ok := stats["received"]; ok == (verbosity == "lean") {
			t.Errorf("verbosity %q: unexpected field set %v", verbosity, stats)
		}
	}
}

func TestFamilies(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := map[string]struct {
		status int
		want   map[string]any
	}{
		"/families/my_family": {
			http.StatusOK,
			map[string]any{"name": "my_family", "id": float64(17), "version": float64(2), "groups": map[string]any{"events": float64(5)}},
		},
		"/families/my_family/groups/events": {
			http.StatusOK,
			map[string]any{"family": "my_family", "group": "events", "id": float64(5)},
		},
		"/families/my_family/groups/nope": {http.StatusNotFound, nil},
		"/families/nope":                   {http.StatusNotFound, nil},
		"/families/nope/groups/events":     {http.StatusNotFound, nil},
		"/families/busy":                   {http.StatusServiceUnavailable, nil},
		"/families/slow":                   {http.StatusGatewayTimeout, nil},
	}

	for path, tc := range tests {
		status, body := get(t, srv.URL+path)
		if status != tc.status {
			t.Errorf("%s: got status %d; want %d", path, status, tc.status)
			continue
		}

		got := map[string]any{}
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("%s: error unmarshalling: %v", path, err)
			continue
		}
		if tc.want == nil {
			if _, ok := got["error"]; !ok {
				t.Errorf("%s: no error in %v", path, got)
			}
			continue
		}
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", path, diff)
		}
	}
}

func TestRoot(t *testing.T) {
	srv, _ := newTestServer(t)

	status, body := get(t, srv.URL+"/")
	if status != http.StatusOK {
		t.Fatalf("got status %d", status)
	}

	resp := struct {
		Routes []struct {
			Method string `json:"method"`
			Path   string `json:"path"`
		} `json:"routes"`
	}{}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("error unmarshalling: %v", err)
	}
	if len(resp.Routes) != 4 {
		t.Errorf("got %d routes; want 4", len(resp.Routes))
	}
}
