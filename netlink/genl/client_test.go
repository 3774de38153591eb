package genl

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	mdnetlink "github.com/mdlayher/netlink"

	"github.com/vrouter/nlengine/internal/nltest"
	"github.com/vrouter/nlengine/netlink"
	"github.com/vrouter/nlengine/types"
)

func init() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		AddSource: true,
		Level:     slog.LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Remove time.
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			// Remove the directory from the source's filename.
			if a.Key == slog.SourceKey {
				source := a.Value.Any().(*slog.Source)
				source.File = filepath.Base(source.File)
			}
			return a
		},
	}))
	slog.SetDefault(logger)
}

const testPortID = 777

var knownFamilies = map[string]Family{
	"my_family": {
		Name:       "my_family",
		ID:         17,
		Version:    2,
		HeaderSize: 4,
		MaxAttr:    9,
		Groups:     map[string]uint32{"events": 5, "stats": 6},
	},
	"plain": {
		Name:    "plain",
		ID:      24,
		Version: 1,
	},
}

// controller answers CTRL_CMD_GETFAMILY requests the way the kernel does.
// Requests for "silent" are never answered.
func controller(t *testing.T) nltest.Responder {
	return func(req mdnetlink.Message) [][]byte {
		if req.Header.Type != mdnetlink.HeaderType(CtrlID) || req.Data[0] != CmdGetFamily {
			t.Errorf("unexpected request %+v", req.Header)
			return nil
		}

		ad, err := mdnetlink.NewAttributeDecoder(req.Data[4:])
		if err != nil {
			t.Errorf("couldn't decode request attributes: %v", err)
			return nil
		}
		var name string
		for ad.Next() {
			if ad.Type() == 2 {
				name = ad.String()
			}
		}

		seq := req.Header.Sequence
		if name == "silent" {
			return nil
		}
		f, ok := knownFamilies[name]
		if !ok {
			return [][]byte{nltest.Error(seq, testPortID, -int32(syscall.ENOENT), "")}
		}
		return [][]byte{nltest.Reply(CtrlID, seq, testPortID, nltest.Genl(CmdNewFamily, 2, familyAttrs(f)))}
	}
}

func familyAttrs(f Family) []byte {
	return nltest.Attrs(func(ae *mdnetlink.AttributeEncoder) {
		ae.String(2, f.Name)
		ae.Uint16(1, f.ID)
		ae.Uint32(3, uint32(f.Version))
		ae.Uint32(4, uint32(f.HeaderSize))
		ae.Uint32(5, f.MaxAttr)
		if len(f.Groups) == 0 {
			return
		}
		ae.Nested(7, func(nae *mdnetlink.AttributeEncoder) error {
			i := uint16(1)
			for name, id := range f.Groups {
				nae.Nested(i, func(gae *mdnetlink.AttributeEncoder) error {
					gae.String(1, name)
					gae.Uint32(2, id)
					return nil
				})
				i++
			}
			return nil
		})
	})
}

func newTestClient(t *testing.T, conf *netlink.Config, opts ...Option) (*Client, *netlink.Engine, *nltest.Socket) {
	t.Helper()

	if conf == nil {
		c := netlink.DefaultConfig
		c.BufferPoolSize = 8
		c.MaxPendingRequests = 4
		c.WriteQueueSize = 4
		c.PoisonBuffers = true
		conf = &c
	}

	sock := nltest.NewSocket(testPortID)
	sock.Respond(controller(t))

	e, err := netlink.New(sock, conf)
	if err != nil {
		t.Fatalf("couldn't create engine: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := e.Run(ctx); err != nil {
			t.Errorf("engine stopped: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		e.Close()
		<-done
	})

	return NewClient(e, opts...), e, sock
}

func await[T any](t *testing.T, f *netlink.Future[T]) (T, error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	v, err := f.Await(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("future never resolved")
	}
	return v, err
}

func TestFamilyID(t *testing.T) {
	c, _, _ := newTestClient(t, nil)

	id, err := await(t, c.FamilyIDFuture("my_family"))
	if err != nil {
		t.Fatalf("couldn't resolve family id: %v", err)
	}
	if id != 17 {
		t.Errorf("got family id %d; want 17", id)
	}
}

func TestGetFamily(t *testing.T) {
	c, _, _ := newTestClient(t, nil)

	for name, want := range knownFamilies {
		got, err := await(t, c.GetFamilyFuture(name))
		if err != nil {
			t.Errorf("%s: %v", name, err)
			continue
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", name, diff)
		}
	}
}

func TestUnknownFamily(t *testing.T) {
	c, _, _ := newTestClient(t, nil)

	_, err := await(t, c.FamilyIDFuture("nope"))
	if !errors.Is(err, netlink.ErrProtocol) {
		t.Fatalf("got %v; want a protocol error", err)
	}

	var nlErr *netlink.Error
	if !errors.As(err, &nlErr) || nlErr.Code != int(syscall.ENOENT) {
		t.Errorf("got %v; want code %d", err, syscall.ENOENT)
	}
}

func TestMulticastGroup(t *testing.T) {
	c, _, _ := newTestClient(t, nil)

	id, err := await(t, c.MulticastGroupFuture("my_family", "stats"))
	if err != nil || id != 6 {
		t.Errorf("got group %d (err %v); want 6", id, err)
	}

	_, err = await(t, c.MulticastGroupFuture("my_family", "nope"))
	if !errors.Is(err, ErrNoSuchGroup) || !errors.Is(err, netlink.ErrEncoding) {
		t.Errorf("got %v; want a missing group", err)
	}

	_, err = await(t, c.MulticastGroupFuture("plain", "events"))
	if !errors.Is(err, ErrNoSuchGroup) {
		t.Errorf("got %v; want a missing group", err)
	}
}

func TestResolveCaches(t *testing.T) {
	c, _, sock := newTestClient(t, nil)

	for i := 0; i < 3; i++ {
		f, err := c.Resolve(context.Background(), "my_family")
		if err != nil {
			t.Fatalf("couldn't resolve: %v", err)
		}
		if f.ID != 17 {
			t.Errorf("got id %d; want 17", f.ID)
		}
	}

	if n := len(sock.Written()); n != 1 {
		t.Errorf("kernel asked %d times; want once", n)
	}

	c.Forget("my_family")
	if _, err := c.Resolve(context.Background(), "my_family"); err != nil {
		t.Fatalf("couldn't resolve: %v", err)
	}
	if n := len(sock.Written()); n != 2 {
		t.Errorf("kernel asked %d times; want twice", n)
	}
}

func TestResolveRetriesAdmission(t *testing.T) {
	conf := netlink.DefaultConfig
	conf.BufferPoolSize = 4
	conf.MaxPendingRequests = 1
	conf.WriteQueueSize = 4
	c, _, _ := newTestClient(t, &conf, WithRetries(50, 5*time.Millisecond, 20*time.Millisecond))

	// Hog the only slot until the unanswered request times out.
	hog := NewClient(c.e, WithTimeout(50*time.Millisecond)).FamilyIDFuture("silent")

	f, err := c.Resolve(context.Background(), "my_family")
	if err != nil {
		t.Fatalf("couldn't resolve: %v", err)
	}
	if f.ID != 17 {
		t.Errorf("got id %d; want 17", f.ID)
	}

	if _, err := await(t, hog); !errors.Is(err, netlink.ErrTimeout) {
		t.Errorf("got %v for the unanswered request; want a timeout", err)
	}
}

func TestResolveGivesUp(t *testing.T) {
	c, _, _ := newTestClient(t, nil)

	if _, err := c.Resolve(context.Background(), "nope"); !errors.Is(err, netlink.ErrProtocol) {
		t.Errorf("got %v; want the kernel's refusal", err)
	}

	conf := netlink.DefaultConfig
	conf.MaxPendingRequests = 1
	c, _, _ = newTestClient(t, &conf, WithRetries(3, time.Millisecond, time.Millisecond))
	NewClient(c.e, WithTimeout(time.Minute)).FamilyIDFuture("silent")

	if _, err := c.Resolve(context.Background(), "my_family"); !errors.Is(err, netlink.ErrAdmission) {
		t.Errorf("got %v; want an admission error once retries are exhausted", err)
	}
}

func TestResolveFamilyInfo(t *testing.T) {
	c, _, _ := newTestClient(t, nil)

	var r types.FamilyResolver = c
	got, err := r.ResolveFamily(context.Background(), "my_family")
	if err != nil {
		t.Fatalf("couldn't resolve: %v", err)
	}

	want := types.FamilyInfo{
		Name:    "my_family",
		ID:      17,
		Version: 2,
		Groups:  map[string]uint32{"events": 5, "stats": 6},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("family mismatch (-want +got):\n%s", diff)
	}
}
