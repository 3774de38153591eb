package netlink

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/vrouter/nlengine/internal/nltest"
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

const testPortID = 4242

type testCmd struct {
	family  uint16
	command uint8
}

func (c testCmd) FamilyID() uint16 { return c.family }
func (c testCmd) CommandID() uint8 { return c.command }
func (c testCmd) Version() uint8   { return 1 }

var (
	ctrlGetFamily = testCmd{family: 0x10, command: 3}
	ctrlNewFamily = testCmd{family: 0x10, command: 1}

	attrFamilyID   = Attr[uint16](1)
	attrFamilyName = Attr[string](2)
)

func testConfig() *Config {
	c := DefaultConfig
	c.BufferPoolSize = 16
	c.MaxPendingRequests = 8
	c.WriteQueueSize = 8
	c.MaxPendingNotifications = 4
	c.ReadBufferSize = 1024
	c.PoisonBuffers = true
	return &c
}

func newTestEngine(t *testing.T, conf *Config, opts ...Option) (*Engine, *nltest.Socket) {
	t.Helper()

	sock := nltest.NewSocket(testPortID)
	e, err := New(sock, conf, opts...)
	if err != nil {
		t.Fatalf("couldn't create engine: %v", err)
	}
	t.Cleanup(func() { e.Close() })

	return e, sock
}

// familyIDTranslator reads the family id out of a CTRL reply.
func familyIDTranslator(frames [][]byte) (uint16, error) {
	if len(frames) == 0 {
		return 0, encodingError(ErrTruncated, "empty reply")
	}
	attrs, err := GenlAttrs(frames[len(frames)-1], 0)
	if err != nil {
		return 0, err
	}
	id, ok, err := Get(attrs, attrFamilyID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, encodingError(ErrTruncated, "no family id in reply")
	}
	return id, nil
}

// lastSeq returns the sequence number of the last message written to sock.
func lastSeq(t *testing.T, sock *nltest.Socket) uint32 {
	t.Helper()

	msgs, err := sock.Requests()
	if err != nil {
		t.Fatalf("couldn't decode written requests: %v", err)
	}
	if len(msgs) == 0 {
		t.Fatalf("nothing was written")
	}
	return msgs[len(msgs)-1].Header.Sequence
}
