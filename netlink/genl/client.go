// Package genl resolves generic netlink families, their versions and their
// multicast groups through the controller family.
package genl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	"github.com/vrouter/nlengine/netlink"
	"github.com/vrouter/nlengine/types"
)

type Option func(*Client)

// WithTimeout sets the reply timeout of controller requests.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithRetries controls how Resolve retries requests the engine rejected.
func WithRetries(attempts int, min, max time.Duration) Option {
	return func(c *Client) {
		c.attempts = attempts
		c.backoffMin = min
		c.backoffMax = max
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// Client talks to the controller family over an engine.
type Client struct {
	e       *netlink.Engine
	timeout time.Duration
	logger  *slog.Logger

	attempts   int
	backoffMin time.Duration
	backoffMax time.Duration

	mu    sync.Mutex
	cache map[string]Family
}

func NewClient(e *netlink.Engine, opts ...Option) *Client {
	c := &Client{
		e:          e,
		timeout:    DefaultTimeout,
		attempts:   defaultResolveAttempts,
		backoffMin: defaultBackoffMin,
		backoffMax: defaultBackoffMax,
		cache:      map[string]Family{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default().With("t", "genl")
	}
	return c
}

// getFamily builds a CTRL_CMD_GETFAMILY request for name.
func getFamily[T any](c *Client, name string, cb netlink.Callback[T], tr netlink.Translator[T]) *netlink.RequestBuilder[T] {
	b, err := c.e.NewMessage()
	if err != nil {
		cb(netlink.Result[T]{Err: err})
		return nil
	}
	netlink.Put(b, attrFamilyName, name)
	msg, err := b.Build()
	if err != nil {
		cb(netlink.Result[T]{Err: err})
		return nil
	}

	return netlink.NewRequest[T](c.e, Ctrl.Command(CmdGetFamily)).
		WithPayload(msg).
		WithCallback(cb, tr).
		WithTimeout(c.timeout)
}

// GetFamily asks the kernel for everything it knows about a family.
func (c *Client) GetFamily(name string, cb netlink.Callback[Family]) {
	if r := getFamily(c, name, cb, familyTranslator); r != nil {
		r.Send()
	}
}

// FamilyID resolves the id of a family.
func (c *Client) FamilyID(name string, cb netlink.Callback[uint16]) {
	tr := func(frames [][]byte) (uint16, error) {
		f, err := familyTranslator(frames)
		return f.ID, err
	}
	if r := getFamily(c, name, cb, tr); r != nil {
		r.Send()
	}
}

// MulticastGroup resolves the id of one of a family's multicast groups.
func (c *Client) MulticastGroup(family, group string, cb netlink.Callback[uint32]) {
	tr := func(frames [][]byte) (uint32, error) {
		f, err := familyTranslator(frames)
		if err != nil {
			return 0, err
		}
		id, ok := f.Groups[group]
		if !ok {
			return 0, fmt.Errorf("%w %q in family %q", ErrNoSuchGroup, group, family)
		}
		return id, nil
	}
	if r := getFamily(c, family, cb, tr); r != nil {
		r.Send()
	}
}

func (c *Client) GetFamilyFuture(name string) *netlink.Future[Family] {
	f := netlink.NewFuture[Family]()
	c.GetFamily(name, f.Callback())
	return f
}

func (c *Client) FamilyIDFuture(name string) *netlink.Future[uint16] {
	f := netlink.NewFuture[uint16]()
	c.FamilyID(name, f.Callback())
	return f
}

func (c *Client) MulticastGroupFuture(family, group string) *netlink.Future[uint32] {
	f := netlink.NewFuture[uint32]()
	c.MulticastGroup(family, group, f.Callback())
	return f
}

// Resolve returns the description of a family, asking the kernel only the
// first time. Requests the engine turns down for lack of room are retried
// with an exponential backoff; any other failure is returned right away.
func (c *Client) Resolve(ctx context.Context, name string) (Family, error) {
	c.mu.Lock()
	f, ok := c.cache[name]
	c.mu.Unlock()
	if ok {
		return f, nil
	}

	b := &backoff.Backoff{
		Min:    c.backoffMin,
		Max:    c.backoffMax,
		Factor: 2,
		Jitter: true,
	}

	var err error
	for {
		f, err = c.GetFamilyFuture(name).Await(ctx)
		if err == nil {
			break
		}
		if !errors.Is(err, netlink.ErrAdmission) || int(b.Attempt())+1 >= c.attempts {
			return Family{}, fmt.Errorf("couldn't resolve family %q: %w", name, err)
		}

		d := b.Duration()
		c.logger.Debug("retrying family resolution", "family", name, "in", d, "err", err)

		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return Family{}, fmt.Errorf("couldn't resolve family %q: %w", name, ctx.Err())
		case <-t.C:
		}
	}

	c.mu.Lock()
	c.cache[name] = f
	c.mu.Unlock()

	c.logger.Debug("resolved family", "family", f.String(), "groups", len(f.Groups))

	return f, nil
}

// ResolveFamily is Resolve for consumers that only know about types.
func (c *Client) ResolveFamily(ctx context.Context, name string) (types.FamilyInfo, error) {
	f, err := c.Resolve(ctx, name)
	if err != nil {
		return types.FamilyInfo{}, err
	}
	return types.FamilyInfo{Name: f.Name, ID: f.ID, Version: f.Version, Groups: f.Groups}, nil
}

// Forget drops a family from the cache, e.g. after its module got reloaded.
func (c *Client) Forget(name string) {
	c.mu.Lock()
	delete(c.cache, name)
	c.mu.Unlock()
}
