package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vrouter/nlengine/netlink"
)

// startEngine opens a generic netlink socket and drives an engine on it until
// the returned stop function is called.
func startEngine(conf *netlink.Config, opts ...netlink.Option) (*netlink.Engine, *netlink.Conn, func(), error) {
	conn, err := netlink.Dial(netlink.ProtoGeneric)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("error opening the netlink socket: %w", err)
	}

	e, err := netlink.New(conn, conf, opts...)
	if err != nil {
		conn.Close()
		return nil, nil, nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := e.Run(ctx); err != nil {
			slog.Error("the engine stopped", "err", err)
		}
	}()

	stop := func() {
		cancel()
		if err := e.Close(); err != nil {
			slog.Warn("error closing the engine", "err", err)
		}
		<-done
	}

	return e, conn, stop, nil
}
