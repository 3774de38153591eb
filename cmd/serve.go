package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/rjeczalik/notify"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vrouter/nlengine/backends/prometheus"
	"github.com/vrouter/nlengine/netlink"
	"github.com/vrouter/nlengine/netlink/genl"
	"github.com/vrouter/nlengine/netlink/ovs"
	"github.com/vrouter/nlengine/plugins/api"
	"github.com/vrouter/nlengine/types"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine, exporting its metrics and a debugging API.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := readConfOrDefaults(confPath)
		if err != nil {
			return err
		}
		slog.Debug("loaded configuration", "path", confPath, "conf", conf.String())

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		return serve(ctx, conf)
	},
}

func applyLogLevel(level string) {
	if level == "" {
		return
	}
	l, err := types.ParseLevel(level)
	if err != nil {
		slog.Warn("ignoring the configured log level", "err", err)
		return
	}
	logLevel.Set(l)
	slog.Info("log level set", "level", level)
}

func serve(ctx context.Context, conf *Config) error {
	applyLogLevel(conf.LogLevel)

	var promConf *prometheus.Config
	if conf.Backends != nil {
		promConf = conf.Backends.Prometheus
	}
	exporter, err := prometheus.NewExporter(promConf, builtCommit)
	if err != nil {
		return err
	}

	// Notification handlers depend on families we can only resolve once
	// the engine is up.
	var onNotify atomic.Pointer[netlink.NotificationHandler]
	logNotification := func(n netlink.Notification) {
		slog.Debug("notification", "type", n.Type, "len", len(n.Payload))
	}
	dispatch := func(n netlink.Notification) {
		if h := onNotify.Load(); h != nil {
			(*h)(n)
			return
		}
		logNotification(n)
	}

	e, conn, stop, err := startEngine(conf.Engine,
		netlink.WithRegisterer(exporter.Registerer()),
		netlink.WithNotificationHandler(dispatch))
	if err != nil {
		return err
	}
	defer stop()

	client := genl.NewClient(e)

	for _, fg := range conf.Groups {
		family, group, ok := strings.Cut(fg, "/")
		if !ok {
			return fmt.Errorf("malformed multicast group %q: want family/group", fg)
		}
		id, err := client.MulticastGroupFuture(family, group).Await(ctx)
		if err != nil {
			return err
		}
		if err := conn.JoinGroup(id); err != nil {
			return fmt.Errorf("error joining %s: %w", fg, err)
		}
		slog.Info("joined multicast group", "family", family, "group", group, "id", id)
	}

	if conf.Ovs {
		fs, err := ovs.ResolveFamilies(ctx, client)
		if err != nil {
			slog.Warn("not handling upcalls", "err", err)
		} else {
			h := ovs.UpcallHandler(fs, func(u ovs.Upcall) {
				cookie, _ := u.Cookie()
				slog.Info("upcall", "dp", u.Index, "miss", u.Miss(), "len", len(u.Packet), "cookie", cookie)
			}, logNotification)
			onNotify.Store(&h)
		}
	}

	var apiConf *api.Config
	if conf.Plugins != nil {
		apiConf = conf.Plugins.Api
	}

	services := []types.Service{exporter, api.New(apiConf, e, client)}
	defer func() {
		for _, s := range services {
			if err := s.Cleanup(); err != nil {
				slog.Error("error cleaning up", "service", s, "err", err)
			}
		}
	}()

	g, ctx := errgroup.WithContext(ctx)
	for _, s := range services {
		g.Go(func() error {
			slog.Info("starting service", "service", s)
			return s.Run(ctx)
		})
	}
	g.Go(func() error { return watchConf(ctx, confPath) })

	exporter.SetUp(true)
	defer exporter.SetUp(false)

	return g.Wait()
}

// watchConf reapplies the log level whenever the configuration file is
// written to.
func watchConf(ctx context.Context, path string) error {
	c := make(chan notify.EventInfo, 1)
	if err := notify.Watch(path, c, notify.Write|notify.Create); err != nil {
		slog.Warn("not watching the configuration file", "path", path, "err", err)
		return nil
	}
	defer notify.Stop(c)

	for {
		select {
		case ei := <-c:
			slog.Debug("configuration changed", "event", ei.Event())
			conf, err := ReadConf(path)
			if err != nil {
				slog.Warn("ignoring the updated configuration", "err", err)
				continue
			}
			applyLogLevel(conf.LogLevel)
		case <-ctx.Done():
			return nil
		}
	}
}
