package main

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/vrouter/nlengine/netlink/genl"
	"github.com/vrouter/nlengine/netlink/ovs"
)

var queryTimeout time.Duration

func init() {
	for _, c := range []*cobra.Command{familyCmd, mcastCmd, datapathsCmd} {
		c.Flags().DurationVar(&queryTimeout, "timeout", 5*time.Second, "how long to wait for the kernel")
	}
}

// query runs fn against a freshly started engine.
func query(fn func(ctx context.Context, c *genl.Client) error) error {
	conf, err := readConfOrDefaults(confPath)
	if err != nil {
		return err
	}

	e, _, stop, err := startEngine(conf.Engine)
	if err != nil {
		return err
	}
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	return fn(ctx, genl.NewClient(e))
}

func printYAML(v any) error {
	m, err := yaml.MarshalWithOptions(v, yaml.Indent(2), yaml.IndentSequence(true))
	if err != nil {
		return fmt.Errorf("error marshalling: %w", err)
	}
	fmt.Print(string(m))
	return nil
}

var (
	familyCmd = &cobra.Command{
		Use:   "family NAME...",
		Short: "Describe generic netlink families.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return query(func(ctx context.Context, c *genl.Client) error {
				for _, name := range args {
					f, err := c.ResolveFamily(ctx, name)
					if err != nil {
						return err
					}
					if err := printYAML(f); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	mcastCmd = &cobra.Command{
		Use:   "mcast FAMILY GROUP",
		Short: "Resolve the id of a multicast group.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return query(func(ctx context.Context, c *genl.Client) error {
				id, err := c.MulticastGroupFuture(args[0], args[1]).Await(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("%s/%s: %d\n", args[0], args[1], id)
				return nil
			})
		},
	}

	datapathsCmd = &cobra.Command{
		Use:   "datapaths",
		Short: "List the Open vSwitch kernel datapaths.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := readConfOrDefaults(confPath)
			if err != nil {
				return err
			}

			e, _, stop, err := startEngine(conf.Engine)
			if err != nil {
				return err
			}
			defer stop()

			ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
			defer cancel()

			fs, err := ovs.ResolveFamilies(ctx, genl.NewClient(e))
			if err != nil {
				return fmt.Errorf("is the openvswitch module loaded? %w", err)
			}

			dps, err := ovs.NewClient(e, fs).DatapathsFuture().Await(ctx)
			if err != nil {
				return err
			}
			for _, dp := range dps {
				fmt.Println(dp)
			}
			return nil
		},
	}
)
