package main

import (
	"fmt"

	"github.com/prometheus/procfs"
	"github.com/spf13/cobra"
)

var procPath string

func init() {
	sockstatCmd.Flags().StringVar(&procPath, "proc", procfs.DefaultMountPoint, "where procfs is mounted")
}

var sockstatCmd = &cobra.Command{
	Use:   "sockstat",
	Short: "Show how the kernel's netlink sockets are doing.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, err := procfs.NewFS(procPath)
		if err != nil {
			return fmt.Errorf("couldn't initialise the procfs filesystem: %w", err)
		}

		protocols, err := fs.NetProtocols()
		if err != nil {
			return fmt.Errorf("error reading the protocol stats: %w", err)
		}

		nl, ok := protocols["NETLINK"]
		if !ok {
			return fmt.Errorf("the kernel doesn't report netlink socket stats")
		}
		fmt.Printf("netlink sockets: %d (%d pages, struct size %d B, module %s)\n",
			nl.Sockets, nl.Memory, nl.Size, nl.ModuleName)

		self, err := fs.Self()
		if err != nil {
			return fmt.Errorf("error inspecting ourselves: %w", err)
		}
		fds, err := self.FileDescriptorsLen()
		if err != nil {
			return fmt.Errorf("error counting our file descriptors: %w", err)
		}
		fmt.Printf("open descriptors: %d\n", fds)

		return nil
	},
}
