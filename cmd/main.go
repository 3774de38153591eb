package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/vrouter/nlengine/types"
)

var (
	confPath     string
	logLevelFlag string
	logTimeFlag  bool

	builtCommit = "dev"

	rootCmd = &cobra.Command{
		Use:   "nlengine",
		Short: "Talk to the kernel over generic netlink.",
		Long: "nlengine multiplexes requests over a single netlink socket. It can run one-shot\n" +
			"queries against the kernel or serve its statistics and a debugging API.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := types.ParseLevel(logLevelFlag)
			if err != nil {
				return err
			}
			logLevel.Set(level)
			return nil
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Get the built version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("built commit: %s (%s)\n", builtCommit, runtime.Version())
		},
	}
)

func init() {
	// Disable completion please!
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&confPath, "conf", "/etc/nlengine/conf.yaml", "path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "info", "one of trace, debug, info, warn or error")
	rootCmd.PersistentFlags().BoolVar(&logTimeFlag, "log-time", false, "include timestamps in the log")

	// Add the different sub-commands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(familyCmd)
	rootCmd.AddCommand(mcastCmd)
	rootCmd.AddCommand(datapathsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sockstatCmd)
	rootCmd.AddCommand(manCmd)
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		AddSource:   true,
		Level:       logLevel,
		ReplaceAttr: logReplacements,
	}))
	slog.SetDefault(logger)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
