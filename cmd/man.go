package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"
)

var manDir string

func init() {
	manCmd.Flags().StringVar(&manDir, "dir", "./man", "where to write the pages")
}

var manCmd = &cobra.Command{
	Use:    "man",
	Short:  "Generate the man pages.",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := os.MkdirAll(manDir, 0o755); err != nil {
			return fmt.Errorf("error creating %q: %w", manDir, err)
		}
		header := &doc.GenManHeader{
			Title:   "NLENGINE",
			Section: "1",
			Source:  "nlengine " + builtCommit,
		}
		if err := doc.GenManTree(rootCmd, header, manDir); err != nil {
			return fmt.Errorf("error generating the man pages: %w", err)
		}
		return nil
	},
}
