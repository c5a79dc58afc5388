package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/letstravel/prospensity/pipeline"
)

func (c *cli) newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "prospensity %s (artifact format %s)\n", version, pipeline.FormatVersion)
		},
	}
}
