/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/suparena/entitywork"
)

func newVersionCommand(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			info := entitywork.GetVersionInfo()
			fmt.Fprintf(stdout, "entitywork version %s\n", info.Version)
			fmt.Fprintf(stdout, "Git commit: %s\n", info.GitCommit)
			fmt.Fprintf(stdout, "Build date: %s\n", info.BuildDate)
			fmt.Fprintf(stdout, "Go version: %s\n", info.GoVersion)
		},
	}
}
