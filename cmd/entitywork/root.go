/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/suparena/entitywork"
)

func NewRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	rc := &cobra.Command{
		Use:   "entitywork",
		Short: "Unit-of-work runtime over memory, MySQL and DynamoDB providers.",
		Long: `Unit-of-work runtime over memory, MySQL and DynamoDB providers.

Configuration is read from entitywork.yaml (or the file given with --config), then from
ENTITYWORK_* environment variables, e.g. ENTITYWORK_SQL_HOST.
`,
		Version:       entitywork.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rc.PersistentFlags().StringP("config", "c", "", "Configuration file to read from.")

	rc.AddCommand(newCheckCommand(stdout))
	rc.AddCommand(newConfigCommand(stdout))
	rc.AddCommand(newVersionCommand(stdout))

	rc.SetIn(stdin)
	rc.SetOut(stdout)
	rc.SetErr(stderr)
	return rc
}
