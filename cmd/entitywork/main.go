/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

/*
Command entitywork inspects the configuration of an entitywork host and checks that every
configured provider can start.
*/
package main

import (
	"fmt"
	"os"
)

func main() {
	rootCmd := NewRootCommand(os.Stdin, os.Stdout, os.Stderr)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
