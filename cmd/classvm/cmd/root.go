/*
 * classvm - a class-file virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package cmd implements classvm's command-line surface with
// github.com/spf13/cobra, grounded on mabhi256-jdiag's cmd package (a
// package-scope *cobra.Command root, an Execute entry point, flags bound
// to package-scope vars in init).
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "classvm",
	Short: "A class-file virtual machine",
	Long:  `classvm loads JVM-compatible class files and interprets their bytecode.`,
}

// exitCode is set by a subcommand's RunE on a guest-exception or
// host-fault outcome; Execute returns it, and main's os.Exit is the sole
// exit call site (spec.md §6
// "set via os.Exit in main, never inside library code" - this package is
// the binary's command surface, not one of the VM's libraries).
var exitCode int

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return exitCode
}

func init() {
	rootCmd.AddCommand(runCmd)
}
