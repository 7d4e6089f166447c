/*
 * classvm - a class-file virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Command classvm is the CLI entry point: load class files, bootstrap the
// loader, and run one or more classes' main method to completion
// (spec.md §6 "External interfaces").
package main

import (
	"os"

	"github.com/jacobin-vm/classvm/cmd/classvm/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
