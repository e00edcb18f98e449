// SPDX-License-Identifier: Apache-2.0

// Command cosign2 signs firmware images and dumps the contents of an
// existing signed header.
package main

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
)

func main() {
	os.Exit(int(run(os.Args[1:])))
}

func run(args []string) exitCode {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: cosign2 <dump|sign> [flags]")
		return exitFailure
	}

	var err error
	switch args[0] {
	case "dump":
		err = runDump(args[1:])
	case "sign":
		err = runSign(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "usage: cosign2 <dump|sign> [flags]\nunknown subcommand %q\n", args[0])
		return exitFailure
	}
	if err != nil {
		printError(err)
		return exitFailure
	}
	return exitSuccess
}

type exitCode int

const (
	exitSuccess exitCode = 0
	exitFailure exitCode = 1
)

func printError(err error) {
	prefix := "error:"
	if isatty.IsTerminal(os.Stdout.Fd()) {
		prefix = "\x1b[1;31merror:\x1b[0m"
	}
	fmt.Fprintf(os.Stderr, "%s %s\n", prefix, err)
}
