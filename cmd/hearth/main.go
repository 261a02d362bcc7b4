package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// HearthApp is the entry point of the hearth node core tooling.
var HearthApp = cli.App{
	Name:      "hearth",
	Copyright: "(c) 2026 Hearth Labs",
	Usage:     "state and execution core of a local EVM development node",
	Commands: []*cli.Command{
		&MineCmd,
	},
}

func main() {
	if err := HearthApp.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
