package main

import (
	"os"

	"github.com/mitchellh/cli"
)

// Commands builds the zenadev command tree: one mitchellh/cli.Command per
// entry, each constructed fresh per invocation the way cli.CommandFactory
// expects.
func Commands() map[string]cli.CommandFactory {
	ui := &cli.BasicUi{
		Reader:      os.Stdin,
		Writer:      os.Stdout,
		ErrorWriter: os.Stderr,
	}

	return map[string]cli.CommandFactory{
		"version": func() (cli.Command, error) {
			return &VersionCommand{UI: ui}, nil
		},
		"mine": func() (cli.Command, error) {
			return &MineCommand{UI: ui}, nil
		},
	}
}
