package main

import "github.com/mitchellh/cli"

// VersionCommand is the command to show the version of the binary.
type VersionCommand struct {
	UI cli.Ui
}

// Help implements the cli.Command interface.
func (c *VersionCommand) Help() string {
	return `Usage: zenadev version

  Display the zenadev version`
}

// Synopsis implements the cli.Command interface.
func (c *VersionCommand) Synopsis() string {
	return "Display the zenadev version"
}

// Run implements the cli.Command interface.
func (c *VersionCommand) Run(args []string) int {
	c.UI.Output(version)
	return 0
}
