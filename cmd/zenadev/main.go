// Command zenadev drives a backend.Backend from the command line: it wires
// backend.Config from flags, constructs the backend, and prints mined-block
// summaries to stdout. It is a scripting convenience, not a server — the
// backend exposes no transport of its own, so nothing here listens on a
// socket.
package main

import (
	"os"

	"github.com/mitchellh/cli"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/zenanetwork/zenadev/internal/zlog"
)

// version is stamped at release time; left as a plain constant the way the
// teacher's own cmd/ binaries do for a dev build.
const version = "0.1.0-dev"

func main() {
	os.Exit(Run(os.Args[1:]))
}

// Run builds the command tree and executes it, returning the process exit
// code. Split out from main so tests can drive it without os.Exit.
func Run(args []string) int {
	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, a ...any) {
		zlog.Debug("automaxprocs", "msg", format)
	})); err != nil {
		zlog.Warn("failed to set GOMAXPROCS from cgroup limits", "err", err)
	}
	// undo (first return value) is intentionally unused: zenadev never
	// reverts GOMAXPROCS before exit.

	c := cli.NewCLI("zenadev", version)
	c.Args = args
	c.Commands = Commands()

	exitCode, err := c.Run()
	if err != nil {
		zlog.Error("command failed", "err", err)
		return 1
	}
	return exitCode
}
