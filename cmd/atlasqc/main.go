// Command atlasqc screens a set of segmentation atlases and removes those
// whose label surface deviates from the consensus of the others.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/subcommands"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&runCommand{}, "")
	subcommands.Register(&initConfigCommand{}, "")
	subcommands.Register(&phantomCommand{}, "tools")
	subcommands.Register(&chartCommand{}, "tools")

	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	status := subcommands.Execute(ctx)
	stop()
	os.Exit(int(status))
}
