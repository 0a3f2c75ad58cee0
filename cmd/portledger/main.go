// Command portledger replays a portfolio's transaction log into the main and
// tax books, reports balances and serves the read-only query API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path"
	"syscall"

	"PortfolioLedger/internal/config"
	"PortfolioLedger/internal/observability"

	"github.com/google/subcommands"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(int(subcommands.ExitFailure))
	}
	log := observability.NewLoggerTo(os.Stderr, "portledger", observability.ParseLevel(cfg.LogLevel))

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")

	base := app{cfg: cfg, log: log}
	commander.Register(&replayCmd{app: base}, "ledger")
	commander.Register(&balancesCmd{app: base}, "ledger")
	commander.Register(&holdingsCmd{app: base}, "ledger")
	commander.Register(&serveCmd{app: base}, "server")

	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	status := commander.Execute(ctx)
	stop()
	os.Exit(int(status))
}
