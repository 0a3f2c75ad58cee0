package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"PortfolioLedger/internal/observability"
	"PortfolioLedger/internal/query"
	"PortfolioLedger/internal/report"

	"github.com/google/subcommands"
)

// replayCmd replays the log and prints the outcome.
type replayCmd struct {
	app
	export  bool
	publish bool
	plain   bool
}

func (*replayCmd) Name() string     { return "replay" }
func (*replayCmd) Synopsis() string { return "replay the transaction log and print a summary" }
func (*replayCmd) Usage() string {
	return `portledger replay [-data <file>] [-end <date>] [-export] [-publish] [-plain]

  Replays every transaction into the main and tax books, closes each year and
  prints the operation counts, state hash and income tax true-ups.
`
}

func (c *replayCmd) SetFlags(f *flag.FlagSet) {
	c.setLedgerFlags(f)
	f.BoolVar(&c.export, "export", c.cfg.PostgresURL != "", "write committed operations to Postgres")
	f.BoolVar(&c.publish, "publish", false, "publish committed operations to NATS JetStream")
	f.BoolVar(&c.plain, "plain", false, "print raw markdown")
}

func (c *replayCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	engine, res, err := c.replay(ctx, observability.NewMetrics(), sinks{export: c.export, publish: c.publish})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error replaying ledger: %v\n", err)
		return subcommands.ExitFailure
	}
	if err := printMarkdown(report.Summary(query.NewService(engine, res).Summary()), c.plain); err != nil {
		fmt.Fprintf(os.Stderr, "Error rendering summary: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// printMarkdown styles md for the terminal unless plain is set.
func printMarkdown(md string, plain bool) error {
	if plain {
		_, err := fmt.Print(md)
		return err
	}
	out, err := report.Render(md, 120)
	if err != nil {
		return err
	}
	_, err = fmt.Print(out)
	return err
}
