package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"PortfolioLedger/internal/query"
	"PortfolioLedger/internal/report"

	"github.com/google/subcommands"
)

// balancesCmd prints account balances as of a day.
type balancesCmd struct {
	app
	book        string
	on          string
	accountType string
	portfolio   string
	groupBy     string
	plain       bool
}

func (*balancesCmd) Name() string     { return "balances" }
func (*balancesCmd) Synopsis() string { return "display account balances of the main or tax book" }
func (*balancesCmd) Usage() string {
	return `portledger balances [-book main|tax] [-d <date>] [-type <account type>] [-p <portfolio>] [-g asset_type|currency|portfolio|broker]

  Replays the log and displays the balances as of the end of a day. Annual
  accounts (results and tax) show the movement of that day's year.
`
}

func (c *balancesCmd) SetFlags(f *flag.FlagSet) {
	c.setLedgerFlags(f)
	f.StringVar(&c.book, "book", "main", "book to report")
	f.StringVar(&c.on, "d", "", "report date, default the replay end")
	f.StringVar(&c.accountType, "type", "", "only this account type, e.g. assets or realized_profit")
	f.StringVar(&c.portfolio, "p", "", "only this portfolio")
	f.StringVar(&c.groupBy, "g", "", "group accounts by asset_type, currency, portfolio or broker")
	f.BoolVar(&c.plain, "plain", false, "print raw markdown")
}

func (c *balancesCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	engine, res, err := c.replay(ctx, nil, sinks{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error replaying ledger: %v\n", err)
		return subcommands.ExitFailure
	}

	r, err := query.NewService(engine, res).Balances(query.BalanceRequest{
		Book:        c.book,
		On:          c.on,
		AccountType: c.accountType,
		Portfolio:   c.portfolio,
		GroupBy:     query.GroupBy(c.groupBy),
	})
	if errors.Is(err, query.ErrInvalidArgument) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error computing balances: %v\n", err)
		return subcommands.ExitFailure
	}

	if err := printMarkdown(report.Balances(r), c.plain); err != nil {
		fmt.Fprintf(os.Stderr, "Error rendering balances: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// holdingsCmd prints lots and cash balances as of a day.
type holdingsCmd struct {
	app
	on        string
	portfolio string
	all       bool
	plain     bool
}

func (*holdingsCmd) Name() string     { return "holdings" }
func (*holdingsCmd) Synopsis() string { return "display lots and cash balances" }
func (*holdingsCmd) Usage() string {
	return `portledger holdings [-d <date>] [-p <portfolio>] [-all]

  Replays the log and displays every open lot with its cost, amortized cost
  and market value as of the end of a day.
`
}

func (c *holdingsCmd) SetFlags(f *flag.FlagSet) {
	c.setLedgerFlags(f)
	f.StringVar(&c.on, "d", "", "report date, default the replay end")
	f.StringVar(&c.portfolio, "p", "", "only this portfolio")
	f.BoolVar(&c.all, "all", false, "include closed lots")
	f.BoolVar(&c.plain, "plain", false, "print raw markdown")
}

func (c *holdingsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	engine, res, err := c.replay(ctx, nil, sinks{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error replaying ledger: %v\n", err)
		return subcommands.ExitFailure
	}

	assets, err := query.NewService(engine, res).Assets(c.portfolio, c.on, c.all)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	on := c.on
	if on == "" {
		on = res.End.String()
	}
	if err := printMarkdown(report.Assets(on, assets), c.plain); err != nil {
		fmt.Fprintf(os.Stderr, "Error rendering holdings: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
