// Package report renders query results as markdown for the terminal.
package report

import (
	"fmt"
	"sort"
	"strings"

	"PortfolioLedger/internal/query"

	"github.com/charmbracelet/glamour"
)

// Summary renders the replay outcome.
func Summary(s query.SummaryResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Replay until %s\n\n", s.End)
	fmt.Fprintln(&b, "| Item | Value |")
	fmt.Fprintln(&b, "|:---|---:|")
	fmt.Fprintf(&b, "| Transactions | %d |\n", s.Transactions)

	books := make([]string, 0, len(s.Operations))
	for book := range s.Operations {
		books = append(books, book)
	}
	sort.Strings(books)
	for _, book := range books {
		fmt.Fprintf(&b, "| Operations (%s) | %d |\n", book, s.Operations[book])
	}
	fmt.Fprintf(&b, "| State hash | `%s` |\n", s.StateHash)

	if len(s.TrueUps) > 0 {
		fmt.Fprintf(&b, "\n## Income tax\n\n")
		fmt.Fprintln(&b, "| Portfolio | Required | Assessed | Precharged | Payable |")
		fmt.Fprintln(&b, "|:---|---:|---:|---:|---:|")
		for _, t := range s.TrueUps {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
				t.Portfolio,
				t.Required.StringFixed(2),
				t.Assessed.StringFixed(2),
				t.Precharged.StringFixed(2),
				t.Payable.StringFixed(2),
			)
		}
	}
	return b.String()
}

// Balances renders a balance report, one table row per line plus the net per
// currency.
func Balances(r *query.BalanceReport) string {
	var b strings.Builder
	title := "Account"
	if r.GroupBy != query.GroupByAccount {
		title = strings.ReplaceAll(string(r.GroupBy), "_", " ")
		title = strings.ToUpper(title[:1]) + title[1:]
	}
	fmt.Fprintf(&b, "# %s book as of %s\n\n", strings.ToUpper(r.Book[:1])+r.Book[1:], r.AsOf)
	fmt.Fprintf(&b, "| %s | Type | Currency | Debit | Credit | Balance |\n", title)
	fmt.Fprintln(&b, "|:---|:---|:---|---:|---:|---:|")
	for _, l := range r.Lines {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n",
			l.Group,
			l.AccountType,
			l.Currency,
			l.Debit.StringFixed(2),
			l.Credit.StringFixed(2),
			l.Balance.StringFixed(2),
		)
	}

	ccys := make([]string, 0, len(r.Totals))
	for c := range r.Totals {
		ccys = append(ccys, c)
	}
	sort.Strings(ccys)
	for _, c := range ccys {
		fmt.Fprintf(&b, "| **Net** | | %s | | | **%s** |\n", c, r.Totals[c].StringFixed(2))
	}
	return b.String()
}

// Assets renders lots and cash balances.
func Assets(on string, assets []query.AssetResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Holdings as of %s\n\n", on)
	fmt.Fprintln(&b, "| Portfolio | Instrument | Type | Count | Cost | Amortized cost | Market |")
	fmt.Fprintln(&b, "|:---|:---|:---|---:|---:|---:|---:|")
	for _, a := range assets {
		market := "n/a"
		if a.Market != nil {
			market = a.Market.StringFixed(2)
		}
		name := a.Instrument
		if name == "" {
			name = a.Currency
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s |\n",
			a.Portfolio,
			name,
			a.Type,
			a.Count.String(),
			a.Purchase.StringFixed(2),
			a.AmortizedCost.StringFixed(2),
			market,
		)
	}
	return b.String()
}

// Render styles markdown for the terminal, wrapping at width columns.
func Render(md string, width int) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("create renderer: %w", err)
	}
	return r.Render(md)
}
