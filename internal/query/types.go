package query

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// GroupBy selects the dimension balances are aggregated on.
type GroupBy string

const (
	GroupByAccount   GroupBy = ""
	GroupByAssetType GroupBy = "asset_type"
	GroupByCurrency  GroupBy = "currency"
	GroupByPortfolio GroupBy = "portfolio"
	GroupByBroker    GroupBy = "broker"
)

// BalanceRequest selects balances as of the end of a day.
type BalanceRequest struct {
	Book        string // "main" (default) or "tax"
	On          string // YYYY-MM-DD, empty for the replay end
	AccountType string // Optional filter
	Portfolio   string // Optional filter
	GroupBy     GroupBy
}

// BalanceLine is one account, or one group of accounts of the same type.
// Annual accounts show the movement of the query year.
type BalanceLine struct {
	Group       string          `json:"group"`
	AccountType string          `json:"account_type"`
	Currency    string          `json:"currency"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Balance     decimal.Decimal `json:"balance"`
	Accounts    int             `json:"accounts"`
}

// BalanceReport lists balances with their net per currency.
type BalanceReport struct {
	Book    string                     `json:"book"`
	AsOf    string                     `json:"as_of"`
	GroupBy GroupBy                    `json:"group_by"`
	Lines   []BalanceLine              `json:"lines"`
	Totals  map[string]decimal.Decimal `json:"totals"` // Zero per currency over an unfiltered book
}

// AccountSummary describes one account of a book.
type AccountSummary struct {
	Path      string `json:"path"`
	Type      string `json:"type"`
	AssetType string `json:"asset_type,omitempty"`
	Portfolio string `json:"portfolio"`
	Currency  string `json:"currency"`
	Entries   int    `json:"entries"`
	Annual    bool   `json:"annual"`
}

// EntryResponse is one posting of an account.
type EntryResponse struct {
	Operation   int64           `json:"operation"`
	Stamp       string          `json:"stamp"`
	Date        string          `json:"date"`
	Transaction int64           `json:"transaction"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Running     decimal.Decimal `json:"running"`
}

// AssetResponse is the state of a lot or cash balance as of a day.
type AssetResponse struct {
	ID            uuid.UUID        `json:"id"`
	Instrument    string           `json:"instrument"`
	Type          string           `json:"type"`
	Class         string           `json:"class,omitempty"`
	Portfolio     string           `json:"portfolio"`
	Broker        string           `json:"broker,omitempty"`
	Currency      string           `json:"currency"`
	Active        bool             `json:"active"`
	Count         decimal.Decimal  `json:"count"`
	PurchasePrice decimal.Decimal  `json:"purchase_price"`
	Purchase      decimal.Decimal  `json:"purchase_amount"`
	AmortizedCost decimal.Decimal  `json:"amortized_cost"`
	Interest      decimal.Decimal  `json:"interest"`
	Market        *decimal.Decimal `json:"market_amount,omitempty"` // Nil when not supported
	DeferredFee   decimal.Decimal  `json:"deferred_fee"`
}

// EventResponse is one event in an asset's history.
type EventResponse struct {
	ID     uuid.UUID       `json:"id"`
	Kind   string          `json:"kind"`
	Stamp  string          `json:"stamp"`
	Count  decimal.Decimal `json:"count"`
	Amount decimal.Decimal `json:"amount"`
	FXRate decimal.Decimal `json:"fx_rate"`
}

// TrueUpResponse is the income tax settled for a portfolio at year end.
type TrueUpResponse struct {
	Portfolio  string          `json:"portfolio"`
	Required   decimal.Decimal `json:"required"`
	Assessed   decimal.Decimal `json:"assessed"`
	Precharged decimal.Decimal `json:"precharged"`
	Payable    decimal.Decimal `json:"payable"`
}

// SummaryResponse describes the replay the service answers from.
type SummaryResponse struct {
	Transactions int              `json:"transactions"`
	End          string           `json:"end"`
	Operations   map[string]int64 `json:"operations"`
	StateHash    string           `json:"state_hash"`
	TrueUps      []TrueUpResponse `json:"true_ups"`
}
