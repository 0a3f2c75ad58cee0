package refdata

import (
	"strings"

	"PortfolioLedger/internal/date"
	fin "PortfolioLedger/internal/math"

	"github.com/shopspring/decimal"
)

// Portfolio locates holdings: cash and custody accounts at a broker.
type Portfolio struct {
	Name           string `json:"name"`
	SubPortfolio   string `json:"sub_portfolio,omitempty"`
	CashAccount    string `json:"cash_account"`
	CustodyAccount string `json:"custody_account"`
	Broker         string `json:"broker,omitempty"`
	TaxFree        bool   `json:"tax_free,omitempty"`
}

// BrokerName returns Broker, or the custody account's leading segment
// ("DEGIRO-1234" -> "DEGIRO").
func (p Portfolio) BrokerName() string {
	if p.Broker != "" {
		return p.Broker
	}
	acct := p.CustodyAccount
	if i := strings.IndexAny(acct, "-:/ "); i > 0 {
		return strings.ToUpper(acct[:i])
	}
	return strings.ToUpper(acct)
}

// Instrument is the static definition of a tradeable asset.
type Instrument struct {
	ID         string          `json:"id"`
	Name       string          `json:"name,omitempty"`
	Type       AssetType       `json:"type"`
	Currency   string          `json:"currency"`
	Maturity   date.Date       `json:"maturity,omitempty"`
	CouponType CouponType      `json:"coupon_type,omitempty"`
	CouponRate decimal.Decimal `json:"coupon_rate,omitempty"` // Annual, 0.05 = 5%
	Frequency  int             `json:"frequency,omitempty"`   // Coupons per year
	DayCount   fin.DayCount    `json:"day_count,omitempty"`
	EndOfMonth bool            `json:"end_of_month,omitempty"`
	Nominal    decimal.Decimal `json:"nominal,omitempty"`    // Bond face value per unit
	Multiplier decimal.Decimal `json:"multiplier,omitempty"` // Futures contract size
	Redemption decimal.Decimal `json:"redemption,omitempty"` // Redemption price in percent, default 100
}

var hundred = decimal.NewFromInt(100)

// Factor converts a quoted price into a currency amount per unit.
func (i *Instrument) Factor() decimal.Decimal {
	switch i.Type {
	case AssetTypeBond:
		if i.Nominal.IsZero() {
			return decimal.NewFromInt(1)
		}
		return i.Nominal.Div(hundred)
	case AssetTypeFutures:
		if i.Multiplier.IsZero() {
			return decimal.NewFromInt(1)
		}
		return i.Multiplier
	}
	return decimal.NewFromInt(1)
}

// RedemptionPrice in percent of par.
func (i *Instrument) RedemptionPrice() decimal.Decimal {
	if i.Redemption.IsZero() {
		return hundred
	}
	return i.Redemption
}

// Transaction is one entry of the replay log.
type Transaction struct {
	Index            int64           `json:"index"`
	Type             TransactionType `json:"type"`
	Instrument       string          `json:"instrument,omitempty"`
	TradeDate        date.Date       `json:"trade_date"`
	SettlementDate   date.Date       `json:"settlement_date,omitempty"`
	Count            decimal.Decimal `json:"count"` // Units; signed amount for cash
	Price            decimal.Decimal `json:"price,omitempty"`
	Fee              decimal.Decimal `json:"fee,omitempty"`
	Currency         string          `json:"currency"`
	FXRate           decimal.Decimal `json:"fx_rate,omitempty"`
	Portfolio        string          `json:"portfolio"`
	Target           string          `json:"target,omitempty"` // Destination portfolio of a transfer
	TargetInstrument string          `json:"target_instrument,omitempty"`
	TargetCount      decimal.Decimal `json:"target_count,omitempty"`
	TargetPrice      decimal.Decimal `json:"target_price,omitempty"`
	Class            ValuationClass  `json:"class,omitempty"`
	Description      string          `json:"description,omitempty"`
}

// Settlement returns the settlement date, or the trade date when unset.
func (t *Transaction) Settlement() date.Date {
	if t.SettlementDate.IsZero() {
		return t.TradeDate
	}
	return t.SettlementDate
}

// PriceQuote is a closing price: percent of par for bonds, per unit otherwise.
type PriceQuote struct {
	Instrument string          `json:"instrument"`
	Date       date.Date       `json:"date"`
	Price      decimal.Decimal `json:"price"`
}

type DividendQuote struct {
	Instrument string          `json:"instrument"`
	RecordDate date.Date       `json:"record_date"`
	PayDate    date.Date       `json:"pay_date"`
	Amount     decimal.Decimal `json:"amount"` // Per share
	Currency   string          `json:"currency,omitempty"`
}

// CouponQuote fixes the annual rate of a floating-rate coupon paid on Date.
type CouponQuote struct {
	Instrument string          `json:"instrument"`
	Date       date.Date       `json:"date"`
	Rate       decimal.Decimal `json:"rate"`
}

// FXQuote is the local-currency price of one unit of Currency.
type FXQuote struct {
	Currency string          `json:"currency"`
	Date     date.Date       `json:"date"`
	Rate     decimal.Decimal `json:"rate"`
}
