package refdata

import (
	"fmt"
	"slices"
	"sort"

	"PortfolioLedger/internal/date"
	fin "PortfolioLedger/internal/math"
	"PortfolioLedger/internal/tax"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
)

// Data is the raw reference data as handed over by the loaders.
type Data struct {
	Portfolios   []Portfolio
	Instruments  []Instrument
	Transactions []Transaction
	Prices       []PriceQuote
	Dividends    []DividendQuote
	Coupons      []CouponQuote
	FX           []FXQuote
	Adjustments  []Adjustment
}

// Definitions is an immutable, validated snapshot of the reference data with
// indexed lookups. It is safe for concurrent reads.
type Definitions struct {
	data        Data
	portfolios  map[string]*Portfolio
	instruments map[string]*Instrument
	prices      map[string][]PriceQuote
	dividends   map[string][]DividendQuote
	coupons     map[string][]CouponQuote
	fx          map[string][]FXQuote
	memo        *cache.Cache
}

// New indexes and validates data. The first invalid record aborts with an error
// wrapping ErrInvalid. The caller's slices are left untouched.
func New(data Data) (*Definitions, error) {
	data.Portfolios = slices.Clone(data.Portfolios)
	data.Instruments = slices.Clone(data.Instruments)
	data.Transactions = slices.Clone(data.Transactions)
	data.Adjustments = slices.Clone(data.Adjustments)

	d := &Definitions{
		data:        data,
		portfolios:  make(map[string]*Portfolio, len(data.Portfolios)),
		instruments: make(map[string]*Instrument, len(data.Instruments)),
		prices:      make(map[string][]PriceQuote),
		dividends:   make(map[string][]DividendQuote),
		coupons:     make(map[string][]CouponQuote),
		fx:          make(map[string][]FXQuote),
		memo:        cache.New(cache.NoExpiration, 0),
	}

	for i := range d.data.Portfolios {
		p := &d.data.Portfolios[i]
		if p.Name == "" {
			return nil, invalid(fmt.Sprintf("portfolio #%d", i), "empty name")
		}
		if _, dup := d.portfolios[p.Name]; dup {
			return nil, invalid("portfolio "+p.Name, "duplicate name")
		}
		d.portfolios[p.Name] = p
	}

	for i := range d.data.Instruments {
		inst := &d.data.Instruments[i]
		if err := validateInstrument(inst); err != nil {
			return nil, err
		}
		if _, dup := d.instruments[inst.ID]; dup {
			return nil, invalid("instrument "+inst.ID, "duplicate id")
		}
		d.instruments[inst.ID] = inst
	}

	for _, q := range data.Prices {
		if _, ok := d.instruments[q.Instrument]; !ok {
			return nil, invalid("price "+q.Date.String(), "%v", notFound("instrument", q.Instrument))
		}
		d.prices[q.Instrument] = append(d.prices[q.Instrument], q)
	}
	for _, q := range data.Dividends {
		if _, ok := d.instruments[q.Instrument]; !ok {
			return nil, invalid("dividend "+q.PayDate.String(), "%v", notFound("instrument", q.Instrument))
		}
		if q.PayDate.Before(q.RecordDate) {
			return nil, invalid("dividend "+q.Instrument, "paid %s before record date %s", q.PayDate, q.RecordDate)
		}
		d.dividends[q.Instrument] = append(d.dividends[q.Instrument], q)
	}
	for _, q := range data.Coupons {
		if _, ok := d.instruments[q.Instrument]; !ok {
			return nil, invalid("coupon "+q.Date.String(), "%v", notFound("instrument", q.Instrument))
		}
		d.coupons[q.Instrument] = append(d.coupons[q.Instrument], q)
	}
	for _, q := range data.FX {
		if err := fin.ValidateCurrency(q.Currency); err != nil {
			return nil, invalid("fx "+q.Date.String(), "%v", err)
		}
		if !q.Rate.IsPositive() {
			return nil, invalid("fx "+q.Currency, "non-positive rate %s on %s", q.Rate, q.Date)
		}
		d.fx[q.Currency] = append(d.fx[q.Currency], q)
	}

	for _, qs := range d.prices {
		sort.SliceStable(qs, func(i, j int) bool { return qs[i].Date.Before(qs[j].Date) })
	}
	for _, qs := range d.dividends {
		sort.SliceStable(qs, func(i, j int) bool { return qs[i].PayDate.Before(qs[j].PayDate) })
	}
	for _, qs := range d.coupons {
		sort.SliceStable(qs, func(i, j int) bool { return qs[i].Date.Before(qs[j].Date) })
	}
	for _, qs := range d.fx {
		sort.SliceStable(qs, func(i, j int) bool { return qs[i].Date.Before(qs[j].Date) })
	}

	for i := range d.data.Transactions {
		if err := d.validateTransaction(&d.data.Transactions[i]); err != nil {
			return nil, err
		}
	}

	for _, a := range d.data.Adjustments {
		if err := a.validate(d); err != nil {
			return nil, err
		}
	}
	sort.SliceStable(d.data.Adjustments, func(i, j int) bool {
		return d.data.Adjustments[i].Date().Before(d.data.Adjustments[j].Date())
	})

	return d, nil
}

func validateInstrument(inst *Instrument) error {
	rec := "instrument " + inst.ID
	if inst.ID == "" {
		return invalid("instrument", "empty id")
	}
	if err := fin.ValidateCurrency(inst.Currency); err != nil {
		return invalid(rec, "%v", err)
	}
	switch inst.Type {
	case AssetTypeBond:
		if inst.Maturity.IsZero() {
			return invalid(rec, "bond without maturity")
		}
		if inst.CouponType != CouponZero && inst.Frequency <= 0 {
			return invalid(rec, "coupon bond without frequency")
		}
		if inst.Frequency > 0 && 12%inst.Frequency != 0 {
			return invalid(rec, "frequency %d does not divide a year", inst.Frequency)
		}
	case AssetTypeFutures:
		if inst.Maturity.IsZero() {
			return invalid(rec, "futures without maturity")
		}
	case AssetTypeEquity, AssetTypeETF, AssetTypeFund:
	default:
		return invalid(rec, "unsupported type %s", inst.Type)
	}
	return nil
}

func (d *Definitions) validateTransaction(tx *Transaction) error {
	rec := fmt.Sprintf("transaction #%d", tx.Index)
	if tx.TradeDate.IsZero() {
		return invalid(rec, "missing trade date")
	}
	if tx.SettlementDate.IsZero() {
		tx.SettlementDate = tx.TradeDate
	}
	if tx.SettlementDate.Before(tx.TradeDate) {
		return invalid(rec, "settles %s before trade date %s", tx.SettlementDate, tx.TradeDate)
	}
	if _, err := d.Portfolio(tx.Portfolio); err != nil {
		return invalid(rec, "%v", err)
	}
	if err := fin.ValidateCurrency(tx.Currency); err != nil {
		return invalid(rec, "%v", err)
	}
	if tx.Fee.IsNegative() {
		return invalid(rec, "negative fee %s", tx.Fee)
	}

	switch tx.Type {
	case TxCash:
		if tx.Count.IsZero() {
			return invalid(rec, "zero cash amount")
		}
		return nil
	case TxBuy, TxSell, TxTransfer, TxSwitch:
		inst, err := d.Instrument(tx.Instrument)
		if err != nil {
			return invalid(rec, "%v", err)
		}
		if inst.Currency != tx.Currency {
			return invalid(rec, "currency %s differs from instrument currency %s", tx.Currency, inst.Currency)
		}
		if !tx.Count.IsPositive() {
			return invalid(rec, "count must be positive, got %s", tx.Count)
		}
		if inst.Type != AssetTypeFutures && tx.Type != TxTransfer && !tx.Price.IsPositive() {
			return invalid(rec, "price must be positive, got %s", tx.Price)
		}
	default:
		return invalid(rec, "unknown type %s", tx.Type)
	}

	switch tx.Type {
	case TxTransfer:
		if _, err := d.Portfolio(tx.Target); err != nil {
			return invalid(rec, "%v", err)
		}
		if tx.Target == tx.Portfolio {
			return invalid(rec, "transfer into the same portfolio")
		}
	case TxSwitch:
		target, err := d.Instrument(tx.TargetInstrument)
		if err != nil {
			return invalid(rec, "%v", err)
		}
		source, _ := d.Instrument(tx.Instrument)
		if !source.Type.IsSecurity() || !target.Type.IsSecurity() {
			return invalid(rec, "switches apply to funds, ETFs and equities")
		}
		if !tx.TargetCount.IsPositive() {
			return invalid(rec, "target count must be positive, got %s", tx.TargetCount)
		}
		if target.Currency != source.Currency {
			return invalid(rec, "switch from %s into %s", source.Currency, target.Currency)
		}
		if !tx.Fee.IsZero() {
			return invalid(rec, "switches carry no fee, got %s", tx.Fee)
		}
	}
	return nil
}

// Portfolios returns all portfolios sorted by name.
func (d *Definitions) Portfolios() []Portfolio {
	out := make([]Portfolio, len(d.data.Portfolios))
	copy(out, d.data.Portfolios)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (d *Definitions) Portfolio(name string) (*Portfolio, error) {
	p, ok := d.portfolios[name]
	if !ok {
		return nil, notFound("portfolio", name)
	}
	return p, nil
}

func (d *Definitions) Instrument(id string) (*Instrument, error) {
	inst, ok := d.instruments[id]
	if !ok {
		return nil, notFound("instrument", id)
	}
	return inst, nil
}

// Transactions returns the log in its given order.
func (d *Definitions) Transactions() []Transaction { return d.data.Transactions }

// Adjustments returns all manual adjustments ordered by date.
func (d *Definitions) Adjustments() []Adjustment { return d.data.Adjustments }

// PriceAsOf returns the latest quote on or before on.
func (d *Definitions) PriceAsOf(instrument string, on date.Date) (PriceQuote, error) {
	key := instrument + "|" + on.String()
	if v, found := d.memo.Get(key); found {
		return v.(PriceQuote), nil
	}

	qs := d.prices[instrument]
	i := sort.Search(len(qs), func(i int) bool { return qs[i].Date.After(on) })
	if i == 0 {
		return PriceQuote{}, &LookupError{Kind: "price", Key: instrument, Date: on}
	}
	q := qs[i-1]
	d.memo.Set(key, q, cache.NoExpiration)
	return q, nil
}

// Dividends returns the dividend schedule of an instrument ordered by pay date.
func (d *Definitions) Dividends(instrument string) []DividendQuote { return d.dividends[instrument] }

// CouponRate returns the quoted rate of the floating coupon paid on pay, or the
// most recent fixing before it.
func (d *Definitions) CouponRate(instrument string, pay date.Date) (decimal.Decimal, bool) {
	qs := d.coupons[instrument]
	i := sort.Search(len(qs), func(i int) bool { return qs[i].Date.After(pay) })
	if i == 0 {
		return decimal.Zero, false
	}
	return qs[i-1].Rate, true
}

// FXRate converts one unit of currency into local currency as of on.
func (d *Definitions) FXRate(currency, local string, on date.Date) (decimal.Decimal, error) {
	if currency == local {
		return decimal.NewFromInt(1), nil
	}
	qs := d.fx[currency]
	i := sort.Search(len(qs), func(i int) bool { return qs[i].Date.After(on) })
	if i == 0 {
		return decimal.Zero, &LookupError{Kind: "fx", Key: currency + "/" + local, Date: on}
	}
	return qs[i-1].Rate, nil
}

// TaxOverride finds the manual withholding override for a flow of instrument
// paid on to portfolio. Portfolio-specific overrides win over generic ones.
func (d *Definitions) TaxOverride(instrument, portfolio string, on date.Date) *tax.Override {
	var generic *tax.Override
	for _, a := range d.data.Adjustments {
		o, ok := a.(*TaxOverride)
		if !ok || o.Instrument != instrument || o.On != on {
			continue
		}
		ov := &tax.Override{Tax: o.Tax, Gross: o.Gross}
		if o.Portfolio == portfolio {
			return ov
		}
		if o.Portfolio == "" {
			generic = ov
		}
	}
	return generic
}

// Call returns the early redemption of a bond, if any.
func (d *Definitions) Call(instrument string) *Redemption {
	var out *Redemption
	for _, a := range d.data.Adjustments {
		if r, ok := a.(*Redemption); ok && r.Instrument == instrument {
			if out == nil || r.On.Before(out.On) {
				out = r
			}
		}
	}
	return out
}
