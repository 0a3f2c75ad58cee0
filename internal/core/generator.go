package core

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"PortfolioLedger/internal/asset"
	"PortfolioLedger/internal/booking"
	"PortfolioLedger/internal/date"
	"PortfolioLedger/internal/event"
	"PortfolioLedger/internal/ledger"
	fin "PortfolioLedger/internal/math"
	"PortfolioLedger/internal/refdata"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientLots is returned when open lots cannot supply a sale.
	ErrInsufficientLots = errors.New("insufficient lots")

	// ErrInsufficientCash is returned when cash balances cannot fund a payment.
	ErrInsufficientCash = errors.New("insufficient cash")
)

// TxStamp places a transaction on the time axis: its settlement date and index.
func TxStamp(tx *refdata.Transaction) event.Stamp {
	return event.Stamp{Date: tx.Settlement(), Index: tx.Index, Rank: event.RankTransaction}
}

// AdjustmentStamp places a manual adjustment after every transaction of its day.
func AdjustmentStamp(d date.Date) event.Stamp {
	return event.Stamp{Date: d, Index: event.IndexClose, Rank: event.RankAdjustment}
}

func checkpointStamp(d date.Date, r event.Rank) event.Stamp {
	return event.Stamp{Date: d, Index: event.IndexClose, Rank: r}
}

// pending is the next scheduled item the generator has to run.
type pending struct {
	at  event.Stamp
	run func() error
}

// share is the part of a lot a sale, transfer or switch takes.
type share struct {
	lot   asset.Asset
	units decimal.Decimal
}

// AssetsGenerator turns the transaction log into lots, cash balances and
// bookings. Before each transaction it runs everything scheduled earlier on the
// time axis: flow payments, manual adjustments, futures maturities and the
// month-end checkpoints.
// Not thread-safe: a replay is strictly sequential.
type AssetsGenerator struct {
	ctx  *LedgerContext
	bk   *booking.Context
	actx asset.Context
	log  zerolog.Logger

	lots        []asset.Asset // Non-cash lots in creation order
	cash        []*asset.Cash
	paid        map[uuid.UUID]bool
	adjustments []refdata.Adjustment
	nextAdj     int
	start       date.Date // First transaction's date, zero before
	checkpoint  date.Date // Last month end checkpointed
	trueUps     []booking.TrueUp
}

// NewAssetsGenerator prepares a generator posting into ctx's books.
func NewAssetsGenerator(ctx *LedgerContext) *AssetsGenerator {
	g := &AssetsGenerator{
		ctx:  ctx,
		bk:   ctx.Booking(),
		actx: ctx.Assets(),
		log:  ctx.Log.With().Str("stage", "generator").Logger(),
		paid: make(map[uuid.UUID]bool),
	}
	for _, a := range ctx.Defs.Adjustments() {
		switch a.(type) {
		case *refdata.SpinOff, *refdata.AdditionalPremium, *refdata.TaxAssessment:
			g.adjustments = append(g.adjustments, a)
		}
	}
	return g
}

// Lots returns the non-cash lots in creation order.
func (g *AssetsGenerator) Lots() []asset.Asset { return g.lots }

// CashLots returns the cash balances in creation order.
func (g *AssetsGenerator) CashLots() []*asset.Cash { return g.cash }

// Assets returns every lot, cash included.
func (g *AssetsGenerator) Assets() []asset.Asset {
	out := make([]asset.Asset, 0, len(g.lots)+len(g.cash))
	out = append(out, g.lots...)
	for _, c := range g.cash {
		out = append(out, c)
	}
	return out
}

// TrueUps returns the corporate income tax settled by every year-end close.
func (g *AssetsGenerator) TrueUps() []booking.TrueUp { return g.trueUps }

// Apply replays one transaction after running everything scheduled before it.
func (g *AssetsGenerator) Apply(tx *refdata.Transaction) error {
	at := TxStamp(tx)
	if g.start.IsZero() {
		g.start = at.Date
	}
	if err := g.advance(at); err != nil {
		return err
	}

	g.log.Debug().
		Int64("index", tx.Index).
		Str("type", tx.Type.String()).
		Str("instrument", tx.Instrument).
		Str("portfolio", tx.Portfolio).
		Str("at", at.String()).
		Msg("replaying transaction")

	var err error
	switch tx.Type {
	case refdata.TxBuy:
		err = g.buy(tx, at)
	case refdata.TxSell:
		err = g.sell(tx, at)
	case refdata.TxCash:
		err = g.cashMovement(tx, at)
	case refdata.TxTransfer:
		err = g.transfer(tx, at)
	case refdata.TxSwitch:
		err = g.switchFunds(tx, at)
	default:
		err = fmt.Errorf("unhandled transaction type %s", tx.Type)
	}
	if err != nil {
		return err
	}
	if g.ctx.Metrics != nil {
		g.ctx.Metrics.TransactionsReplayed.WithLabelValues(tx.Type.String()).Inc()
	}
	return nil
}

// Finish runs everything scheduled up to the end of day end.
func (g *AssetsGenerator) Finish(end date.Date) error {
	return g.advance(event.Stamp{Date: end.Add(1), Index: event.IndexOpen, Rank: event.RankTransaction})
}

// advance runs the scheduled items in stamp order until the next one would not
// come before limit.
func (g *AssetsGenerator) advance(limit event.Stamp) error {
	for {
		p, ok := g.next()
		if !ok || !p.at.Less(limit) {
			return nil
		}
		if err := p.run(); err != nil {
			return err
		}
	}
}

// next finds the earliest scheduled item.
func (g *AssetsGenerator) next() (pending, bool) {
	var best pending
	found := false
	consider := func(p pending) {
		if !found || p.at.Less(best.at) {
			best, found = p, true
		}
	}

	for _, a := range g.lots {
		for _, e := range a.Events() {
			f, ok := e.(*event.Flow)
			if !ok || g.paid[f.ID()] {
				continue
			}
			a := a
			consider(pending{at: f.At, run: func() error { return g.pay(a, f) }})
			break
		}
		if f, ok := a.(*asset.Futures); ok && !f.Maturity().IsEndOfMonth() {
			at := checkpointStamp(f.Maturity(), event.RankSettlement)
			if f.Count(event.Through(at)).IsPositive() {
				consider(pending{at: at, run: func() error { return g.settle(f, at, true) }})
			}
		}
	}

	if g.nextAdj < len(g.adjustments) {
		adj := g.adjustments[g.nextAdj]
		consider(pending{at: AdjustmentStamp(adj.Date()), run: func() error {
			g.nextAdj++
			return g.adjust(adj)
		}})
	}

	if !g.start.IsZero() {
		m := date.EndOfMonth(g.start)
		if !g.checkpoint.IsZero() {
			m = date.EndOfMonth(g.checkpoint.Add(1))
		}
		consider(pending{at: checkpointStamp(m, event.RankValuation), run: func() error { return g.monthEnd(m) }})
	}
	return best, found
}

// ============================================================================
// Transactions
// ============================================================================

func (g *AssetsGenerator) lotID(tx *refdata.Transaction, parts ...string) uuid.UUID {
	return event.NewID(append([]string{"lot", strconv.FormatInt(tx.Index, 10)}, parts...)...)
}

// price turns a quoted clean price into the price pair paid on on.
func (g *AssetsGenerator) price(inst *refdata.Instrument, clean decimal.Decimal, on date.Date) (event.Price, error) {
	accrued, err := asset.AccruedInterest(g.actx, inst, on)
	if err != nil {
		return event.Price{}, fmt.Errorf("price %s on %s: %w", inst.ID, on, err)
	}
	return event.Price{Clean: clean, Dirty: clean.Add(accrued)}, nil
}

func (g *AssetsGenerator) buy(tx *refdata.Transaction, at event.Stamp) error {
	inst, err := g.ctx.Defs.Instrument(tx.Instrument)
	if err != nil {
		return err
	}
	pf, err := g.ctx.Defs.Portfolio(tx.Portfolio)
	if err != nil {
		return err
	}
	price, err := g.price(inst, tx.Price, at.Date)
	if err != nil {
		return err
	}
	id := g.lotID(tx, tx.Portfolio)
	r := &event.Recognition{
		Header:   event.Header{EventID: event.NewID(id.String(), "recognition"), Parent: id, At: at, FX: tx.FXRate},
		Cause:    event.CausePurchase,
		Units:    tx.Count,
		Factor:   inst.Factor(),
		Price:    price,
		Fee:      tx.Fee,
		Currency: inst.Currency,
	}
	paid := r.Amount().Add(r.Fee)
	if inst.Type == refdata.AssetTypeFutures {
		paid = r.Fee
	}
	if err := g.withdraw(tx.Portfolio, inst.Currency, paid, at, r.ID(), "purchase "+inst.ID); err != nil {
		return err
	}

	a, err := asset.New(g.actx, id, inst, asset.LocationOf(pf), tx.Class, r)
	if err != nil {
		return err
	}
	g.lots = append(g.lots, a)
	return booking.Recognition(g.bk, a, r)
}

func (g *AssetsGenerator) sell(tx *refdata.Transaction, at event.Stamp) error {
	inst, err := g.ctx.Defs.Instrument(tx.Instrument)
	if err != nil {
		return err
	}
	shares, err := g.match(tx, at)
	if err != nil {
		return err
	}
	fees := allocate(tx.Fee, shares, tx.Count, fin.Rounder(inst.Currency))
	price, err := g.price(inst, tx.Price, at.Date)
	if err != nil {
		return err
	}

	net := decimal.Zero
	for i, s := range shares {
		d := derecognition(s.lot, event.CauseSale, at, s.units, price, fees[i], tx.FXRate)
		if err := s.lot.AddEvent(d); err != nil {
			return err
		}
		if err := booking.Derecognition(g.bk, s.lot, d); err != nil {
			return err
		}
		proceeds := d.Amount()
		if f, ok := s.lot.(*asset.Futures); ok {
			proceeds = f.CloseMargin(d)
		}
		net = net.Add(proceeds.Sub(d.Fee))
	}
	return g.settleCash(tx.Portfolio, inst.Currency, net, at, event.NewID("tx", strconv.FormatInt(tx.Index, 10)), "sale "+inst.ID)
}

func (g *AssetsGenerator) cashMovement(tx *refdata.Transaction, at event.Stamp) error {
	origin := event.NewID("tx", strconv.FormatInt(tx.Index, 10))
	desc := tx.Description
	if desc == "" {
		desc = "cash"
	}
	if err := g.settleCash(tx.Portfolio, tx.Currency, tx.Count, at, origin, desc); err != nil {
		return err
	}
	return booking.CashMovement(g.bk, tx.Portfolio, tx.Currency, tx.Count, at)
}

// transfer moves units into new lots of the target portfolio at amortized cost.
// Each source lot gives rise to its own target lot carrying its tax cost basis,
// valuation gap and deferred fee.
func (g *AssetsGenerator) transfer(tx *refdata.Transaction, at event.Stamp) error {
	inst, err := g.ctx.Defs.Instrument(tx.Instrument)
	if err != nil {
		return err
	}
	if inst.Type == refdata.AssetTypeFutures {
		return fmt.Errorf("transfer of futures %s: %w", inst.ID, asset.ErrNotSupported)
	}
	target, err := g.ctx.Defs.Portfolio(tx.Target)
	if err != nil {
		return err
	}
	shares, err := g.match(tx, at)
	if err != nil {
		return err
	}

	before, after := event.Prior(at), event.Through(at)
	for _, s := range shares {
		src := s.lot
		origin := recognitionOf(src)
		if origin == nil {
			return fmt.Errorf("lot %s has no recognition", src.ID())
		}
		d := derecognition(src, event.CauseTransfer, at, s.units, src.AmortizedCostPrice(before), decimal.Zero, tx.FXRate)
		if err := src.AddEvent(d); err != nil {
			return err
		}

		id := g.lotID(tx, tx.Target, src.ID().String())
		r := &event.Recognition{
			Header:   event.Header{EventID: event.NewID(id.String(), "recognition"), Parent: id, At: at, FX: tx.FXRate},
			Cause:    event.CauseTransfer,
			Units:    s.units,
			Factor:   src.Factor(),
			Price:    d.AmortizedPrice,
			TaxPrice: origin.CostPrice(),
			Gap:      src.CarriedGap(before).Sub(src.CarriedGap(after)),
			Fee:      src.DeferredFee(before).Sub(src.DeferredFee(after)),
			Currency: src.Currency(),
		}
		dst, err := asset.New(g.actx, id, inst, asset.LocationOf(target), src.Class(), r)
		if err != nil {
			return err
		}
		g.lots = append(g.lots, dst)
		if err := booking.Transfer(g.bk, src, d, dst, r); err != nil {
			return err
		}
	}
	return nil
}

// switchFunds derecognizes the source lots at the switch price and recognizes
// the target without moving cash.
func (g *AssetsGenerator) switchFunds(tx *refdata.Transaction, at event.Stamp) error {
	target, err := g.ctx.Defs.Instrument(tx.TargetInstrument)
	if err != nil {
		return err
	}
	pf, err := g.ctx.Defs.Portfolio(tx.Portfolio)
	if err != nil {
		return err
	}
	shares, err := g.match(tx, at)
	if err != nil {
		return err
	}

	legs := make([]booking.Leg, 0, len(shares))
	proceeds := decimal.Zero
	for _, s := range shares {
		d := derecognition(s.lot, event.CauseSwitch, at, s.units, event.Flat(tx.Price), decimal.Zero, tx.FXRate)
		if err := s.lot.AddEvent(d); err != nil {
			return err
		}
		legs = append(legs, booking.Leg{Asset: s.lot, Out: d})
		proceeds = proceeds.Add(d.Amount())
	}

	price := tx.TargetPrice
	if price.IsZero() {
		price = fin.RoundPrice(proceeds.Div(tx.TargetCount.Mul(target.Factor())))
	}
	id := g.lotID(tx, tx.Portfolio, target.ID)
	r := &event.Recognition{
		Header:   event.Header{EventID: event.NewID(id.String(), "recognition"), Parent: id, At: at, FX: tx.FXRate},
		Cause:    event.CauseSwitch,
		Units:    tx.TargetCount,
		Factor:   target.Factor(),
		Price:    event.Flat(price),
		Currency: target.Currency,
	}
	dst, err := asset.New(g.actx, id, target, asset.LocationOf(pf), tx.Class, r)
	if err != nil {
		return err
	}
	g.lots = append(g.lots, dst)
	return booking.Switch(g.bk, legs, dst, r)
}

// match takes tx.Count units from the open lots of the instrument in the
// portfolio, earliest lot first.
func (g *AssetsGenerator) match(tx *refdata.Transaction, at event.Stamp) ([]share, error) {
	before := event.Prior(at)
	held := decimal.Zero
	for _, a := range g.lots {
		if g.eligible(a, tx) {
			held = held.Add(a.Count(before))
		}
	}
	if held.LessThan(tx.Count) {
		return nil, fmt.Errorf("%w: %s %s of %s in %s, %s held", ErrInsufficientLots, tx.Type, tx.Count, tx.Instrument, tx.Portfolio, held)
	}

	var out []share
	remaining := tx.Count
	for _, a := range g.lots {
		if remaining.IsZero() {
			break
		}
		if !g.eligible(a, tx) {
			continue
		}
		n := a.Count(before)
		if !n.IsPositive() {
			continue
		}
		take := decimal.Min(n, remaining)
		out = append(out, share{lot: a, units: take})
		remaining = remaining.Sub(take)
	}
	return out, nil
}

func (g *AssetsGenerator) eligible(a asset.Asset, tx *refdata.Transaction) bool {
	return a.Instrument() == tx.Instrument && a.Location().Portfolio == tx.Portfolio && a.Currency() == tx.Currency
}

// allocate splits fee over the shares pro rata to units; the last share takes
// the rounding remainder so the parts add up to fee.
func allocate(fee decimal.Decimal, shares []share, total decimal.Decimal, round func(decimal.Decimal) decimal.Decimal) []decimal.Decimal {
	out := make([]decimal.Decimal, len(shares))
	left := fee
	for i, s := range shares {
		if i == len(shares)-1 {
			out[i] = left
			break
		}
		out[i] = round(fee.Mul(s.units).Div(total))
		left = left.Sub(out[i])
	}
	return out
}

func derecognition(a asset.Asset, cause event.Cause, at event.Stamp, units decimal.Decimal, price event.Price, fee, fx decimal.Decimal) *event.Derecognition {
	before := event.Prior(at)
	return &event.Derecognition{
		Header:         event.Header{EventID: event.NewID(a.ID().String(), cause.String(), at.String()), Parent: a.ID(), At: at, FX: fx},
		Cause:          cause,
		Units:          units,
		Factor:         a.Factor(),
		Price:          price,
		Fee:            fee,
		Currency:       a.Currency(),
		PurchasePrice:  a.PurchasePrice(before),
		AmortizedPrice: a.AmortizedCostPrice(before),
		IsTotal:        units.Equal(a.Count(before)),
	}
}

func recognitionOf(a asset.Asset) *event.Recognition {
	for _, e := range a.Events() {
		if r, ok := e.(*event.Recognition); ok {
			return r
		}
	}
	return nil
}

// ============================================================================
// Cash
// ============================================================================

// settleCash deposits a positive amount and withdraws a negative one.
func (g *AssetsGenerator) settleCash(portfolio, currency string, amount decimal.Decimal, at event.Stamp, origin uuid.UUID, desc string) error {
	switch {
	case amount.IsPositive():
		return g.deposit(portfolio, currency, amount, at, origin, desc)
	case amount.IsNegative():
		return g.withdraw(portfolio, currency, amount.Neg(), at, origin, desc)
	}
	return nil
}

// deposit opens a new cash balance.
func (g *AssetsGenerator) deposit(portfolio, currency string, amount decimal.Decimal, at event.Stamp, origin uuid.UUID, desc string) error {
	pf, err := g.ctx.Defs.Portfolio(portfolio)
	if err != nil {
		return err
	}
	id := event.NewID("cash", portfolio, currency, origin.String())
	p := &event.Payment{
		Header:      event.Header{EventID: event.NewID(id.String(), "in"), Parent: id, At: at},
		Direction:   event.Inflow,
		Value:       amount,
		Currency:    currency,
		Origin:      origin,
		Description: desc,
	}
	c, err := asset.NewCash(g.actx, id, asset.LocationOf(pf), currency, p)
	if err != nil {
		return err
	}
	g.cash = append(g.cash, c)
	return nil
}

// withdraw takes amount from the portfolio's cash balances in the currency,
// earliest balance first.
func (g *AssetsGenerator) withdraw(portfolio, currency string, amount decimal.Decimal, at event.Stamp, origin uuid.UUID, desc string) error {
	if !amount.IsPositive() {
		return nil
	}
	t := event.Through(at)
	available := decimal.Zero
	for _, c := range g.cash {
		if c.Location().Portfolio == portfolio && c.Currency() == currency {
			available = available.Add(c.Count(t))
		}
	}
	if available.LessThan(amount) {
		return fmt.Errorf("%w: %s needs %s in %s, %s available", ErrInsufficientCash, desc,
			fin.FormatAmount(amount, currency), portfolio, fin.FormatAmount(available, currency))
	}

	remaining := amount
	for _, c := range g.cash {
		if remaining.IsZero() {
			break
		}
		if c.Location().Portfolio != portfolio || c.Currency() != currency {
			continue
		}
		held := c.Count(t)
		if !held.IsPositive() {
			continue
		}
		take := decimal.Min(held, remaining)
		p := &event.Payment{
			Header:      event.Header{EventID: event.NewID(c.ID().String(), "out", origin.String()), Parent: c.ID(), At: at},
			Direction:   event.Outflow,
			Value:       take,
			Currency:    currency,
			Origin:      origin,
			Description: desc,
		}
		if err := c.AddEvent(p); err != nil {
			return err
		}
		remaining = remaining.Sub(take)
	}
	return nil
}

// ReconcileCash checks the cash balances against the main book's cash accounts
// as of the end of end.
func (g *AssetsGenerator) ReconcileCash(end date.Date) error {
	t := event.EndOf(end)
	held := make(map[ledger.AccountKey]decimal.Decimal)
	for _, c := range g.cash {
		k := ledger.CashKey(c.Location().Portfolio, c.Currency())
		held[k] = held[k].Add(c.Count(t))
	}
	booked := make(map[ledger.AccountKey]decimal.Decimal)
	for _, a := range g.ctx.Main.Filter(isCash) {
		booked[a.Key] = a.Balance(t)
	}
	for k, v := range held {
		if !v.Equal(booked[k]) {
			return fmt.Errorf("%w: cash %s holds %s, book has %s", ledger.ErrInvariantViolation, k, v, booked[k])
		}
	}
	for k, v := range booked {
		if !v.Equal(held[k]) {
			return fmt.Errorf("%w: cash %s holds %s, book has %s", ledger.ErrInvariantViolation, k, held[k], v)
		}
	}
	return nil
}

// ============================================================================
// Scheduled items
// ============================================================================

// pay books a flow and moves its net amount, which is zero when the whole gross
// is withheld.
func (g *AssetsGenerator) pay(a asset.Asset, f *event.Flow) error {
	g.paid[f.ID()] = true
	if f.Entitled().IsZero() {
		return nil
	}
	if err := booking.Inflow(g.bk, a, f); err != nil {
		return err
	}
	if g.ctx.Metrics != nil {
		g.ctx.Metrics.FlowsMaterialized.WithLabelValues(f.Type.String()).Inc()
	}
	return g.settleCash(a.Location().Portfolio, f.Currency, f.Net(), f.At, f.ID(), fmt.Sprintf("%s %s", f.Type, a.Instrument()))
}

// settle books a futures settlement and moves its margin.
func (g *AssetsGenerator) settle(f *asset.Futures, at event.Stamp, final bool) error {
	s, err := f.Settle(at, final)
	if err != nil || s == nil {
		return err
	}
	if err := booking.Settlement(g.bk, f, s); err != nil {
		return err
	}
	if g.ctx.Metrics != nil {
		g.ctx.Metrics.Settlements.Inc()
	}
	return g.settleCash(f.Location().Portfolio, f.Currency(), s.Margin, at, s.ID(), "settlement "+f.Instrument())
}

func (g *AssetsGenerator) adjust(adj refdata.Adjustment) error {
	at := AdjustmentStamp(adj.Date())
	origin := event.NewID("adjustment", strconv.Itoa(g.nextAdj), adj.Kind().String(), adj.Date().String())
	switch a := adj.(type) {
	case *refdata.SpinOff:
		return g.spinOff(a, at)
	case *refdata.AdditionalPremium:
		if a.Amount.IsNegative() {
			if err := g.withdraw(a.Portfolio, a.Currency, a.Amount.Neg(), at, origin, a.Kind().String()); err != nil {
				return err
			}
		}
		if err := booking.AdditionalPremium(g.bk, a, at); err != nil {
			return err
		}
		if a.Amount.IsPositive() {
			return g.deposit(a.Portfolio, a.Currency, a.Amount, at, origin, a.Kind().String())
		}
		return nil
	case *refdata.TaxAssessment:
		if err := g.withdraw(a.Portfolio, g.ctx.Settings.LocalCurrency, a.Amount, at, origin, a.Kind().String()); err != nil {
			return err
		}
		return booking.TaxAssessment(g.bk, a, at)
	}
	return fmt.Errorf("unhandled adjustment %s", adj.Kind())
}

// spinOff grants new lots to every open lot of the parent instrument, valued at
// the new instrument's closing price.
func (g *AssetsGenerator) spinOff(adj *refdata.SpinOff, at event.Stamp) error {
	child, err := g.ctx.Defs.Instrument(adj.NewInstrument)
	if err != nil {
		return err
	}
	q, err := g.ctx.Defs.PriceAsOf(adj.NewInstrument, adj.On)
	if err != nil {
		return fmt.Errorf("spin-off %s: %w", adj.NewInstrument, err)
	}
	parents := g.lots
	for _, p := range parents {
		if p.Instrument() != adj.Instrument {
			continue
		}
		held := p.Count(event.Prior(at))
		if !held.IsPositive() {
			continue
		}
		id := event.NewID("lot", "spin-off", p.ID().String(), adj.NewInstrument)
		r := &event.Recognition{
			Header:   event.Header{EventID: event.NewID(id.String(), "recognition"), Parent: id, At: at},
			Cause:    event.CauseSpinOff,
			Units:    held.Mul(adj.Ratio),
			Factor:   child.Factor(),
			Price:    event.Flat(q.Price),
			Currency: child.Currency,
		}
		a, err := asset.New(g.actx, id, child, p.Location(), adj.Class, r)
		if err != nil {
			return err
		}
		g.lots = append(g.lots, a)
		if err := booking.SpinOff(g.bk, a, r); err != nil {
			return err
		}
	}
	return nil
}

// monthEnd values every lot, settles futures, accrues corporate income tax and
// closes the year on 31 Dec.
func (g *AssetsGenerator) monthEnd(m date.Date) error {
	g.checkpoint = m

	at := checkpointStamp(m, event.RankValuation)
	for _, a := range g.lots {
		v, ok := a.(asset.Valuer)
		if !ok {
			continue
		}
		val, err := v.Valuate(at)
		if err != nil {
			return fmt.Errorf("valuation of %s at %s: %w", a.Instrument(), m, err)
		}
		if val == nil {
			continue
		}
		if err := booking.Valuation(g.bk, a, val); err != nil {
			return err
		}
		if g.ctx.Metrics != nil {
			g.ctx.Metrics.Valuations.Inc()
		}
	}

	settleAt := checkpointStamp(m, event.RankSettlement)
	for _, a := range g.lots {
		f, ok := a.(*asset.Futures)
		if !ok || !f.Count(event.Prior(settleAt)).IsPositive() {
			continue
		}
		if err := g.settle(f, settleAt, !m.Before(f.Maturity())); err != nil {
			return err
		}
	}

	accruals, err := booking.AccrueIncomeTax(g.bk, m)
	if err != nil {
		return err
	}
	for _, a := range accruals {
		g.log.Debug().Str("portfolio", a.Portfolio).Str("delta", a.Delta.String()).Str("on", m.String()).Msg("income tax accrued")
	}
	if g.ctx.Metrics != nil {
		g.ctx.Metrics.Checkpoints.WithLabelValues("month_end").Inc()
	}

	if m.Month() != time.December {
		return nil
	}
	trueUps, err := booking.CloseYear(g.bk, m.Year())
	if err != nil {
		return err
	}
	g.trueUps = append(g.trueUps, trueUps...)
	g.log.Info().Int("year", m.Year()).Int("portfolios", len(trueUps)).Msg("year closed")
	if g.ctx.Metrics != nil {
		g.ctx.Metrics.Checkpoints.WithLabelValues("year_end").Inc()
	}
	return nil
}
