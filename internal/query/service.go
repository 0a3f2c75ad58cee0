package query

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"PortfolioLedger/internal/asset"
	"PortfolioLedger/internal/core"
	"PortfolioLedger/internal/date"
	"PortfolioLedger/internal/event"
	"PortfolioLedger/internal/ledger"
	"PortfolioLedger/internal/refdata"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Service answers read-only questions from a completed replay. The books and
// lots are immutable once the replay returned, so the service needs no locks.
type Service struct {
	ctx    *core.LedgerContext
	assets []asset.Asset
	result *core.Result
}

// NewService wraps the outcome of engine.Run.
func NewService(engine *core.Engine, result *core.Result) *Service {
	return &Service{ctx: engine.Context(), assets: engine.Assets(), result: result}
}

// Summary describes the replay.
func (s *Service) Summary() SummaryResponse {
	out := SummaryResponse{
		Transactions: s.result.Transactions,
		End:          s.result.End.String(),
		Operations:   s.result.Operations,
		StateHash:    s.result.StateHash,
		TrueUps:      make([]TrueUpResponse, 0, len(s.result.TrueUps)),
	}
	for _, t := range s.result.TrueUps {
		out.TrueUps = append(out.TrueUps, TrueUpResponse{
			Portfolio: t.Portfolio, Required: t.Required, Assessed: t.Assessed,
			Precharged: t.Precharged, Payable: t.Payable,
		})
	}
	return out
}

// Balances returns account balances as of the end of req.On.
func (s *Service) Balances(req BalanceRequest) (*BalanceReport, error) {
	book, err := s.book(req.Book)
	if err != nil {
		return nil, err
	}
	on, err := s.day(req.On)
	if err != nil {
		return nil, err
	}
	match, err := s.matcher(req.AccountType, req.Portfolio)
	if err != nil {
		return nil, err
	}

	t := event.EndOf(on)
	report := &BalanceReport{
		Book:    book.Name,
		AsOf:    on.String(),
		GroupBy: req.GroupBy,
		Lines:   []BalanceLine{},
		Totals:  make(map[string]decimal.Decimal),
	}

	index := make(map[string]int)
	for _, a := range book.Filter(match) {
		net := a.Net(t)
		if net.IsZero() && a.Debit(t).IsZero() {
			continue
		}
		group, err := s.group(a.Key, req.GroupBy)
		if err != nil {
			return nil, err
		}
		id := strings.Join([]string{group, a.Key.Type.String(), a.Key.Currency}, "|")
		i, ok := index[id]
		if !ok {
			i = len(report.Lines)
			index[id] = i
			report.Lines = append(report.Lines, BalanceLine{
				Group:       group,
				AccountType: a.Key.Type.String(),
				Currency:    a.Key.Currency,
			})
		}
		line := &report.Lines[i]
		line.Debit = line.Debit.Add(a.Debit(t))
		line.Credit = line.Credit.Add(a.Credit(t))
		line.Balance = line.Balance.Add(net)
		line.Accounts++
		report.Totals[a.Key.Currency] = report.Totals[a.Key.Currency].Add(net)
	}

	sort.SliceStable(report.Lines, func(i, j int) bool {
		a, b := report.Lines[i], report.Lines[j]
		if a.Group != b.Group {
			return a.Group < b.Group
		}
		if a.AccountType != b.AccountType {
			return a.AccountType < b.AccountType
		}
		return a.Currency < b.Currency
	})
	return report, nil
}

// Accounts lists the accounts of a book.
func (s *Service) Accounts(bookName string) ([]AccountSummary, error) {
	book, err := s.book(bookName)
	if err != nil {
		return nil, err
	}
	out := make([]AccountSummary, 0)
	for _, a := range book.Accounts() {
		sum := AccountSummary{
			Path:      a.Key.AccountPath(),
			Type:      a.Key.Type.String(),
			Portfolio: a.Key.Portfolio,
			Currency:  a.Key.Currency,
			Entries:   len(a.Entries()),
			Annual:    a.Key.Type.IsAnnual(),
		}
		if a.Key.AssetType != refdata.AssetTypeNone {
			sum.AssetType = a.Key.AssetType.String()
		}
		out = append(out, sum)
	}
	return out, nil
}

// Entries returns the postings of the account at path made up to the end of
// on, with the all-time running balance.
func (s *Service) Entries(bookName, path, on string) ([]EntryResponse, error) {
	book, err := s.book(bookName)
	if err != nil {
		return nil, err
	}
	day, err := s.day(on)
	if err != nil {
		return nil, err
	}
	var account *ledger.Account
	for _, a := range book.Accounts() {
		if a.Key.AccountPath() == path {
			account = a
			break
		}
	}
	if account == nil {
		return nil, fmt.Errorf("account %q: %w", path, ErrNotFound)
	}

	t := event.EndOf(day)
	out := make([]EntryResponse, 0)
	running := decimal.Zero
	for _, e := range account.Entries() {
		if !t.Includes(e.Stamp) {
			continue
		}
		running = running.Add(e.Amount)
		out = append(out, EntryResponse{
			Operation:   e.OperationIndex,
			Stamp:       e.Stamp.String(),
			Date:        e.Date.String(),
			Transaction: e.TransactionIndex,
			Description: e.Description,
			Amount:      e.Amount,
			Running:     running,
		})
	}
	return out, nil
}

// Assets returns the lots and cash balances of a portfolio (all when empty)
// as of the end of on. Closed lots are included only when all is set.
func (s *Service) Assets(portfolio, on string, all bool) ([]AssetResponse, error) {
	day, err := s.day(on)
	if err != nil {
		return nil, err
	}
	t := event.EndOf(day)
	out := make([]AssetResponse, 0)
	for _, a := range s.assets {
		if portfolio != "" && a.Location().Portfolio != portfolio {
			continue
		}
		start, _ := a.Bounds()
		if !t.Includes(start) {
			continue
		}
		active := a.IsActive(t)
		if !active && !all {
			continue
		}
		out = append(out, stateOf(a, t, active))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Portfolio != out[j].Portfolio {
			return out[i].Portfolio < out[j].Portfolio
		}
		return out[i].Instrument < out[j].Instrument
	})
	return out, nil
}

// Asset returns the state of one lot as of the end of on.
func (s *Service) Asset(id, on string) (*AssetResponse, error) {
	a, err := s.find(id)
	if err != nil {
		return nil, err
	}
	day, err := s.day(on)
	if err != nil {
		return nil, err
	}
	t := event.EndOf(day)
	st := stateOf(a, t, a.IsActive(t))
	return &st, nil
}

// Events returns the history of one lot up to the end of on.
func (s *Service) Events(id, on string) ([]EventResponse, error) {
	a, err := s.find(id)
	if err != nil {
		return nil, err
	}
	day, err := s.day(on)
	if err != nil {
		return nil, err
	}
	t := event.EndOf(day)
	out := make([]EventResponse, 0)
	for _, e := range a.Events() {
		if !t.Includes(e.Stamp()) {
			continue
		}
		out = append(out, EventResponse{
			ID:     e.ID(),
			Kind:   e.Kind().String(),
			Stamp:  e.Stamp().String(),
			Count:  e.Count(),
			Amount: e.Amount(),
			FXRate: e.FXRate(),
		})
	}
	return out, nil
}

func stateOf(a asset.Asset, t event.TimeArg, active bool) AssetResponse {
	loc := a.Location()
	st := AssetResponse{
		ID:            a.ID(),
		Instrument:    a.Instrument(),
		Type:          a.Type().String(),
		Portfolio:     loc.Portfolio,
		Broker:        loc.Broker,
		Currency:      a.Currency(),
		Active:        active,
		Count:         a.Count(t),
		PurchasePrice: a.PurchasePrice(t).Clean,
		Purchase:      a.PurchaseAmount(t),
		AmortizedCost: a.AmortizedCostAmount(t),
		Interest:      a.InterestAmount(t),
		DeferredFee:   a.DeferredFee(t),
	}
	if a.Type() != refdata.AssetTypeCash {
		st.Class = a.Class().String()
	}
	if m, err := a.MarketAmount(t); err == nil {
		st.Market = &m
	}
	return st
}

func (s *Service) find(id string) (asset.Asset, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("asset id %q: %w", id, ErrInvalidArgument)
	}
	for _, a := range s.assets {
		if a.ID() == uid {
			return a, nil
		}
	}
	return nil, fmt.Errorf("asset %s: %w", uid, ErrNotFound)
}

func (s *Service) book(name string) (*ledger.Book, error) {
	switch name {
	case "", s.ctx.Main.Name:
		return s.ctx.Main, nil
	case s.ctx.Tax.Name:
		return s.ctx.Tax, nil
	}
	return nil, fmt.Errorf("book %q: %w", name, ErrInvalidArgument)
}

func (s *Service) day(on string) (date.Date, error) {
	if on == "" {
		return s.result.End, nil
	}
	d, err := date.Parse(on)
	if err != nil {
		return d, fmt.Errorf("date %q: %w", on, ErrInvalidArgument)
	}
	return d, nil
}

func (s *Service) matcher(accountType, portfolio string) (func(ledger.AccountKey) bool, error) {
	var (
		typ    ledger.AccountType
		byType bool
		err    error
	)
	if accountType != "" {
		if typ, err = ledger.ParseAccountType(accountType); err != nil {
			return nil, fmt.Errorf("%v: %w", err, ErrInvalidArgument)
		}
		byType = true
	}
	return func(k ledger.AccountKey) bool {
		if byType && k.Type != typ {
			return false
		}
		return portfolio == "" || k.Portfolio == portfolio
	}, nil
}

func (s *Service) group(k ledger.AccountKey, by GroupBy) (string, error) {
	switch by {
	case GroupByAccount:
		return k.AccountPath(), nil
	case GroupByAssetType:
		if k.AssetType == refdata.AssetTypeNone {
			return "-", nil
		}
		return k.AssetType.String(), nil
	case GroupByCurrency:
		return k.Currency, nil
	case GroupByPortfolio:
		return k.Portfolio, nil
	case GroupByBroker:
		p, err := s.ctx.Defs.Portfolio(k.Portfolio)
		if err != nil {
			return "", err
		}
		return p.BrokerName(), nil
	}
	return "", fmt.Errorf("group by %q: %w", by, ErrInvalidArgument)
}
