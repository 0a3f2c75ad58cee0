package refdata

import (
	"fmt"
	"strings"
)

// AssetType classifies instruments and ledger accounts.
type AssetType uint8

const (
	AssetTypeNone AssetType = iota
	AssetTypeCash
	AssetTypeBond
	AssetTypeEquity
	AssetTypeETF
	AssetTypeFund
	AssetTypeFutures
)

func (t AssetType) String() string {
	switch t {
	case AssetTypeNone:
		return "none"
	case AssetTypeCash:
		return "cash"
	case AssetTypeBond:
		return "bond"
	case AssetTypeEquity:
		return "equity"
	case AssetTypeETF:
		return "etf"
	case AssetTypeFund:
		return "fund"
	case AssetTypeFutures:
		return "futures"
	default:
		return "unknown"
	}
}

// IsSecurity reports whether the type is priced per share without accrual.
func (t AssetType) IsSecurity() bool {
	return t == AssetTypeEquity || t == AssetTypeETF || t == AssetTypeFund
}

func ParseAssetType(s string) (AssetType, error) {
	for t := AssetTypeNone; t <= AssetTypeFutures; t++ {
		if strings.EqualFold(s, t.String()) {
			return t, nil
		}
	}
	return AssetTypeNone, fmt.Errorf("%w: unknown asset type %q", ErrInvalid, s)
}

func (t AssetType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *AssetType) UnmarshalText(b []byte) error {
	v, err := ParseAssetType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ValuationClass decides how market value changes reach the main book.
type ValuationClass uint8

const (
	AmortizedCost ValuationClass = iota // No revaluation
	FVTPL                               // Fair value through profit or loss
	FVOCI                               // Fair value through other comprehensive income
)

func (c ValuationClass) String() string {
	switch c {
	case AmortizedCost:
		return "AC"
	case FVTPL:
		return "FVTPL"
	case FVOCI:
		return "FVOCI"
	default:
		return "unknown"
	}
}

func ParseValuationClass(s string) (ValuationClass, error) {
	switch strings.ToUpper(s) {
	case "AC", "AMORTIZEDCOST", "":
		return AmortizedCost, nil
	case "FVTPL":
		return FVTPL, nil
	case "FVOCI":
		return FVOCI, nil
	}
	return AmortizedCost, fmt.Errorf("%w: unknown valuation class %q", ErrInvalid, s)
}

func (c ValuationClass) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *ValuationClass) UnmarshalText(b []byte) error {
	v, err := ParseValuationClass(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// CouponType of a bond
type CouponType uint8

const (
	CouponFixed CouponType = iota
	CouponFloating
	CouponZero
)

func (c CouponType) String() string {
	switch c {
	case CouponFixed:
		return "fixed"
	case CouponFloating:
		return "floating"
	case CouponZero:
		return "zero"
	default:
		return "unknown"
	}
}

func (c CouponType) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *CouponType) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "fixed", "":
		*c = CouponFixed
	case "floating", "float", "frn":
		*c = CouponFloating
	case "zero":
		*c = CouponZero
	default:
		return fmt.Errorf("%w: unknown coupon type %q", ErrInvalid, b)
	}
	return nil
}

// TransactionType of a log entry
type TransactionType uint8

const (
	TxBuy TransactionType = iota
	TxSell
	TxCash
	TxTransfer
	TxSwitch
)

func (t TransactionType) String() string {
	switch t {
	case TxBuy:
		return "buy"
	case TxSell:
		return "sell"
	case TxCash:
		return "cash"
	case TxTransfer:
		return "transfer"
	case TxSwitch:
		return "switch"
	default:
		return "unknown"
	}
}

func (t TransactionType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *TransactionType) UnmarshalText(b []byte) error {
	for v := TxBuy; v <= TxSwitch; v++ {
		if strings.EqualFold(string(b), v.String()) {
			*t = v
			return nil
		}
	}
	return fmt.Errorf("%w: unknown transaction type %q", ErrInvalid, b)
}
