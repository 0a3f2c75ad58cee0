package refdata

import (
	"errors"
	"fmt"

	"PortfolioLedger/internal/date"
)

var (
	// ErrNotFound is returned when a lookup misses. Callers upstream may recover.
	ErrNotFound = errors.New("reference data not found")

	// ErrInvalid is returned when a record fails validation at load time.
	ErrInvalid = errors.New("invalid reference data")
)

// LookupError names the record a lookup could not find.
type LookupError struct {
	Kind string // portfolio, instrument, price, coupon, fx
	Key  string
	Date date.Date
}

func (e *LookupError) Error() string {
	if e.Date.IsZero() {
		return fmt.Sprintf("%s %q: %v", e.Kind, e.Key, ErrNotFound)
	}
	return fmt.Sprintf("%s %q as of %s: %v", e.Kind, e.Key, e.Date, ErrNotFound)
}

func (e *LookupError) Unwrap() error { return ErrNotFound }

func notFound(kind, key string) error { return &LookupError{Kind: kind, Key: key} }

func invalid(record string, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalid, record, fmt.Sprintf(format, args...))
}
