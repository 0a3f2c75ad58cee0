package event

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind discriminator for asset events
type Kind int32

const (
	KindUnknown Kind = iota
	KindRecognition
	KindDerecognition
	KindFlow
	KindPayment
	KindValuation
	KindSettlement
)

// Namespace seeds the deterministic ids of assets, events and operations, so that
// two replays of the same log produce identical ids.
var Namespace = uuid.MustParse("6f1c8a52-3d0e-4b7a-9e55-2a41c0d7b3f9")

// NewID derives a stable id from its parts.
func NewID(parts ...string) uuid.UUID {
	return uuid.NewSHA1(Namespace, []byte(strings.Join(parts, "/")))
}

// Event is the interface all asset events implement
type Event interface {
	// ID is unique per event
	ID() uuid.UUID

	// AssetID is the owning asset
	AssetID() uuid.UUID

	// Stamp positions the event on the time axis
	Stamp() Stamp

	// Kind returns the discriminator
	Kind() Kind

	// Count is the signed change of units held
	Count() decimal.Decimal

	// Amount is the event's value in the asset currency
	Amount() decimal.Decimal

	// FXRate converts the asset currency into the local currency
	FXRate() decimal.Decimal
}

// Header carries the fields shared by every event.
type Header struct {
	EventID uuid.UUID
	Parent  uuid.UUID
	At      Stamp
	FX      decimal.Decimal // Local currency per unit of asset currency, zero means 1
}

func (h Header) ID() uuid.UUID      { return h.EventID }
func (h Header) AssetID() uuid.UUID { return h.Parent }
func (h Header) Stamp() Stamp       { return h.At }

func (h Header) FXRate() decimal.Decimal {
	if h.FX.IsZero() {
		return decimal.NewFromInt(1)
	}
	return h.FX
}

// Price is a clean/dirty price pair. Bonds quote in percent of par, other assets
// per unit.
type Price struct {
	Clean decimal.Decimal
	Dirty decimal.Decimal
}

// Accrued is the accrued interest embedded in the price.
func (p Price) Accrued() decimal.Decimal { return p.Dirty.Sub(p.Clean) }

// Flat builds a price without accrued interest.
func Flat(p decimal.Decimal) Price { return Price{Clean: p, Dirty: p} }

func (k Kind) String() string {
	switch k {
	case KindRecognition:
		return "Recognition"
	case KindDerecognition:
		return "Derecognition"
	case KindFlow:
		return "Flow"
	case KindPayment:
		return "Payment"
	case KindValuation:
		return "Valuation"
	case KindSettlement:
		return "Settlement"
	default:
		return "Unknown"
	}
}
