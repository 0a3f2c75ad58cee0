package event

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentDirection of a cash movement
type PaymentDirection uint8

const (
	Inflow PaymentDirection = iota
	Outflow
)

func (d PaymentDirection) String() string {
	if d == Outflow {
		return "out"
	}
	return "in"
}

// Payment moves cash into or out of a Cash asset.
type Payment struct {
	Header
	Direction   PaymentDirection
	Value       decimal.Decimal // Always positive
	Currency    string
	Origin      uuid.UUID // Originating event, zero when none
	Description string
}

func (p *Payment) Kind() Kind { return KindPayment }

func (p *Payment) Count() decimal.Decimal {
	if p.Direction == Outflow {
		return p.Value.Neg()
	}
	return p.Value
}

func (p *Payment) Amount() decimal.Decimal { return p.Value }
