package refdata

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

type document struct {
	Portfolios   []Portfolio       `json:"portfolios"`
	Instruments  []Instrument      `json:"instruments"`
	Transactions []Transaction     `json:"transactions"`
	Prices       []PriceQuote      `json:"prices"`
	Dividends    []DividendQuote   `json:"dividends"`
	Coupons      []CouponQuote     `json:"coupons"`
	FX           []FXQuote         `json:"fx"`
	Adjustments  []json.RawMessage `json:"adjustments"`
}

// Load decodes a JSON reference data document and validates it.
func Load(r io.Reader) (*Definitions, error) {
	var doc document
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode reference data: %w", err)
	}

	data := Data{
		Portfolios:   doc.Portfolios,
		Instruments:  doc.Instruments,
		Transactions: doc.Transactions,
		Prices:       doc.Prices,
		Dividends:    doc.Dividends,
		Coupons:      doc.Coupons,
		FX:           doc.FX,
	}
	for _, raw := range doc.Adjustments {
		a, err := decodeAdjustment(raw)
		if err != nil {
			return nil, err
		}
		data.Adjustments = append(data.Adjustments, a)
	}
	return New(data)
}

// LoadFile is Load on a file path.
func LoadFile(path string) (*Definitions, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open reference data: %w", err)
	}
	defer f.Close()
	return Load(f)
}
