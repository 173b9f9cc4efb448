package models

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrNoOrdinaryPrice is returned when an offer has no usable reference
	// price, so a discount percentage cannot be computed.
	ErrNoOrdinaryPrice = errors.New("missing or zero ordinary price")

	// ErrSourceUnavailable marks a total fetch failure for one retailer
	// (unreachable upstream or malformed top-level response).
	ErrSourceUnavailable = errors.New("source unavailable")
)

// Offer is one normalized discount record for one product at one retailer.
type Offer struct {
	Store         string  `json:"store"`
	Name          string  `json:"name"`
	Brand         string  `json:"brand,omitempty"`
	SalePrice     float64 `json:"sale_price"`
	OrdinaryPrice float64 `json:"ordinary_price"`
	PctOff        float64 `json:"pct_off"`
	Unit          string  `json:"unit"`
}

// NewOffer builds a canonical Offer. PctOff is always recomputed from the two
// prices (never taken from upstream data) and rounded to 1 decimal; the prices
// themselves are stored rounded to 2 decimals. PctOff is not clamped, so
// inconsistent upstream data (sale above ordinary) yields a negative value.
// An empty unit defaults to "st".
func NewOffer(store, name string, salePrice, ordinaryPrice float64, unit, brand string) (Offer, error) {
	if ordinaryPrice <= 0 {
		return Offer{}, fmt.Errorf("%s %q: %w", store, name, ErrNoOrdinaryPrice)
	}
	if unit == "" {
		unit = "st"
	}
	pctOff := (ordinaryPrice - salePrice) / ordinaryPrice * 100
	return Offer{
		Store:         store,
		Name:          name,
		Brand:         brand,
		SalePrice:     round2(salePrice),
		OrdinaryPrice: round2(ordinaryPrice),
		PctOff:        math.Round(pctOff*10) / 10,
		Unit:          unit,
	}, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
