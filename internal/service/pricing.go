package service

import "fmt"

const (
	// DefaultFeeBps is the convenience fee of 5% in basis points.
	DefaultFeeBps int64 = 500
	// DefaultMaxSeats caps the seats of one booking.
	DefaultMaxSeats = 10
	// MaxUnitPrice bounds a ticket price in major units.  Together with
	// the seat cap and minor unit factor it keeps every amount far inside
	// int64.
	MaxUnitPrice int64 = 1_000_000_000
	// MaxFeeBps is a fee of 100%.
	MaxFeeBps int64 = 10_000
)

// Quote is the price breakdown of a booking in whole major units.
type Quote struct {
	Quantity       int   `json:"quantity"`
	UnitPrice      int64 `json:"unit_price"`
	Subtotal       int64 `json:"subtotal"`
	ConvenienceFee int64 `json:"convenience_fee"`
	Total          int64 `json:"total"`
}

// Pricing computes quotes.  All arithmetic is integer.
type Pricing struct {
	FeeBps   int64
	MaxSeats int
}

// Quote prices seatIDs at unitPrice each.  The seat list must hold
// between one and MaxSeats entries and the price must be positive.
func (p Pricing) Quote(unitPrice int64, seatIDs []string) (Quote, error) {
	n := len(seatIDs)
	if n == 0 {
		return Quote{}, validationErr("at least one seat is required")
	}
	if p.MaxSeats > 0 && n > p.MaxSeats {
		return Quote{}, validationErr("at most %d seats per booking", p.MaxSeats)
	}
	if unitPrice <= 0 {
		return Quote{}, validationErr("ticket price must be positive")
	}
	if unitPrice > MaxUnitPrice {
		return Quote{}, validationErr("ticket price exceeds %d", MaxUnitPrice)
	}
	subtotal := unitPrice * int64(n)
	fee := ConvenienceFee(subtotal, p.FeeBps)
	return Quote{
		Quantity:       n,
		UnitPrice:      unitPrice,
		Subtotal:       subtotal,
		ConvenienceFee: fee,
		Total:          subtotal + fee,
	}, nil
}

// ConvenienceFee returns subtotal*bps/10000 rounded half up to a whole
// major unit.  bps is clamped to MaxFeeBps.  The subtotal is split at
// 10000 so only the remainder is scaled before rounding.
func ConvenienceFee(subtotal, bps int64) int64 {
	if subtotal <= 0 || bps <= 0 {
		return 0
	}
	bps = min(bps, MaxFeeBps)
	whole, rest := subtotal/10000, subtotal%10000
	return whole*bps + (rest*bps*2+10000)/20000
}

// MinorUnits converts a major-unit amount for the gateway.
func MinorUnits(major, factor int64) int64 {
	return major * factor
}

func (q Quote) String() string {
	return fmt.Sprintf("%d x %d = %d + fee %d = %d", q.Quantity, q.UnitPrice, q.Subtotal, q.ConvenienceFee, q.Total)
}
