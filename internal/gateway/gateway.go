// Package gateway talks to the hosted-checkout payment provider.  It
// creates gateway orders before checkout and verifies the HMAC signature
// the provider attaches to a payment confirmation.
package gateway

import (
	"context"
	"errors"
)

// ErrGateway wraps every failure reported by the provider or the
// transport towards it.
var ErrGateway = errors.New("payment gateway error")

// OrderRequest is the payload of a gateway order.  Amount is in the
// currency's minor unit (paise, cents).
type OrderRequest struct {
	Amount   int64
	Currency string
	Receipt  string
	Notes    map[string]string
}

// Order is the provider's view of an order.  Notes are the ones attached
// at creation.
type Order struct {
	ID       string
	Amount   int64
	Currency string
	Receipt  string
	Status   string
	Notes    map[string]string
}

// Client creates and looks up gateway orders.  KeyID is the public key
// the browser needs to open the hosted checkout.
type Client interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	FetchOrder(ctx context.Context, orderID string) (*Order, error)
	KeyID() string
}
