package gateway

import (
	"context"
	"fmt"
	"time"

	razorpay "github.com/razorpay/razorpay-go"
)

// Razorpay creates and fetches orders through the Razorpay Orders API.
type Razorpay struct {
	client  *razorpay.Client
	keyID   string
	timeout time.Duration
}

// NewRazorpay builds a client authenticated with the key pair.  A positive
// timeout bounds every order call on top of the caller's context.
func NewRazorpay(keyID, keySecret string, timeout time.Duration) *Razorpay {
	return &Razorpay{client: razorpay.NewClient(keyID, keySecret), keyID: keyID, timeout: timeout}
}

// KeyID returns the public key id handed to the checkout widget.
func (r *Razorpay) KeyID() string { return r.keyID }

type sdkResult struct {
	body map[string]interface{}
	err  error
}

// CreateOrder posts a new order.
func (r *Razorpay) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	notes := make(map[string]interface{}, len(req.Notes))
	for k, v := range req.Notes {
		notes[k] = v
	}
	data := map[string]interface{}{
		"amount":   req.Amount,
		"currency": req.Currency,
		"receipt":  req.Receipt,
		"notes":    notes,
	}
	body, err := r.call(ctx, func() (map[string]interface{}, error) {
		return r.client.Order.Create(data, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create order: %v", ErrGateway, err)
	}
	o, err := orderFromBody(body)
	if err != nil {
		return nil, err
	}
	if o.Amount == 0 {
		o.Amount = req.Amount
	}
	if o.Currency == "" {
		o.Currency = req.Currency
	}
	if o.Receipt == "" {
		o.Receipt = req.Receipt
	}
	if len(o.Notes) == 0 {
		o.Notes = req.Notes
	}
	return o, nil
}

// FetchOrder looks an order up by id.
func (r *Razorpay) FetchOrder(ctx context.Context, orderID string) (*Order, error) {
	body, err := r.call(ctx, func() (map[string]interface{}, error) {
		return r.client.Order.Fetch(orderID, nil, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: fetch order %s: %v", ErrGateway, orderID, err)
	}
	return orderFromBody(body)
}

// call runs an SDK request.  The SDK has no context support, so the
// request runs in a goroutine and ctx (plus the client timeout) only
// bounds how long we wait for it.
func (r *Razorpay) call(ctx context.Context, fn func() (map[string]interface{}, error)) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	done := make(chan sdkResult, 1)
	go func() {
		body, err := fn()
		done <- sdkResult{body: body, err: err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		return res.body, res.err
	}
}

func orderFromBody(body map[string]interface{}) (*Order, error) {
	id, _ := body["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("%w: order response without id", ErrGateway)
	}
	o := &Order{ID: id}
	if amt, ok := body["amount"].(float64); ok {
		o.Amount = int64(amt)
	}
	o.Currency, _ = body["currency"].(string)
	o.Receipt, _ = body["receipt"].(string)
	o.Status, _ = body["status"].(string)
	// an order without notes comes back with "notes": []
	if notes, ok := body["notes"].(map[string]interface{}); ok {
		o.Notes = make(map[string]string, len(notes))
		for k, v := range notes {
			if sv, ok := v.(string); ok {
				o.Notes[k] = sv
			}
		}
	}
	return o, nil
}
