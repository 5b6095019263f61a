package rest

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// OrderRequest is a new order submission.
type OrderRequest struct {
	Instrument    string  `json:"pairSymbol"`
	Side          string  `json:"orderType"`   // "buy" or "sell"
	Method        string  `json:"orderMethod"` // "limit" or "market"
	Price         float64 `json:"price"`
	Quantity      float64 `json:"quantity"`
	ClientOrderID string  `json:"newOrderClientId"`
}

// OrderResult is the venue's acknowledgement of a submitted order.
type OrderResult struct {
	OrderID       int64   `json:"id"`
	ClientOrderID string  `json:"newOrderClientId"`
	Instrument    string  `json:"pairSymbol"`
	Price         float64 `json:"price,string"`
	Quantity      float64 `json:"quantity,string"`
}

type orderResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    OrderResult `json:"data"`
}

// NewClientOrderID generates a unique client order ID.
func NewClientOrderID() string {
	return uuid.NewString()
}

// SubmitOrder places an order. Requires a signer; assigns a client order
// ID when the request carries none.
func (c *Client) SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	if req.ClientOrderID == "" {
		req.ClientOrderID = NewClientOrderID()
	}

	var resp orderResponse
	if err := c.post(ctx, "/api/v1/order", req, weightOrder, true, &resp); err != nil {
		return OrderResult{}, fmt.Errorf("submitting order: %w", err)
	}
	if !resp.Success {
		return OrderResult{}, fmt.Errorf("submitting order: %s", resp.Message)
	}

	c.logger.Info("order submitted",
		"instrument", req.Instrument,
		"side", req.Side,
		"client_order_id", req.ClientOrderID,
		"order_id", resp.Data.OrderID,
	)
	return resp.Data, nil
}

// CancelOrder cancels an open order by venue ID.
func (c *Client) CancelOrder(ctx context.Context, orderID int64) error {
	payload := map[string]int64{"id": orderID}

	var resp orderResponse
	if err := c.post(ctx, "/api/v1/order/cancel", payload, weightOrder, true, &resp); err != nil {
		return fmt.Errorf("cancelling order %d: %w", orderID, err)
	}
	if !resp.Success {
		return fmt.Errorf("cancelling order %d: %s", orderID, resp.Message)
	}
	return nil
}
