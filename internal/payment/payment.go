// Package payment talks to the card gateway for online orders.
package payment

import (
	"context"

	"github.com/shopspring/decimal"
)

type Result string

const (
	ResultSucceeded Result = "succeeded"
	ResultFailed    Result = "failed"
	ResultPending   Result = "pending"
)

// Intent is what the storefront needs to collect the payment.
type Intent struct {
	Reference    string          `json:"payment_id"`
	ClientSecret string          `json:"client_secret,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
}

// Payload is the client side confirmation sent back after checkout.
type Payload struct {
	Reference string `json:"payment_id" binding:"required"`
}

type Verification struct {
	Reference   string
	OrderNumber string
	Result      Result
	Amount      decimal.Decimal
}

type Gateway interface {
	CreatePayment(ctx context.Context, orderNumber string, amount decimal.Decimal, currency string) (Intent, error)
	// Verify asks the gateway for the current state of a payment.
	Verify(ctx context.Context, reference string) (Verification, error)
	// ParseWebhook checks the signature. ok is false for events that carry no payment outcome.
	ParseWebhook(payload []byte, signature string) (v Verification, ok bool, err error)
	Refund(ctx context.Context, reference string, amount decimal.Decimal) (string, error)
}

// MinorUnits converts an amount to the smallest currency unit (paise, cents).
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func FromMinorUnits(n int64) decimal.Decimal {
	return decimal.New(n, -2)
}
