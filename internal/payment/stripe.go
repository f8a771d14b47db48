package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/paymentintent"
	"github.com/stripe/stripe-go/v83/refund"
	"github.com/stripe/stripe-go/v83/webhook"
)

const orderMetadataKey = "order_number"

// Stripe uses PaymentIntents. The API key is the process wide stripe.Key.
type Stripe struct {
	webhookSecret string
}

func NewStripe(secretKey, webhookSecret string) *Stripe {
	stripe.Key = secretKey
	return &Stripe{webhookSecret: webhookSecret}
}

func (s *Stripe) CreatePayment(ctx context.Context, orderNumber string, amount decimal.Decimal, currency string) (Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(MinorUnits(amount)),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Metadata: map[string]string{orderMetadataKey: orderNumber},
	}
	params.Context = ctx
	params.SetIdempotencyKey("order-" + orderNumber)

	pi, err := paymentintent.New(params)
	if err != nil {
		return Intent{}, fmt.Errorf("create payment intent for %s: %w", orderNumber, err)
	}
	log.Printf("💳 PaymentIntent %s created for %s (%s %s)", pi.ID, orderNumber, amount.StringFixed(2), currency)
	return Intent{
		Reference:    pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       amount,
		Currency:     currency,
	}, nil
}

func (s *Stripe) Verify(ctx context.Context, reference string) (Verification, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := paymentintent.Get(reference, params)
	if err != nil {
		return Verification{}, fmt.Errorf("retrieve payment intent %s: %w", reference, err)
	}
	return fromIntent(pi), nil
}

func (s *Stripe) ParseWebhook(payload []byte, signature string) (Verification, bool, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return Verification{}, false, fmt.Errorf("stripe webhook: %w", err)
	}

	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed", "payment_intent.canceled":
	default:
		log.Printf("ℹ️ Stripe event ignored: %s", event.Type)
		return Verification{}, false, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return Verification{}, false, fmt.Errorf("decode payment intent: %w", err)
	}
	return fromIntent(&pi), true, nil
}

func (s *Stripe) Refund(ctx context.Context, reference string, amount decimal.Decimal) (string, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(reference),
		Amount:        stripe.Int64(MinorUnits(amount)),
	}
	params.Context = ctx
	r, err := refund.New(params)
	if err != nil {
		return "", fmt.Errorf("refund %s: %w", reference, err)
	}
	log.Printf("💸 Refund %s issued for %s", r.ID, reference)
	return r.ID, nil
}

func fromIntent(pi *stripe.PaymentIntent) Verification {
	v := Verification{
		Reference:   pi.ID,
		OrderNumber: pi.Metadata[orderMetadataKey],
		Amount:      FromMinorUnits(pi.Amount),
		Result:      ResultPending,
	}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		v.Result = ResultSucceeded
	case stripe.PaymentIntentStatusCanceled, stripe.PaymentIntentStatusRequiresPaymentMethod:
		// requires_payment_method is what an intent falls back to after a declined card.
		if pi.LastPaymentError != nil || pi.Status == stripe.PaymentIntentStatusCanceled {
			v.Result = ResultFailed
		}
	}
	return v
}
