package billing

import (
	"context"
	"fmt"

	"answering-platform/internal/tenant"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
)

// StripeCharger creates off-session usage charges for overage calls.
type StripeCharger struct{}

func NewStripeCharger(secretKey string) *StripeCharger {
	stripe.Key = secretKey
	return &StripeCharger{}
}

// ChargeOverage creates a confirmed off-session PaymentIntent against the
// org's stored customer. The per-call idempotency key makes webhook retries
// safe. Orgs without a Stripe customer are skipped, not failed: onboarding
// may lag behind first usage.
func (s *StripeCharger) ChargeOverage(ctx context.Context, org tenant.Organization, callID string, amountMinor int64) error {
	if org.StripeCustomerID == "" {
		return nil
	}
	if amountMinor <= 0 {
		return ErrInvalidArgument
	}

	params := &stripe.PaymentIntentParams{
		Params: stripe.Params{
			Context: ctx,
			Metadata: map[string]string{
				"organization_id": org.ID,
				"call_id":         callID,
				"kind":            "call_overage",
			},
		},
		Amount:      stripe.Int64(amountMinor),
		Currency:    stripe.String(string(stripe.CurrencyUSD)),
		Customer:    stripe.String(org.StripeCustomerID),
		Confirm:     stripe.Bool(true),
		OffSession:  stripe.Bool(true),
		Description: stripe.String(fmt.Sprintf("Call overage (call %s)", callID)),
	}
	params.SetIdempotencyKey("overage-" + callID)

	if _, err := paymentintent.New(params); err != nil {
		return fmt.Errorf("create overage payment intent: %w", err)
	}
	return nil
}
