// Package payment adapts the hosted-checkout payment processor. The rest
// of the system only sees CheckoutSession and Event values; Stripe types
// stay inside this package.
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/TorentoFlag/skin-vault/internal/clock"
	"github.com/shopspring/decimal"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

// CheckoutSession is the handle to a hosted payment page.
type CheckoutSession struct {
	SessionID string
	URL       string
}

// Event is a verified webhook notification, with the correlation metadata
// the order pipeline embedded at session creation.
type Event struct {
	Type            string
	SessionID       string
	OrderID         string
	UserID          string
	PaymentIntentID string
}

const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventCheckoutExpired   = "checkout.session.expired"
)

const sessionExpiry = 30 * time.Minute

type StripeGateway struct {
	api           *client.API
	webhookSecret string
	clientURL     string
	clock         clock.Clock
}

func NewStripeGateway(secretKey, webhookSecret, clientURL string, clk clock.Clock) *StripeGateway {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeGateway{
		api:           api,
		webhookSecret: webhookSecret,
		clientURL:     clientURL,
		clock:         clk,
	}
}

// CreateCheckoutSession opens a hosted payment page with a 30-minute
// expiry, carrying the order and user ids as opaque metadata for webhook
// correlation.
func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, orderID, userID string, total decimal.Decimal, itemNames []string) (CheckoutSession, error) {
	amountKopecks := total.Mul(decimal.NewFromInt(100)).Round(0).IntPart()

	description := ""
	for i, name := range itemNames {
		if i == 5 {
			description += "..."
			break
		}
		if i > 0 {
			description += ", "
		}
		description += name
	}

	params := &stripe.CheckoutSessionParams{
		Mode:     stripe.String(string(stripe.CheckoutSessionModePayment)),
		Currency: stripe.String(string(stripe.CurrencyRUB)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(string(stripe.CurrencyRUB)),
					UnitAmount: stripe.Int64(amountKopecks),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(fmt.Sprintf("CS2 Skins (%d items)", len(itemNames))),
						Description: stripe.String(description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(fmt.Sprintf("%s/orders/%s?status=success", g.clientURL, orderID)),
		CancelURL:  stripe.String(fmt.Sprintf("%s/orders/%s?status=cancelled", g.clientURL, orderID)),
		ExpiresAt:  stripe.Int64(g.clock.Now().Add(sessionExpiry).Unix()),
	}
	params.Context = ctx
	params.AddMetadata("orderId", orderID)
	params.AddMetadata("userId", userID)

	session, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("create checkout session: %w", err)
	}
	if session.URL == "" {
		return CheckoutSession{}, fmt.Errorf("checkout session %s has no redirect url", session.ID)
	}

	return CheckoutSession{SessionID: session.ID, URL: session.URL}, nil
}

// ConstructEvent verifies the webhook signature over the exact raw body
// bytes. Any transformation of the payload before this call invalidates
// the signature.
func (g *StripeGateway) ConstructEvent(payload []byte, signatureHeader string) (Event, error) {
	stripeEvent, err := webhook.ConstructEvent(payload, signatureHeader, g.webhookSecret)
	if err != nil {
		return Event{}, fmt.Errorf("verify webhook signature: %w", err)
	}

	ev := Event{Type: string(stripeEvent.Type)}

	switch stripeEvent.Type {
	case EventCheckoutCompleted, EventCheckoutExpired:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(stripeEvent.Data.Raw, &session); err != nil {
			return Event{}, fmt.Errorf("decode checkout session event: %w", err)
		}
		ev.SessionID = session.ID
		ev.OrderID = session.Metadata["orderId"]
		ev.UserID = session.Metadata["userId"]
		if session.PaymentIntent != nil {
			ev.PaymentIntentID = session.PaymentIntent.ID
		}
	}
	return ev, nil
}

// RetrieveSessionPaymentIntent returns the payment intent behind a
// session, or "" when the session has none.
func (g *StripeGateway) RetrieveSessionPaymentIntent(ctx context.Context, sessionID string) (string, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	session, err := g.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return "", fmt.Errorf("retrieve checkout session: %w", err)
	}
	if session.PaymentIntent == nil {
		return "", nil
	}
	return session.PaymentIntent.ID, nil
}

// RefundPaymentIntent refunds the full captured amount of a payment intent.
func (g *StripeGateway) RefundPaymentIntent(ctx context.Context, paymentIntentID string) error {
	params := &stripe.RefundParams{PaymentIntent: stripe.String(paymentIntentID)}
	params.Context = ctx

	if _, err := g.api.Refunds.New(params); err != nil {
		return fmt.Errorf("create refund: %w", err)
	}
	return nil
}

// ExpireSession expires a checkout session. An already-expired session is
// not an error worth surfacing; callers treat failures as best-effort.
func (g *StripeGateway) ExpireSession(ctx context.Context, sessionID string) error {
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx

	if _, err := g.api.CheckoutSessions.Expire(sessionID, params); err != nil {
		return fmt.Errorf("expire checkout session: %w", err)
	}
	return nil
}
