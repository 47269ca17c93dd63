package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// StripeConfig carries the Stripe credentials and pricing.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
	// SeatPrice is the price of one seat in the currency's minor unit.
	SeatPrice int64
}

// StripeGateway implements Gateway with Stripe Checkout.
type StripeGateway struct {
	cfg StripeConfig
	api *client.API
}

var _ Gateway = (*StripeGateway)(nil)

// NewStripeGateway returns a gateway.  Without a secret key the gateway
// reports itself unconfigured and every call fails with ErrNotConfigured.
func NewStripeGateway(cfg StripeConfig) *StripeGateway {
	if cfg.Currency == "" {
		cfg.Currency = "inr"
	}
	g := &StripeGateway{cfg: cfg}
	if cfg.SecretKey != "" {
		g.api = &client.API{}
		g.api.Init(cfg.SecretKey, nil)
	}
	return g
}

func (g *StripeGateway) Configured() bool { return g.api != nil }

// CreateCheckout opens a one-line-item payment session for all seats of the
// request.  The seat selection travels in the session metadata.
func (g *StripeGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (CheckoutSession, error) {
	if !g.Configured() {
		return CheckoutSession{}, ErrNotConfigured
	}
	name := req.Title
	if len(req.SeatNumbers) > 0 {
		name = fmt.Sprintf("%s (%s)", req.Title, strings.Join(req.SeatNumbers, ", "))
	}
	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:         stripe.String(req.SuccessURL),
		CancelURL:          stripe.String(req.CancelURL),
		ClientReferenceID:  stripe.String(fmt.Sprintf("%d", req.ActorID)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(g.cfg.Currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(name),
				},
				UnitAmount: stripe.Int64(g.cfg.SeatPrice * int64(len(req.SeatIDs))),
			},
			Quantity: stripe.Int64(1),
		}},
	}
	params.Context = ctx
	for k, v := range EncodeMetadata(req.TheaterID, req.ActorID, req.SeatIDs) {
		params.AddMetadata(k, v)
	}
	s, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("create checkout session: %w", err)
	}
	return CheckoutSession{ID: s.ID, URL: s.URL, TheaterID: req.TheaterID, ActorID: req.ActorID, SeatIDs: req.SeatIDs}, nil
}

// RetrieveSession fetches a session by id and decodes its metadata.
func (g *StripeGateway) RetrieveSession(ctx context.Context, sessionID string) (CheckoutSession, error) {
	if !g.Configured() {
		return CheckoutSession{}, ErrNotConfigured
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	s, err := g.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("retrieve checkout session: %w", err)
	}
	return fromStripeSession(s)
}

// VerifyEvent verifies the Stripe-Signature header and decodes the event.
// Signature failures map to ErrInvalidSignature, anything that verifies but
// does not decode maps to ErrMalformedEvent.
func (g *StripeGateway) VerifyEvent(payload []byte, signature string) (Event, error) {
	if !g.Configured() || g.cfg.WebhookSecret == "" {
		return Event{}, ErrNotConfigured
	}
	ev, err := webhook.ConstructEventWithOptions(payload, signature, g.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		switch {
		case errors.Is(err, webhook.ErrNotSigned),
			errors.Is(err, webhook.ErrInvalidHeader),
			errors.Is(err, webhook.ErrNoValidSignature),
			errors.Is(err, webhook.ErrTooOld):
			return Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		default:
			return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
	}
	if ev.ID == "" || ev.Type == "" {
		return Event{}, fmt.Errorf("%w: missing id or type", ErrMalformedEvent)
	}
	out := Event{ID: ev.ID, Type: string(ev.Type), Payload: payload}
	if isCheckoutEvent(out.Type) {
		if ev.Data == nil {
			return Event{}, fmt.Errorf("%w: missing data", ErrMalformedEvent)
		}
		var s stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		sess, err := fromStripeSession(&s)
		if err != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		out.Session = &sess
	}
	return out, nil
}

// fromStripeSession maps a Stripe session onto CheckoutSession.  The payment
// intent id is the booking's payment reference when present.
func fromStripeSession(s *stripe.CheckoutSession) (CheckoutSession, error) {
	theaterID, actorID, seatIDs, err := DecodeMetadata(s.Metadata)
	if err != nil {
		return CheckoutSession{}, err
	}
	ref := s.ID
	if s.PaymentIntent != nil && s.PaymentIntent.ID != "" {
		ref = s.PaymentIntent.ID
	}
	return CheckoutSession{
		ID:               s.ID,
		URL:              s.URL,
		Paid:             s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		PaymentReference: ref,
		TheaterID:        theaterID,
		ActorID:          actorID,
		SeatIDs:          seatIDs,
	}, nil
}
