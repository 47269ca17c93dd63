package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-seat-booking/internal/payment"
	"github.com/iliyamo/cinema-seat-booking/internal/pkg/logger"
	"github.com/iliyamo/cinema-seat-booking/internal/service"
)

// maxWebhookBody bounds the request body read from the provider.
const maxWebhookBody = 1 << 16

// WebhookHandler receives payment provider events.
type WebhookHandler struct {
	Payments payment.Gateway
	Ledger   *service.Ledger
	Bookings *service.BookingCoordinator
	// SignatureHeader names the header carrying the event signature.
	SignatureHeader string
}

func NewWebhookHandler(payments payment.Gateway, ledger *service.Ledger, bookings *service.BookingCoordinator) *WebhookHandler {
	if payments == nil || ledger == nil || bookings == nil {
		panic("nil dependency passed to NewWebhookHandler")
	}
	return &WebhookHandler{Payments: payments, Ledger: ledger, Bookings: bookings, SignatureHeader: "Stripe-Signature"}
}

// Payment handles POST /v1/webhooks/payment.
//
// The signature is verified before anything is parsed.  The event id goes
// through the ledger and only a first delivery runs business logic.  Once
// the event is recorded the provider always gets 200: a failed confirmation
// is logged and left to the payment-success fallback, since a retry would be
// dropped by the ledger anyway.  For the same reason the ledger write and the
// confirmation run detached from the request, so a sender that hangs up
// while the confirmation waits on a row lock cannot roll it back.
func (h *WebhookHandler) Payment(c echo.Context) error {
	if !h.Payments.Configured() {
		return c.String(http.StatusServiceUnavailable, "payments not configured")
	}
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return c.NoContent(http.StatusBadRequest)
	}
	ev, err := h.Payments.VerifyEvent(payload, c.Request().Header.Get(h.SignatureHeader))
	if err != nil {
		logger.Warn("webhook rejected", zap.Error(err),
			zap.Bool("bad_signature", errors.Is(err, payment.ErrInvalidSignature)))
		return c.NoContent(http.StatusBadRequest)
	}
	log := logger.With(zap.String("event_id", ev.ID), zap.String("event_type", ev.Type))

	// Unpaid completions stay out of the ledger; the async success event
	// books them later.
	if ev.AwaitingPayment() {
		log.Info("checkout completed without payment", zap.String("session_id", ev.Session.ID))
		return c.NoContent(http.StatusOK)
	}

	ctx := context.WithoutCancel(c.Request().Context())
	rec, err := h.Ledger.RecordIfNew(ctx, ev.ID, ev.Type, ev.Payload)
	if err != nil {
		// Not recorded, so a provider retry is safe.
		log.Error("payment event ledger write failed", zap.Error(err))
		return c.NoContent(http.StatusInternalServerError)
	}
	if !rec.IsNew {
		return c.NoContent(http.StatusOK)
	}

	if ev.Session == nil {
		log.Debug("payment event ignored")
		return c.NoContent(http.StatusOK)
	}
	res, err := h.Bookings.ConfirmFromCheckout(ctx, *ev.Session)
	if err != nil {
		log.Error("ledger recorded but booking failed",
			zap.Uint64("theater_id", ev.Session.TheaterID),
			zap.Uint64("actor_id", ev.Session.ActorID),
			zap.String("payment_ref", ev.Session.PaymentReference),
			zap.Error(err))
		return c.NoContent(http.StatusOK)
	}
	log.Info("booking confirmed from webhook",
		zap.Int("booked", len(res.Booked)),
		zap.Int("contested", len(res.Contested)))
	return c.NoContent(http.StatusOK)
}
