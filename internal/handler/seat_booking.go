package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-seat-booking/internal/model"
	"github.com/iliyamo/cinema-seat-booking/internal/payment"
	"github.com/iliyamo/cinema-seat-booking/internal/pkg/logger"
	"github.com/iliyamo/cinema-seat-booking/internal/repository"
	"github.com/iliyamo/cinema-seat-booking/internal/service"
)

// SeatHandler exposes the seat selection, checkout and payment return
// endpoints of one theater.  Every method except Seats assumes JWTAuth ran.
type SeatHandler struct {
	Locks    *service.LockManager
	Bookings *service.BookingCoordinator
	Catalog  repository.CatalogRepository
	Payments payment.Gateway

	// BaseURL prefixes the provider redirect URLs.
	BaseURL string
	// SeatPrice is the per-seat price in minor units, used for display.
	SeatPrice int64
	// DemoEnabled turns on POST /confirm, which books without paying.
	DemoEnabled bool
}

func NewSeatHandler(locks *service.LockManager, bookings *service.BookingCoordinator, catalog repository.CatalogRepository, payments payment.Gateway) *SeatHandler {
	if locks == nil || bookings == nil || catalog == nil || payments == nil {
		panic("nil dependency passed to NewSeatHandler")
	}
	return &SeatHandler{Locks: locks, Bookings: bookings, Catalog: catalog, Payments: payments}
}

type seatPart struct {
	ID         uint64 `json:"id"`
	SeatNumber string `json:"seat_number"`
}

func toSeatParts(seats []model.Seat) []seatPart {
	return lo.Map(seats, func(s model.Seat, _ int) seatPart {
		return seatPart{ID: s.ID, SeatNumber: s.SeatNumber}
	})
}

func seatIDs(seats []model.Seat) []uint64 {
	return lo.Map(seats, func(s model.Seat, _ int) uint64 { return s.ID })
}

// theaterAndUser resolves the path theater (404 when unknown) and the
// caller.  On failure the response has already been written and ok is false.
func (h *SeatHandler) theaterAndUser(c echo.Context) (t model.Theater, userID uint64, ok bool, err error) {
	userID, uerr := getUserID(c)
	if uerr != nil {
		return t, 0, false, c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	t, ok, err = h.theater(c)
	return t, userID, ok, err
}

func (h *SeatHandler) theater(c echo.Context) (model.Theater, bool, error) {
	id, ok := theaterParam(c)
	if !ok {
		return model.Theater{}, false, badRequest(c, "invalid theater id")
	}
	t, err := h.Catalog.Theater(c.Request().Context(), id)
	if err != nil {
		return model.Theater{}, false, writeError(c, err)
	}
	return t, true, nil
}

// Seats handles GET /v1/theaters/:id/seats.  Stale locks are swept first so
// pollers never see a seat whose lock already ran out.
func (h *SeatHandler) Seats(c echo.Context) error {
	t, ok, err := h.theater(c)
	if !ok {
		return err
	}
	ctx := c.Request().Context()
	if _, err := h.Locks.Sweep(ctx); err != nil {
		return writeError(c, err)
	}
	seats, err := h.Locks.Status(ctx, t.ID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"theater_id": t.ID, "seats": seats})
}

// StartSelection handles POST /v1/theaters/:id/selection.  Opening the seat
// map drops whatever the caller still holds in this theater.
func (h *SeatHandler) StartSelection(c echo.Context) error {
	t, userID, ok, err := h.theaterAndUser(c)
	if !ok {
		return err
	}
	ctx := c.Request().Context()
	if _, err := h.Locks.Sweep(ctx); err != nil {
		return writeError(c, err)
	}
	released, err := h.Locks.ReleaseLocks(ctx, t.ID, userID)
	if err != nil {
		return writeError(c, err)
	}
	seats, err := h.Locks.Status(ctx, t.ID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"theater_id": t.ID, "released": released, "seats": seats})
}

// Lock handles POST /v1/theaters/:id/locks.  All requested seats are locked
// or none; on conflict the response lists the seats that were taken.
func (h *SeatHandler) Lock(c echo.Context) error {
	t, userID, ok, err := h.theaterAndUser(c)
	if !ok {
		return err
	}
	var body seatIDsBody
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := c.Validate(&body); err != nil {
		return badRequest(c, "seat_ids is required")
	}
	if err := h.Locks.AcquireLocks(c.Request().Context(), t.ID, body.SeatIDs, userID); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"theater_id":  t.ID,
		"seat_ids":    lo.Uniq(body.SeatIDs),
		"ttl_seconds": int(h.Locks.TTL() / time.Second),
	})
}

// Unlock handles DELETE /v1/theaters/:id/locks.
func (h *SeatHandler) Unlock(c echo.Context) error {
	t, userID, ok, err := h.theaterAndUser(c)
	if !ok {
		return err
	}
	released, err := h.Locks.ReleaseLocks(c.Request().Context(), t.ID, userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"released": released})
}

// Checkout handles GET /v1/theaters/:id/checkout.  A lock that has run out
// is released and reported as 410; otherwise the caller's locks are renewed
// and the full TTL is returned.
func (h *SeatHandler) Checkout(c echo.Context) error {
	t, userID, ok, err := h.theaterAndUser(c)
	if !ok {
		return err
	}
	ctx := c.Request().Context()
	if _, err := h.Locks.Sweep(ctx); err != nil {
		return writeError(c, err)
	}
	seats, err := h.Locks.LockedBy(ctx, t.ID, userID)
	if err != nil {
		return writeError(c, err)
	}
	if len(seats) == 0 {
		return c.JSON(http.StatusGone, echo.Map{"error": "no locked seats"})
	}
	if h.Locks.RemainingTTL(seats) <= 0 {
		if _, err := h.Locks.ReleaseLocks(ctx, t.ID, userID); err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusGone, echo.Map{"error": "lock expired"})
	}
	if _, err := h.Locks.RenewLock(ctx, t.ID, userID, seatIDs(seats)); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"theater":           echo.Map{"id": t.ID, "name": t.Name, "movie": t.MovieName, "starts_at": t.StartsAt},
		"seats":             toSeatParts(seats),
		"total_minor":       h.SeatPrice * int64(len(seats)),
		"remaining_seconds": int(h.Locks.TTL() / time.Second),
	})
}

// CreateCheckoutSession handles POST /v1/theaters/:id/checkout-session.  It
// renews the caller's locks and returns the provider redirect URL.
func (h *SeatHandler) CreateCheckoutSession(c echo.Context) error {
	t, userID, ok, err := h.theaterAndUser(c)
	if !ok {
		return err
	}
	if !h.Payments.Configured() {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "payments not configured"})
	}
	ctx := c.Request().Context()
	seats, err := h.Locks.LockedBy(ctx, t.ID, userID)
	if err != nil {
		return writeError(c, err)
	}
	if len(seats) == 0 {
		return c.JSON(http.StatusGone, echo.Map{"error": "no locked seats"})
	}
	if _, err := h.Locks.RenewLock(ctx, t.ID, userID, seatIDs(seats)); err != nil {
		return writeError(c, err)
	}

	base := strings.TrimRight(h.BaseURL, "/")
	sess, err := h.Payments.CreateCheckout(ctx, payment.CheckoutRequest{
		ActorID:     userID,
		TheaterID:   t.ID,
		Title:       fmt.Sprintf("%s - %s", t.MovieName, t.Name),
		SeatIDs:     seatIDs(seats),
		SeatNumbers: lo.Map(seats, func(s model.Seat, _ int) string { return s.SeatNumber }),
		SuccessURL:  fmt.Sprintf("%s/v1/theaters/%d/payment/success?session_id={CHECKOUT_SESSION_ID}", base, t.ID),
		CancelURL:   fmt.Sprintf("%s/v1/theaters/%d/payment/cancel", base, t.ID),
	})
	if err != nil {
		logger.Error("checkout session creation failed",
			zap.Uint64("theater_id", t.ID), zap.Uint64("actor_id", userID), zap.Error(err))
		return writeError(c, fmt.Errorf("%w: %w", service.ErrExternalService, err))
	}
	return c.JSON(http.StatusCreated, echo.Map{"session_id": sess.ID, "url": sess.URL})
}

// PaymentSuccess handles GET /v1/theaters/:id/payment/success.  The webhook
// usually got there first; otherwise the session is fetched from the
// provider and confirmed here.  Anything else is reported as pending so the
// client keeps polling.
func (h *SeatHandler) PaymentSuccess(c echo.Context) error {
	t, userID, ok, err := h.theaterAndUser(c)
	if !ok {
		return err
	}
	ctx := c.Request().Context()
	booked, err := h.Locks.BookedBy(ctx, t.ID, userID)
	if err != nil {
		return writeError(c, err)
	}
	if len(booked) > 0 {
		return c.JSON(http.StatusOK, echo.Map{"status": "confirmed", "seats": toSeatParts(booked)})
	}

	if sid := c.QueryParam("session_id"); sid != "" && h.Payments.Configured() {
		if confirmed, err := h.confirmFromSession(c, t.ID, userID, sid); err != nil {
			return err
		} else if confirmed != nil {
			return c.JSON(http.StatusOK, echo.Map{"status": "confirmed", "seats": toSeatParts(confirmed)})
		}
	}

	locked, err := h.Locks.LockedBy(ctx, t.ID, userID)
	if err != nil {
		return writeError(c, err)
	}
	if len(locked) == 0 {
		return c.JSON(http.StatusGone, echo.Map{"error": "no pending booking"})
	}
	return c.JSON(http.StatusAccepted, echo.Map{"status": "pending", "seats": toSeatParts(locked)})
}

// confirmFromSession runs the fallback confirmation.  Provider failures are
// logged and yield (nil, nil) so that the caller answers pending; only
// storage failures are returned as a written response.
func (h *SeatHandler) confirmFromSession(c echo.Context, theaterID, userID uint64, sessionID string) ([]model.Seat, error) {
	ctx := c.Request().Context()
	log := logger.With(zap.String("session_id", sessionID), zap.Uint64("actor_id", userID))

	sess, err := h.Payments.RetrieveSession(ctx, sessionID)
	if err != nil {
		log.Warn("manual payment verification failed", zap.Error(err))
		return nil, nil
	}
	if sess.TheaterID != theaterID || sess.ActorID != userID {
		log.Warn("checkout session belongs to another selection",
			zap.Uint64("session_theater_id", sess.TheaterID), zap.Uint64("session_actor_id", sess.ActorID))
		return nil, nil
	}
	// The buyer may navigate away; a paid confirmation still has to land.
	if _, err := h.Bookings.ConfirmFromCheckout(context.WithoutCancel(ctx), sess); err != nil {
		if errors.Is(err, service.ErrPaymentPending) {
			return nil, nil
		}
		return nil, writeError(c, err)
	}
	booked, err := h.Locks.BookedBy(ctx, theaterID, userID)
	if err != nil {
		return nil, writeError(c, err)
	}
	if len(booked) == 0 {
		return nil, nil
	}
	return booked, nil
}

// PaymentCancel handles /v1/theaters/:id/payment/cancel and releases the
// caller's locks.
func (h *SeatHandler) PaymentCancel(c echo.Context) error {
	t, userID, ok, err := h.theaterAndUser(c)
	if !ok {
		return err
	}
	released, err := h.Locks.ReleaseLocks(c.Request().Context(), t.ID, userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "cancelled", "released": released})
}

// DemoConfirm handles POST /v1/theaters/:id/confirm.  It books the caller's
// locked seats with a generated reference, skipping the provider.
func (h *SeatHandler) DemoConfirm(c echo.Context) error {
	if !h.DemoEnabled {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	}
	t, userID, ok, err := h.theaterAndUser(c)
	if !ok {
		return err
	}
	ctx := c.Request().Context()
	seats, err := h.Locks.LockedBy(ctx, t.ID, userID)
	if err != nil {
		return writeError(c, err)
	}
	if len(seats) == 0 {
		return c.JSON(http.StatusGone, echo.Map{"error": "no locked seats"})
	}
	ref := "demo_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	res, err := h.Bookings.ConfirmBooking(ctx, service.ConfirmRequest{
		PaymentReference: ref,
		TheaterID:        t.ID,
		ActorID:          userID,
		SeatIDs:          seatIDs(seats),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"status":            "confirmed",
		"payment_reference": ref,
		"booked":            res.Booked,
		"contested":         res.Contested,
	})
}
