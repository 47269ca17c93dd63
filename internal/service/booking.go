package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/iliyamo/cinema-seat-booking/internal/clock"
	"github.com/iliyamo/cinema-seat-booking/internal/model"
	"github.com/iliyamo/cinema-seat-booking/internal/payment"
	"github.com/iliyamo/cinema-seat-booking/internal/pkg/logger"
	"github.com/iliyamo/cinema-seat-booking/internal/pkg/metrics"
	"github.com/iliyamo/cinema-seat-booking/internal/repository"
)

// ConfirmRequest identifies a paid seat selection.
type ConfirmRequest struct {
	PaymentReference string
	TheaterID        uint64
	ActorID          uint64
	SeatIDs          []uint64
}

// ConfirmResult reports what happened to every requested seat.  A confirmed
// transaction with contested seats is still a success.
type ConfirmResult struct {
	// Booked seats moved to booked by this call.
	Booked []uint64
	// AlreadyBooked seats were booked by the same actor before this call.
	AlreadyBooked []uint64
	// Contested seats are booked by another actor and were skipped.
	Contested []uint64
	// Missing seats do not exist in the theater.
	Missing []uint64
	// BookingsCreated counts inserted booking rows.
	BookingsCreated int
}

// BookingCoordinator turns a confirmed payment into bookings.
type BookingCoordinator struct {
	store    repository.Store
	clock    clock.Clock
	notifier *Notifier
	metrics  *metrics.Metrics
	log      *zap.Logger
}

// NewBookingCoordinator wires a BookingCoordinator.  notifier and m may be
// nil; without a notifier nothing is sent after commit.
func NewBookingCoordinator(store repository.Store, clk clock.Clock, notifier *Notifier, m *metrics.Metrics) *BookingCoordinator {
	if store == nil || clk == nil {
		panic("nil dependency passed to NewBookingCoordinator")
	}
	return &BookingCoordinator{
		store:    store,
		clock:    clk,
		notifier: notifier,
		metrics:  m,
		log:      logger.With(zap.String("component", "booking")),
	}
}

// ConfirmBooking books the requested seats for the actor in one transaction.
//
// Seat rows are read with a blocking FOR UPDATE so overlapping confirmations
// run one after another.  A seat already booked by the actor is left alone
// and only gets its missing booking row; a seat booked by someone else is
// skipped; every other seat becomes booked.  The consolidated notification
// is scheduled on the transaction and fires only if the commit succeeds.
// Any storage failure, an unknown theater or an unknown user rolls the whole
// transaction back and returns ErrFatalTransaction.
func (bc *BookingCoordinator) ConfirmBooking(ctx context.Context, req ConfirmRequest) (*ConfirmResult, error) {
	if req.TheaterID == 0 {
		return nil, invalid("theater_id", "required")
	}
	if req.ActorID == 0 {
		return nil, invalid("actor_id", "required")
	}
	ids := normalizeSeatIDs(req.SeatIDs)
	if len(ids) == 0 {
		return nil, invalid("seat_ids", "at least one seat is required")
	}

	var res *ConfirmResult
	err := bc.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		res = &ConfirmResult{}
		theater, err := tx.Catalog().Theater(ctx, req.TheaterID)
		if err != nil {
			return fatal("load theater", err)
		}
		if err := tx.Catalog().UserExists(ctx, req.ActorID); err != nil {
			return fatal("load user", err)
		}
		rows, err := tx.Seats().LockRows(ctx, req.TheaterID, ids)
		if err != nil {
			return fatal("lock seat rows", err)
		}
		seats := make(map[uint64]model.Seat, len(rows))
		for _, s := range rows {
			seats[s.ID] = s
		}

		var ref *string
		if req.PaymentReference != "" {
			r := req.PaymentReference
			ref = &r
		}
		now := bc.clock.Now()
		for _, id := range ids {
			seat, ok := seats[id]
			switch {
			case !ok:
				res.Missing = append(res.Missing, id)
				continue
			case seat.IsBookedBy(req.ActorID):
				res.AlreadyBooked = append(res.AlreadyBooked, id)
			case seat.Status == model.SeatBooked:
				res.Contested = append(res.Contested, id)
				continue
			default:
				if err := tx.Seats().MarkBooked(ctx, id, req.ActorID); err != nil {
					return fatal("mark seat booked", err)
				}
				res.Booked = append(res.Booked, id)
			}

			exists, err := tx.Bookings().ExistsForSeat(ctx, id, req.TheaterID)
			if err != nil {
				return fatal("check booking", err)
			}
			if exists {
				continue
			}
			b := &model.Booking{
				UserID:           req.ActorID,
				MovieID:          theater.MovieID,
				TheaterID:        req.TheaterID,
				SeatID:           id,
				BookedAt:         now,
				PaymentReference: ref,
			}
			if err := tx.Bookings().Create(ctx, b); err != nil {
				if errors.Is(err, repository.ErrDuplicate) {
					continue
				}
				return fatal("insert booking", err)
			}
			res.BookingsCreated++
		}

		if bc.notifier != nil {
			notifyCtx := context.WithoutCancel(ctx)
			tx.OnCommit(func() {
				bc.notifier.Notify(notifyCtx, req.ActorID, req.TheaterID, ids, req.PaymentReference)
			})
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrFatalTransaction) {
			err = fatal("confirm booking", err)
		}
		bc.log.Error("booking confirmation rolled back",
			zap.Uint64("theater_id", req.TheaterID), zap.Uint64("actor_id", req.ActorID),
			zap.Uint64s("seat_ids", ids), zap.String("payment_ref", req.PaymentReference), zap.Error(err))
		return nil, err
	}

	bc.metrics.SeatConfirmations("booked", len(res.Booked))
	bc.metrics.SeatConfirmations("already_booked", len(res.AlreadyBooked))
	bc.metrics.SeatConfirmations("contested", len(res.Contested))
	bc.metrics.SeatConfirmations("missing", len(res.Missing))
	if len(res.Contested) > 0 || len(res.Missing) > 0 {
		bc.log.Warn("booking confirmed with skipped seats",
			zap.Uint64("theater_id", req.TheaterID), zap.Uint64("actor_id", req.ActorID),
			zap.Uint64s("contested", res.Contested), zap.Uint64s("missing", res.Missing))
	}
	return res, nil
}

// ConfirmFromCheckout confirms the seats carried by a paid checkout session.
// It is the fallback used when the buyer returns before the webhook arrived.
func (bc *BookingCoordinator) ConfirmFromCheckout(ctx context.Context, sess payment.CheckoutSession) (*ConfirmResult, error) {
	if !sess.Paid {
		return nil, ErrPaymentPending
	}
	return bc.ConfirmBooking(ctx, ConfirmRequest{
		PaymentReference: sess.PaymentReference,
		TheaterID:        sess.TheaterID,
		ActorID:          sess.ActorID,
		SeatIDs:          sess.SeatIDs,
	})
}
