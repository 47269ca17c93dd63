package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/iliyamo/cinema-seat-booking/internal/pkg/logger"
	"github.com/iliyamo/cinema-seat-booking/internal/pkg/metrics"
	"github.com/iliyamo/cinema-seat-booking/internal/repository"
)

// Notification is one consolidated booking confirmation.
type Notification struct {
	ActorID          uint64   `json:"user_id"`
	TheaterID        uint64   `json:"theater_id"`
	SeatIDs          []uint64 `json:"seat_ids"`
	BookingIDs       []uint64 `json:"booking_ids"`
	PaymentReference string   `json:"payment_reference"`
}

// Dispatcher delivers booking confirmations to buyers.
type Dispatcher interface {
	Send(ctx context.Context, n Notification) error
}

// Notifier is the post-commit step of a booking.  It only considers
// bookings that were never notified, so a duplicate confirmation of the same
// seats does not produce a second message once the first one went out.
type Notifier struct {
	bookings   repository.BookingRepository
	dispatcher Dispatcher
	metrics    *metrics.Metrics
	log        *zap.Logger
}

func NewNotifier(bookings repository.BookingRepository, d Dispatcher, m *metrics.Metrics) *Notifier {
	if bookings == nil || d == nil {
		panic("nil dependency passed to NewNotifier")
	}
	return &Notifier{bookings: bookings, dispatcher: d, metrics: m, log: logger.With(zap.String("component", "notifier"))}
}

// Notify sends one message for the pending bookings of seatIDs and marks
// them notified.  Failures are logged and never returned: the booking has
// already committed.
func (n *Notifier) Notify(ctx context.Context, actorID, theaterID uint64, seatIDs []uint64, paymentRef string) {
	pending, err := n.bookings.ListPendingNotification(ctx, theaterID, actorID, seatIDs)
	if err != nil {
		n.log.Error("load bookings to notify", zap.Uint64("theater_id", theaterID), zap.Error(err))
		return
	}
	if len(pending) == 0 {
		return
	}
	msg := Notification{ActorID: actorID, TheaterID: theaterID, PaymentReference: paymentRef}
	for _, b := range pending {
		msg.SeatIDs = append(msg.SeatIDs, b.SeatID)
		msg.BookingIDs = append(msg.BookingIDs, b.ID)
	}
	if err := n.dispatcher.Send(ctx, msg); err != nil {
		n.metrics.Notification("failed")
		n.log.Error("send booking notification",
			zap.Uint64("theater_id", theaterID), zap.Uint64("actor_id", actorID),
			zap.String("payment_ref", paymentRef), zap.Error(err))
		return
	}
	n.metrics.Notification("sent")
	if _, err := n.bookings.MarkNotified(ctx, msg.BookingIDs); err != nil {
		n.log.Error("mark bookings notified", zap.Uint64s("booking_ids", msg.BookingIDs), zap.Error(err))
	}
}

// LogDispatcher writes notifications to the log.  It stands in for the
// message broker when none is configured.
type LogDispatcher struct {
	log *zap.Logger
}

func NewLogDispatcher(l *zap.Logger) *LogDispatcher {
	if l == nil {
		l = logger.Get()
	}
	return &LogDispatcher{log: l}
}

func (d *LogDispatcher) Send(_ context.Context, n Notification) error {
	d.log.Info("booking confirmed",
		zap.Uint64("actor_id", n.ActorID), zap.Uint64("theater_id", n.TheaterID),
		zap.Uint64s("seat_ids", n.SeatIDs), zap.String("payment_ref", n.PaymentReference))
	return nil
}
