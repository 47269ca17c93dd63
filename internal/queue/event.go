// Package queue carries booking confirmations over RabbitMQ: the publisher
// is the notification dispatcher used after a booking commits, the consumer
// turns each message into a line of the booking log.
package queue

import (
	"time"

	"github.com/iliyamo/cinema-seat-booking/internal/service"
)

// BookingQueue is the durable queue both sides declare.
const BookingQueue = "booking.confirmed"

// BookingConfirmedEvent is published once per committed confirmation and
// covers every seat booked in that call.
type BookingConfirmedEvent struct {
	UserID           uint64   `json:"user_id"`
	TheaterID        uint64   `json:"theater_id"`
	SeatIDs          []uint64 `json:"seat_ids"`
	BookingIDs       []uint64 `json:"booking_ids"`
	PaymentReference string   `json:"payment_reference"`
	ConfirmedAt      string   `json:"confirmed_at"`
}

// NewBookingConfirmedEvent builds the message for a notification.
func NewBookingConfirmedEvent(n service.Notification, at time.Time) BookingConfirmedEvent {
	return BookingConfirmedEvent{
		UserID:           n.ActorID,
		TheaterID:        n.TheaterID,
		SeatIDs:          n.SeatIDs,
		BookingIDs:       n.BookingIDs,
		PaymentReference: n.PaymentReference,
		ConfirmedAt:      at.UTC().Format(time.RFC3339),
	}
}
