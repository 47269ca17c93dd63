package model

import "time"

// Booking records the purchase of one seat.  At most one booking exists per
// (seat, theater); rows are only created by the booking coordinator and only
// updated to flip NotificationSent.
//
// Fields:
//  ID               – primary key identifier.
//  UserID           – buyer.
//  MovieID          – movie shown in the theater at booking time.
//  TheaterID        – screening.
//  SeatID           – booked seat.
//  BookedAt         – creation timestamp.
//  PaymentReference – provider payment reference (nullable).
//  NotificationSent – whether the confirmation was handed to the dispatcher.
type Booking struct {
	ID               uint64    `db:"id"`                // bookings.id
	UserID           uint64    `db:"user_id"`           // bookings.user_id
	MovieID          uint64    `db:"movie_id"`          // bookings.movie_id
	TheaterID        uint64    `db:"theater_id"`        // bookings.theater_id
	SeatID           uint64    `db:"seat_id"`           // bookings.seat_id
	BookedAt         time.Time `db:"booked_at"`         // bookings.booked_at
	PaymentReference *string   `db:"payment_reference"` // bookings.payment_reference (nullable)
	NotificationSent bool      `db:"notification_sent"` // bookings.notification_sent
}
