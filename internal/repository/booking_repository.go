package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/cinema-seat-booking/internal/model"
)

const bookingColumns = `id, user_id, movie_id, theater_id, seat_id, booked_at, payment_reference, notification_sent`

// bookingRepo implements BookingRepository and BookingTxRepository.
type bookingRepo struct {
	ext sqlx.ExtContext
}

// ExistsForSeat checks the (seat_id, theater_id) unique key.
func (r *bookingRepo) ExistsForSeat(ctx context.Context, seatID, theaterID uint64) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, r.ext, &exists,
		`SELECT EXISTS(SELECT 1 FROM bookings WHERE seat_id = ? AND theater_id = ?)`, seatID, theaterID)
	return exists, err
}

// Create inserts a booking.  booked_at is taken from the record so that
// tests with a fixed clock stay deterministic.
func (r *bookingRepo) Create(ctx context.Context, b *model.Booking) error {
	const q = `INSERT INTO bookings (user_id, movie_id, theater_id, seat_id, booked_at, payment_reference, notification_sent)
	           VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := r.ext.ExecContext(ctx, q,
		b.UserID, b.MovieID, b.TheaterID, b.SeatID, b.BookedAt.UTC(), b.PaymentReference, b.NotificationSent)
	if err != nil {
		return translate(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	return nil
}

// ListPendingNotification returns bookings still waiting for a notification.
func (r *bookingRepo) ListPendingNotification(ctx context.Context, theaterID, userID uint64, seatIDs []uint64) ([]model.Booking, error) {
	if len(seatIDs) == 0 {
		return []model.Booking{}, nil
	}
	q, args, err := inClause(r.ext,
		`SELECT `+bookingColumns+` FROM bookings
		 WHERE theater_id = ? AND user_id = ? AND seat_id IN (?) AND notification_sent = FALSE
		 ORDER BY seat_id`,
		theaterID, userID, seatIDs)
	if err != nil {
		return nil, err
	}
	out := []model.Booking{}
	if err := sqlx.SelectContext(ctx, r.ext, &out, q, args...); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkNotified flips notification_sent, the only update bookings ever get.
func (r *bookingRepo) MarkNotified(ctx context.Context, bookingIDs []uint64) (int64, error) {
	if len(bookingIDs) == 0 {
		return 0, nil
	}
	q, args, err := inClause(r.ext, `UPDATE bookings SET notification_sent = TRUE WHERE id IN (?)`, bookingIDs)
	if err != nil {
		return 0, err
	}
	res, err := r.ext.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, translate(err)
	}
	return res.RowsAffected()
}

// CountBySeat is used by integrity checks and tests.
func (r *bookingRepo) CountBySeat(ctx context.Context, seatID uint64) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, r.ext, &n, `SELECT COUNT(*) FROM bookings WHERE seat_id = ?`, seatID)
	return n, err
}
