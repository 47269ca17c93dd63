package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/cinema-seat-booking/internal/model"
)

const seatColumns = `id, theater_id, seat_number, status, locked_at, locked_by, booked_by`

// seatRepo implements both SeatRepository and SeatTxRepository.  When ext is
// the pool every statement autocommits; when it is a transaction the row
// locks taken by the SELECT ... FOR UPDATE variants last until commit.
type seatRepo struct {
	ext sqlx.ExtContext
}

// ListByTheater returns every seat of the theater ordered by id.
func (r *seatRepo) ListByTheater(ctx context.Context, theaterID uint64) ([]model.SeatStatusView, error) {
	const q = `SELECT id, seat_number, status FROM seats WHERE theater_id = ? ORDER BY id`
	out := []model.SeatStatusView{}
	if err := sqlx.SelectContext(ctx, r.ext, &out, q, theaterID); err != nil {
		return nil, err
	}
	return out, nil
}

// ListLockedBy returns the caller's locked seats, oldest lock first.
func (r *seatRepo) ListLockedBy(ctx context.Context, theaterID, userID uint64) ([]model.Seat, error) {
	q := `SELECT ` + seatColumns + ` FROM seats
	      WHERE theater_id = ? AND status = 'locked' AND locked_by = ?
	      ORDER BY locked_at, id`
	out := []model.Seat{}
	if err := sqlx.SelectContext(ctx, r.ext, &out, q, theaterID, userID); err != nil {
		return nil, err
	}
	return out, nil
}

// ListBookedBy returns the seats of the theater booked by the user.
func (r *seatRepo) ListBookedBy(ctx context.Context, theaterID, userID uint64) ([]model.Seat, error) {
	q := `SELECT ` + seatColumns + ` FROM seats
	      WHERE theater_id = ? AND status = 'booked' AND booked_by = ?
	      ORDER BY id`
	out := []model.Seat{}
	if err := sqlx.SelectContext(ctx, r.ext, &out, q, theaterID, userID); err != nil {
		return nil, err
	}
	return out, nil
}

// ReleaseByUser clears every lock owned by userID in the theater.
func (r *seatRepo) ReleaseByUser(ctx context.Context, theaterID, userID uint64) (int64, error) {
	const q = `UPDATE seats SET status = 'available', locked_at = NULL, locked_by = NULL
	           WHERE theater_id = ? AND status = 'locked' AND locked_by = ?`
	res, err := r.ext.ExecContext(ctx, q, theaterID, userID)
	if err != nil {
		return 0, translate(err)
	}
	return res.RowsAffected()
}

// Renew refreshes locked_at on the caller's own locks only.
func (r *seatRepo) Renew(ctx context.Context, theaterID, userID uint64, seatIDs []uint64, now time.Time) (int64, error) {
	q := `UPDATE seats SET locked_at = ?
	      WHERE theater_id = ? AND status = 'locked' AND locked_by = ?`
	args := []interface{}{now.UTC(), theaterID, userID}
	if len(seatIDs) > 0 {
		var err error
		q, args, err = inClause(r.ext, q+` AND id IN (?)`, now.UTC(), theaterID, userID, seatIDs)
		if err != nil {
			return 0, err
		}
	}
	res, err := r.ext.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, translate(err)
	}
	return res.RowsAffected()
}

// ExpireBefore is a single predicate-scoped bulk update; the server applies
// it atomically so no explicit row locking is needed.
func (r *seatRepo) ExpireBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `UPDATE seats SET status = 'available', locked_at = NULL, locked_by = NULL
	           WHERE status = 'locked' AND locked_at < ?`
	res, err := r.ext.ExecContext(ctx, q, cutoff.UTC())
	if err != nil {
		return 0, translate(err)
	}
	return res.RowsAffected()
}

// LockRowsNoWait uses FOR UPDATE NOWAIT (MySQL 8) so contention surfaces as
// error 3572 immediately.
func (r *seatRepo) LockRowsNoWait(ctx context.Context, theaterID uint64, seatIDs []uint64) ([]model.Seat, error) {
	return r.lockRows(ctx, theaterID, seatIDs, ` FOR UPDATE NOWAIT`)
}

// LockRows waits for competing transactions to finish.
func (r *seatRepo) LockRows(ctx context.Context, theaterID uint64, seatIDs []uint64) ([]model.Seat, error) {
	return r.lockRows(ctx, theaterID, seatIDs, ` FOR UPDATE`)
}

func (r *seatRepo) lockRows(ctx context.Context, theaterID uint64, seatIDs []uint64, suffix string) ([]model.Seat, error) {
	if len(seatIDs) == 0 {
		return []model.Seat{}, nil
	}
	q, args, err := inClause(r.ext,
		`SELECT `+seatColumns+` FROM seats WHERE theater_id = ? AND id IN (?) ORDER BY id`+suffix,
		theaterID, seatIDs)
	if err != nil {
		return nil, err
	}
	out := []model.Seat{}
	if err := sqlx.SelectContext(ctx, r.ext, &out, q, args...); err != nil {
		return nil, translate(err)
	}
	return out, nil
}

// MarkLocked only touches rows that are available or already locked by the
// same user, so the affected count tells the caller whether every seat was
// taken.  The DSN sets clientFoundRows so a same-second re-lock still counts.
func (r *seatRepo) MarkLocked(ctx context.Context, seatIDs []uint64, userID uint64, now time.Time) (int64, error) {
	if len(seatIDs) == 0 {
		return 0, nil
	}
	q, args, err := inClause(r.ext,
		`UPDATE seats SET status = 'locked', locked_at = ?, locked_by = ?
		 WHERE id IN (?) AND (status = 'available' OR (status = 'locked' AND locked_by = ?))`,
		now.UTC(), userID, seatIDs, userID)
	if err != nil {
		return 0, err
	}
	res, err := r.ext.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, translate(err)
	}
	return res.RowsAffected()
}

// MarkBooked makes the seat terminal and clears the lock columns.
func (r *seatRepo) MarkBooked(ctx context.Context, seatID, userID uint64) error {
	const q = `UPDATE seats SET status = 'booked', booked_by = ?, locked_at = NULL, locked_by = NULL
	           WHERE id = ?`
	_, err := r.ext.ExecContext(ctx, q, userID, seatID)
	return translate(err)
}
