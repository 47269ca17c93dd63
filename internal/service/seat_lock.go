package service

import (
	"context"
	"errors"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-seat-booking/internal/clock"
	"github.com/iliyamo/cinema-seat-booking/internal/model"
	"github.com/iliyamo/cinema-seat-booking/internal/pkg/logger"
	"github.com/iliyamo/cinema-seat-booking/internal/pkg/metrics"
	"github.com/iliyamo/cinema-seat-booking/internal/repository"
)

// LockManager owns the available -> locked -> available part of the seat
// state machine.  The lock TTL is fixed at construction; nothing here reads
// it from global state.
type LockManager struct {
	store   repository.Store
	clock   clock.Clock
	ttl     time.Duration
	metrics *metrics.Metrics
	log     *zap.Logger
}

// NewLockManager wires a LockManager.  m may be nil.
func NewLockManager(store repository.Store, clk clock.Clock, ttl time.Duration, m *metrics.Metrics) *LockManager {
	if store == nil || clk == nil {
		panic("nil dependency passed to NewLockManager")
	}
	if ttl <= 0 {
		panic("NewLockManager: ttl must be positive")
	}
	return &LockManager{
		store:   store,
		clock:   clk,
		ttl:     ttl,
		metrics: m,
		log:     logger.With(zap.String("component", "lock_manager")),
	}
}

// TTL returns the configured lock duration.
func (lm *LockManager) TTL() time.Duration { return lm.ttl }

// AcquireLocks locks every seat of seatIDs for actorID or none of them.  Row
// locks are taken with NOWAIT: if another transaction is working on one of
// the rows the call fails at once with a *ConflictError instead of queuing
// behind it.  Seats that do not exist in the theater, are booked, or are
// locked by another actor also yield a *ConflictError listing them.  Seats
// the actor already holds are re-locked with a fresh timestamp.
func (lm *LockManager) AcquireLocks(ctx context.Context, theaterID uint64, seatIDs []uint64, actorID uint64) error {
	if theaterID == 0 {
		return invalid("theater_id", "required")
	}
	if actorID == 0 {
		return invalid("actor_id", "required")
	}
	ids := normalizeSeatIDs(seatIDs)
	if len(ids) == 0 {
		return invalid("seat_ids", "at least one seat is required")
	}

	now := lm.clock.Now()
	err := lm.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		rows, err := tx.Seats().LockRowsNoWait(ctx, theaterID, ids)
		if errors.Is(err, repository.ErrLockNotAvailable) {
			return &ConflictError{Unavailable: ids, Err: err}
		}
		if err != nil {
			return fatal("lock seat rows", err)
		}

		byID := lo.KeyBy(rows, func(s model.Seat) uint64 { return s.ID })
		unavailable := lo.Filter(ids, func(id uint64, _ int) bool {
			s, ok := byID[id]
			return !ok || !(s.Status == model.SeatAvailable || s.IsLockedBy(actorID))
		})
		if len(unavailable) > 0 {
			return &ConflictError{Unavailable: unavailable}
		}

		n, err := tx.Seats().MarkLocked(ctx, ids, actorID, now)
		if err != nil {
			return fatal("mark seats locked", err)
		}
		if n != int64(len(ids)) {
			return &ConflictError{Unavailable: ids}
		}
		return nil
	})

	switch {
	case err == nil:
		lm.metrics.LockAttempt("acquired")
		lm.log.Debug("seats locked",
			zap.Uint64("theater_id", theaterID), zap.Uint64("actor_id", actorID), zap.Uint64s("seat_ids", ids))
		return nil
	case errors.Is(err, ErrConflict):
		lm.metrics.LockAttempt("conflict")
		return err
	case errors.Is(err, ErrFatalTransaction):
		lm.metrics.LockAttempt("error")
		return err
	default:
		lm.metrics.LockAttempt("error")
		return fatal("acquire locks", err)
	}
}

// ReleaseLocks frees every seat actorID holds in the theater.  Calling it
// when the actor holds nothing returns zero.
func (lm *LockManager) ReleaseLocks(ctx context.Context, theaterID, actorID uint64) (int64, error) {
	if theaterID == 0 {
		return 0, invalid("theater_id", "required")
	}
	if actorID == 0 {
		return 0, invalid("actor_id", "required")
	}
	n, err := lm.store.Seats().ReleaseByUser(ctx, theaterID, actorID)
	if err != nil {
		return 0, fatal("release locks", err)
	}
	if n > 0 {
		lm.log.Debug("seats released",
			zap.Uint64("theater_id", theaterID), zap.Uint64("actor_id", actorID), zap.Int64("count", n))
	}
	return n, nil
}

// RenewLock moves locked_at to now on seats actorID still holds.  Seats the
// actor does not hold are ignored, so a renewal that lost the race against
// expiry simply renews nothing.  An empty seatIDs renews all of the actor's
// locks in the theater.
func (lm *LockManager) RenewLock(ctx context.Context, theaterID, actorID uint64, seatIDs []uint64) (int64, error) {
	if theaterID == 0 {
		return 0, invalid("theater_id", "required")
	}
	if actorID == 0 {
		return 0, invalid("actor_id", "required")
	}
	n, err := lm.store.Seats().Renew(ctx, theaterID, actorID, normalizeSeatIDs(seatIDs), lm.clock.Now())
	if err != nil {
		return 0, fatal("renew locks", err)
	}
	return n, nil
}

// ExpireLocks releases, system wide, every lock older than ttl at now.  It
// is one bulk statement and can be repeated freely.
func (lm *LockManager) ExpireLocks(ctx context.Context, now time.Time, ttl time.Duration) (int64, error) {
	if ttl <= 0 {
		return 0, invalid("ttl", "must be positive")
	}
	n, err := lm.store.Seats().ExpireBefore(ctx, now.Add(-ttl))
	if err != nil {
		return 0, fatal("expire locks", err)
	}
	return n, nil
}

// Sweep runs ExpireLocks with the current time and the configured TTL.  Read
// paths call it before looking at seats.
func (lm *LockManager) Sweep(ctx context.Context) (int64, error) {
	n, err := lm.ExpireLocks(ctx, lm.clock.Now(), lm.ttl)
	if err != nil {
		return 0, err
	}
	lm.metrics.LocksExpired("opportunistic", n)
	return n, nil
}

// LockedBy returns the seats of the theater actorID currently holds, oldest
// lock first.
func (lm *LockManager) LockedBy(ctx context.Context, theaterID, actorID uint64) ([]model.Seat, error) {
	seats, err := lm.store.Seats().ListLockedBy(ctx, theaterID, actorID)
	if err != nil {
		return nil, fatal("list locked seats", err)
	}
	return seats, nil
}

// BookedBy returns the seats of the theater booked by actorID.
func (lm *LockManager) BookedBy(ctx context.Context, theaterID, actorID uint64) ([]model.Seat, error) {
	seats, err := lm.store.Seats().ListBookedBy(ctx, theaterID, actorID)
	if err != nil {
		return nil, fatal("list booked seats", err)
	}
	return seats, nil
}

// RemainingTTL is the time left before the oldest of seats expires.  It is
// zero when seats is empty or the oldest lock has already run out.
func (lm *LockManager) RemainingTTL(seats []model.Seat) time.Duration {
	var oldest *time.Time
	for i := range seats {
		at := seats[i].LockedAt
		if at != nil && (oldest == nil || at.Before(*oldest)) {
			oldest = at
		}
	}
	if oldest == nil {
		return 0
	}
	left := lm.ttl - lm.clock.Now().Sub(*oldest)
	if left < 0 {
		return 0
	}
	return left
}

// Status returns the seat status projection for polling clients.  It reads
// the store directly.
func (lm *LockManager) Status(ctx context.Context, theaterID uint64) ([]model.SeatStatusView, error) {
	if theaterID == 0 {
		return nil, invalid("theater_id", "required")
	}
	seats, err := lm.store.Seats().ListByTheater(ctx, theaterID)
	if err != nil {
		return nil, fatal("list seats", err)
	}
	return seats, nil
}
