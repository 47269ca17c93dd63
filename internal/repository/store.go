package repository

import (
	"context"
	"time"

	"github.com/iliyamo/cinema-seat-booking/internal/model"
)

// SeatRepository exposes the single-statement seat operations.  Each method
// is atomic on its own and does not need an enclosing transaction.
type SeatRepository interface {
	// ListByTheater returns the status projection of every seat of a theater.
	ListByTheater(ctx context.Context, theaterID uint64) ([]model.SeatStatusView, error)
	// ListLockedBy returns the seats of a theater currently locked by userID.
	ListLockedBy(ctx context.Context, theaterID, userID uint64) ([]model.Seat, error)
	// ListBookedBy returns the seats of a theater booked by userID.
	ListBookedBy(ctx context.Context, theaterID, userID uint64) ([]model.Seat, error)
	// ReleaseByUser moves every seat locked by userID in the theater back to
	// available and returns the number of seats released.
	ReleaseByUser(ctx context.Context, theaterID, userID uint64) (int64, error)
	// Renew refreshes locked_at on seats locked by userID.  An empty seatIDs
	// renews all of the user's locks in the theater.
	Renew(ctx context.Context, theaterID, userID uint64, seatIDs []uint64, now time.Time) (int64, error)
	// ExpireBefore releases every lock taken before cutoff, system wide.
	ExpireBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SeatTxRepository exposes the seat operations that only make sense inside
// a transaction.
type SeatTxRepository interface {
	// LockRowsNoWait row-locks the requested seats of a theater and returns
	// them.  It fails with ErrLockNotAvailable instead of waiting when any row
	// is held by another transaction.  Seats not found are simply absent.
	LockRowsNoWait(ctx context.Context, theaterID uint64, seatIDs []uint64) ([]model.Seat, error)
	// LockRows is the blocking variant used by booking confirmation.
	LockRows(ctx context.Context, theaterID uint64, seatIDs []uint64) ([]model.Seat, error)
	// MarkLocked moves available seats, and seats userID already holds, to
	// locked with a fresh locked_at.  It returns the affected count.
	MarkLocked(ctx context.Context, seatIDs []uint64, userID uint64, now time.Time) (int64, error)
	// MarkBooked moves a seat to booked, owned by userID.
	MarkBooked(ctx context.Context, seatID, userID uint64) error
}

// BookingRepository exposes booking reads and the notification flag.
type BookingRepository interface {
	// ListPendingNotification returns the bookings of the given seats that
	// belong to userID and have not been notified yet.
	ListPendingNotification(ctx context.Context, theaterID, userID uint64, seatIDs []uint64) ([]model.Booking, error)
	// MarkNotified flips notification_sent on the given bookings.
	MarkNotified(ctx context.Context, bookingIDs []uint64) (int64, error)
	// CountBySeat returns how many bookings reference a seat.
	CountBySeat(ctx context.Context, seatID uint64) (int, error)
}

// BookingTxRepository is the write side of bookings, transaction scoped.
type BookingTxRepository interface {
	// ExistsForSeat reports whether a booking already exists for the seat.
	ExistsForSeat(ctx context.Context, seatID, theaterID uint64) (bool, error)
	// Create inserts a booking and fills its ID.  A second booking for the
	// same seat fails with ErrDuplicate.
	Create(ctx context.Context, b *model.Booking) error
}

// CatalogTxRepository reads the collaborators a booking must reference.
type CatalogTxRepository interface {
	// Theater returns the theater or ErrTheaterNotFound.
	Theater(ctx context.Context, theaterID uint64) (model.Theater, error)
	// UserExists returns ErrUserNotFound when the user does not exist.
	UserExists(ctx context.Context, userID uint64) error
}

// CatalogRepository is the non-transactional catalog read side.
type CatalogRepository interface {
	Theater(ctx context.Context, theaterID uint64) (model.Theater, error)
}

// PaymentEventRepository is the storage of the payment event ledger.
type PaymentEventRepository interface {
	// InsertIfAbsent inserts the event and reports whether it was new.  The
	// check and the insert are one statement guarded by the unique key.
	InsertIfAbsent(ctx context.Context, ev *model.ProcessedPaymentEvent) (bool, error)
}

// UserRepository is used by authentication and operator tooling.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (model.User, error)
	// Create inserts u and sets u.ID.  A taken email yields ErrDuplicate.
	Create(ctx context.Context, u *model.User) error
}

// Tx is a unit of work.  Hooks registered with OnCommit run after a
// successful commit, in registration order, and are dropped on rollback.
type Tx interface {
	Seats() SeatTxRepository
	Bookings() BookingTxRepository
	Catalog() CatalogTxRepository
	OnCommit(fn func())
}

// Store is the entry point to the seat store.
type Store interface {
	Seats() SeatRepository
	Bookings() BookingRepository
	PaymentEvents() PaymentEventRepository
	Catalog() CatalogRepository
	Users() UserRepository
	// WithTx runs fn in a transaction.  fn returning an error rolls back.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
