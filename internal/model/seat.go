package model

import "time"

// SeatStatus is the lifecycle state of a seat for a screening.  The only
// transitions are available -> locked -> booked and locked -> available.
type SeatStatus string

const (
	SeatAvailable SeatStatus = "available"
	SeatLocked    SeatStatus = "locked"
	SeatBooked    SeatStatus = "booked"
)

// Valid reports whether s is one of the known statuses.
func (s SeatStatus) Valid() bool {
	switch s {
	case SeatAvailable, SeatLocked, SeatBooked:
		return true
	}
	return false
}

// Seat describes a seat of a theater (one screening).  Seats are uniquely
// identified by their theater and seat number and are created once when the
// theater is set up.
//
// Fields:
//  ID         – primary key identifier.
//  TheaterID  – screening the seat belongs to.
//  SeatNumber – printed label such as "A1".
//  Status     – available, locked or booked.
//  LockedAt   – when the current lock was taken or last renewed (locked only).
//  LockedBy   – user holding the lock (locked only).
//  BookedBy   – user owning the seat once booked (booked only).
type Seat struct {
	ID         uint64     `db:"id"`          // seats.id
	TheaterID  uint64     `db:"theater_id"`  // seats.theater_id
	SeatNumber string     `db:"seat_number"` // seats.seat_number
	Status     SeatStatus `db:"status"`      // seats.status
	LockedAt   *time.Time `db:"locked_at"`   // seats.locked_at (nullable)
	LockedBy   *uint64    `db:"locked_by"`   // seats.locked_by (nullable)
	BookedBy   *uint64    `db:"booked_by"`   // seats.booked_by (nullable)
}

// IsLockedBy reports whether the seat is currently locked by userID.
func (s Seat) IsLockedBy(userID uint64) bool {
	return s.Status == SeatLocked && s.LockedBy != nil && *s.LockedBy == userID
}

// IsBookedBy reports whether the seat is booked and owned by userID.
func (s Seat) IsBookedBy(userID uint64) bool {
	return s.Status == SeatBooked && s.BookedBy != nil && *s.BookedBy == userID
}

// SeatStatusView is the read-only projection returned to polling clients.
type SeatStatusView struct {
	SeatID     uint64     `json:"id" db:"id"`
	SeatNumber string     `json:"seat_number" db:"seat_number"`
	Status     SeatStatus `json:"status" db:"status"`
}
