package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/iliyamo/cinema-seat-booking/internal/model"
	"github.com/iliyamo/cinema-seat-booking/internal/repository"
)

type tx struct {
	s        *Store
	staged   map[uint64]model.Seat
	inserted []model.Booking
	keys     []bookingKey
	hooks    []func()
	done     bool
}

func (t *tx) Seats() repository.SeatTxRepository       { return txSeats{t} }
func (t *tx) Bookings() repository.BookingTxRepository { return txBookings{t} }
func (t *tx) Catalog() repository.CatalogTxRepository  { return txCatalog{t} }
func (t *tx) OnCommit(fn func())                       { t.hooks = append(t.hooks, fn) }

// view returns the seat as this transaction sees it.  s.mu must be held.
func (t *tx) view(r *seatRow) model.Seat {
	if st, ok := t.staged[r.seat.ID]; ok {
		return st
	}
	return r.seat
}

// acquire takes the row locks on rows, all or nothing.  Without wait it
// fails with ErrLockNotAvailable as soon as another transaction holds one of
// them.  s.mu must be held.
func (t *tx) acquire(ctx context.Context, rows []*seatRow, wait bool) error {
	if t.done {
		return errTxDone
	}
	if !wait {
		if t.s.heldByOther(rows, t) {
			return repository.ErrLockNotAvailable
		}
	} else if err := t.s.waitLocked(ctx, func() bool { return !t.s.heldByOther(rows, t) }); err != nil {
		return err
	}
	for _, r := range rows {
		r.holder = t
	}
	return nil
}

func (t *tx) rows(theaterID uint64, seatIDs []uint64, anyTheater bool) []*seatRow {
	out := make([]*seatRow, 0, len(seatIDs))
	for id := range idSet(seatIDs) {
		r, ok := t.s.seats[id]
		if !ok || (!anyTheater && r.seat.TheaterID != theaterID) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seat.ID < out[j].seat.ID })
	return out
}

func (t *tx) commit() error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.done {
		return errTxDone
	}
	for _, b := range t.inserted {
		if _, dup := s.bookingKeys[bookingKey{b.SeatID, b.TheaterID}]; dup {
			t.releaseLocked()
			return fmt.Errorf("commit transaction: %w", repository.ErrDuplicate)
		}
	}
	for id, st := range t.staged {
		s.seats[id].seat = st
	}
	for _, b := range t.inserted {
		s.bookingKeys[bookingKey{b.SeatID, b.TheaterID}] = b.ID
		s.bookings[b.ID] = b
	}
	t.releaseLocked()
	return nil
}

func (t *tx) rollback() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.hooks = nil
	t.releaseLocked()
}

// releaseLocked drops every row and key lock of t and wakes waiters.
func (t *tx) releaseLocked() {
	for _, r := range t.s.seats {
		if r.holder == t {
			r.holder = nil
		}
	}
	for _, k := range t.keys {
		if t.s.pendingKeys[k] == t {
			delete(t.s.pendingKeys, k)
		}
	}
	t.done = true
	t.s.cond.Broadcast()
}

type txSeats struct{ t *tx }

func (v txSeats) LockRowsNoWait(ctx context.Context, theaterID uint64, seatIDs []uint64) ([]model.Seat, error) {
	return v.lock(ctx, theaterID, seatIDs, false)
}

func (v txSeats) LockRows(ctx context.Context, theaterID uint64, seatIDs []uint64) ([]model.Seat, error) {
	return v.lock(ctx, theaterID, seatIDs, true)
}

func (v txSeats) lock(ctx context.Context, theaterID uint64, seatIDs []uint64, wait bool) ([]model.Seat, error) {
	s := v.t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := v.t.rows(theaterID, seatIDs, false)
	if err := v.t.acquire(ctx, rows, wait); err != nil {
		return nil, err
	}
	out := make([]model.Seat, 0, len(rows))
	for _, r := range rows {
		out = append(out, v.t.view(r))
	}
	return out, nil
}

func (v txSeats) MarkLocked(ctx context.Context, seatIDs []uint64, userID uint64, now time.Time) (int64, error) {
	s := v.t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := v.t.rows(0, seatIDs, true)
	if err := v.t.acquire(ctx, rows, true); err != nil {
		return 0, err
	}
	at := now.UTC()
	var n int64
	for _, r := range rows {
		st := v.t.view(r)
		if st.Status != model.SeatAvailable && !st.IsLockedBy(userID) {
			continue
		}
		owner := userID
		st.Status = model.SeatLocked
		st.LockedAt = &at
		st.LockedBy = &owner
		v.t.staged[st.ID] = st
		n++
	}
	return n, nil
}

func (v txSeats) MarkBooked(ctx context.Context, seatID, userID uint64) error {
	s := v.t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := v.t.rows(0, []uint64{seatID}, true)
	if err := v.t.acquire(ctx, rows, true); err != nil {
		return err
	}
	for _, r := range rows {
		st := v.t.view(r)
		owner := userID
		st.Status = model.SeatBooked
		st.BookedBy = &owner
		st.LockedAt = nil
		st.LockedBy = nil
		v.t.staged[st.ID] = st
	}
	return nil
}

type txBookings struct{ t *tx }

func (v txBookings) ExistsForSeat(_ context.Context, seatID, theaterID uint64) (bool, error) {
	s := v.t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	key := bookingKey{seatID, theaterID}
	if _, ok := s.bookingKeys[key]; ok {
		return true, nil
	}
	for _, k := range v.t.keys {
		if k == key {
			return true, nil
		}
	}
	return false, nil
}

// Create waits on a key another open transaction is inserting, then fails
// with ErrDuplicate if that transaction committed it.
func (v txBookings) Create(ctx context.Context, b *model.Booking) error {
	s := v.t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.t.done {
		return errTxDone
	}
	if err, ok := s.failInsert[b.SeatID]; ok {
		delete(s.failInsert, b.SeatID)
		return err
	}
	key := bookingKey{b.SeatID, b.TheaterID}
	err := s.waitLocked(ctx, func() bool {
		holder, ok := s.pendingKeys[key]
		return !ok || holder == v.t
	})
	if err != nil {
		return err
	}
	if _, dup := s.bookingKeys[key]; dup {
		return repository.ErrDuplicate
	}
	if s.pendingKeys[key] == v.t {
		return repository.ErrDuplicate
	}
	s.pendingKeys[key] = v.t
	v.t.keys = append(v.t.keys, key)
	s.nextBookingID++
	b.ID = s.nextBookingID
	if b.BookedAt.IsZero() {
		b.BookedAt = time.Now().UTC()
	}
	v.t.inserted = append(v.t.inserted, *b)
	return nil
}

type txCatalog struct{ t *tx }

func (v txCatalog) Theater(ctx context.Context, theaterID uint64) (model.Theater, error) {
	return catalogView{v.t.s}.Theater(ctx, theaterID)
}

func (v txCatalog) UserExists(_ context.Context, userID uint64) error {
	s := v.t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return repository.ErrUserNotFound
	}
	return nil
}
