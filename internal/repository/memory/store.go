// Package memory is an in-process implementation of repository.Store.  It
// mirrors the guarantees the booking core expects from MySQL: row locks
// with blocking and NOWAIT acquisition, writes staged until commit, a unique
// key on (seat, theater) for bookings and on event id for the ledger, and
// post-commit hooks that never fire after a rollback.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/cinema-seat-booking/internal/model"
	"github.com/iliyamo/cinema-seat-booking/internal/repository"
)

type bookingKey struct {
	seatID    uint64
	theaterID uint64
}

type seatRow struct {
	seat   model.Seat
	holder *tx
}

// Store keeps every table in maps guarded by one mutex.  Row ownership is
// tracked per seat so that concurrent transactions contend the same way they
// would on InnoDB row locks.
type Store struct {
	mu   sync.Mutex
	cond *sync.Cond

	seats       map[uint64]*seatRow
	bookings    map[uint64]model.Booking
	bookingKeys map[bookingKey]uint64
	pendingKeys map[bookingKey]*tx
	events      map[string]model.ProcessedPaymentEvent
	theaters    map[uint64]model.Theater
	users       map[uint64]model.User

	nextSeatID    uint64
	nextBookingID uint64
	nextEventID   uint64

	failInsert map[uint64]error
}

var _ repository.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	s := &Store{
		seats:       map[uint64]*seatRow{},
		bookings:    map[uint64]model.Booking{},
		bookingKeys: map[bookingKey]uint64{},
		pendingKeys: map[bookingKey]*tx{},
		events:      map[string]model.ProcessedPaymentEvent{},
		theaters:    map[uint64]model.Theater{},
		users:       map[uint64]model.User{},
		failInsert:  map[uint64]error{},
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// AddTheater registers a theater (and implicitly its movie).
func (s *Store) AddTheater(t model.Theater) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.theaters[t.ID] = t
}

// AddUser registers a user.
func (s *Store) AddUser(u model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	s.users[u.ID] = u
}

// AddSeats creates available seats for a theater and returns their ids in
// the order of numbers.
func (s *Store) AddSeats(theaterID uint64, numbers ...string) []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uint64, 0, len(numbers))
	for _, n := range numbers {
		s.nextSeatID++
		id := s.nextSeatID
		s.seats[id] = &seatRow{seat: model.Seat{ID: id, TheaterID: theaterID, SeatNumber: n, Status: model.SeatAvailable}}
		ids = append(ids, id)
	}
	return ids
}

// SeatByID returns the committed state of a seat.
func (s *Store) SeatByID(id uint64) (model.Seat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.seats[id]
	if !ok {
		return model.Seat{}, false
	}
	return row.seat, true
}

// AllBookings returns every committed booking ordered by id.
func (s *Store) AllBookings() []model.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Booking, 0, len(s.bookings))
	for _, b := range s.bookings {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PaymentEventCount returns the number of ledger rows.
func (s *Store) PaymentEventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// FailBookingInsert makes the next booking insert for seatID fail with err.
func (s *Store) FailBookingInsert(seatID uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failInsert[seatID] = err
}

func (s *Store) Seats() repository.SeatRepository                 { return seatView{s} }
func (s *Store) Bookings() repository.BookingRepository           { return bookingView{s} }
func (s *Store) PaymentEvents() repository.PaymentEventRepository { return eventView{s} }
func (s *Store) Catalog() repository.CatalogRepository            { return catalogView{s} }
func (s *Store) Users() repository.UserRepository                 { return userView{s} }

// WithTx runs fn in a unit of work.  Staged writes become visible and hooks
// run only when fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	t := &tx{s: s, staged: map[uint64]model.Seat{}}
	if err := fn(ctx, t); err != nil {
		t.rollback()
		return err
	}
	if err := t.commit(); err != nil {
		return err
	}
	for _, hook := range t.hooks {
		hook()
	}
	return nil
}

// waitLocked blocks on the condition variable until ready returns true or
// ctx is done.  s.mu must be held.
func (s *Store) waitLocked(ctx context.Context, ready func() bool) error {
	if ready() {
		return nil
	}
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()
	for !ready() {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.cond.Wait()
	}
	return nil
}

// heldByOther reports whether any of rows is locked by a transaction other
// than self.  s.mu must be held.
func (s *Store) heldByOther(rows []*seatRow, self *tx) bool {
	for _, r := range rows {
		if r.holder != nil && r.holder != self {
			return true
		}
	}
	return false
}

// ---- autocommit seat statements ----

type seatView struct{ s *Store }

func (v seatView) ListByTheater(_ context.Context, theaterID uint64) ([]model.SeatStatusView, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	out := []model.SeatStatusView{}
	for _, r := range v.s.sortedSeats() {
		if r.seat.TheaterID == theaterID {
			out = append(out, model.SeatStatusView{SeatID: r.seat.ID, SeatNumber: r.seat.SeatNumber, Status: r.seat.Status})
		}
	}
	return out, nil
}

func (v seatView) ListLockedBy(_ context.Context, theaterID, userID uint64) ([]model.Seat, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	out := []model.Seat{}
	for _, r := range v.s.sortedSeats() {
		if r.seat.TheaterID == theaterID && r.seat.IsLockedBy(userID) {
			out = append(out, r.seat)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LockedAt.Before(*out[j].LockedAt) })
	return out, nil
}

func (v seatView) ListBookedBy(_ context.Context, theaterID, userID uint64) ([]model.Seat, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	out := []model.Seat{}
	for _, r := range v.s.sortedSeats() {
		if r.seat.TheaterID == theaterID && r.seat.IsBookedBy(userID) {
			out = append(out, r.seat)
		}
	}
	return out, nil
}

func (v seatView) ReleaseByUser(ctx context.Context, theaterID, userID uint64) (int64, error) {
	return v.s.update(ctx, func(st model.Seat) bool {
		return st.TheaterID == theaterID && st.IsLockedBy(userID)
	}, release)
}

func (v seatView) Renew(ctx context.Context, theaterID, userID uint64, seatIDs []uint64, now time.Time) (int64, error) {
	wanted := idSet(seatIDs)
	at := now.UTC()
	return v.s.update(ctx, func(st model.Seat) bool {
		if st.TheaterID != theaterID || !st.IsLockedBy(userID) {
			return false
		}
		if len(wanted) == 0 {
			return true
		}
		_, ok := wanted[st.ID]
		return ok
	}, func(st *model.Seat) { st.LockedAt = &at })
}

func (v seatView) ExpireBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return v.s.update(ctx, func(st model.Seat) bool {
		return st.Status == model.SeatLocked && st.LockedAt != nil && st.LockedAt.Before(cutoff)
	}, release)
}

// update applies mutate to every committed seat matching pred, waiting for
// row locks held by open transactions the way an InnoDB UPDATE would.
func (s *Store) update(ctx context.Context, pred func(model.Seat) bool, mutate func(*model.Seat)) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []*seatRow
	err := s.waitLocked(ctx, func() bool {
		matched = matched[:0]
		for _, r := range s.seats {
			if pred(r.seat) {
				matched = append(matched, r)
			}
		}
		return !s.heldByOther(matched, nil)
	})
	if err != nil {
		return 0, err
	}
	for _, r := range matched {
		mutate(&r.seat)
	}
	return int64(len(matched)), nil
}

func (s *Store) sortedSeats() []*seatRow {
	rows := make([]*seatRow, 0, len(s.seats))
	for _, r := range s.seats {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seat.ID < rows[j].seat.ID })
	return rows
}

func release(st *model.Seat) {
	st.Status = model.SeatAvailable
	st.LockedAt = nil
	st.LockedBy = nil
}

func idSet(ids []uint64) map[uint64]struct{} {
	m := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}

// ---- bookings, ledger, catalog, users ----

type bookingView struct{ s *Store }

func (v bookingView) ListPendingNotification(_ context.Context, theaterID, userID uint64, seatIDs []uint64) ([]model.Booking, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	wanted := idSet(seatIDs)
	out := []model.Booking{}
	for _, b := range v.s.bookings {
		if _, ok := wanted[b.SeatID]; ok && b.TheaterID == theaterID && b.UserID == userID && !b.NotificationSent {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SeatID < out[j].SeatID })
	return out, nil
}

func (v bookingView) MarkNotified(_ context.Context, bookingIDs []uint64) (int64, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var n int64
	for _, id := range bookingIDs {
		if b, ok := v.s.bookings[id]; ok {
			b.NotificationSent = true
			v.s.bookings[id] = b
			n++
		}
	}
	return n, nil
}

func (v bookingView) CountBySeat(_ context.Context, seatID uint64) (int, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	n := 0
	for _, b := range v.s.bookings {
		if b.SeatID == seatID {
			n++
		}
	}
	return n, nil
}

type eventView struct{ s *Store }

func (v eventView) InsertIfAbsent(_ context.Context, ev *model.ProcessedPaymentEvent) (bool, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if _, ok := v.s.events[ev.EventID]; ok {
		return false, nil
	}
	v.s.nextEventID++
	ev.ID = v.s.nextEventID
	v.s.events[ev.EventID] = *ev
	return true, nil
}

type catalogView struct{ s *Store }

func (v catalogView) Theater(_ context.Context, theaterID uint64) (model.Theater, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	t, ok := v.s.theaters[theaterID]
	if !ok {
		return model.Theater{}, repository.ErrTheaterNotFound
	}
	return t, nil
}

type userView struct{ s *Store }

func (v userView) GetByEmail(_ context.Context, email string) (model.User, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range v.s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, repository.ErrUserNotFound
}

func (v userView) Create(_ context.Context, u *model.User) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	var maxID uint64
	for id, existing := range v.s.users {
		if existing.Email == u.Email {
			return repository.ErrDuplicate
		}
		maxID = max(maxID, id)
	}
	u.ID = maxID + 1
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	v.s.users[u.ID] = *u
	return nil
}

var errTxDone = errors.New("memory: transaction already finished")
