package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/cinema-seat-booking/internal/clock"
	"github.com/iliyamo/cinema-seat-booking/internal/model"
	"github.com/iliyamo/cinema-seat-booking/internal/repository/memory"
)

const (
	theaterT = uint64(1)
	movieM   = uint64(7)
	userU1   = uint64(10)
	userU2   = uint64(20)
	testTTL  = 5 * time.Minute
)

var t0 = time.Date(2024, 5, 1, 19, 0, 0, 0, time.UTC)

type fixture struct {
	store      *memory.Store
	clock      *clock.Manual
	seats      map[string]uint64
	dispatcher *recordingDispatcher
	locks      *LockManager
	bookings   *BookingCoordinator
	ledger     *Ledger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := memory.New()
	s.AddTheater(model.Theater{ID: theaterT, Name: "Hall 1", MovieID: movieM, MovieName: "Arrival"})
	s.AddUser(model.User{ID: userU1, Email: "u1@example.com", IsActive: true})
	s.AddUser(model.User{ID: userU2, Email: "u2@example.com", IsActive: true})
	ids := s.AddSeats(theaterT, "A1", "A2", "A3", "A4")

	clk := clock.NewManual(t0)
	d := &recordingDispatcher{}
	f := &fixture{
		store:      s,
		clock:      clk,
		seats:      map[string]uint64{"A1": ids[0], "A2": ids[1], "A3": ids[2], "A4": ids[3]},
		dispatcher: d,
	}
	f.locks = NewLockManager(s, clk, testTTL, nil)
	f.bookings = NewBookingCoordinator(s, clk, NewNotifier(s.Bookings(), d, nil), nil)
	f.ledger = NewLedger(s.PaymentEvents(), clk, nil)
	return f
}

func (f *fixture) ids(numbers ...string) []uint64 {
	out := make([]uint64, len(numbers))
	for i, n := range numbers {
		out[i] = f.seats[n]
	}
	return out
}

func (f *fixture) seat(t *testing.T, number string) model.Seat {
	t.Helper()
	s, ok := f.store.SeatByID(f.seats[number])
	if !ok {
		t.Fatalf("seat %s not found", number)
	}
	return s
}

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []Notification
}

func (d *recordingDispatcher) Send(_ context.Context, n Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, n)
	return nil
}

func (d *recordingDispatcher) Sent() []Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Notification(nil), d.sent...)
}
