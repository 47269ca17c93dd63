package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-seat-booking/internal/model"
	"github.com/iliyamo/cinema-seat-booking/internal/repository"
)

func seeded(t *testing.T) (*Store, []uint64) {
	t.Helper()
	s := New()
	s.AddTheater(model.Theater{ID: 1, Name: "Hall A", MovieID: 7})
	s.AddUser(model.User{ID: 10, Email: "a@example.com", IsActive: true})
	s.AddUser(model.User{ID: 20, Email: "b@example.com", IsActive: true})
	return s, s.AddSeats(1, "A1", "A2", "A3")
}

func TestLockRowsNoWaitFailsWhileHeld(t *testing.T) {
	s, ids := seeded(t)
	ctx := context.Background()

	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = s.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			_, err := tx.Seats().LockRowsNoWait(ctx, 1, ids[:1])
			close(held)
			if err != nil {
				return err
			}
			<-done
			return nil
		})
	}()
	<-held

	err := s.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		_, err := tx.Seats().LockRowsNoWait(ctx, 1, ids)
		return err
	})
	assert.ErrorIs(t, err, repository.ErrLockNotAvailable)
	close(done)
}

func TestLockRowsWaitsForCommit(t *testing.T) {
	s, ids := seeded(t)
	ctx := context.Background()

	held := make(chan struct{})
	finish := make(chan struct{})
	first := make(chan error, 1)
	go func() {
		first <- s.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			if _, err := tx.Seats().LockRows(ctx, 1, ids[:1]); err != nil {
				return err
			}
			close(held)
			<-finish
			return tx.Seats().MarkBooked(ctx, ids[0], 10)
		})
	}()
	<-held

	seen := make(chan model.Seat, 1)
	go func() {
		_ = s.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			rows, err := tx.Seats().LockRows(ctx, 1, ids[:1])
			if err == nil && len(rows) == 1 {
				seen <- rows[0]
			}
			return err
		})
	}()

	select {
	case <-seen:
		t.Fatal("second transaction did not wait for the row lock")
	case <-time.After(50 * time.Millisecond):
	}
	close(finish)
	require.NoError(t, <-first)
	got := <-seen
	assert.Equal(t, model.SeatBooked, got.Status)
	assert.True(t, got.IsBookedBy(10))
}

func TestLockRowsHonoursContext(t *testing.T) {
	s, ids := seeded(t)
	held := make(chan struct{})
	finish := make(chan struct{})
	go func() {
		_ = s.WithTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
			_, _ = tx.Seats().LockRows(ctx, 1, ids)
			close(held)
			<-finish
			return nil
		})
	}()
	<-held
	defer close(finish)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		_, err := tx.Seats().LockRows(ctx, 1, ids)
		return err
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRollbackDiscardsWritesAndHooks(t *testing.T) {
	s, ids := seeded(t)
	ctx := context.Background()
	boom := errors.New("boom")
	hookRan := false

	err := s.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		n, err := tx.Seats().MarkLocked(ctx, ids, 10, time.Now())
		require.NoError(t, err)
		require.EqualValues(t, 3, n)
		require.NoError(t, tx.Bookings().Create(ctx, &model.Booking{UserID: 10, TheaterID: 1, SeatID: ids[0]}))
		tx.OnCommit(func() { hookRan = true })
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.False(t, hookRan)
	assert.Empty(t, s.AllBookings())
	for _, id := range ids {
		st, _ := s.SeatByID(id)
		assert.Equal(t, model.SeatAvailable, st.Status)
	}
}

func TestCommitAppliesWritesThenRunsHooks(t *testing.T) {
	s, ids := seeded(t)
	ctx := context.Background()
	var seenInHook model.Seat

	err := s.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.Seats().MarkLocked(ctx, ids[:1], 10, time.Now()); err != nil {
			return err
		}
		tx.OnCommit(func() { seenInHook, _ = s.SeatByID(ids[0]) })
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, model.SeatLocked, seenInHook.Status)
	assert.True(t, seenInHook.IsLockedBy(10))
}

func TestDuplicateBookingRejected(t *testing.T) {
	s, ids := seeded(t)
	ctx := context.Background()
	create := func() error {
		return s.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			return tx.Bookings().Create(ctx, &model.Booking{UserID: 10, TheaterID: 1, SeatID: ids[0]})
		})
	}
	require.NoError(t, create())
	assert.ErrorIs(t, create(), repository.ErrDuplicate)
	n, err := s.Bookings().CountBySeat(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// A key conflict found at commit leaves no seat write behind.
func TestCommitConflictAppliesNothing(t *testing.T) {
	s, ids := seeded(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.Seats().LockRows(ctx, 1, ids[:1]); err != nil {
			return err
		}
		if err := tx.Seats().MarkBooked(ctx, ids[0], 10); err != nil {
			return err
		}
		if err := tx.Bookings().Create(ctx, &model.Booking{UserID: 10, TheaterID: 1, SeatID: ids[0]}); err != nil {
			return err
		}
		// a row committed behind the key lock's back
		s.mu.Lock()
		s.bookingKeys[bookingKey{ids[0], 1}] = 999
		s.mu.Unlock()
		return nil
	})
	require.ErrorIs(t, err, repository.ErrDuplicate)
	st, _ := s.SeatByID(ids[0])
	assert.Equal(t, model.SeatAvailable, st.Status)
	assert.Nil(t, st.BookedBy)
	assert.Empty(t, s.AllBookings())
}

func TestExpireBeforeOnlyTouchesStaleLocks(t *testing.T) {
	s, ids := seeded(t)
	ctx := context.Background()
	old := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	fresh := old.Add(10 * time.Minute)

	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.Seats().MarkLocked(ctx, ids[:1], 10, old); err != nil {
			return err
		}
		if _, err := tx.Seats().MarkLocked(ctx, ids[1:2], 20, fresh); err != nil {
			return err
		}
		return tx.Seats().MarkBooked(ctx, ids[2], 20)
	}))

	n, err := s.Seats().ExpireBefore(ctx, old.Add(5*time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	a, _ := s.SeatByID(ids[0])
	b, _ := s.SeatByID(ids[1])
	c, _ := s.SeatByID(ids[2])
	assert.Equal(t, model.SeatAvailable, a.Status)
	assert.Nil(t, a.LockedBy)
	assert.Nil(t, a.LockedAt)
	assert.Equal(t, model.SeatLocked, b.Status)
	assert.Equal(t, model.SeatBooked, c.Status)
}

func TestInsertIfAbsent(t *testing.T) {
	s := New()
	ctx := context.Background()
	isNew, err := s.PaymentEvents().InsertIfAbsent(ctx, &model.ProcessedPaymentEvent{EventID: "evt_1", EventType: "checkout.session.completed"})
	require.NoError(t, err)
	assert.True(t, isNew)
	isNew, err = s.PaymentEvents().InsertIfAbsent(ctx, &model.ProcessedPaymentEvent{EventID: "evt_1"})
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, 1, s.PaymentEventCount())
}
