package service

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordIfNew(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.ledger.RecordIfNew(ctx, "evt_1", "checkout.session.completed", []byte("{}"))
	require.NoError(t, err)
	assert.True(t, res.IsNew)

	res, err = f.ledger.RecordIfNew(ctx, "evt_1", "checkout.session.completed", []byte("{}"))
	require.NoError(t, err)
	assert.False(t, res.IsNew)

	_, err = f.ledger.RecordIfNew(ctx, "", "x", nil)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRecordIfNewConcurrentCallersOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var fresh atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.ledger.RecordIfNew(ctx, "evt_race", "checkout.session.completed", nil)
			if assert.NoError(t, err) && res.IsNew {
				fresh.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, fresh.Load())
	assert.Equal(t, 1, f.store.PaymentEventCount())
}

func TestTruncatePayload(t *testing.T) {
	assert.Equal(t, "abc", truncatePayload([]byte("abc"), 5))
	assert.Len(t, truncatePayload([]byte(strings.Repeat("x", 6000)), 5000), 5000)

	// "é" is two bytes; cutting inside it backs off to the rune start
	got := truncatePayload([]byte("aé"), 2)
	assert.Equal(t, "a", got)
}
