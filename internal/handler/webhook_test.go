package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-seat-booking/internal/model"
	"github.com/iliyamo/cinema-seat-booking/internal/payment"
	"github.com/iliyamo/cinema-seat-booking/internal/repository"
	"github.com/iliyamo/cinema-seat-booking/internal/utils"
)

func TestWebhookNotConfigured(t *testing.T) {
	v := newEnv(t)
	v.gateway.On("Configured").Return(false)
	rec := v.do(t, http.MethodPost, "/v1/webhooks/payment", 0, `{}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	v.gateway.AssertNotCalled(t, "VerifyEvent", mock.Anything, mock.Anything)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	v := newEnv(t)
	v.gateway.On("Configured").Return(true)
	v.gateway.On("VerifyEvent", mock.Anything, mock.Anything).Return(payment.Event{}, payment.ErrInvalidSignature)

	rec := v.do(t, http.MethodPost, "/v1/webhooks/payment", 0, `{"id":"evt_forged"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, v.store.PaymentEventCount())
}

func TestWebhookRejectsMalformedPayload(t *testing.T) {
	v := newEnv(t)
	v.gateway.On("Configured").Return(true)
	v.gateway.On("VerifyEvent", mock.Anything, mock.Anything).Return(payment.Event{}, payment.ErrMalformedEvent)

	rec := v.do(t, http.MethodPost, "/v1/webhooks/payment", 0, `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, v.store.PaymentEventCount())
}

// A checkout completion delivered twice books each seat once and notifies
// once.
func TestWebhookDuplicateDelivery(t *testing.T) {
	v := newEnv(t)
	require.Equal(t, http.StatusCreated, v.do(t, http.MethodPost, "/v1/theaters/3/locks", buyer1, v.seatBody("A1", "A2")).Code)

	ev := payment.Event{
		ID:      "evt_1",
		Type:    payment.EventCheckoutCompleted,
		Payload: []byte(`{"id":"evt_1"}`),
		Session: &payment.CheckoutSession{
			ID: "cs_1", Paid: true, PaymentReference: "pi_1",
			TheaterID: theaterID, ActorID: buyer1,
			SeatIDs: []uint64{v.ids["A1"], v.ids["A2"]},
		},
	}
	v.gateway.On("Configured").Return(true)
	v.gateway.On("VerifyEvent", []byte(`{"id":"evt_1"}`), "t=1,v1=abc").Return(ev, nil)

	for i := 0; i < 2; i++ {
		rec := v.doSigned(t, `{"id":"evt_1"}`, "t=1,v1=abc")
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	assert.Equal(t, 1, v.store.PaymentEventCount())
	bookings := v.store.AllBookings()
	require.Len(t, bookings, 2)
	for _, b := range bookings {
		require.NotNil(t, b.PaymentReference)
		assert.Equal(t, "pi_1", *b.PaymentReference)
	}
	assert.Equal(t, model.SeatBooked, v.status(t, "A1"))
	assert.Equal(t, model.SeatBooked, v.status(t, "A2"))
	assert.Len(t, v.sent.sent, 1)
}

func TestWebhookIgnoresOtherEvents(t *testing.T) {
	v := newEnv(t)
	v.gateway.On("Configured").Return(true)
	v.gateway.On("VerifyEvent", mock.Anything, mock.Anything).
		Return(payment.Event{ID: "evt_2", Type: "payment_intent.created", Payload: []byte(`{}`)}, nil)

	rec := v.doSigned(t, `{}`, "sig")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, v.store.PaymentEventCount())
	assert.Empty(t, v.store.AllBookings())
}

// Seats taken by someone else are skipped and the sender still gets 200.
func TestWebhookContestedSeatStillSucceeds(t *testing.T) {
	v := newEnv(t)
	v.seats.DemoEnabled = true
	require.Equal(t, http.StatusCreated, v.do(t, http.MethodPost, "/v1/theaters/3/locks", buyer2, v.seatBody("A1")).Code)
	require.Equal(t, http.StatusOK, v.do(t, http.MethodPost, "/v1/theaters/3/confirm", buyer2, "").Code)

	v.gateway.On("Configured").Return(true)
	v.gateway.On("VerifyEvent", mock.Anything, mock.Anything).Return(payment.Event{
		ID: "evt_3", Type: payment.EventCheckoutCompleted, Payload: []byte(`{}`),
		Session: &payment.CheckoutSession{
			Paid: true, PaymentReference: "pi_3", TheaterID: theaterID, ActorID: buyer1,
			SeatIDs: []uint64{v.ids["A1"], v.ids["A3"]},
		},
	}, nil)

	rec := v.doSigned(t, `{}`, "sig")
	assert.Equal(t, http.StatusOK, rec.Code)

	a1, _ := v.store.SeatByID(v.ids["A1"])
	assert.True(t, a1.IsBookedBy(buyer2))
	a3, _ := v.store.SeatByID(v.ids["A3"])
	assert.True(t, a3.IsBookedBy(buyer1))
	assert.Len(t, v.store.AllBookings(), 2)
}

// A failed confirmation after the ledger write is logged, not retried.
func TestWebhookUnknownUserAfterLedger(t *testing.T) {
	v := newEnv(t)
	v.gateway.On("Configured").Return(true)
	v.gateway.On("VerifyEvent", mock.Anything, mock.Anything).Return(payment.Event{
		ID: "evt_4", Type: payment.EventCheckoutCompleted, Payload: []byte(`{}`),
		Session: &payment.CheckoutSession{
			Paid: true, PaymentReference: "pi_4", TheaterID: theaterID, ActorID: 999,
			SeatIDs: []uint64{v.ids["A1"]},
		},
	}, nil)

	rec := v.doSigned(t, `{}`, "sig")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, v.store.PaymentEventCount())
	assert.Equal(t, model.SeatAvailable, v.status(t, "A1"))
	assert.Empty(t, v.store.AllBookings())
}

// holdRows keeps the row locks of the given seats in an open transaction
// until the returned func is called.
func (v *env) holdRows(t *testing.T, numbers ...string) (release func()) {
	t.Helper()
	ids := make([]uint64, len(numbers))
	for i, n := range numbers {
		ids[i] = v.ids[n]
	}
	held := make(chan struct{})
	done := make(chan struct{})
	errc := make(chan error, 1)
	go func() {
		errc <- v.store.WithTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
			if _, err := tx.Seats().LockRows(ctx, theaterID, ids); err != nil {
				return err
			}
			close(held)
			<-done
			return nil
		})
	}()
	select {
	case <-held:
	case err := <-errc:
		t.Fatalf("hold rows: %v", err)
	}
	return func() {
		close(done)
		require.NoError(t, <-errc)
	}
}

// serveAndHangUp sends req, cancels its context after a while and returns
// a channel closed once the handler returned.
func (v *env) serveAndHangUp(req *http.Request, rec *httptest.ResponseRecorder, after time.Duration) <-chan struct{} {
	ctx, cancel := context.WithCancel(req.Context())
	served := make(chan struct{})
	go func() {
		defer close(served)
		v.e.ServeHTTP(rec, req.WithContext(ctx))
	}()
	go func() {
		time.Sleep(after)
		cancel()
	}()
	return served
}

// The sender hanging up while the confirmation waits on a row lock must not
// lose the booking: the event is already in the ledger, so a retry would be
// dropped.
func TestWebhookConfirmsAfterSenderHangsUp(t *testing.T) {
	v := newEnv(t)
	require.Equal(t, http.StatusCreated, v.do(t, http.MethodPost, "/v1/theaters/3/locks", buyer1, v.seatBody("A1")).Code)
	v.gateway.On("Configured").Return(true)
	v.gateway.On("VerifyEvent", mock.Anything, mock.Anything).Return(payment.Event{
		ID: "evt_5", Type: payment.EventCheckoutCompleted, Payload: []byte(`{}`),
		Session: &payment.CheckoutSession{
			Paid: true, PaymentReference: "pi_5", TheaterID: theaterID, ActorID: buyer1,
			SeatIDs: []uint64{v.ids["A1"]},
		},
	}, nil)

	release := v.holdRows(t, "A1")
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/payment", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", "sig")
	rec := httptest.NewRecorder()
	served := v.serveAndHangUp(req, rec, 50*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	release()
	select {
	case <-served:
	case <-time.After(2 * time.Second):
		t.Fatal("webhook did not return")
	}

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, v.store.PaymentEventCount())
	assert.Equal(t, model.SeatBooked, v.status(t, "A1"))
	assert.Len(t, v.store.AllBookings(), 1)

	// redelivery is a no-op
	assert.Equal(t, http.StatusOK, v.doSigned(t, `{}`, "sig").Code)
	assert.Len(t, v.store.AllBookings(), 1)
}

func TestPaymentSuccessConfirmsAfterBuyerLeaves(t *testing.T) {
	v := newEnv(t)
	require.Equal(t, http.StatusCreated, v.do(t, http.MethodPost, "/v1/theaters/3/locks", buyer1, v.seatBody("A2")).Code)
	v.gateway.On("Configured").Return(true)
	v.gateway.On("RetrieveSession", mock.Anything, "cs_7").Return(payment.CheckoutSession{
		ID: "cs_7", Paid: true, PaymentReference: "pi_7",
		TheaterID: theaterID, ActorID: buyer1, SeatIDs: []uint64{v.ids["A2"]},
	}, nil)

	release := v.holdRows(t, "A2")
	tok, err := utils.NewAccessToken(jwtSecret, buyer1, "CUSTOMER", 15)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/v1/theaters/3/payment/success?session_id=cs_7", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok.Token)
	served := v.serveAndHangUp(req, httptest.NewRecorder(), 50*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	release()
	select {
	case <-served:
	case <-time.After(2 * time.Second):
		t.Fatal("payment success did not return")
	}

	assert.Equal(t, model.SeatBooked, v.status(t, "A2"))
	assert.Len(t, v.store.AllBookings(), 1)
}

// A checkout that completes before the money arrives is not recorded, so
// the later async success event books the seats.
func TestWebhookWaitsForAsyncPayment(t *testing.T) {
	v := newEnv(t)
	require.Equal(t, http.StatusCreated, v.do(t, http.MethodPost, "/v1/theaters/3/locks", buyer1, v.seatBody("A3")).Code)
	sess := payment.CheckoutSession{
		ID: "cs_8", PaymentReference: "cs_8", TheaterID: theaterID, ActorID: buyer1,
		SeatIDs: []uint64{v.ids["A3"]},
	}
	unpaid := payment.Event{ID: "evt_8a", Type: payment.EventCheckoutCompleted, Payload: []byte(`{"id":"evt_8a"}`), Session: &sess}
	paidSess := sess
	paidSess.Paid = true
	paidSess.PaymentReference = "pi_8"
	paid := payment.Event{ID: "evt_8b", Type: payment.EventCheckoutAsyncSucceeded, Payload: []byte(`{"id":"evt_8b"}`), Session: &paidSess}

	v.gateway.On("Configured").Return(true)
	v.gateway.On("VerifyEvent", []byte(`{"id":"evt_8a"}`), "sig").Return(unpaid, nil)
	v.gateway.On("VerifyEvent", []byte(`{"id":"evt_8b"}`), "sig").Return(paid, nil)

	assert.Equal(t, http.StatusOK, v.doSigned(t, `{"id":"evt_8a"}`, "sig").Code)
	assert.Zero(t, v.store.PaymentEventCount())
	assert.Equal(t, model.SeatLocked, v.status(t, "A3"))
	assert.Empty(t, v.store.AllBookings())

	assert.Equal(t, http.StatusOK, v.doSigned(t, `{"id":"evt_8b"}`, "sig").Code)
	assert.Equal(t, 1, v.store.PaymentEventCount())
	assert.Equal(t, model.SeatBooked, v.status(t, "A3"))
	bookings := v.store.AllBookings()
	require.Len(t, bookings, 1)
	require.NotNil(t, bookings[0].PaymentReference)
	assert.Equal(t, "pi_8", *bookings[0].PaymentReference)
}
