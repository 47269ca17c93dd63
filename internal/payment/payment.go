// Package payment talks to the external payment provider: it opens checkout
// sessions for locked seats, verifies signed webhook events and looks up a
// session when the buyer returns from the provider.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Checkout event types.  A completed checkout books the seats when its
// payment is already captured; delayed methods complete unpaid and book on
// the later async success event.
const (
	EventCheckoutCompleted      = "checkout.session.completed"
	EventCheckoutAsyncSucceeded = "checkout.session.async_payment_succeeded"
)

var (
	// ErrNotConfigured means no provider credentials were supplied.
	ErrNotConfigured = errors.New("payment provider not configured")
	// ErrInvalidSignature means the webhook signature did not verify.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrMalformedEvent means the payload verified but could not be parsed.
	ErrMalformedEvent = errors.New("malformed payment event")
	// ErrMissingMetadata means a session lacks the seat metadata we attach.
	ErrMissingMetadata = errors.New("checkout session metadata incomplete")
)

// Metadata keys attached to every checkout session and echoed back on
// completion.
const (
	MetaTheaterID = "theater_id"
	MetaUserID    = "user_id"
	MetaSeatIDs   = "seat_ids"
)

// CheckoutRequest describes the seats a buyer is about to pay for.
type CheckoutRequest struct {
	ActorID     uint64
	TheaterID   uint64
	Title       string
	SeatIDs     []uint64
	SeatNumbers []string
	SuccessURL  string
	CancelURL   string
}

// CheckoutSession is the provider-neutral view of a checkout session.
type CheckoutSession struct {
	ID               string
	URL              string
	Paid             bool
	PaymentReference string
	TheaterID        uint64
	ActorID          uint64
	SeatIDs          []uint64
}

// Event is a verified webhook event.  Session is set only for the checkout
// event types.
type Event struct {
	ID      string
	Type    string
	Payload []byte
	Session *CheckoutSession
}

// AwaitingPayment reports a checkout event whose session is not paid yet.
func (e Event) AwaitingPayment() bool {
	return e.Session != nil && !e.Session.Paid
}

func isCheckoutEvent(typ string) bool {
	return typ == EventCheckoutCompleted || typ == EventCheckoutAsyncSucceeded
}

// Gateway is the port the handlers use to reach the provider.
type Gateway interface {
	// Configured reports whether credentials are present.
	Configured() bool
	CreateCheckout(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)
	RetrieveSession(ctx context.Context, sessionID string) (CheckoutSession, error)
	// VerifyEvent checks the signature header against the shared secret
	// before decoding anything from payload.
	VerifyEvent(payload []byte, signature string) (Event, error)
}

// EncodeMetadata renders the seat selection as session metadata.
func EncodeMetadata(theaterID, actorID uint64, seatIDs []uint64) map[string]string {
	ids := make([]string, len(seatIDs))
	for i, id := range seatIDs {
		ids[i] = strconv.FormatUint(id, 10)
	}
	return map[string]string{
		MetaTheaterID: strconv.FormatUint(theaterID, 10),
		MetaUserID:    strconv.FormatUint(actorID, 10),
		MetaSeatIDs:   strings.Join(ids, ","),
	}
}

// DecodeMetadata is the inverse of EncodeMetadata.
func DecodeMetadata(md map[string]string) (theaterID, actorID uint64, seatIDs []uint64, err error) {
	if md[MetaTheaterID] == "" || md[MetaUserID] == "" || md[MetaSeatIDs] == "" {
		return 0, 0, nil, ErrMissingMetadata
	}
	if theaterID, err = strconv.ParseUint(md[MetaTheaterID], 10, 64); err != nil {
		return 0, 0, nil, fmt.Errorf("%w: theater_id: %v", ErrMissingMetadata, err)
	}
	if actorID, err = strconv.ParseUint(md[MetaUserID], 10, 64); err != nil {
		return 0, 0, nil, fmt.Errorf("%w: user_id: %v", ErrMissingMetadata, err)
	}
	for _, part := range strings.Split(md[MetaSeatIDs], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, perr := strconv.ParseUint(part, 10, 64)
		if perr != nil {
			return 0, 0, nil, fmt.Errorf("%w: seat_ids: %v", ErrMissingMetadata, perr)
		}
		seatIDs = append(seatIDs, id)
	}
	if len(seatIDs) == 0 {
		return 0, 0, nil, ErrMissingMetadata
	}
	return theaterID, actorID, seatIDs, nil
}
