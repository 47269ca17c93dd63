package repository

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/cinema-seat-booking/internal/model"
)

type paymentEventRepo struct {
	ext sqlx.ExtContext
}

// InsertIfAbsent relies on the unique key on event_id: the first insert wins
// and every later one reports a duplicate, so the check and the insert can
// never race.
func (r *paymentEventRepo) InsertIfAbsent(ctx context.Context, ev *model.ProcessedPaymentEvent) (bool, error) {
	const q = `INSERT INTO processed_payment_events (event_id, event_type, processed_at, payload) VALUES (?, ?, ?, ?)`
	res, err := r.ext.ExecContext(ctx, q, ev.EventID, ev.EventType, ev.ProcessedAt.UTC(), ev.Payload)
	if err != nil {
		err = translate(err)
		if errors.Is(err, ErrDuplicate) {
			return false, nil
		}
		return false, err
	}
	if id, idErr := res.LastInsertId(); idErr == nil {
		ev.ID = uint64(id)
	}
	return true, nil
}
