package service

import (
	"context"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/iliyamo/cinema-seat-booking/internal/clock"
	"github.com/iliyamo/cinema-seat-booking/internal/model"
	"github.com/iliyamo/cinema-seat-booking/internal/pkg/logger"
	"github.com/iliyamo/cinema-seat-booking/internal/pkg/metrics"
	"github.com/iliyamo/cinema-seat-booking/internal/repository"
)

// RecordResult tells the caller whether it is the first to see an event.
type RecordResult struct {
	IsNew bool
}

// Ledger deduplicates inbound payment events by their external id.
type Ledger struct {
	events  repository.PaymentEventRepository
	clock   clock.Clock
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewLedger(events repository.PaymentEventRepository, clk clock.Clock, m *metrics.Metrics) *Ledger {
	if events == nil || clk == nil {
		panic("nil dependency passed to NewLedger")
	}
	return &Ledger{events: events, clock: clk, metrics: m, log: logger.With(zap.String("component", "ledger"))}
}

// RecordIfNew inserts the event unless its id is already recorded.  The
// check and the insert are one statement, so of several concurrent callers
// with the same id exactly one gets IsNew.  Business logic for the event must
// run only on IsNew.
func (l *Ledger) RecordIfNew(ctx context.Context, eventID, eventType string, payload []byte) (RecordResult, error) {
	if eventID == "" {
		return RecordResult{}, invalid("event_id", "required")
	}
	ev := &model.ProcessedPaymentEvent{
		EventID:     eventID,
		EventType:   eventType,
		ProcessedAt: l.clock.Now(),
		Payload:     truncatePayload(payload, model.MaxPaymentEventPayload),
	}
	isNew, err := l.events.InsertIfAbsent(ctx, ev)
	if err != nil {
		l.metrics.PaymentEvent("error")
		return RecordResult{}, fatal("record payment event", err)
	}
	if !isNew {
		l.metrics.PaymentEvent("duplicate")
		l.log.Info("payment event already processed", zap.String("event_id", eventID))
		return RecordResult{IsNew: false}, nil
	}
	l.metrics.PaymentEvent("new")
	return RecordResult{IsNew: true}, nil
}

// truncatePayload cuts p to at most max bytes without splitting a UTF-8
// sequence.
func truncatePayload(p []byte, max int) string {
	if len(p) <= max {
		return string(p)
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(p[cut]) {
		cut--
	}
	return string(p[:cut])
}
