package usecase

import (
	"context"
	"encoding/json"
	"time"

	"FinTrade/internal/domain/errs"
	"FinTrade/internal/domain/models"
	domrepo "FinTrade/internal/domain/repository"
	pkgkafka "FinTrade/pkg/kafka"
	applogger "FinTrade/pkg/logger"
)

// OutcomeHandler consumes realised trade outcomes reported by the terminal.
// Outcomes for tickets managed here close the position; the rest go
// straight to the trade history.
type OutcomeHandler struct {
	topic     string
	lifecycle *LifecycleManager
	history   domrepo.TradeHistory
	metrics   domrepo.Metrics
	l         *applogger.Logger
}

func NewOutcomeHandler(topic string, lifecycle *LifecycleManager, history domrepo.TradeHistory, metrics domrepo.Metrics, l *applogger.Logger) *OutcomeHandler {
	return &OutcomeHandler{
		topic:     topic,
		lifecycle: lifecycle,
		history:   history,
		metrics:   metrics,
		l:         l.Named("outcomes"),
	}
}

func (h *OutcomeHandler) Topic() string { return h.topic }

// incoming message schema: TradeRecord JSON
func (h *OutcomeHandler) Handle(ctx context.Context, b []byte) error {
	var rec models.TradeRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return errs.Wrap(errs.KindInvalidSignal, "outcomes.decode", err)
	}
	if rec.Symbol == "" {
		h.metrics.RecordError(string(errs.KindInvalidSignal))
		return errs.New(errs.KindInvalidSignal, "outcomes.decode", "outcome without symbol")
	}

	if rec.Ticket > 0 {
		if h.lifecycle.WasClosed(rec.Ticket) {
			h.l.Debug("duplicate outcome ignored",
				applogger.String("symbol", rec.Symbol),
				applogger.Int64("ticket", rec.Ticket))
			return nil
		}
		closed, err := h.lifecycle.ObserveClosed(ctx, rec.Ticket, rec.Profit)
		if err != nil {
			return err
		}
		if closed {
			return nil
		}
	}

	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if err := h.history.Append(ctx, rec); err != nil {
		h.metrics.RecordError(string(errs.KindDataUnavailable))
		return errs.Wrap(errs.KindDataUnavailable, "outcomes.append", err).WithSymbol(rec.Symbol)
	}
	h.l.Info("external outcome recorded",
		applogger.String("symbol", rec.Symbol),
		applogger.Int64("ticket", rec.Ticket),
		applogger.Float64("profit", rec.Profit))
	return nil
}

var _ pkgkafka.MessageHandler = (*OutcomeHandler)(nil)
