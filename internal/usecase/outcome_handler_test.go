package usecase

import (
	"context"
	"testing"

	"FinTrade/internal/domain/errs"
	"FinTrade/internal/domain/models"
	applogger "FinTrade/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutcomeHandler(t *testing.T) {
	ctx := context.Background()
	b, h, ev := newFakeBridge(), &memHistory{}, &eventLog{}
	lc := newTestLifecycle(b, h, ev)
	handler := NewOutcomeHandler("fintrade.trade-outcomes", lc, h, newTestRecorder(), applogger.Nop())
	assert.Equal(t, "fintrade.trade-outcomes", handler.Topic())

	pos, err := lc.Open(ctx, buySignal("EURUSD", 0.1))
	require.NoError(t, err)

	t.Run("closes a managed ticket", func(t *testing.T) {
		require.NoError(t, handler.Handle(ctx, []byte(`{"symbol":"EURUSD","ticket":501,"profit":12.5}`)))
		_, open := lc.OpenFor("EURUSD")
		assert.False(t, open)
		require.Equal(t, 1, h.len())
		assert.Equal(t, 12.5, h.records[0].Profit)
		assert.Equal(t, pos.Ticket, h.records[0].Ticket)
		assert.Equal(t, models.StateClosed, ev.states(nil)[len(ev.states(nil))-1])
	})

	t.Run("ignores a repeated outcome", func(t *testing.T) {
		require.NoError(t, handler.Handle(ctx, []byte(`{"symbol":"EURUSD","ticket":501,"profit":12.5}`)))
		assert.Equal(t, 1, h.len())
	})

	t.Run("appends an unmanaged outcome", func(t *testing.T) {
		require.NoError(t, handler.Handle(ctx, []byte(`{"symbol":"GBPUSD","ticket":9001,"lot_size":0.3,"profit":-4,"timestamp":1700000000}`)))
		require.Equal(t, 2, h.len())
		assert.Equal(t, "GBPUSD", h.records[1].Symbol)
		assert.Equal(t, int64(1700000000), h.records[1].Timestamp.Unix())
	})

	t.Run("stamps records without a timestamp", func(t *testing.T) {
		require.NoError(t, handler.Handle(ctx, []byte(`{"symbol":"XAUUSD","profit":3}`)))
		require.Equal(t, 3, h.len())
		assert.False(t, h.records[2].Timestamp.IsZero())
	})

	t.Run("rejects malformed outcomes", func(t *testing.T) {
		err := handler.Handle(ctx, []byte(`{not json`))
		assert.True(t, errs.IsKind(err, errs.KindInvalidSignal))
		err = handler.Handle(ctx, []byte(`{"ticket":7,"profit":1}`))
		assert.True(t, errs.IsKind(err, errs.KindInvalidSignal))
		assert.Equal(t, 3, h.len())
	})
}
